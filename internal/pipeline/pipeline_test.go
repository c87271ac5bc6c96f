package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/speakup/capture-service/internal/audio"
	"github.com/speakup/capture-service/internal/capture"
	"github.com/speakup/capture-service/internal/record"
	"github.com/speakup/capture-service/internal/scoring"
	"github.com/speakup/capture-service/internal/storage"
)

// stageServers bundles httptest backends for the three pipeline stages
type stageServers struct {
	scoreCalls   atomic.Int64
	storeCalls   atomic.Int64
	persistCalls atomic.Int64

	scoreFail   atomic.Bool
	storeFail   atomic.Bool
	persistFail atomic.Bool

	// scoreGate, when set, blocks the scoring handler until closed
	scoreGate chan struct{}

	score   *httptest.Server
	store   *httptest.Server
	persist *httptest.Server
}

func newStageServers(t *testing.T) *stageServers {
	t.Helper()
	s := &stageServers{}

	s.score = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.scoreCalls.Add(1)
		if s.scoreGate != nil {
			<-s.scoreGate
		}
		if s.scoreFail.Load() {
			http.Error(w, "scoring unavailable", http.StatusInternalServerError)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "bad multipart body", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file field", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"overall":87,"fluency":82}`))
	}))
	t.Cleanup(s.score.Close)

	s.store = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.storeCalls.Add(1)
		if s.storeFail.Load() {
			http.Error(w, "storage unavailable", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"audio_key":"k-123","audioUrl":"https://cdn.example.com/k-123.wav"}`))
	}))
	t.Cleanup(s.store.Close)

	s.persist = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.persistCalls.Add(1)
		if s.persistFail.Load() {
			http.Error(w, "db down", http.StatusInternalServerError)
			return
		}
		var sub record.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		if sub.AudioKey == "" || len(sub.ScoreResult) == 0 {
			http.Error(w, "incomplete record", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"submission_id":"s-42","streak":3,"total_answers":17}`))
	}))
	t.Cleanup(s.persist.Close)

	return s
}

func newTestPipeline(t *testing.T, s *stageServers) *Pipeline {
	t.Helper()

	scoringClient, err := scoring.NewClient(scoring.Config{Endpoint: s.score.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("scoring.NewClient failed: %v", err)
	}
	storageClient, err := storage.NewClient(storage.Config{Endpoint: s.store.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("storage.NewClient failed: %v", err)
	}
	recordClient, err := record.NewClient(record.Config{Endpoint: s.persist.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("record.NewClient failed: %v", err)
	}

	return New(scoringClient, storageClient, recordClient, nil, nil)
}

func testAsset(t *testing.T) *capture.Asset {
	t.Helper()
	wavData, err := audio.EncodeWAV(audio.NewSampleBufferFrom(make([]float32, 16000), 16000))
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	duration := 1.0
	return capture.NewAsset(wavData, &duration, capture.SourceMicrophone, "answer.wav", nil)
}

func testContext(t *testing.T) Context {
	return Context{
		QuestionID:     7,
		QuestionText:   "Describe your favorite meal.",
		DateKey:        "2026-09-01",
		IdentityHandle: "otter-19",
		Asset:          testAsset(t),
	}
}

func TestSubmitAllStagesSucceed(t *testing.T) {
	servers := newStageServers(t)
	pipe := newTestPipeline(t, servers)

	out, err := pipe.Submit(context.Background(), testContext(t))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !out.Saved() {
		t.Errorf("Expected saved outcome, got stage=%v failedAt=%v", out.Stage, out.FailedAt)
	}
	if out.SubmissionID != "s-42" {
		t.Errorf("Expected submission id s-42, got %q", out.SubmissionID)
	}
	if out.AudioKey != "k-123" {
		t.Errorf("Expected audio key k-123, got %q", out.AudioKey)
	}
	if len(out.ScoreResult) == 0 {
		t.Error("Expected score result to be carried in outcome")
	}
	if len(out.Counters) == 0 {
		t.Error("Expected pass-through counters from persistence response")
	}

	if got := servers.scoreCalls.Load(); got != 1 {
		t.Errorf("Expected 1 scoring call, got %d", got)
	}
	if got := servers.storeCalls.Load(); got != 1 {
		t.Errorf("Expected 1 storage call, got %d", got)
	}
	if got := servers.persistCalls.Load(); got != 1 {
		t.Errorf("Expected 1 persist call, got %d", got)
	}
}

func TestScoringFailureAbortsEarly(t *testing.T) {
	servers := newStageServers(t)
	servers.scoreFail.Store(true)
	pipe := newTestPipeline(t, servers)

	out, err := pipe.Submit(context.Background(), testContext(t))
	if err == nil {
		t.Fatal("Expected error from scoring failure")
	}

	if out == nil {
		t.Fatal("Expected outcome even on scoring failure")
	}
	if out.FailedAt != FailedScoring {
		t.Errorf("Expected failedAt=scoring, got %v", out.FailedAt)
	}
	if len(out.ScoreResult) != 0 {
		t.Error("Expected no score result when scoring fails")
	}

	// Later stages must never be attempted.
	if got := servers.storeCalls.Load(); got != 0 {
		t.Errorf("Expected 0 storage calls, got %d", got)
	}
	if got := servers.persistCalls.Load(); got != 0 {
		t.Errorf("Expected 0 persist calls, got %d", got)
	}
}

func TestAudioStoreFailurePreservesScore(t *testing.T) {
	servers := newStageServers(t)
	servers.storeFail.Store(true)
	pipe := newTestPipeline(t, servers)

	out, err := pipe.Submit(context.Background(), testContext(t))
	if err == nil {
		t.Fatal("Expected error from storage failure")
	}

	if out.FailedAt != FailedAudioStore {
		t.Errorf("Expected failedAt=audio_store, got %v", out.FailedAt)
	}
	if out.Stage != StageScored {
		t.Errorf("Expected stage=scored, got %v", out.Stage)
	}
	// The already-obtained score is never discarded by a later failure.
	if len(out.ScoreResult) == 0 {
		t.Error("Expected score result preserved after storage failure")
	}
	if out.AudioKey != "" {
		t.Errorf("Expected no audio key, got %q", out.AudioKey)
	}
	if got := servers.persistCalls.Load(); got != 0 {
		t.Errorf("Expected 0 persist calls, got %d", got)
	}
}

func TestPersistFailurePreservesScoreAndKey(t *testing.T) {
	servers := newStageServers(t)
	servers.persistFail.Store(true)
	pipe := newTestPipeline(t, servers)

	out, err := pipe.Submit(context.Background(), testContext(t))
	if err == nil {
		t.Fatal("Expected error from persist failure")
	}

	if out.FailedAt != FailedPersist {
		t.Errorf("Expected failedAt=persist, got %v", out.FailedAt)
	}
	if len(out.ScoreResult) == 0 {
		t.Error("Expected score result preserved after persist failure")
	}
	if out.AudioKey != "k-123" {
		t.Errorf("Expected audio key preserved, got %q", out.AudioKey)
	}
	if out.SubmissionID != "" {
		t.Errorf("Expected no submission id, got %q", out.SubmissionID)
	}
}

func TestResumeSkipsCompletedStages(t *testing.T) {
	servers := newStageServers(t)
	servers.persistFail.Store(true)
	pipe := newTestPipeline(t, servers)
	sub := testContext(t)

	partial, err := pipe.Submit(context.Background(), sub)
	if err == nil {
		t.Fatal("Expected persist failure on first submit")
	}

	servers.persistFail.Store(false)
	out, err := pipe.Resume(context.Background(), sub, partial)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if !out.Saved() {
		t.Errorf("Expected saved outcome after resume, got failedAt=%v", out.FailedAt)
	}
	if out.AudioKey != partial.AudioKey {
		t.Errorf("Expected reused audio key %q, got %q", partial.AudioKey, out.AudioKey)
	}

	// Scoring and storage ran exactly once across both attempts.
	if got := servers.scoreCalls.Load(); got != 1 {
		t.Errorf("Expected 1 scoring call total, got %d", got)
	}
	if got := servers.storeCalls.Load(); got != 1 {
		t.Errorf("Expected 1 storage call total, got %d", got)
	}
	if got := servers.persistCalls.Load(); got != 2 {
		t.Errorf("Expected 2 persist calls total, got %d", got)
	}
}

func TestSubmitRefusesConcurrentInvocation(t *testing.T) {
	servers := newStageServers(t)
	servers.scoreGate = make(chan struct{})
	pipe := newTestPipeline(t, servers)
	sub := testContext(t)

	firstDone := make(chan error, 1)
	go func() {
		_, err := pipe.Submit(context.Background(), sub)
		firstDone <- err
	}()

	// Wait until the first submission reaches the scoring backend.
	deadline := time.After(5 * time.Second)
	for servers.scoreCalls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("First submission never reached the scoring backend")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := pipe.Submit(context.Background(), sub)
	if !errors.Is(err, ErrAlreadySubmitting) {
		t.Fatalf("Expected ErrAlreadySubmitting, got %v", err)
	}

	// The rejected call must not have issued any network requests.
	if got := servers.scoreCalls.Load(); got != 1 {
		t.Errorf("Expected 1 scoring call, got %d", got)
	}

	close(servers.scoreGate)
	if err := <-firstDone; err != nil {
		t.Fatalf("First submission failed: %v", err)
	}

	if got := servers.storeCalls.Load(); got != 1 {
		t.Errorf("Expected 1 storage call, got %d", got)
	}
	if got := servers.persistCalls.Load(); got != 1 {
		t.Errorf("Expected 1 persist call, got %d", got)
	}

	stats := pipe.GetStats()
	if stats.Rejected != 1 {
		t.Errorf("Expected 1 rejected submission in stats, got %d", stats.Rejected)
	}
	if stats.Saved != 1 {
		t.Errorf("Expected 1 saved submission in stats, got %d", stats.Saved)
	}
}

func TestSubmitAllowedAfterCompletion(t *testing.T) {
	servers := newStageServers(t)
	pipe := newTestPipeline(t, servers)
	sub := testContext(t)

	if _, err := pipe.Submit(context.Background(), sub); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
	if _, err := pipe.Submit(context.Background(), sub); err != nil {
		t.Fatalf("Second submit failed: %v", err)
	}

	if got := servers.scoreCalls.Load(); got != 2 {
		t.Errorf("Expected 2 scoring calls, got %d", got)
	}
}
