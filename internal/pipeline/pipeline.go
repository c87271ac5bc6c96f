package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speakup/capture-service/internal/capture"
	"github.com/speakup/capture-service/internal/metrics"
	"github.com/speakup/capture-service/internal/record"
	"github.com/speakup/capture-service/internal/scoring"
	"github.com/speakup/capture-service/internal/storage"
)

// Stage identifies how far a submission progressed
type Stage string

const (
	StageScored      Stage = "scored"
	StageAudioStored Stage = "audio_stored"
	StageSaved       Stage = "saved"
)

// FailedStage identifies the stage at which a submission stopped
type FailedStage string

const (
	FailedNone       FailedStage = "none"
	FailedScoring    FailedStage = "scoring"
	FailedAudioStore FailedStage = "audio_store"
	FailedPersist    FailedStage = "persist"
)

// ErrAlreadySubmitting is returned when Submit is called while a submission
// is in flight. The second call is a no-op: not queued, not parallelized.
var ErrAlreadySubmitting = errors.New("a submission is already in flight")

// Context carries the question and session data submitted alongside the
// audio asset. It is constructed immediately before pipeline invocation.
type Context struct {
	QuestionID     int
	QuestionText   string
	DateKey        string
	IdentityHandle string
	Asset          *capture.Asset
}

// Outcome is the consolidated result returned to the caller. FailedAt is
// the authoritative record of how far the pipeline got: an outcome with
// Stage=scored and FailedAt!=none still carries the score obtained in
// stage one.
type Outcome struct {
	Stage        Stage           `json:"stage"`
	ScoreResult  json.RawMessage `json:"score_result,omitempty"`
	AudioKey     string          `json:"audio_key,omitempty"`
	SubmissionID string          `json:"submission_id,omitempty"`
	FailedAt     FailedStage     `json:"failed_at"`

	// Counters is the persistence response passed through untouched
	// (streak, totals). Only present on fully saved outcomes.
	Counters json.RawMessage `json:"counters,omitempty"`
}

// Saved reports whether the submission completed all three stages
func (o *Outcome) Saved() bool {
	return o != nil && o.FailedAt == FailedNone && o.Stage == StageSaved
}

// Stats tracks pipeline activity for the status API
type Stats struct {
	Submissions     uint64 `json:"submissions"`
	Saved           uint64 `json:"saved"`
	PartialFailures uint64 `json:"partial_failures"`
	Rejected        uint64 `json:"rejected_in_flight"`
}

// Pipeline runs the three submission stages in strict order
type Pipeline struct {
	scoring *scoring.Client
	storage *storage.Client
	records *record.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	inFlight atomic.Bool

	stats Stats
	mu    sync.Mutex
}

// New creates a pipeline over the three stage clients. The metrics argument
// may be nil.
func New(scoringClient *scoring.Client, storageClient *storage.Client, recordClient *record.Client,
	logger *slog.Logger, m *metrics.Metrics) *Pipeline {

	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		scoring: scoringClient,
		storage: storageClient,
		records: recordClient,
		logger:  logger,
		metrics: m,
	}
}

// Submit runs all three stages for the given submission context. On a stage
// failure the returned outcome is non-nil and preserves every result
// obtained before the failure, alongside a non-nil error identifying the
// stage. A call made while another submission is in flight fails with
// ErrAlreadySubmitting without issuing any network calls.
func (p *Pipeline) Submit(ctx context.Context, sub Context) (*Outcome, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.recordRejected()
		return nil, ErrAlreadySubmitting
	}
	defer p.inFlight.Store(false)

	return p.run(ctx, sub, nil)
}

// Resume re-runs only the stages after the last one completed in prev,
// reusing the already-held score and audio key. Used for caller-initiated
// retry of a partially failed submission without wasting the obtained score.
func (p *Pipeline) Resume(ctx context.Context, sub Context, prev *Outcome) (*Outcome, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.recordRejected()
		return nil, ErrAlreadySubmitting
	}
	defer p.inFlight.Store(false)

	return p.run(ctx, sub, prev)
}

// GetStats returns a snapshot of pipeline activity
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) run(ctx context.Context, sub Context, prev *Outcome) (*Outcome, error) {
	p.mu.Lock()
	p.stats.Submissions++
	p.mu.Unlock()

	out := &Outcome{FailedAt: FailedNone}

	// Stage 1: score
	if prev != nil && len(prev.ScoreResult) > 0 {
		out.Stage = StageScored
		out.ScoreResult = prev.ScoreResult
	} else {
		err := p.runStage(string(FailedScoring), func() error {
			score, err := p.scoring.Score(ctx, sub.Asset, sub.QuestionText)
			if err != nil {
				return err
			}
			out.ScoreResult = score
			return nil
		})
		if err != nil {
			out.FailedAt = FailedScoring
			p.recordPartial(out)
			return out, fmt.Errorf("scoring failed: %w", err)
		}
		out.Stage = StageScored
	}

	// Stage 2: store audio
	if prev != nil && prev.AudioKey != "" {
		out.Stage = StageAudioStored
		out.AudioKey = prev.AudioKey
	} else {
		err := p.runStage(string(FailedAudioStore), func() error {
			stored, err := p.storage.Upload(ctx, sub.Asset)
			if err != nil {
				return err
			}
			out.AudioKey = stored.AudioKey
			return nil
		})
		if err != nil {
			out.FailedAt = FailedAudioStore
			p.recordPartial(out)
			return out, fmt.Errorf("audio store failed: %w", err)
		}
		out.Stage = StageAudioStored
	}

	// Stage 3: persist record
	err := p.runStage(string(FailedPersist), func() error {
		saved, err := p.records.Save(ctx, &record.Submission{
			QuestionID:     sub.QuestionID,
			QuestionText:   sub.QuestionText,
			LengthSec:      sub.Asset.DurationSeconds,
			ScoreResult:    out.ScoreResult,
			AudioKey:       out.AudioKey,
			DateKey:        sub.DateKey,
			IdentityHandle: sub.IdentityHandle,
		})
		if err != nil {
			return err
		}
		out.SubmissionID = saved.SubmissionID
		out.Counters = saved.Raw
		return nil
	})
	if err != nil {
		out.FailedAt = FailedPersist
		p.recordPartial(out)
		return out, fmt.Errorf("persist failed: %w", err)
	}

	out.Stage = StageSaved

	p.mu.Lock()
	p.stats.Saved++
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.RecordSubmissionSaved()
	}

	p.logger.Info("Submission saved",
		slog.Int("question_id", sub.QuestionID),
		slog.String("submission_id", out.SubmissionID),
		slog.String("audio_key", out.AudioKey),
	)

	return out, nil
}

// runStage wraps one stage call with logging and metrics
func (p *Pipeline) runStage(stage string, fn func() error) error {
	if p.metrics != nil {
		p.metrics.RecordStageRequest(stage)
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordStageFailure(stage, elapsed)
		}
		p.logger.Warn("Pipeline stage failed",
			slog.String("stage", stage),
			slog.Float64("elapsed_sec", elapsed),
			slog.String("error", err.Error()),
		)
		return err
	}

	if p.metrics != nil {
		p.metrics.RecordStageSuccess(stage, elapsed)
	}
	return nil
}

func (p *Pipeline) recordPartial(out *Outcome) {
	p.mu.Lock()
	p.stats.PartialFailures++
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.RecordPartialFailure(string(out.FailedAt))
	}
}

func (p *Pipeline) recordRejected() {
	p.mu.Lock()
	p.stats.Rejected++
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.RecordSubmitRejected()
	}
}
