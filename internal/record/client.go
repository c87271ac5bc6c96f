// Package record holds the HTTP client for the persistence endpoint that
// stores submission records, and the read-only feed listing the caller
// refreshes after a saved submission.
package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config contains persistence client configuration
type Config struct {
	Endpoint     string
	FeedEndpoint string
	APIKey       string
	Timeout      time.Duration
}

// Submission is the JSON payload persisted for a scored answer
type Submission struct {
	QuestionID     int             `json:"question_id"`
	QuestionText   string          `json:"question_text"`
	LengthSec      *float64        `json:"length_sec"`
	ScoreResult    json.RawMessage `json:"score_result"`
	AudioKey       string          `json:"audio_key"`
	DateKey        string          `json:"date_key,omitempty"`
	IdentityHandle string          `json:"identity_handle"`
}

// SaveResult carries the persisted submission's identifier plus the full
// response body, whose aggregate counters (streak, totals) are passed
// through to the caller untouched.
type SaveResult struct {
	SubmissionID string
	Raw          json.RawMessage
}

// Client persists submission records and fetches the results feed
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a persistence HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{config: config, httpClient: httpClient}, nil
}

// Save persists a submission record and returns the assigned identifier
func (c *Client) Save(ctx context.Context, sub *Submission) (*SaveResult, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "capture-service/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		SubmissionID string `json:"submission_id"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	id := parsed.SubmissionID
	if id == "" {
		id = parsed.ID
	}
	if id == "" {
		return nil, fmt.Errorf("persistence response missing submission identifier: %s", string(respBody))
	}

	return &SaveResult{SubmissionID: id, Raw: json.RawMessage(respBody)}, nil
}

// ListFeed fetches the results feed for a given date key. The feed payload
// is opaque to this service; callers render it directly.
func (c *Client) ListFeed(ctx context.Context, dateKey string) (json.RawMessage, error) {
	if c.config.FeedEndpoint == "" {
		return nil, fmt.Errorf("feed endpoint is not configured")
	}

	feedURL := c.config.FeedEndpoint
	if dateKey != "" {
		feedURL += "?date=" + url.QueryEscape(dateKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "capture-service/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("malformed feed response: %s", string(respBody))
	}

	return json.RawMessage(respBody), nil
}
