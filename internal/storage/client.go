// Package storage holds the HTTP client for the durable audio store. A
// stored asset yields an audio key used later for public playback.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/speakup/capture-service/internal/capture"
)

// Config contains audio storage client configuration
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// StoredAudio is the storage endpoint's response
type StoredAudio struct {
	AudioKey string `json:"audio_key"`
	AudioURL string `json:"audioUrl"`
}

// Client uploads finished audio assets to the binary storage endpoint
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates an audio storage HTTP client
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

// Upload stores the asset and returns its durable key and playback URL
func (c *Client) Upload(ctx context.Context, asset *capture.Asset) (*StoredAudio, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", asset.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(asset.Bytes); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
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

	var stored StoredAudio
	if err := json.Unmarshal(respBody, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if stored.AudioKey == "" {
		return nil, fmt.Errorf("storage response missing audio_key: %s", string(respBody))
	}

	return &stored, nil
}
