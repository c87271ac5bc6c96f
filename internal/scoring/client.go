// Package scoring holds the HTTP client for the external answer-scoring
// service. The scoring payload is opaque to this service and passed through
// to the caller untouched.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/speakup/capture-service/internal/capture"
)

// Config contains scoring client configuration
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client sends finished audio assets to the scoring endpoint
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a scoring HTTP client
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

// Score submits the asset plus question context and returns the raw scoring
// payload. The question text and duration are optional fields; a nil
// duration is simply omitted.
func (c *Client) Score(ctx context.Context, asset *capture.Asset, question string) (json.RawMessage, error) {
	body, contentType, err := c.createMultipartRequest(asset, question)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
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
		return nil, fmt.Errorf("malformed scoring response: %s", string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// createMultipartRequest builds the multipart/form-data body
func (c *Client) createMultipartRequest(asset *capture.Asset, question string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", asset.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(asset.Bytes); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if asset.DurationSeconds != nil {
		lengthSec := int(math.Round(*asset.DurationSeconds))
		if err := writer.WriteField("length_sec", fmt.Sprintf("%d", lengthSec)); err != nil {
			return nil, "", fmt.Errorf("failed to write field length_sec: %w", err)
		}
	}

	if question != "" {
		if err := writer.WriteField("question", question); err != nil {
			return nil, "", fmt.Errorf("failed to write field question: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
