package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	return Config{
		Capture: CaptureConfig{
			DeviceSampleRate: 48000,
			TargetSampleRate: 16000,
			BufferFrames:     480,
		},
		Limits: LimitsConfig{
			MinSeconds: 3,
			MaxSeconds: 120,
		},
		Scoring: EndpointConfig{
			Endpoint: "https://api.example.com/score",
			APIKey:   "test-key",
			Timeout:  30,
		},
		Storage: EndpointConfig{
			Endpoint: "https://api.example.com/audio",
			APIKey:   "test-key",
			Timeout:  30,
		},
		Persist: PersistConfig{
			Endpoint:     "https://api.example.com/submissions",
			FeedEndpoint: "https://api.example.com/feed",
			APIKey:       "test-key",
			Timeout:      30,
		},
		Session: SessionConfig{
			MaxHelpTier: 2,
		},
		HTTP: HTTPConfig{
			Port:    8081,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "device rate too low",
			mutate:      func(c *Config) { c.Capture.DeviceSampleRate = 4000 },
			expectError: true,
		},
		{
			name:        "target rate too high",
			mutate:      func(c *Config) { c.Capture.TargetSampleRate = 96000 },
			expectError: true,
		},
		{
			name:        "buffer frames out of range",
			mutate:      func(c *Config) { c.Capture.BufferFrames = 16 },
			expectError: true,
		},
		{
			name:        "negative min duration",
			mutate:      func(c *Config) { c.Limits.MinSeconds = -1 },
			expectError: true,
		},
		{
			name:        "max not above min",
			mutate:      func(c *Config) { c.Limits.MaxSeconds = c.Limits.MinSeconds },
			expectError: true,
		},
		{
			name:        "empty scoring endpoint",
			mutate:      func(c *Config) { c.Scoring.Endpoint = "" },
			expectError: true,
		},
		{
			name:        "zero storage timeout",
			mutate:      func(c *Config) { c.Storage.Timeout = 0 },
			expectError: true,
		},
		{
			name:        "empty persistence endpoint",
			mutate:      func(c *Config) { c.Persist.Endpoint = "" },
			expectError: true,
		},
		{
			name:        "negative help tier",
			mutate:      func(c *Config) { c.Session.MaxHelpTier = -1 },
			expectError: true,
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
		},
		{
			name:        "http disabled skips port check",
			mutate:      func(c *Config) { c.HTTP.Enabled = false; c.HTTP.Port = 0 },
			expectError: false,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	yamlContent := `
capture:
  device_sample_rate: 48000
  target_sample_rate: 16000
  buffer_frames: 480
limits:
  min_seconds: 3
  max_seconds: 120
scoring:
  endpoint: "https://api.example.com/score"
  api_key: "file-key"
  timeout: 30
storage:
  endpoint: "https://api.example.com/audio"
  timeout: 30
persistence:
  endpoint: "https://api.example.com/submissions"
  feed_endpoint: "https://api.example.com/feed"
  timeout: 30
session:
  max_help_tier: 2
http:
  enabled: false
logging:
  level: "info"
  format: "text"
  output: "stdout"
`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Capture.TargetSampleRate != 16000 {
		t.Errorf("Expected target rate 16000, got %d", cfg.Capture.TargetSampleRate)
	}
	if cfg.Limits.MaxSeconds != 120 {
		t.Errorf("Expected max seconds 120, got %f", cfg.Limits.MaxSeconds)
	}
	if cfg.Scoring.APIKey != "file-key" {
		t.Errorf("Expected api key from file, got %q", cfg.Scoring.APIKey)
	}
	if cfg.Persist.FeedEndpoint != "https://api.example.com/feed" {
		t.Errorf("Unexpected feed endpoint %q", cfg.Persist.FeedEndpoint)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	yamlContent := `
capture:
  device_sample_rate: 48000
  target_sample_rate: 16000
  buffer_frames: 480
limits:
  min_seconds: 3
  max_seconds: 120
scoring:
  endpoint: "https://api.example.com/score"
  api_key: "file-key"
  timeout: 30
storage:
  endpoint: "https://api.example.com/audio"
  timeout: 30
persistence:
  endpoint: "https://api.example.com/submissions"
  timeout: 30
logging:
  level: "info"
  format: "text"
`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	t.Setenv("SCORING_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Scoring.APIKey != "env-key" {
		t.Errorf("Expected env override, got %q", cfg.Scoring.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestGetTimeoutDuration(t *testing.T) {
	e := EndpointConfig{Timeout: 45}
	if got := e.GetTimeoutDuration().Seconds(); got != 45 {
		t.Errorf("Expected 45s timeout, got %v", got)
	}
}
