package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Capture CaptureConfig  `yaml:"capture"`
	Limits  LimitsConfig   `yaml:"limits"`
	Scoring EndpointConfig `yaml:"scoring"`
	Storage EndpointConfig `yaml:"storage"`
	Persist PersistConfig  `yaml:"persistence"`
	Session SessionConfig  `yaml:"session"`
	HTTP    HTTPConfig     `yaml:"http"`
	Logging LoggingConfig  `yaml:"logging"`
}

// CaptureConfig contains microphone capture parameters
type CaptureConfig struct {
	DeviceSampleRate int `yaml:"device_sample_rate"` // Hz requested from the device
	TargetSampleRate int `yaml:"target_sample_rate"` // Hz of the encoded WAV
	BufferFrames     int `yaml:"buffer_frames"`      // frames per device period
}

// LimitsConfig contains the advisory duration bounds for submissions
type LimitsConfig struct {
	MinSeconds float64 `yaml:"min_seconds"`
	MaxSeconds float64 `yaml:"max_seconds"`
}

// EndpointConfig contains a remote endpoint's address and credentials
type EndpointConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// PersistConfig contains the persistence and feed endpoints
type PersistConfig struct {
	Endpoint     string `yaml:"endpoint"`
	FeedEndpoint string `yaml:"feed_endpoint"`
	APIKey       string `yaml:"api_key"`
	Timeout      int    `yaml:"timeout"` // seconds
}

// SessionConfig contains session policy parameters
type SessionConfig struct {
	MaxHelpTier int `yaml:"max_help_tier"`
}

// HTTPConfig contains the status HTTP server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file, then applies environment
// overrides for credentials and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnv overrides credentials from the environment so API keys need not
// live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SCORING_API_KEY"); v != "" {
		c.Scoring.APIKey = v
	}
	if v := os.Getenv("STORAGE_API_KEY"); v != "" {
		c.Storage.APIKey = v
	}
	if v := os.Getenv("PERSIST_API_KEY"); v != "" {
		c.Persist.APIKey = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits config: %w", err)
	}

	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Persist.Validate(); err != nil {
		return fmt.Errorf("persistence config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (cc *CaptureConfig) Validate() error {
	if cc.DeviceSampleRate < 8000 || cc.DeviceSampleRate > 192000 {
		return fmt.Errorf("device_sample_rate must be between 8000 and 192000 Hz, got %d", cc.DeviceSampleRate)
	}

	if cc.TargetSampleRate < 8000 || cc.TargetSampleRate > 48000 {
		return fmt.Errorf("target_sample_rate must be between 8000 and 48000 Hz, got %d", cc.TargetSampleRate)
	}

	if cc.BufferFrames < 64 || cc.BufferFrames > 8192 {
		return fmt.Errorf("buffer_frames must be between 64 and 8192, got %d", cc.BufferFrames)
	}

	return nil
}

// Validate validates duration limits
func (l *LimitsConfig) Validate() error {
	if l.MinSeconds < 0 {
		return fmt.Errorf("min_seconds cannot be negative, got %f", l.MinSeconds)
	}

	if l.MaxSeconds <= l.MinSeconds {
		return fmt.Errorf("max_seconds (%f) must be greater than min_seconds (%f)",
			l.MaxSeconds, l.MinSeconds)
	}

	return nil
}

// Validate validates an endpoint section
func (e *EndpointConfig) Validate() error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}

	return nil
}

// Validate validates the persistence section
func (p *PersistConfig) Validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if p.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", p.Timeout)
	}

	return nil
}

// Validate validates session policy configuration
func (s *SessionConfig) Validate() error {
	if s.MaxHelpTier < 0 {
		return fmt.Errorf("max_help_tier cannot be negative, got %d", s.MaxHelpTier)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTimeoutDuration returns the endpoint timeout as a time.Duration
func (e *EndpointConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

// GetTimeoutDuration returns the persistence timeout as a time.Duration
func (p *PersistConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}
