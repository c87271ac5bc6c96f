// Package config loads and validates the service configuration from a YAML
// file, with environment overrides for credentials.
package config
