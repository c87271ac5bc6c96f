// Package server exposes the local HTTP API used to monitor the capture
// service: health, per-question session state, submission statistics, a
// sanitized view of the configuration, and Prometheus metrics.
package server
