// Package metrics defines the Prometheus instrumentation for the capture
// service: capture lifecycle, codec work, pipeline stages, and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture service
type Metrics struct {
	// Capture metrics
	CapturesStarted   prometheus.Counter
	CapturesCompleted prometheus.Counter
	CapturesEmpty     prometheus.Counter
	MicDenied         prometheus.Counter
	CaptureDuration   prometheus.Histogram

	// Upload metrics
	UploadsWrapped    prometheus.Counter
	UploadsTranscoded prometheus.Counter
	UploadsRejected   prometheus.Counter

	// Codec metrics
	EncodedBytes   prometheus.Counter
	EncodeDuration prometheus.Histogram
	ResampleOps    prometheus.Counter

	// Validation metrics
	DurationRejects  prometheus.Counter
	DurationUnknowns prometheus.Counter

	// Pipeline metrics
	StageRequests    *prometheus.CounterVec
	StageFailures    *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	SubmissionsSaved prometheus.Counter
	PartialFailures  *prometheus.CounterVec
	SubmitRejected   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		CapturesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_recordings_started_total",
			Help: "Total number of microphone recordings started",
		}),
		CapturesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_recordings_completed_total",
			Help: "Total number of recordings finalized into an audio asset",
		}),
		CapturesEmpty: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_recordings_empty_total",
			Help: "Total number of recordings discarded because no frames arrived",
		}),
		MicDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_mic_denied_total",
			Help: "Total number of microphone access denials",
		}),
		CaptureDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "capture_recording_duration_seconds",
			Help:    "Wall-clock duration of finalized recordings",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),

		UploadsWrapped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_uploads_wrapped_total",
			Help: "Total number of WAV uploads accepted as-is",
		}),
		UploadsTranscoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_uploads_transcoded_total",
			Help: "Total number of compressed uploads transcoded to WAV",
		}),
		UploadsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_uploads_rejected_total",
			Help: "Total number of uploads rejected as unsupported",
		}),

		EncodedBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_wav_encoded_bytes_total",
			Help: "Total bytes of WAV output produced by the encoder",
		}),
		EncodeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "capture_wav_encode_duration_seconds",
			Help:    "Time spent encoding sample buffers to WAV",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 0.1ms to ~1.6s
		}),
		ResampleOps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_resample_operations_total",
			Help: "Total number of sample-rate conversions performed",
		}),

		DurationRejects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_duration_rejects_total",
			Help: "Total number of assets rejected for out-of-range duration",
		}),
		DurationUnknowns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_duration_unknown_total",
			Help: "Total number of assets submitted with unverifiable duration",
		}),

		StageRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_pipeline_stage_requests_total",
			Help: "Total number of pipeline stage requests sent",
		}, []string{"stage"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_pipeline_stage_failures_total",
			Help: "Total number of failed pipeline stage requests",
		}, []string{"stage"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "capture_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stage requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}, []string{"stage"}),
		SubmissionsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_submissions_saved_total",
			Help: "Total number of submissions persisted end to end",
		}),
		PartialFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_submissions_partial_total",
			Help: "Total number of submissions that stopped at a failed stage",
		}, []string{"failed_at"}),
		SubmitRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capture_submit_rejected_total",
			Help: "Total number of submit calls refused while one was in flight",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "capture_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordCaptureStarted increments the recordings started counter
func (m *Metrics) RecordCaptureStarted() {
	m.CapturesStarted.Inc()
}

// RecordCaptureCompleted records a finalized recording and its duration
func (m *Metrics) RecordCaptureCompleted(durationSeconds float64) {
	m.CapturesCompleted.Inc()
	m.CaptureDuration.Observe(durationSeconds)
}

// RecordCaptureEmpty increments the empty recordings counter
func (m *Metrics) RecordCaptureEmpty() {
	m.CapturesEmpty.Inc()
}

// RecordMicDenied increments the microphone denial counter
func (m *Metrics) RecordMicDenied() {
	m.MicDenied.Inc()
}

// RecordUpload records an accepted or rejected upload by kind
func (m *Metrics) RecordUpload(kind string) {
	switch kind {
	case "wrapped":
		m.UploadsWrapped.Inc()
	case "transcoded":
		m.UploadsTranscoded.Inc()
	case "rejected":
		m.UploadsRejected.Inc()
	}
}

// RecordEncode records one WAV encode operation
func (m *Metrics) RecordEncode(sizeBytes int, durationSeconds float64) {
	m.EncodedBytes.Add(float64(sizeBytes))
	m.EncodeDuration.Observe(durationSeconds)
}

// RecordResample increments the resample operations counter
func (m *Metrics) RecordResample() {
	m.ResampleOps.Inc()
}

// RecordDurationReject increments the duration reject counter
func (m *Metrics) RecordDurationReject() {
	m.DurationRejects.Inc()
}

// RecordDurationUnknown increments the unknown-duration counter
func (m *Metrics) RecordDurationUnknown() {
	m.DurationUnknowns.Inc()
}

// RecordStageRequest increments the request counter for a pipeline stage
func (m *Metrics) RecordStageRequest(stage string) {
	m.StageRequests.WithLabelValues(stage).Inc()
}

// RecordStageSuccess records a successful stage and its duration
func (m *Metrics) RecordStageSuccess(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageFailure records a failed stage and its duration
func (m *Metrics) RecordStageFailure(stage string, durationSeconds float64) {
	m.StageFailures.WithLabelValues(stage).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordSubmissionSaved increments the saved submissions counter
func (m *Metrics) RecordSubmissionSaved() {
	m.SubmissionsSaved.Inc()
}

// RecordPartialFailure records a submission that stopped at the given stage
func (m *Metrics) RecordPartialFailure(failedAt string) {
	m.PartialFailures.WithLabelValues(failedAt).Inc()
}

// RecordSubmitRejected increments the re-entrancy rejection counter
func (m *Metrics) RecordSubmitRejected() {
	m.SubmitRejected.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
