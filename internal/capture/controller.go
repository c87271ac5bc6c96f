package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/speakup/capture-service/internal/audio"
	"github.com/speakup/capture-service/internal/metrics"
)

// State represents the controller's position in the capture lifecycle
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
	StateLocked
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

var (
	// ErrMicAccessDenied indicates the platform refused microphone access.
	ErrMicAccessDenied = errors.New("microphone access denied")

	// ErrEmptyCapture indicates a recording finished without any frames.
	ErrEmptyCapture = errors.New("no audio captured")

	// ErrUnsupportedAudioFormat indicates a file that is neither a WAV
	// container nor a decodable compressed format.
	ErrUnsupportedAudioFormat = errors.New("unsupported audio format")

	// ErrSessionLocked indicates the question's session no longer accepts input.
	ErrSessionLocked = errors.New("session is locked")

	// ErrInvalidState indicates an operation called outside its valid states.
	ErrInvalidState = errors.New("operation not valid in current state")
)

// Controller owns the record/stop state machine for one question attempt.
// It is constructed per attempt and holds no ambient state: the frame
// source, the sample buffer, and the active asset are all instance fields.
type Controller struct {
	source     FrameSource
	targetRate int
	logger     *slog.Logger
	metrics    *metrics.Metrics

	state       State
	buf         *audio.SampleBuffer
	asset       *Asset
	recordStart time.Time

	// decode turns a compressed upload into samples; swapped in tests.
	decode func(name string, data []byte) (*audio.SampleBuffer, error)

	mu sync.Mutex
}

// NewController creates a controller that encodes microphone captures at
// targetRate. The metrics argument may be nil.
func NewController(source FrameSource, targetRate int, logger *slog.Logger, m *metrics.Metrics) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		source:     source,
		targetRate: targetRate,
		logger:     logger,
		metrics:    m,
		state:      StateIdle,
		decode:     audio.DecodeCompressed,
	}
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentAsset returns the active asset, or nil when none exists
func (c *Controller) CurrentAsset() *Asset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asset
}

// StartCapture acquires the microphone and begins accumulating frames.
// Valid from Idle or Stopped; any previous asset is released on success.
func (c *Controller) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateLocked:
		return ErrSessionLocked
	case StateRecording:
		return fmt.Errorf("%w: already recording", ErrInvalidState)
	}

	if err := c.source.Start(c.appendFrames); err != nil {
		if errors.Is(err, ErrMicAccessDenied) && c.metrics != nil {
			c.metrics.RecordMicDenied()
		}
		c.logger.Warn("Failed to start capture", slog.String("error", err.Error()))
		return err
	}

	// Starting a new recording invalidates any prior asset, recorded or uploaded.
	c.asset.Release()
	c.asset = nil
	c.buf = audio.NewSampleBuffer(c.source.Rate())
	c.recordStart = time.Now()
	c.state = StateRecording

	if c.metrics != nil {
		c.metrics.RecordCaptureStarted()
	}
	c.logger.Debug("Capture started", slog.Int("source_rate", c.source.Rate()))

	return nil
}

// appendFrames receives frame batches from the source's delivery goroutine
func (c *Controller) appendFrames(frames []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording || c.buf == nil {
		return
	}
	c.buf.Append(frames)
}

// StopCapture releases the microphone, finalizes the sample buffer, and
// encodes it into the active asset. Valid only from Recording. A capture
// with zero frames yields ErrEmptyCapture and returns the controller to Idle.
func (c *Controller) StopCapture() (*Asset, error) {
	c.mu.Lock()
	if c.state != StateRecording || c.buf == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: not recording", ErrInvalidState)
	}

	// Detach the buffer before releasing the device. The mutex cannot be
	// held across source.Stop: the source waits for any in-flight frame
	// delivery, and that delivery blocks on this same mutex.
	buf := c.buf
	c.buf = nil
	wallDuration := time.Since(c.recordStart).Seconds()
	c.mu.Unlock()

	if err := c.source.Stop(); err != nil {
		c.logger.Warn("Error releasing capture device", slog.String("error", err.Error()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateLocked {
		// Locked while the device was being released; the capture is discarded.
		return nil, ErrSessionLocked
	}

	if buf.Len() == 0 {
		c.state = StateIdle
		if c.metrics != nil {
			c.metrics.RecordCaptureEmpty()
		}
		return nil, ErrEmptyCapture
	}

	resampled := audio.Resample(buf, c.targetRate)
	if c.metrics != nil && resampled != buf {
		c.metrics.RecordResample()
	}

	encodeStart := time.Now()
	wavData, err := audio.EncodeWAV(resampled)
	if err != nil {
		c.state = StateIdle
		return nil, fmt.Errorf("failed to encode capture: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordEncode(len(wavData), time.Since(encodeStart).Seconds())
		c.metrics.RecordCaptureCompleted(wallDuration)
	}

	c.asset = NewAsset(wavData, &wallDuration, SourceMicrophone, "", nil)
	c.state = StateStopped

	c.logger.Info("Capture finalized",
		slog.Float64("duration_sec", wallDuration),
		slog.Int("samples", resampled.Len()),
		slog.Int("wav_bytes", len(wavData)),
	)

	return c.asset, nil
}

// SelectFile installs a user-supplied audio file as the active asset.
// WAV files are wrapped as-is; recognized compressed formats are decoded
// and transcoded to WAV. Valid when not Recording and not Locked; on any
// failure the controller is left unchanged.
func (c *Controller) SelectFile(name string, data []byte) (*Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateLocked:
		return nil, ErrSessionLocked
	case StateRecording:
		return nil, fmt.Errorf("%w: file selection is rejected while recording", ErrInvalidState)
	}

	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case ext == ".wav":
		// Wrap as-is; duration is best-effort from the header and degrades
		// to unknown rather than rejecting the file.
		var duration *float64
		if d, err := audio.WAVDuration(data); err == nil {
			duration = &d
		}
		c.asset.Release()
		c.asset = NewAsset(data, duration, SourceUploadedWAV, name, nil)
		c.state = StateStopped
		if c.metrics != nil {
			c.metrics.RecordUpload("wrapped")
		}
		c.logger.Info("WAV upload accepted", slog.String("file", name), slog.Int("bytes", len(data)))
		return c.asset, nil

	case audio.IsCompressedName(name):
		buf, err := c.decode(name, data)
		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordUpload("rejected")
			}
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedAudioFormat, err)
		}

		encodeStart := time.Now()
		wavData, err := audio.EncodeWAV(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to transcode %s: %w", name, err)
		}
		if c.metrics != nil {
			c.metrics.RecordEncode(len(wavData), time.Since(encodeStart).Seconds())
			c.metrics.RecordUpload("transcoded")
		}

		duration := buf.Duration()
		fileName := strings.TrimSuffix(filepath.Base(name), ext) + ".wav"
		c.asset.Release()
		c.asset = NewAsset(wavData, &duration, SourceUploadedTranscoded, fileName, nil)
		c.state = StateStopped
		c.logger.Info("Upload transcoded to WAV",
			slog.String("file", name),
			slog.Int("source_rate", buf.Rate()),
			slog.Float64("duration_sec", duration),
		)
		return c.asset, nil

	default:
		if c.metrics != nil {
			c.metrics.RecordUpload("rejected")
		}
		return nil, fmt.Errorf("%w: unrecognized file type %q", ErrUnsupportedAudioFormat, ext)
	}
}

// Reset releases the active asset and returns to Idle. Valid from any
// non-Recording state.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRecording {
		return fmt.Errorf("%w: cannot reset while recording", ErrInvalidState)
	}

	c.asset.Release()
	c.asset = nil
	c.buf = nil
	c.state = StateIdle

	return nil
}

// Lock forces the Locked state from any state. A recording in progress is
// stopped and its partial buffer discarded; the last finished asset stays
// available for playback.
func (c *Controller) Lock() {
	c.mu.Lock()
	wasRecording := c.state == StateRecording
	c.buf = nil
	c.state = StateLocked
	c.mu.Unlock()

	// Release the device outside the mutex; see StopCapture.
	if wasRecording {
		if err := c.source.Stop(); err != nil {
			c.logger.Warn("Error releasing capture device on lock", slog.String("error", err.Error()))
		}
	}

	c.logger.Debug("Controller locked")
}
