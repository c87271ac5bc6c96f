package capture

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MicConfig holds configuration for the microphone frame source
type MicConfig struct {
	// SampleRate is the capture rate in Hz (16000 recommended)
	SampleRate uint32

	// BufferFrames is the number of frames per device period
	// Smaller = lower latency, higher CPU usage
	BufferFrames uint32
}

// DefaultMicConfig returns a capture configuration suited to speech
func DefaultMicConfig() MicConfig {
	return MicConfig{
		SampleRate:   16000,
		BufferFrames: 480, // 30ms at 16kHz
	}
}

// MicSource implements FrameSource using the system microphone via malgo.
// The device delivers S16LE mono frames which are converted to float32
// before being handed to the controller.
type MicSource struct {
	config       MicConfig
	device       *malgo.Device
	malgoContext *malgo.AllocatedContext
	running      bool
	mu           sync.Mutex
}

// NewMicSource creates a microphone frame source
func NewMicSource(config MicConfig) *MicSource {
	if config.SampleRate == 0 {
		config = DefaultMicConfig()
	}
	return &MicSource{config: config}
}

// Rate returns the configured capture sample rate
func (m *MicSource) Rate() int {
	return int(m.config.SampleRate)
}

// Start acquires the default capture device and begins frame delivery
func (m *MicSource) Start(onFrames func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("microphone source is already running")
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to initialize audio context: %v", ErrMicAccessDenied, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.PeriodSizeInFrames = m.config.BufferFrames

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, framecount uint32) {
			// Convert S16LE bytes to float32 in [-1, 1)
			frames := make([]float32, len(pInputSamples)/2)
			for i := range frames {
				s := int16(binary.LittleEndian.Uint16(pInputSamples[i*2:]))
				frames[i] = float32(s) / 32768
			}
			onFrames(frames)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		malgoCtx.Free()
		return fmt.Errorf("%w: failed to open capture device: %v", ErrMicAccessDenied, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		malgoCtx.Free()
		return fmt.Errorf("%w: failed to start capture device: %v", ErrMicAccessDenied, err)
	}

	m.malgoContext = malgoCtx
	m.device = device
	m.running = true

	return nil
}

// Stop releases the capture device
func (m *MicSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			return fmt.Errorf("failed to stop capture device: %w", err)
		}
		m.device.Uninit()
		m.device = nil
	}

	if m.malgoContext != nil {
		m.malgoContext.Uninit()
		m.malgoContext.Free()
		m.malgoContext = nil
	}

	return nil
}
