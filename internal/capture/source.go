package capture

// FrameSource delivers mono float32 audio frames from an input device.
// Implementations push frames to the callback registered at Start from their
// own delivery goroutine; the controller serializes access on its side.
type FrameSource interface {
	// Rate returns the native sample rate of the source in Hz. It must be
	// valid before Start is called.
	Rate() int

	// Start acquires the input device exclusively and begins delivering
	// frames to onFrames. It fails with ErrMicAccessDenied (wrapped) when
	// the platform refuses access to the device.
	Start(onFrames func(frames []float32)) error

	// Stop releases the input device and halts frame delivery. Frames must
	// not be delivered after Stop returns.
	Stop() error
}
