package audio

// SampleBuffer accumulates mono float32 samples captured at a fixed rate.
// It is owned by a single producer during capture and treated as immutable
// once capture stops; it carries no locking of its own.
type SampleBuffer struct {
	samples []float32
	rate    int
}

// NewSampleBuffer creates an empty buffer for the given sample rate.
func NewSampleBuffer(rate int) *SampleBuffer {
	return &SampleBuffer{
		samples: make([]float32, 0, rate*2), // pre-allocate ~2 seconds
		rate:    rate,
	}
}

// NewSampleBufferFrom wraps existing samples at the given rate.
func NewSampleBufferFrom(samples []float32, rate int) *SampleBuffer {
	return &SampleBuffer{samples: samples, rate: rate}
}

// Append adds a batch of frames to the buffer.
func (b *SampleBuffer) Append(frames []float32) {
	b.samples = append(b.samples, frames...)
}

// Samples returns the accumulated samples.
func (b *SampleBuffer) Samples() []float32 {
	return b.samples
}

// Rate returns the sample rate in Hz.
func (b *SampleBuffer) Rate() int {
	return b.rate
}

// Len returns the number of samples in the buffer.
func (b *SampleBuffer) Len() int {
	return len(b.samples)
}

// Duration returns the buffered audio length in seconds.
func (b *SampleBuffer) Duration() float64 {
	if b.rate <= 0 {
		return 0
	}
	return float64(len(b.samples)) / float64(b.rate)
}
