package audio

import "math"

// Resample converts a buffer to the target sample rate using nearest-neighbor
// lookup: output sample i is taken from input index floor(i * srcRate/targetRate),
// and the output length is round(inputLength * targetRate/srcRate). Reads past
// the end of the input produce silence. The decimation is intentionally not
// band-limited; the downstream scoring service expects this exact transform,
// so the output must stay bit-identical across versions.
func Resample(buf *SampleBuffer, targetRate int) *SampleBuffer {
	if buf.rate == targetRate {
		return buf
	}

	ratio := float64(buf.rate) / float64(targetRate)
	outLen := int(math.Round(float64(len(buf.samples)) / ratio))

	out := make([]float32, outLen)
	for i := range out {
		src := int(math.Floor(float64(i) * ratio))
		if src >= 0 && src < len(buf.samples) {
			out[i] = buf.samples[src]
		}
	}

	return &SampleBuffer{samples: out, rate: targetRate}
}
