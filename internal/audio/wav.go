package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAVHeader represents the canonical 44-byte header of a PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// quantize clamps a float sample to [-1, 1] and scales it to signed 16-bit
// PCM. Negative values scale by 32768 and non-negative by 32767 so both ends
// of the range map onto valid int16 values.
func quantize(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// EncodeWAV serializes a sample buffer into a mono 16-bit PCM WAV file.
// The header layout is a compatibility contract with the scoring service
// and is reproduced byte-for-byte.
func EncodeWAV(buf *SampleBuffer) ([]byte, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if buf.Rate() <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", buf.Rate())
	}

	numChannels := uint16(1)    // Mono
	bitsPerSample := uint16(16) // 16-bit PCM
	dataSize := uint32(buf.Len() * 2)
	fileSize := 36 + dataSize // data starts at offset 44

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(buf.Rate()),
		ByteRate:      uint32(buf.Rate()) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	samples := make([]int16, buf.Len())
	for i, s := range buf.Samples() {
		samples[i] = quantize(s)
	}

	out := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(out, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return out.Bytes(), nil
}

// DecodeWAV extracts the PCM samples and sample rate from encoded WAV data.
// Only the mono 16-bit layout produced by EncodeWAV is accepted; it exists
// to verify encoder output round-trips.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, 0, err
	}

	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format %d: want PCM", format)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count %d: want mono", ch)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d: want 16", bits)
	}

	rate := int(binary.LittleEndian.Uint32(data[24:28]))
	dataSize := int(binary.LittleEndian.Uint32(data[40:44]))
	if dataSize <= 0 || 44+dataSize > len(data) {
		return nil, 0, fmt.Errorf("data chunk size %d does not fit the payload", dataSize)
	}

	samples := make([]int16, dataSize/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[44+i*2:]))
	}

	return samples, rate, nil
}

// ValidateWAV checks the fixed header landmarks without decoding audio data
func ValidateWAV(data []byte) error {
	if len(data) < 44 {
		return fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// WAVDuration reads the duration of a WAV file in seconds from its header
func WAVDuration(data []byte) (float64, error) {
	if err := ValidateWAV(data); err != nil {
		return 0, err
	}

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate == 0 {
		return 0, fmt.Errorf("invalid sample rate: 0")
	}

	dataSize := binary.LittleEndian.Uint32(data[40:44])

	numSamples := dataSize / 2
	duration := float64(numSamples) / float64(sampleRate)

	return duration, nil
}
