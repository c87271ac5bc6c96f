package audio

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
)

// CompressedExtensions lists the upload extensions that can be transcoded.
var CompressedExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".oga":  true,
	".flac": true,
}

// IsCompressedName reports whether the file name carries a recognized
// compressed audio extension.
func IsCompressedName(name string) bool {
	return CompressedExtensions[strings.ToLower(filepath.Ext(name))]
}

// DecodeCompressed decodes an mp3/ogg/flac payload into a mono sample buffer
// at the decoder-reported rate. Stereo sources are mixed down by averaging
// the two channels.
func DecodeCompressed(name string, data []byte) (*SampleBuffer, error) {
	ext := strings.ToLower(filepath.Ext(name))
	rc := io.NopCloser(bytes.NewReader(data))

	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch ext {
	case ".mp3":
		stream, format, err = mp3.Decode(rc)
	case ".ogg", ".oga":
		stream, format, err = vorbis.Decode(rc)
	case ".flac":
		stream, format, err = flac.Decode(rc)
	default:
		return nil, fmt.Errorf("no decoder for extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	defer stream.Close()

	buf := NewSampleBuffer(int(format.SampleRate))
	frames := make([][2]float64, 4096)
	mono := make([]float32, 0, len(frames))

	for {
		n, ok := stream.Stream(frames)
		mono = mono[:0]
		for _, fr := range frames[:n] {
			mono = append(mono, float32((fr[0]+fr[1])/2))
		}
		buf.Append(mono)
		if !ok {
			break
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("decode stream error for %s: %w", name, err)
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("no audio frames decoded from %s", name)
	}

	return buf, nil
}
