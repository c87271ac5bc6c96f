package capture

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SourceKind identifies how an audio asset was produced.
type SourceKind string

const (
	SourceMicrophone         SourceKind = "microphone"
	SourceUploadedWAV        SourceKind = "uploaded_wav"
	SourceUploadedTranscoded SourceKind = "uploaded_transcoded"
)

// Asset is a finished audio binary ready for submission. Exactly one asset
// is active per controller at a time; a replaced asset must have Release
// called so its playback resources are freed.
type Asset struct {
	Bytes    []byte
	MIMEType string
	// DurationSeconds is nil when the duration could not be determined.
	DurationSeconds *float64
	Source          SourceKind
	FileName        string

	release     func()
	releaseOnce sync.Once
}

// NewAsset creates an asset with an optional release hook for transient
// playback resources.
func NewAsset(data []byte, duration *float64, source SourceKind, fileName string, release func()) *Asset {
	if fileName == "" {
		fileName = fmt.Sprintf("answer-%s.wav", uuid.NewString())
	}
	return &Asset{
		Bytes:           data,
		MIMEType:        "audio/wav",
		DurationSeconds: duration,
		Source:          source,
		FileName:        fileName,
		release:         release,
	}
}

// Release frees the asset's transient playback resources. Safe to call
// multiple times.
func (a *Asset) Release() {
	if a == nil {
		return
	}
	a.releaseOnce.Do(func() {
		if a.release != nil {
			a.release()
		}
	})
}

// SetRelease attaches a playback release hook after creation. Used by the
// caller that materializes a playback handle for the asset.
func (a *Asset) SetRelease(release func()) {
	a.release = release
}
