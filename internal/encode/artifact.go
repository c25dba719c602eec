package encode

import (
	"bytes"
	"io"
)

// Artifact is the finalized, immutable audio clip produced by one recording
// cycle. Replaced wholesale by the next recording, never mutated.
type Artifact struct {
	data []byte
	mime string
}

// NewArtifact wraps already-encoded WAV bytes, used when a clip arrives from
// outside the encoder.
func NewArtifact(data []byte) *Artifact {
	return &Artifact{data: data, mime: MIMEType}
}

// Bytes returns the encoded clip. Callers must treat the slice as read-only.
func (a *Artifact) Bytes() []byte {
	return a.data
}

// Reader returns a fresh reader over the clip, the transient reference used
// to stream it for playback.
func (a *Artifact) Reader() io.Reader {
	return bytes.NewReader(a.data)
}

func (a *Artifact) MIME() string {
	return a.mime
}

func (a *Artifact) Size() int {
	return len(a.data)
}

// Empty reports whether the capture produced no audio. An empty artifact is
// not an encoder error; playback rejects it at play time.
func (a *Artifact) Empty() bool {
	return len(a.data) == 0
}
