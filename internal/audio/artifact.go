package audio

import (
	"bytes"
	"fmt"
	"io"
)

// Kind selects which media family a form accepts
type Kind string

const (
	KindAudio   Kind = "audio"
	KindReceipt Kind = "receipt"
)

// Accepts reports whether mimeType belongs to the kind's media family
func (k Kind) Accepts(mimeType string) bool {
	switch k {
	case KindAudio:
		return isAudioMIME(mimeType)
	case KindReceipt:
		return isImageMIME(mimeType)
	default:
		return false
	}
}

// Artifact is an immutable recorded or selected payload
type Artifact struct {
	name     string
	mimeType string
	data     []byte
}

// NewArtifact copies data into a new artifact
func NewArtifact(name, mimeType string, data []byte) *Artifact {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Artifact{name: name, mimeType: mimeType, data: buf}
}

// NewArtifactFromFile builds an artifact from a user-selected file after
// checking that its content matches kind.
func NewArtifactFromFile(name string, data []byte, kind Kind) (*Artifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnsupportedMedia, name)
	}
	mimeType := DetectMIME(name, data)
	if !kind.Accepts(mimeType) {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrUnsupportedMedia, name, mimeType, kind)
	}
	return NewArtifact(name, mimeType, data), nil
}

func (a *Artifact) Name() string     { return a.name }
func (a *Artifact) MIMEType() string { return a.mimeType }
func (a *Artifact) Size() int        { return len(a.data) }

// Bytes returns a copy of the payload
func (a *Artifact) Bytes() []byte {
	buf := make([]byte, len(a.data))
	copy(buf, a.data)
	return buf
}

// Reader returns a reader over the payload
func (a *Artifact) Reader() io.Reader {
	return bytes.NewReader(a.data)
}
