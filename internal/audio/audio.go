// Package audio captures microphone input and holds the recorded or
// selected payloads that are later uploaded as expenses.
package audio

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied  = errors.New("microphone access denied")
	ErrDeviceUnavailable = errors.New("recording device unavailable")
	ErrNotRecording      = errors.New("not recording")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
)

// Capturer opens the recording device
type Capturer interface {
	// Start begins capturing. ctx bounds the lifetime of the capture: when it
	// is cancelled the device is released.
	Start(ctx context.Context) (Capture, error)
}

// Capture is one running recording. Stop yields the artifact exactly once.
type Capture interface {
	Analyser() Analyser
	Pause() error
	Resume() error
	Stop(ctx context.Context) (*Artifact, error)
	Close() error
}

// Analyser exposes the most recent time-domain samples of a running capture
type Analyser interface {
	// TimeDomain copies up to len(dst) of the latest samples, oldest first,
	// and returns how many were copied. Samples are in [-1, 1].
	TimeDomain(dst []float32) int
}
