// Package playback plays back recorded artifacts and tracks the position
package playback

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPlayback = errors.New("playback failed")
	ErrClosed   = errors.New("playback controller closed")
)

type EventKind int

const (
	EventTimeUpdate EventKind = iota
	EventEnded
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventTimeUpdate:
		return "timeupdate"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a notification from a playing stream
type Event struct {
	Kind     EventKind
	Position time.Duration
	Err      error
}

// Output opens an audio file on the platform's output device
type Output interface {
	Open(ctx context.Context, path string, offset time.Duration) (Stream, error)
}

// Stream is one playback in progress. Events is closed after the last event.
type Stream interface {
	Events() <-chan Event
	Stop() error
}
