package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"spese-cli/internal/log"
)

// State is what listeners see after every change
type State struct {
	Ratio   float64
	Playing bool
	Err     error
}

type Option func(*Controller)

// WithListener registers fn to receive state changes. fn is never called
// with the controller's lock held.
func WithListener(fn func(State)) Option {
	return func(c *Controller) { c.listener = fn }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) { c.logger = logger.WithComponent(log.ComponentPlayback) }
}

// Controller drives play and pause of one file. The position only moves
// when the stream reports it.
type Controller struct {
	out      Output
	path     string
	duration time.Duration
	listener func(State)
	logger   *log.Logger

	mu       sync.Mutex
	position time.Duration
	playing  bool
	closed   bool
	stream   Stream
	gen      uint64
	playCtx  context.Context
}

func NewController(out Output, path string, duration time.Duration, opts ...Option) *Controller {
	c := &Controller{
		out:      out,
		path:     path,
		duration: duration,
		logger:   log.Discard(),
		playCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Duration returns the length of the media
func (c *Controller) Duration() time.Duration {
	return c.duration
}

// Play starts playback from the current position
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.playing {
		c.mu.Unlock()
		return nil
	}
	if c.duration > 0 && c.position >= c.duration {
		c.position = 0
	}
	c.gen++
	gen := c.gen
	offset := c.position
	c.playCtx = ctx
	c.mu.Unlock()

	stream, err := c.out.Open(ctx, c.path, offset)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		// paused or closed while opening
		c.mu.Unlock()
		if stream != nil {
			stream.Stop()
		}
		return nil
	}
	if err != nil {
		state := c.stateLocked()
		c.mu.Unlock()
		err = fmt.Errorf("%w: %v", ErrPlayback, err)
		c.logger.Warn("Playback failed to start", log.FieldError, err.Error())
		state.Err = err
		c.notify(state)
		return err
	}
	c.stream = stream
	c.playing = true
	state := c.stateLocked()
	c.mu.Unlock()

	go c.watch(gen, stream)
	c.notify(state)
	return nil
}

// Pause halts playback and keeps the position
func (c *Controller) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	stream := c.detachLocked()
	state := c.stateLocked()
	c.mu.Unlock()

	stream.Stop()
	c.notify(state)
}

// Seek moves the position to ratio of the duration. A playing stream is
// restarted at the new offset.
func (c *Controller) Seek(ratio float64) error {
	if math.IsNaN(ratio) {
		ratio = 0
	}
	ratio = math.Max(0, math.Min(1, ratio))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	wasPlaying := c.playing
	var stream Stream
	if wasPlaying {
		stream = c.detachLocked()
	}
	c.position = time.Duration(ratio * float64(c.duration))
	ctx := c.playCtx
	state := c.stateLocked()
	c.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
	if wasPlaying {
		return c.Play(ctx)
	}
	c.notify(state)
	return nil
}

// Position returns the playback position as a ratio in [0, 1]
func (c *Controller) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratioLocked()
}

func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Close stops playback. Events still in flight are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var stream Stream
	if c.playing {
		stream = c.detachLocked()
	} else {
		c.gen++
	}
	c.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
}

func (c *Controller) detachLocked() Stream {
	stream := c.stream
	c.stream = nil
	c.playing = false
	c.gen++
	return stream
}

func (c *Controller) watch(gen uint64, stream Stream) {
	for ev := range stream.Events() {
		if !c.handle(gen, ev) {
			return
		}
	}
}

// handle applies ev and reports whether more events are expected
func (c *Controller) handle(gen uint64, ev Event) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}

	switch ev.Kind {
	case EventTimeUpdate:
		c.position = c.clamp(ev.Position)
		state := c.stateLocked()
		c.mu.Unlock()
		c.notify(state)
		return true

	case EventEnded:
		c.detachLocked()
		c.position = c.duration
		atEnd := State{Ratio: 1}
		c.position = 0
		atStart := c.stateLocked()
		c.mu.Unlock()

		c.logger.Debug("Playback ended")
		c.notify(atEnd)
		c.notify(atStart)
		return false

	case EventFailed:
		c.detachLocked()
		state := c.stateLocked()
		c.mu.Unlock()

		err := fmt.Errorf("%w: %v", ErrPlayback, ev.Err)
		c.logger.Warn("Playback failed", log.FieldError, err.Error())
		state.Err = err
		c.notify(state)
		return false

	default:
		c.mu.Unlock()
		return true
	}
}

func (c *Controller) clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if c.duration > 0 && d > c.duration {
		return c.duration
	}
	return d
}

func (c *Controller) ratioLocked() float64 {
	if c.duration <= 0 {
		return 0
	}
	return float64(c.position) / float64(c.duration)
}

func (c *Controller) stateLocked() State {
	return State{Ratio: c.ratioLocked(), Playing: c.playing}
}

func (c *Controller) notify(state State) {
	if c.listener != nil {
		c.listener(state)
	}
}
