package waveform

import (
	"sync"
	"time"
)

// Loop runs a tick function at a fixed cadence until stopped. Ticks run on a
// single goroutine and never overlap.
type Loop struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartLoop calls tick every interval until Stop is called
func StartLoop(interval time.Duration, tick func()) *Loop {
	if interval <= 0 {
		interval = time.Second / 30
	}
	l := &Loop{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				// a stop that raced with the tick wins
				select {
				case <-l.stop:
					return
				default:
				}
				tick()
			}
		}
	}()

	return l
}

// Stop cancels the loop. It does not wait for a running tick; use Done for
// that. Safe to call more than once and from inside tick.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Done is closed once the loop goroutine has exited
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
