package playback

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultNotifyInterval = 250 * time.Millisecond

// FFplayOutput plays files through ffplay without a window. Time updates are
// derived from the wall clock since the process started.
type FFplayOutput struct {
	Path     string
	Interval time.Duration
}

func NewFFplayOutput(path string) *FFplayOutput {
	if path == "" {
		path = "ffplay"
	}
	return &FFplayOutput{Path: path, Interval: defaultNotifyInterval}
}

// Check verifies that the ffplay binary can be found
func (o *FFplayOutput) Check() error {
	if _, err := exec.LookPath(o.Path); err != nil {
		return fmt.Errorf("ffplay not found (%s)", o.Path)
	}
	return nil
}

func (o *FFplayOutput) Open(ctx context.Context, path string, offset time.Duration) (Stream, error) {
	if err := o.Check(); err != nil {
		return nil, err
	}

	args := []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		path,
	}
	cmd := exec.CommandContext(ctx, o.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffplay: %w", err)
	}

	interval := o.Interval
	if interval <= 0 {
		interval = defaultNotifyInterval
	}

	s := &ffplayStream{
		cmd:    cmd,
		events: make(chan Event, 8),
		stop:   make(chan struct{}),
	}
	go s.run(offset, interval, &stderr)
	return s, nil
}

type ffplayStream struct {
	cmd    *exec.Cmd
	events chan Event
	stop   chan struct{}
	once   sync.Once
}

func (s *ffplayStream) Events() <-chan Event {
	return s.events
}

func (s *ffplayStream) Stop() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.cmd.Process.Kill()
	})
	return err
}

func (s *ffplayStream) run(offset, interval time.Duration, stderr *bytes.Buffer) {
	defer close(s.events)

	exited := make(chan error, 1)
	go func() { exited <- s.cmd.Wait() }()

	started := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			<-exited
			return
		case <-ticker.C:
			select {
			case s.events <- Event{Kind: EventTimeUpdate, Position: offset + time.Since(started)}:
			default:
				// listener is behind, the next update supersedes this one
			}
		case err := <-exited:
			select {
			case <-s.stop:
				return
			default:
			}
			final := Event{Kind: EventEnded}
			if err != nil {
				msg := strings.TrimSpace(stderr.String())
				if msg == "" {
					msg = err.Error()
				}
				final = Event{Kind: EventFailed, Err: fmt.Errorf("ffplay: %s", msg)}
			}
			select {
			case s.events <- final:
			case <-s.stop:
			}
			return
		}
	}
}
