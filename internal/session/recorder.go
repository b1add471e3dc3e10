package session

import (
	"context"
	"errors"
	"fmt"

	"spese-cli/internal/audio"
	"spese-cli/internal/i18n"
	"spese-cli/internal/log"
	"spese-cli/internal/waveform"
)

const analyserWindow = 2048

// Start opens the recording device. Any previous artifact is released
// first. On failure the session stays idle with a message set. The capture
// lives until Stop, Discard or Close, or until ctx is cancelled.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		return s.rejectLocked(err)
	}
	switch s.status {
	case StatusRecording, StatusPaused:
		return s.rejectLocked(ErrInvalidTransition)
	}
	if s.capturer == nil {
		s.failLocked(i18n.MsgDeviceUnavailable, audio.ErrDeviceUnavailable)
		s.unlockAndEmit()
		return audio.ErrDeviceUnavailable
	}

	s.gen++
	gen := s.gen
	s.busy = true
	previous := s.detachLocked()
	s.clearOutcomeLocked()
	s.elapsed = 0
	s.setStatusLocked(StatusIdle)
	s.mu.Unlock()

	previous.release()
	if s.renderer != nil {
		s.renderer.Reset()
	}

	captureCtx, cancel := context.WithCancel(ctx)
	capture, err := s.capturer.Start(captureCtx)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if capture != nil {
			capture.Close()
		}
		cancel()
		return ErrDiscarded
	}
	s.busy = false
	if err != nil {
		cancel()
		key := i18n.MsgDeviceUnavailable
		if errors.Is(err, audio.ErrPermissionDenied) {
			key = i18n.MsgPermissionDenied
		}
		s.failLocked(key, err)
		s.unlockAndEmit()
		s.logger.Warn("Recording could not start", log.FieldError, err.Error())
		return err
	}

	s.capture = capture
	s.cancelCapture = cancel
	s.segmentStart = s.now()
	s.setStatusLocked(StatusRecording)
	s.startLoopLocked()
	s.unlockAndEmit()
	return nil
}

// Pause suspends capture and the live trace. Elapsed time stops counting.
func (s *Session) Pause() error {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		return s.rejectLocked(err)
	}
	if s.status != StatusRecording {
		return s.rejectLocked(ErrInvalidTransition)
	}
	if err := s.capture.Pause(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.elapsed += s.now().Sub(s.segmentStart)
	loop := s.loop
	s.loop = nil
	s.setStatusLocked(StatusPaused)
	s.unlockAndEmit()

	stopLoop(loop)
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		return s.rejectLocked(err)
	}
	if s.status != StatusPaused {
		return s.rejectLocked(ErrInvalidTransition)
	}
	if err := s.capture.Resume(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.segmentStart = s.now()
	s.setStatusLocked(StatusRecording)
	s.startLoopLocked()
	s.unlockAndEmit()
	return nil
}

// Stop finalizes the capture into the session's artifact and switches the
// waveform to the static envelope. Stop when not recording does nothing.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		return s.rejectLocked(ErrClosed)
	}
	if s.status != StatusRecording && s.status != StatusPaused {
		s.mu.Unlock()
		return nil
	}
	if s.busy {
		return s.rejectLocked(ErrBusy)
	}
	if s.status == StatusRecording {
		s.elapsed += s.now().Sub(s.segmentStart)
	}
	s.busy = true
	gen := s.gen
	capture, cancel, loop := s.capture, s.cancelCapture, s.loop
	s.capture, s.cancelCapture, s.loop = nil, nil, nil
	s.mu.Unlock()

	stopLoop(loop)
	artifact, err := capture.Stop(ctx)
	capture.Close()
	cancel()

	var m *media
	if err == nil {
		m = s.prepare(artifact, gen)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		m.release()
		return ErrDiscarded
	}
	s.busy = false
	if err != nil {
		s.elapsed = 0
		s.setStatusLocked(StatusIdle)
		s.failLocked(i18n.MsgDeviceUnavailable, err)
		s.unlockAndEmit()
		s.logger.Warn("Recording could not be finalized", log.FieldError, err.Error())
		return fmt.Errorf("stop recording: %w", err)
	}

	stale := s.attachLocked(artifact, m)
	s.setStatusLocked(StatusStopped)
	s.unlockAndEmit()
	stale.release()

	s.drawStatic(m, 0)
	s.logger.Debug("Recording stopped",
		log.FieldMIMEType, artifact.MIMEType(),
		log.FieldBytes, artifact.Size())
	return nil
}

// startLoopLocked starts the live trace when a renderer is attached
func (s *Session) startLoopLocked() {
	if s.renderer == nil || s.capture == nil {
		return
	}
	an := s.capture.Analyser()
	if an == nil {
		return
	}
	r := s.renderer
	buf := make([]float32, analyserWindow)
	s.loop = waveform.StartLoop(s.frameInterval, func() {
		n := an.TimeDomain(buf)
		r.DrawLive(buf[:n])
	})
}

// guardLocked rejects use after Close and while a capture or upload is in flight
func (s *Session) guardLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.busy || s.status == StatusUploading {
		return ErrBusy
	}
	return nil
}

// rejectLocked records a refused command, unlocks and returns err
func (s *Session) rejectLocked(err error) error {
	if errors.Is(err, ErrBusy) {
		s.message = s.localizer.T(i18n.MsgBusy)
		s.unlockAndEmit()
		return err
	}
	s.mu.Unlock()
	return err
}
