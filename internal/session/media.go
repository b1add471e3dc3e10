package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spese-cli/internal/audio"
	"spese-cli/internal/i18n"
	"spese-cli/internal/log"
	"spese-cli/internal/playback"
)

// media is what an artifact needs for preview: decoded samples for the
// static waveform and a player over a temporary file
type media struct {
	samples  []float32
	duration time.Duration
	preview  *audio.Preview
	player   *playback.Controller
}

func (m *media) release() {
	if m == nil {
		return
	}
	if m.player != nil {
		m.player.Close()
	}
	if m.preview != nil {
		m.preview.Release()
	}
}

const decodeTimeout = 30 * time.Second

// decode returns the artifact's samples. WAV is read in process, anything
// else goes through the decoder.
func (s *Session) decode(a *audio.Artifact) (*audio.PCM, error) {
	if a.MIMEType() == "audio/wav" {
		pcm, err := audio.DecodeWAV(a.Bytes())
		if err == nil || s.decoder == nil {
			return pcm, err
		}
	}
	if s.decoder == nil {
		return nil, fmt.Errorf("%w: no decoder for %s", audio.ErrDecode, a.MIMEType())
	}
	ctx, cancel := context.WithTimeout(context.Background(), decodeTimeout)
	defer cancel()
	return s.decoder.Decode(ctx, a)
}

// prepare decodes the artifact and opens a player whose updates are kept
// only while the session is still at gen. Failures only limit the preview;
// the artifact can still be uploaded.
func (s *Session) prepare(a *audio.Artifact, gen uint64) *media {
	m := &media{}
	if !audio.KindAudio.Accepts(a.MIMEType()) {
		return m
	}

	if pcm, err := s.decode(a); err != nil {
		s.logger.Debug("Artifact not decodable for waveform", log.FieldError, err.Error())
	} else {
		m.samples = pcm.Samples
		m.duration = pcm.Duration()
	}

	if s.output == nil {
		return m
	}
	preview, err := audio.NewPreview(s.previewDir, a)
	if err != nil {
		s.logger.Warn("Preview file could not be created", log.FieldError, err.Error())
		return m
	}
	m.preview = preview
	m.player = playback.NewController(s.output, preview.Path(), m.duration,
		playback.WithLogger(s.logger),
		playback.WithListener(func(st playback.State) { s.onPlayback(gen, m, st) }))
	return m
}

// attachLocked makes a the session's single artifact. It returns media
// still attached from before, which the caller releases after unlocking.
func (s *Session) attachLocked(a *audio.Artifact, m *media) *media {
	stale := s.media
	s.artifact = a
	s.media = m
	s.ratio = 0
	s.playing = false
	s.clearOutcomeLocked()
	return stale
}

func (s *Session) drawStatic(m *media, ratio float64) {
	if s.renderer == nil || m == nil {
		return
	}
	if m.samples == nil {
		s.renderer.Reset()
		return
	}
	if !s.renderer.HasEnvelope() {
		s.renderer.SetSamples(m.samples)
	}
	s.renderer.DrawStatic(ratio)
}

// SelectFile uses a chosen file instead of a recording. The file must match
// the session's Kind; otherwise the current state is kept and a message set.
func (s *Session) SelectFile(name string, data []byte) error {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		return s.rejectLocked(err)
	}
	if s.status == StatusRecording || s.status == StatusPaused {
		return s.rejectLocked(ErrBusy)
	}
	kind := s.kind
	s.mu.Unlock()

	artifact, err := audio.NewArtifactFromFile(name, data, kind)
	if err != nil {
		s.mu.Lock()
		key := i18n.MsgUnsupportedAudio
		if kind == audio.KindReceipt {
			key = i18n.MsgUnsupportedImage
		}
		s.failLocked(key, err)
		s.unlockAndEmit()
		return err
	}

	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		return s.rejectLocked(err)
	}
	if s.status == StatusRecording || s.status == StatusPaused {
		return s.rejectLocked(ErrBusy)
	}
	s.gen++
	gen := s.gen
	s.busy = true
	previous := s.detachLocked()
	s.elapsed = 0
	s.mu.Unlock()

	previous.release()
	if s.renderer != nil {
		s.renderer.Reset()
	}
	m := s.prepare(artifact, gen)

	s.mu.Lock()
	if gen != s.gen {
		closed := s.closed
		s.mu.Unlock()
		m.release()
		if closed {
			return ErrClosed
		}
		return ErrDiscarded
	}
	s.busy = false
	stale := s.attachLocked(artifact, m)
	s.setStatusLocked(StatusStopped)
	s.unlockAndEmit()
	stale.release()

	s.drawStatic(m, 0)
	s.logger.Debug("File selected",
		log.FieldMIMEType, artifact.MIMEType(),
		log.FieldBytes, artifact.Size())
	return nil
}

func (s *Session) player() (*playback.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.media == nil || s.media.player == nil {
		return nil, ErrNoPlayback
	}
	return s.media.player, nil
}

// Play previews the artifact from the current position. A failure sets a
// message and leaves the session state unchanged.
func (s *Session) Play(ctx context.Context) error {
	p, err := s.player()
	if err != nil {
		if errors.Is(err, ErrNoPlayback) {
			s.mu.Lock()
			s.failLocked(i18n.MsgPlaybackFailed, err)
			s.unlockAndEmit()
		}
		return err
	}
	if err := p.Play(ctx); err != nil {
		return fmt.Errorf("play artifact: %w", err)
	}
	return nil
}

// PausePlayback halts the preview and keeps the position
func (s *Session) PausePlayback() {
	if p, err := s.player(); err == nil {
		p.Pause()
	}
}

// Seek moves the preview to ratio of the duration
func (s *Session) Seek(ratio float64) error {
	p, err := s.player()
	if err != nil {
		return err
	}
	return p.Seek(ratio)
}

// onPlayback mirrors the player's position and redraws the marker
func (s *Session) onPlayback(gen uint64, m *media, st playback.State) {
	s.mu.Lock()
	if gen != s.gen || s.media != m {
		s.mu.Unlock()
		return
	}
	s.ratio = st.Ratio
	s.playing = st.Playing
	if st.Err != nil {
		s.failLocked(i18n.MsgPlaybackFailed, st.Err)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.drawStatic(m, st.Ratio)
	s.emit(snap)
}
