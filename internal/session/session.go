// Package session coordinates one recording or file selection from capture
// to upload: device lifetime, live and static waveform, playback preview
// and the submission result.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"spese-cli/internal/api"
	"spese-cli/internal/audio"
	"spese-cli/internal/core"
	"spese-cli/internal/i18n"
	"spese-cli/internal/log"
	"spese-cli/internal/playback"
	"spese-cli/internal/waveform"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
	StatusUploading Status = "uploading"
	StatusSubmitted Status = "submitted"
	StatusError     Status = "error"
)

var (
	ErrBusy              = errors.New("another operation is in progress")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNoArtifact        = errors.New("no recording or file to submit")
	ErrDiscarded         = errors.New("session discarded")
	ErrClosed            = errors.New("session closed")
	ErrNoPlayback        = errors.New("no playback available")
)

// Snapshot is a consistent copy of the session state
type Snapshot struct {
	ID             string
	Status         Status
	Kind           audio.Kind
	HasArtifact    bool
	ArtifactName   string
	ArtifactMIME   string
	ArtifactSize   int
	ElapsedSeconds int
	Duration       time.Duration
	PlaybackRatio  float64
	Playing        bool
	Expense        *core.Expense
	// Message is the user-facing text of the last outcome, localized
	Message string
	Err     error
}

type Option func(*Session)

// WithKind selects which files SelectFile accepts
func WithKind(kind audio.Kind) Option {
	return func(s *Session) { s.kind = kind }
}

// WithListener registers fn to receive a snapshot after every change. fn is
// called without the session lock held.
func WithListener(fn func(Snapshot)) Option {
	return func(s *Session) { s.listener = fn }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithLocalizer(l *i18n.Localizer) Option {
	return func(s *Session) { s.localizer = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithWaveform draws the live trace at fps while recording and the static
// envelope once an artifact is available
func WithWaveform(r *waveform.Renderer, fps int) Option {
	return func(s *Session) {
		s.renderer = r
		if fps > 0 {
			s.frameInterval = time.Second / time.Duration(fps)
		}
	}
}

// WithDecoder decodes selected audio that is not WAV, for the static
// waveform and the playback position
func WithDecoder(d audio.Decoder) Option {
	return func(s *Session) { s.decoder = d }
}

// WithPlayback enables previews through out. Preview files go to dir, or
// the system temp directory when dir is empty.
func WithPlayback(out playback.Output, dir string) Option {
	return func(s *Session) {
		s.output = out
		s.previewDir = dir
	}
}

// Session is the state machine behind one expense form. All methods are
// safe for concurrent use; completions that race with Discard or Close are
// dropped.
type Session struct {
	id            string
	capturer      audio.Capturer
	uploader      api.ExpenseUploader
	kind          audio.Kind
	listener      func(Snapshot)
	logger        *log.Logger
	events        *log.StructuredLogger
	localizer     *i18n.Localizer
	now           func() time.Time
	renderer      *waveform.Renderer
	frameInterval time.Duration
	output        playback.Output
	previewDir    string
	decoder       audio.Decoder

	mu     sync.Mutex
	status Status
	// gen changes whenever pending completions must be ignored
	gen    uint64
	busy   bool
	closed bool

	capture       audio.Capture
	cancelCapture func()
	loop          *waveform.Loop
	elapsed       time.Duration
	segmentStart  time.Time

	artifact *audio.Artifact
	media    *media
	ratio    float64
	playing  bool

	expense *core.Expense
	message string
	err     error
}

// New returns an idle session. capturer may be nil for forms that only
// accept files.
func New(capturer audio.Capturer, uploader api.ExpenseUploader, opts ...Option) *Session {
	s := &Session{
		id:            uuid.NewString(),
		capturer:      capturer,
		uploader:      uploader,
		kind:          audio.KindAudio,
		now:           time.Now,
		frameInterval: time.Second / 30,
		status:        StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	s.logger = s.logger.WithComponent(log.ComponentSession).With(log.FieldSessionID, s.id)
	s.events = log.NewStructuredLogger(s.logger)
	if s.localizer == nil {
		s.localizer = i18n.New("en", "EUR")
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Artifact returns the current artifact, or nil
func (s *Session) Artifact() *audio.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:             s.id,
		Status:         s.status,
		Kind:           s.kind,
		ElapsedSeconds: int(s.elapsedLocked() / time.Second),
		PlaybackRatio:  s.ratio,
		Playing:        s.playing,
		Message:        s.message,
		Err:            s.err,
	}
	if s.artifact != nil {
		snap.HasArtifact = true
		snap.ArtifactName = s.artifact.Name()
		snap.ArtifactMIME = s.artifact.MIMEType()
		snap.ArtifactSize = s.artifact.Size()
	}
	if s.media != nil {
		snap.Duration = s.media.duration
	}
	if s.expense != nil {
		e := *s.expense
		snap.Expense = &e
	}
	return snap
}

// elapsedLocked counts recording time, excluding pauses
func (s *Session) elapsedLocked() time.Duration {
	if s.status == StatusRecording {
		return s.elapsed + s.now().Sub(s.segmentStart)
	}
	return s.elapsed
}

func (s *Session) setStatusLocked(to Status) {
	if s.status == to {
		return
	}
	s.events.LogTransition(context.Background(), s.id, string(s.status), string(to))
	s.status = to
}

func (s *Session) failLocked(key string, err error, args ...any) {
	s.message = s.localizer.T(key, args...)
	s.err = err
}

func (s *Session) clearOutcomeLocked() {
	s.message = ""
	s.err = nil
	s.expense = nil
}

func (s *Session) emit(snap Snapshot) {
	if s.listener != nil {
		s.listener(snap)
	}
}

// unlockAndEmit releases the lock and publishes the state it protected
func (s *Session) unlockAndEmit() {
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

// Discard abandons whatever is in progress and returns to idle. The device,
// preview file and player are released; pending completions are dropped.
func (s *Session) Discard() {
	s.mu.Lock()
	if s.status == StatusIdle && !s.busy && s.artifact == nil && s.capture == nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.busy = false
	r := s.detachLocked()
	s.clearOutcomeLocked()
	s.elapsed = 0
	s.setStatusLocked(StatusIdle)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	r.release()
	if s.renderer != nil {
		s.renderer.Reset()
	}
	s.logger.Debug("Session discarded")
	s.emit(snap)
}

// Close discards the session and rejects further use
func (s *Session) Close() {
	s.Discard()
	s.mu.Lock()
	s.closed = true
	s.gen++
	s.mu.Unlock()
}

// resources are handles taken out of the session to be released without
// holding the lock
type resources struct {
	capture audio.Capture
	cancel  func()
	loop    *waveform.Loop
	media   *media
}

func (s *Session) detachLocked() resources {
	r := resources{
		capture: s.capture,
		cancel:  s.cancelCapture,
		loop:    s.loop,
		media:   s.media,
	}
	s.capture = nil
	s.cancelCapture = nil
	s.loop = nil
	s.media = nil
	s.artifact = nil
	s.ratio = 0
	s.playing = false
	return r
}

func (r resources) release() {
	stopLoop(r.loop)
	if r.capture != nil {
		r.capture.Close()
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.media.release()
}

// stopLoop cancels the live loop and waits for a running tick to finish
func stopLoop(l *waveform.Loop) {
	if l == nil {
		return
	}
	l.Stop()
	<-l.Done()
}
