package session

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spese-cli/internal/api"
	"spese-cli/internal/api/memory"
	"spese-cli/internal/audio"
	"spese-cli/internal/core"
	"spese-cli/internal/i18n"
	"spese-cli/internal/playback"
	"spese-cli/internal/waveform"
)

// sineWAV returns seconds of a 440Hz tone at 8kHz mono
func sineWAV(seconds float64) []byte {
	const rate = 8000
	n := int(seconds * rate)
	pcm := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		v := int16(math.Sin(2*math.Pi*440*float64(i)/rate) * 12000)
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(v))
	}
	return audio.EncodeWAV(pcm, rate, 1)
}

type fakeCapture struct {
	analyser *audio.RingAnalyser
	mu       sync.Mutex
	paused   bool
	stops    int
	closed   bool
	stopErr  error
}

func (c *fakeCapture) Analyser() audio.Analyser { return c.analyser }

func (c *fakeCapture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *fakeCapture) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *fakeCapture) Stop(context.Context) (*audio.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	if c.stopErr != nil {
		return nil, c.stopErr
	}
	if c.stops > 1 {
		return nil, audio.ErrNotRecording
	}
	return audio.NewArtifact("recording.wav", "audio/wav", sineWAV(3)), nil
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCapture) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeCapturer struct {
	mu       sync.Mutex
	err      error
	gate     chan struct{}
	captures []*fakeCapture
}

func (f *fakeCapturer) Start(ctx context.Context) (audio.Capture, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	an := audio.NewRingAnalyser(512)
	an.Push([]float32{0, 0.5, -0.5, 0.25})
	c := &fakeCapture{analyser: an}
	f.captures = append(f.captures, c)
	return c, nil
}

func (f *fakeCapturer) last() *fakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures[len(f.captures)-1]
}

type fakeStream struct {
	events chan playback.Event
	once   sync.Once
}

func (s *fakeStream) Events() <-chan playback.Event { return s.events }

func (s *fakeStream) Stop() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type fakeOutput struct {
	mu      sync.Mutex
	err     error
	streams []*fakeStream
}

func (o *fakeOutput) Open(_ context.Context, path string, _ time.Duration) (playback.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	s := &fakeStream{events: make(chan playback.Event, 8)}
	o.streams = append(o.streams, s)
	return s, nil
}

func (o *fakeOutput) last() *fakeStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.streams[len(o.streams)-1]
}

// gatedUploader blocks until release is closed
type gatedUploader struct {
	next    api.ExpenseUploader
	release chan struct{}
	started chan struct{}
}

func (u *gatedUploader) UploadExpense(ctx context.Context, f api.File) (*api.UploadResult, error) {
	close(u.started)
	<-u.release
	return u.next.UploadExpense(ctx, f)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type snapshots struct {
	mu   sync.Mutex
	list []Snapshot
}

func (r *snapshots) add(s Snapshot) {
	r.mu.Lock()
	r.list = append(r.list, s)
	r.mu.Unlock()
}

func (r *snapshots) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.list...)
}

func recognizingGateway() *memory.Gateway {
	return memory.New([]string{"Cibo"}, []string{"Cibo: Ristorante"},
		memory.WithRecognizer(func(name, mimeType string, data []byte) (core.ExpenseInput, bool) {
			return core.ExpenseInput{
				Description:   "Cena",
				Amount:        decimal.RequireFromString("42.30"),
				CategoryID:    1,
				SubcategoryID: 2,
				Date:          core.NewDate(2025, 3, 10),
			}, true
		}))
}

type harness struct {
	s        *Session
	capturer *fakeCapturer
	output   *fakeOutput
	clock    *clock
	canvas   *waveform.TextCanvas
	frames   *atomic.Int64
	snaps    *snapshots
}

func newHarness(t *testing.T, up api.ExpenseUploader, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		capturer: &fakeCapturer{},
		output:   &fakeOutput{},
		clock:    &clock{now: time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)},
		canvas:   waveform.NewTextCanvas(40, 9),
		frames:   &atomic.Int64{},
		snaps:    &snapshots{},
	}
	renderer := waveform.NewRenderer(h.canvas, func(waveform.Canvas) { h.frames.Add(1) })
	base := []Option{
		WithClock(h.clock.Now),
		WithListener(h.snaps.add),
		WithWaveform(renderer, 200),
		WithPlayback(h.output, t.TempDir()),
	}
	h.s = New(h.capturer, up, append(base, opts...)...)
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) record(t *testing.T, d time.Duration) {
	t.Helper()
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.clock.Advance(d)
	if err := h.s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStopYieldsOneArtifactAndNewRecordingReleasesIt(t *testing.T) {
	h := newHarness(t, recognizingGateway())
	h.record(t, 3*time.Second)

	first := h.s.Artifact()
	snap := h.s.Snapshot()
	if first == nil || snap.Status != StatusStopped || snap.ElapsedSeconds != 3 {
		t.Fatalf("unexpected state after stop: %+v", snap)
	}
	if snap.Duration != 3*time.Second {
		t.Fatalf("expected 3s artifact, got %v", snap.Duration)
	}
	capture := h.capturer.last()
	if capture.stops != 1 || !capture.isClosed() {
		t.Fatalf("capture should be stopped once and released")
	}
	if err := h.s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop when not recording should be a no-op, got %v", err)
	}
	previewPath := h.s.media.preview.Path()

	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if h.s.Artifact() != nil {
		t.Fatalf("previous artifact must be released before recording again")
	}
	if _, err := os.Stat(previewPath); !os.IsNotExist(err) {
		t.Fatalf("previous preview file should be removed, stat err = %v", err)
	}
}

func TestDiscardFromEveryState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness)
	}{
		{"recording", func(t *testing.T, h *harness) {
			h.s.Start(context.Background())
		}},
		{"paused", func(t *testing.T, h *harness) {
			h.s.Start(context.Background())
			h.s.Pause()
		}},
		{"stopped", func(t *testing.T, h *harness) {
			h.record(t, time.Second)
		}},
		{"error", func(t *testing.T, h *harness) {
			h.record(t, time.Second)
			h.s.Upload(context.Background())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// no recognizer: every upload is unprocessable
			h := newHarness(t, memory.New(nil, nil))
			tt.setup(t, h)
			if h.s.Snapshot().Status != Status(tt.name) {
				t.Fatalf("setup reached %s", h.s.Snapshot().Status)
			}

			h.s.Discard()

			snap := h.s.Snapshot()
			if snap.Status != StatusIdle || snap.HasArtifact || h.s.Artifact() != nil {
				t.Fatalf("expected idle without artifact, got %+v", snap)
			}
			if snap.Message != "" || snap.ElapsedSeconds != 0 {
				t.Fatalf("discard should clear outcome, got %+v", snap)
			}
			if !h.capturer.last().isClosed() {
				t.Fatalf("device must be released after discard")
			}
		})
	}
}

func TestUploadAcceptedMovesToSubmitted(t *testing.T) {
	gw := recognizingGateway()
	h := newHarness(t, gw, WithLocalizer(i18n.New("it", "EUR")))
	h.record(t, 2*time.Second)

	e, err := h.s.Upload(context.Background())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if e == nil || !e.Amount.Equal(decimal.RequireFromString("42.30")) || e.Category != "Cibo" {
		t.Fatalf("unexpected expense %+v", e)
	}
	f, _ := e.Amount.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		t.Fatalf("amount must be finite")
	}

	snap := h.s.Snapshot()
	if snap.Status != StatusSubmitted || snap.Expense == nil || snap.Expense.ID != e.ID {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	loc := i18n.New("it", "EUR")
	if want := loc.T(i18n.MsgExpenseSubmitted, "Cena", loc.Amount(e.Amount), "Cibo", "Ristorante"); snap.Message != want {
		t.Fatalf("expected %q, got %q", want, snap.Message)
	}
	if snap.HasArtifact {
		t.Fatalf("submitted artifact should be released")
	}

	var sawUploading bool
	for _, s := range h.snaps.all() {
		if s.Status == StatusUploading {
			sawUploading = true
		}
	}
	if !sawUploading {
		t.Fatalf("listener should see the uploading state")
	}
}

func TestUploadUnprocessableKeepsArtifactForRetry(t *testing.T) {
	h := newHarness(t, memory.New([]string{"Cibo"}, nil))
	h.record(t, time.Second)
	artifact := h.s.Artifact()

	_, err := h.s.Upload(context.Background())
	if !errors.Is(err, api.ErrUnprocessable) {
		t.Fatalf("expected unprocessable, got %v", err)
	}

	snap := h.s.Snapshot()
	loc := i18n.New("en", "EUR")
	if snap.Status != StatusError || snap.Message != loc.T(i18n.MsgUploadUnprocessable) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Message == loc.T(i18n.MsgGeneric) {
		t.Fatalf("unprocessable message must differ from the generic one")
	}
	if h.s.Artifact() != artifact {
		t.Fatalf("artifact must be retained after 422")
	}

	// retry without re-recording
	h.s.uploader = recognizingGateway()
	if _, err := h.s.Upload(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.s.Snapshot().Status != StatusSubmitted {
		t.Fatalf("retry should submit")
	}
}

func TestUploadErrorMessages(t *testing.T) {
	loc := i18n.New("en", "EUR")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server", &api.Error{Kind: api.KindServer, StatusCode: http.StatusBadRequest, Message: "file too large"},
			loc.T(i18n.MsgUploadServer, "file too large")},
		{"no response", &api.Error{Kind: api.KindNoResponse, Err: errors.New("dial tcp")},
			loc.T(i18n.MsgUploadNoResponse)},
		{"setup", &api.Error{Kind: api.KindRequestSetup, Err: errors.New("bad url")},
			loc.T(i18n.MsgUploadSetup)},
		{"unknown", errors.New("boom"), loc.T(i18n.MsgGeneric)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, uploaderFunc(func(context.Context, api.File) (*api.UploadResult, error) {
				return nil, tt.err
			}))
			h.record(t, time.Second)
			h.s.Upload(context.Background())
			snap := h.s.Snapshot()
			if snap.Status != StatusError || snap.Message != tt.want || !snap.HasArtifact {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
		})
	}
}

type uploaderFunc func(context.Context, api.File) (*api.UploadResult, error)

func (f uploaderFunc) UploadExpense(ctx context.Context, file api.File) (*api.UploadResult, error) {
	return f(ctx, file)
}

func TestUploadCarriesSessionID(t *testing.T) {
	var got string
	h := newHarness(t, uploaderFunc(func(ctx context.Context, f api.File) (*api.UploadResult, error) {
		got = api.SessionIDFromContext(ctx)
		return &api.UploadResult{Expense: core.Expense{ID: 1, Amount: decimal.NewFromInt(1)}}, nil
	}))
	h.record(t, time.Second)
	h.s.Upload(context.Background())
	if got != h.s.ID() || got == "" {
		t.Fatalf("expected session id %q, got %q", h.s.ID(), got)
	}
}

func TestBusyWhileUploadingAndStaleCompletionDropped(t *testing.T) {
	up := &gatedUploader{next: recognizingGateway(), release: make(chan struct{}), started: make(chan struct{})}
	h := newHarness(t, up)
	h.record(t, time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := h.s.Upload(context.Background())
		done <- err
	}()
	<-up.started

	if err := h.s.Start(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("Start while uploading must be rejected, got %v", err)
	}
	if _, err := h.s.Upload(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Upload must be rejected, got %v", err)
	}
	if err := h.s.SelectFile("memo.wav", sineWAV(1)); !errors.Is(err, ErrBusy) {
		t.Fatalf("SelectFile while uploading must be rejected, got %v", err)
	}

	h.s.Discard()
	close(up.release)

	if err := <-done; !errors.Is(err, ErrDiscarded) {
		t.Fatalf("completion after discard should be dropped, got %v", err)
	}
	snap := h.s.Snapshot()
	if snap.Status != StatusIdle || snap.Expense != nil {
		t.Fatalf("stale completion mutated state: %+v", snap)
	}
}

func TestStaleStartCompletionReleasesDevice(t *testing.T) {
	h := newHarness(t, recognizingGateway())
	h.capturer.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.s.Start(context.Background()) }()
	eventually(t, "start in flight", func() bool {
		h.s.mu.Lock()
		defer h.s.mu.Unlock()
		return h.s.busy
	})

	h.s.Discard()
	close(h.capturer.gate)

	if err := <-done; !errors.Is(err, ErrDiscarded) {
		t.Fatalf("expected ErrDiscarded, got %v", err)
	}
	if !h.capturer.last().isClosed() {
		t.Fatalf("device opened after discard must be released")
	}
	if h.s.Snapshot().Status != StatusIdle {
		t.Fatalf("expected idle")
	}
}

func TestStartFailureStaysIdle(t *testing.T) {
	loc := i18n.New("en", "EUR")
	tests := []struct {
		err  error
		want string
	}{
		{audio.ErrPermissionDenied, loc.T(i18n.MsgPermissionDenied)},
		{audio.ErrDeviceUnavailable, loc.T(i18n.MsgDeviceUnavailable)},
	}
	for _, tt := range tests {
		h := newHarness(t, recognizingGateway())
		h.capturer.err = tt.err
		if err := h.s.Start(context.Background()); !errors.Is(err, tt.err) {
			t.Fatalf("expected %v, got %v", tt.err, err)
		}
		snap := h.s.Snapshot()
		if snap.Status != StatusIdle || snap.Message != tt.want {
			t.Fatalf("unexpected snapshot %+v", snap)
		}

		// retry succeeds once the device is available
		h.capturer.err = nil
		if err := h.s.Start(context.Background()); err != nil {
			t.Fatalf("retry Start: %v", err)
		}
		if h.s.Snapshot().Message != "" {
			t.Fatalf("successful start should clear the message")
		}
	}
}

func TestPauseResumeElapsedAndLiveLoop(t *testing.T) {
	h := newHarness(t, recognizingGateway())
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, "live frames", func() bool { return h.frames.Load() > 0 })

	h.clock.Advance(2 * time.Second)
	if err := h.s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !h.capturer.last().paused {
		t.Fatalf("capture should be paused")
	}
	h.clock.Advance(10 * time.Second)
	if got := h.s.Snapshot().ElapsedSeconds; got != 2 {
		t.Fatalf("paused time must not count, got %d", got)
	}
	if err := h.s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Pause while paused should fail, got %v", err)
	}

	if err := h.s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	h.clock.Advance(time.Second)
	if err := h.s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := h.s.Snapshot().ElapsedSeconds; got != 3 {
		t.Fatalf("expected 3 elapsed seconds, got %d", got)
	}

	// the live loop is gone: frames only change on explicit redraws
	frames := h.frames.Load()
	time.Sleep(30 * time.Millisecond)
	if h.frames.Load() != frames {
		t.Fatalf("live loop still drawing after stop")
	}
}

func TestStaticWaveformDrawsEveryColumn(t *testing.T) {
	h := newHarness(t, recognizingGateway())
	h.record(t, 3*time.Second)

	for x := 0; x < h.canvas.Width(); x++ {
		if strings.TrimSpace(h.canvas.Column(x)) == "" {
			t.Fatalf("column %d has no segment:\n%s", x, h.canvas.String())
		}
	}
}

func TestPlaybackReachesEndThenResets(t *testing.T) {
	h := newHarness(t, recognizingGateway())
	h.record(t, 3*time.Second)

	if err := h.s.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	stream := h.output.last()
	stream.events <- playback.Event{Kind: playback.EventTimeUpdate, Position: 1500 * time.Millisecond}
	stream.events <- playback.Event{Kind: playback.EventEnded}

	eventually(t, "playback end", func() bool {
		snaps := h.snaps.all()
		return len(snaps) > 0 && snaps[len(snaps)-1].PlaybackRatio == 0 && !snaps[len(snaps)-1].Playing &&
			containsRatio(snaps, 1)
	})

	snaps := h.snaps.all()
	if !containsRatio(snaps, 0.5) {
		t.Fatalf("expected a mid-way position update")
	}
	var end, reset int = -1, -1
	for i, s := range snaps {
		if s.PlaybackRatio == 1 {
			end = i
		}
		if end >= 0 && i > end && s.PlaybackRatio == 0 {
			reset = i
		}
	}
	if end < 0 || reset < 0 {
		t.Fatalf("expected ratio 1 followed by 0, got %v", ratios(snaps))
	}
	if h.s.Snapshot().Status != StatusStopped {
		t.Fatalf("playback must not change the session state")
	}
}

func TestPlaybackFailureKeepsStopped(t *testing.T) {
	h := newHarness(t, recognizingGateway())
	h.record(t, time.Second)
	h.output.err = errors.New("no audio device")

	err := h.s.Play(context.Background())
	if !errors.Is(err, playback.ErrPlayback) {
		t.Fatalf("expected playback error, got %v", err)
	}
	snap := h.s.Snapshot()
	if snap.Status != StatusStopped || snap.Message != i18n.New("en", "EUR").T(i18n.MsgPlaybackFailed) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := h.s.Upload(context.Background()); err != nil {
		t.Fatalf("upload after playback failure: %v", err)
	}
}

func TestSelectFileValidatesKind(t *testing.T) {
	h := newHarness(t, recognizingGateway(), WithKind(audio.KindReceipt))

	if err := h.s.SelectFile("memo.wav", sineWAV(1)); !errors.Is(err, audio.ErrUnsupportedMedia) {
		t.Fatalf("receipt form must reject audio, got %v", err)
	}
	snap := h.s.Snapshot()
	if snap.Status != StatusIdle || snap.Message != i18n.New("en", "EUR").T(i18n.MsgUnsupportedImage) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := h.s.SelectFile("receipt.png", png); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	snap = h.s.Snapshot()
	if snap.Status != StatusStopped || snap.ArtifactMIME != "image/png" || snap.Message != "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if err := h.s.Play(context.Background()); !errors.Is(err, ErrNoPlayback) {
		t.Fatalf("images cannot be played, got %v", err)
	}
	if _, err := h.s.Upload(context.Background()); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestSelectFileReplacesRecording(t *testing.T) {
	h := newHarness(t, recognizingGateway())
	h.record(t, time.Second)
	old := h.s.media.preview.Path()

	if err := h.s.SelectFile("memo.wav", sineWAV(2)); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	if h.s.Artifact().Name() != "memo.wav" || h.s.Snapshot().Duration != 2*time.Second {
		t.Fatalf("selected file not attached: %+v", h.s.Snapshot())
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("replaced preview should be removed")
	}
}

// hookDecoder runs during inside Decode, while SelectFile is between
// detaching the old artifact and attaching the new one
type hookDecoder struct {
	pcm    *audio.PCM
	err    error
	during func()
	calls  atomic.Int32
}

func (d *hookDecoder) Decode(context.Context, *audio.Artifact) (*audio.PCM, error) {
	d.calls.Add(1)
	if d.during != nil {
		d.during()
	}
	return d.pcm, d.err
}

func twoSeconds() *audio.PCM {
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 8000))
	}
	return &audio.PCM{SampleRate: 8000, Channels: 1, Samples: samples}
}

var mp3Header = []byte("ID3\x03\x00\x00\x00\x00\x00\x00")

func previewFiles(t *testing.T, s *Session) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(s.previewDir)
	if err != nil {
		t.Fatalf("read preview dir: %v", err)
	}
	return entries
}

func TestSelectFileDecodesCompressedAudio(t *testing.T) {
	dec := &hookDecoder{pcm: twoSeconds()}
	h := newHarness(t, recognizingGateway(), WithDecoder(dec))

	if err := h.s.SelectFile("memo.mp3", mp3Header); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	snap := h.s.Snapshot()
	if snap.ArtifactMIME != "audio/mpeg" || snap.Duration != 2*time.Second {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if dec.calls.Load() != 1 || !h.s.renderer.HasEnvelope() {
		t.Fatalf("expected one decode and a static envelope")
	}
	for x := 0; x < h.canvas.Width(); x++ {
		if strings.TrimSpace(h.canvas.Column(x)) == "" {
			t.Fatalf("column %d has no segment:\n%s", x, h.canvas.String())
		}
	}

	if err := h.s.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	h.output.last().events <- playback.Event{Kind: playback.EventTimeUpdate, Position: time.Second}
	eventually(t, "mid-way position", func() bool { return containsRatio(h.snaps.all(), 0.5) })
}

func TestSelectFileWithoutDecodableAudioStillUploads(t *testing.T) {
	dec := &hookDecoder{err: audio.ErrDecode}
	h := newHarness(t, recognizingGateway(), WithDecoder(dec))

	if err := h.s.SelectFile("memo.mp3", mp3Header); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	snap := h.s.Snapshot()
	if snap.Status != StatusStopped || snap.Duration != 0 || h.s.renderer.HasEnvelope() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := h.s.Upload(context.Background()); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestDiscardDuringSelectFileWins(t *testing.T) {
	dec := &hookDecoder{pcm: twoSeconds()}
	h := newHarness(t, recognizingGateway(), WithDecoder(dec))
	h.record(t, time.Second)
	dec.during = h.s.Discard

	if err := h.s.SelectFile("memo.mp3", mp3Header); !errors.Is(err, ErrDiscarded) {
		t.Fatalf("expected ErrDiscarded, got %v", err)
	}
	snap := h.s.Snapshot()
	if snap.Status != StatusIdle || snap.HasArtifact || h.s.Artifact() != nil {
		t.Fatalf("discard must win over the pending selection: %+v", snap)
	}
	if files := previewFiles(t, h.s); len(files) != 0 {
		t.Fatalf("expected no preview files, found %d", len(files))
	}

	// the session is usable again
	dec.during = nil
	if err := h.s.SelectFile("memo.mp3", mp3Header); err != nil {
		t.Fatalf("SelectFile after discard: %v", err)
	}
}

func TestOverlappingSelectFileIsRejected(t *testing.T) {
	dec := &hookDecoder{pcm: twoSeconds()}
	h := newHarness(t, recognizingGateway(), WithDecoder(dec))

	var nestedSelect, nestedStart error
	dec.during = func() {
		nestedSelect = h.s.SelectFile("other.mp3", mp3Header)
		nestedStart = h.s.Start(context.Background())
	}
	if err := h.s.SelectFile("memo.mp3", mp3Header); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	if !errors.Is(nestedSelect, ErrBusy) || !errors.Is(nestedStart, ErrBusy) {
		t.Fatalf("expected ErrBusy while selecting, got %v and %v", nestedSelect, nestedStart)
	}
	if dec.calls.Load() != 1 || h.s.Artifact().Name() != "memo.mp3" {
		t.Fatalf("only the first selection should be attached")
	}
	if files := previewFiles(t, h.s); len(files) != 1 {
		t.Fatalf("expected exactly one preview file, found %d", len(files))
	}

	h.s.Close()
	if files := previewFiles(t, h.s); len(files) != 0 {
		t.Fatalf("close must remove every preview file, found %d", len(files))
	}
}

func TestClosedSessionRejectsCommands(t *testing.T) {
	h := newHarness(t, recognizingGateway())
	h.s.Start(context.Background())
	h.s.Close()

	if !h.capturer.last().isClosed() {
		t.Fatalf("close must release the device")
	}
	if err := h.s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := h.s.Upload(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func containsRatio(snaps []Snapshot, r float64) bool {
	for _, s := range snaps {
		if s.PlaybackRatio == r {
			return true
		}
	}
	return false
}

func ratios(snaps []Snapshot) []float64 {
	out := make([]float64, len(snaps))
	for i, s := range snaps {
		out[i] = s.PlaybackRatio
	}
	return out
}
