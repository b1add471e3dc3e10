package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"spese-cli/internal/api"
	"spese-cli/internal/app"
	"spese-cli/internal/audio"
	"spese-cli/internal/catalog"
	"spese-cli/internal/config"
	"spese-cli/internal/core"
	"spese-cli/internal/i18n"
	"spese-cli/internal/log"
	"spese-cli/internal/output"
	"spese-cli/internal/playback"
	"spese-cli/internal/session"
	"spese-cli/internal/storage"
	"spese-cli/internal/waveform"
)

func testDeps(t *testing.T) *Dependencies {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataBackend:      "memory",
		DataDirectory:    dir,
		CategoryTTL:      5 * time.Minute,
		OverviewCacheTTL: time.Minute,
		SampleRate:       16000,
		WaveformWidth:    32,
		WaveformFPS:      20,
		OutboxDBPath:     filepath.Join(dir, "outbox.db"),
		SyncBatchSize:    5,
		SyncInterval:     time.Second,
		MaxRetries:       3,
		Language:         "en",
		Currency:         "EUR",
	}
	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return &Dependencies{App: a, Config: cfg}
}

func execute(t *testing.T, deps *Dependencies, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCategoriesList(t *testing.T) {
	deps := testDeps(t)
	out, err := execute(t, deps, "", "categories", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Casa", "Cibo", "Supermercato", "Trasporti"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCategoriesDeleteAsksBeforeCascading(t *testing.T) {
	deps := testDeps(t)
	tree, err := deps.App.Catalog.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	node, ok := tree.FindByName("Cibo")
	if !ok || len(node.Subcategories) == 0 {
		t.Fatalf("seed should have Cibo with subcategories")
	}
	id := node.ID

	out, err := execute(t, deps, "n\n", "categories", "delete", idArg(id))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "subcategories") || !strings.Contains(out, "Nothing deleted") {
		t.Fatalf("expected a declined conflict prompt, got:\n%s", out)
	}

	out, err = execute(t, deps, "y\n", "categories", "delete", idArg(id))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "deleted") {
		t.Fatalf("expected deletion, got:\n%s", out)
	}

	tree, _ = deps.App.Catalog.Refresh(context.Background())
	if _, ok := tree.Find(id); ok {
		t.Fatalf("category should be gone")
	}
	for _, n := range tree {
		for _, sub := range n.Subcategories {
			if sub.CategoryID == id {
				t.Fatalf("subcategory %s should be gone", sub.Name)
			}
		}
	}
}

func TestAddThenRecentAndSummary(t *testing.T) {
	deps := testDeps(t)

	_, err := execute(t, deps, "", "add", "-d", "Pizza", "-a", "12,50", "-c", "Cibo", "-s", "Ristorante", "--date", "2025-03-10")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := execute(t, deps, "", "expenses", "recent")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if !strings.Contains(out, "Pizza") {
		t.Fatalf("expected the new expense, got:\n%s", out)
	}

	out, err = execute(t, deps, "", "expenses", "summary", "--month", "2025-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(out, "2025-03") || !strings.Contains(out, "1 expenses") || !strings.Contains(out, "100.0%") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestAddReportsEveryInvalidField(t *testing.T) {
	deps := testDeps(t)
	_, err := execute(t, deps, "", "add", "-d", " ", "-a", "abc", "-c", "Nope", "-s", "Nope")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "amount") || !strings.Contains(err.Error(), "description") {
		t.Fatalf("expected amount and description errors, got %v", err)
	}
}

func TestUploadUnrecognizedReceipt(t *testing.T) {
	deps := testDeps(t)
	path := filepath.Join(t.TempDir(), "scontrino.png")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := execute(t, deps, "", "upload", path)
	if err == nil || !strings.Contains(err.Error(), "No expense could be identified") {
		t.Fatalf("expected unprocessable message, got %v", err)
	}
}

func TestOutboxFlushEmpty(t *testing.T) {
	deps := testDeps(t)
	out, err := execute(t, deps, "", "outbox", "flush")
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !strings.Contains(out, "0 submitted") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out, err = execute(t, deps, "", "outbox", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "0 pending") || !strings.Contains(out, "Outbox is empty") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestOutboxListShowsQueuedUpload(t *testing.T) {
	deps := testDeps(t)
	_, err := deps.App.Outbox.Enqueue(context.Background(), storage.Upload{
		FileName: "memo.wav",
		MIMEType: "audio/wav",
		Payload:  []byte("RIFF"),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	out, err := execute(t, deps, "", "outbox", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "1 pending") || !strings.Contains(out, "memo.wav") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestWatchRequiresBroker(t *testing.T) {
	deps := testDeps(t)
	if _, err := execute(t, deps, "", "watch"); err == nil {
		t.Fatalf("expected error without AMQP")
	}
}

func TestParseMonth(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	y, m, err := parseMonth("", now)
	if err != nil || y != 2025 || m != 7 {
		t.Fatalf("default month: %d-%d %v", y, m, err)
	}
	y, m, err = parseMonth("2024-12", now)
	if err != nil || y != 2024 || m != 12 {
		t.Fatalf("explicit month: %d-%d %v", y, m, err)
	}
	if _, _, err := parseMonth("12/2024", now); err == nil {
		t.Fatalf("expected error")
	}
}

type toneCapturer struct{}

func (toneCapturer) Start(context.Context) (audio.Capture, error) {
	return &toneCapture{an: audio.NewRingAnalyser(256)}, nil
}

type toneCapture struct {
	an *audio.RingAnalyser
}

func (c *toneCapture) Analyser() audio.Analyser { return c.an }
func (c *toneCapture) Pause() error             { return nil }
func (c *toneCapture) Resume() error            { return nil }
func (c *toneCapture) Close() error             { return nil }

func (c *toneCapture) Stop(context.Context) (*audio.Artifact, error) {
	pcm := make([]byte, 2*8000)
	for i := 0; i < 8000; i++ {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16((i%80-40)*300)))
	}
	return audio.NewArtifact("recording.wav", "audio/wav", audio.EncodeWAV(pcm, 8000, 1)), nil
}

func TestRecordingReviewRetriesThenDiscards(t *testing.T) {
	deps := testDeps(t)
	var out bytes.Buffer
	f := output.NewFormatter(&out)
	scr := newScreen(f)
	s := session.New(toneCapturer{}, deps.App.Submission)
	defer s.Close()

	pngPath := filepath.Join(t.TempDir(), "wave.png")
	input := make(chan string, 4)
	input <- ""  // stop
	input <- "u" // memory backend rejects the upload
	input <- "d"
	close(input)

	err := runRecording(context.Background(), deps, s, scr, input, recordOptions{pngPath: pngPath, queue: true})
	if err != nil {
		t.Fatalf("runRecording: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "Recording stopped") || !strings.Contains(text, "Waveform saved") {
		t.Fatalf("unexpected output:\n%s", text)
	}
	if !strings.Contains(text, "No expense could be identified") || !strings.Contains(text, "Recording discarded") {
		t.Fatalf("expected rejection then discard:\n%s", text)
	}
	if s.Snapshot().Status != session.StatusIdle {
		t.Fatalf("session should be idle")
	}
	if _, err := os.Stat(pngPath); err != nil {
		t.Fatalf("waveform png not written: %v", err)
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		snap session.Snapshot
		want string
	}{
		{session.Snapshot{Status: session.StatusRecording, ElapsedSeconds: 75}, "● REC 1:15"},
		{session.Snapshot{Status: session.StatusPaused, ElapsedSeconds: 3}, "❚❚ PAUSED 0:03"},
		{session.Snapshot{Status: session.StatusStopped, Duration: 90 * time.Second}, "■ 0:00 / 1:30"},
		{session.Snapshot{Status: session.StatusStopped, Duration: 90 * time.Second, PlaybackRatio: 0.5, Playing: true}, "▶ 0:45 / 1:30"},
		{session.Snapshot{Status: session.StatusUploading}, "uploading"},
	}
	for _, tt := range tests {
		if got := statusLine(tt.snap); got != tt.want {
			t.Fatalf("statusLine(%+v) = %q, want %q", tt.snap, got, tt.want)
		}
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

type manualStream struct {
	events chan playback.Event
	once   sync.Once
}

func (s *manualStream) Events() <-chan playback.Event { return s.events }

func (s *manualStream) Stop() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

// manualOutput hands every opened stream to the test
type manualOutput struct {
	opened chan *manualStream
}

func (o *manualOutput) Open(context.Context, string, time.Duration) (playback.Stream, error) {
	st := &manualStream{events: make(chan playback.Event, 4)}
	o.opened <- st
	return st, nil
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// markerInLastBlock returns the marker column of the last redrawn review
// block, or -1
func markerInLastBlock(text string) int {
	i := strings.LastIndex(text, "\033[J")
	if i < 0 {
		return -1
	}
	first, _, _ := strings.Cut(text[i+len("\033[J"):], "\n")
	for x, r := range []rune(first) {
		if r == '┃' {
			return x
		}
	}
	return -1
}

func TestRecordingReviewShowsPlaybackPosition(t *testing.T) {
	deps := testDeps(t)
	out := &syncBuffer{}
	scr := newScreen(output.NewFormatter(out))
	renderer := waveform.NewRenderer(waveform.NewTextCanvas(32, liveHeight), scr.frame)
	player := &manualOutput{opened: make(chan *manualStream, 1)}
	s := session.New(toneCapturer{}, deps.App.Submission,
		session.WithWaveform(renderer, 50),
		session.WithPlayback(player, t.TempDir()),
		session.WithListener(scr.update))
	defer s.Close()

	input := make(chan string)
	done := make(chan error, 1)
	go func() {
		done <- runRecording(context.Background(), deps, s, scr, input, recordOptions{})
	}()

	input <- "" // stop
	waitUntil(t, "static waveform", func() bool {
		return strings.Contains(out.String(), "■ 0:00 / 0:01") && markerInLastBlock(out.String()) == 0
	})
	if !strings.Contains(out.String(), "[u]pload  [p]lay/pause  [d]iscard > ") {
		t.Fatalf("expected the review prompt below the waveform:\n%s", out.String())
	}

	input <- "p"
	stream := <-player.opened
	stream.events <- playback.Event{Kind: playback.EventTimeUpdate, Position: 500 * time.Millisecond}
	waitUntil(t, "moving marker", func() bool {
		return markerInLastBlock(out.String()) == 16
	})
	if !strings.Contains(out.String(), "▶ 0:00 / 0:01") {
		t.Fatalf("expected a playing status line:\n%s", out.String())
	}

	stream.events <- playback.Event{Kind: playback.EventEnded}
	waitUntil(t, "playback end", func() bool {
		snap := s.Snapshot()
		return !snap.Playing && snap.PlaybackRatio == 0
	})

	input <- "d"
	if err := <-done; err != nil {
		t.Fatalf("runRecording: %v", err)
	}
	if !strings.Contains(out.String(), "Recording discarded") {
		t.Fatalf("expected discard:\n%s", out.String())
	}
}

// endless yields "x\n" forever
type endless struct{}

func (endless) Read(p []byte) (int, error) {
	for i := range p {
		if i%2 == 0 {
			p[i] = 'x'
		} else {
			p[i] = '\n'
		}
	}
	return len(p) &^ 1, nil
}

func TestLinesStopsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := lines(ctx, endless{})
	if got := <-ch; got != "x" {
		t.Fatalf("unexpected line %q", got)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("reader kept sending after cancel")
		}
	}
}

// unlistableGateway fails to list categories but deletes normally
type unlistableGateway struct {
	api.CategoryGateway
}

func (unlistableGateway) ListCategories(context.Context) ([]core.Category, error) {
	return nil, errors.New("backend unavailable")
}

func TestCategoriesDeleteLogsFailedPreload(t *testing.T) {
	deps := testDeps(t)
	tree, err := deps.App.Catalog.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	node, _ := tree.FindByName("Cibo")

	var logs bytes.Buffer
	deps.App.Logger = log.New(log.Config{Level: slog.LevelDebug, Output: &logs})
	deps.App.Catalog = catalog.New(unlistableGateway{deps.App.Backend})

	out, err := execute(t, deps, "", "categories", "delete", "-f", idArg(node.ID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "deleted") {
		t.Fatalf("expected deletion, got:\n%s", out)
	}
	if !strings.Contains(logs.String(), "Categories not loaded before delete") || !strings.Contains(logs.String(), "backend unavailable") {
		t.Fatalf("expected a debug entry for the failed preload, got %q", logs.String())
	}
}

func TestCategoryMessagesAreLocalized(t *testing.T) {
	deps := testDeps(t)
	deps.App.Localizer = i18n.New("it", "EUR")

	out, err := execute(t, deps, "", "categories", "add", "Viaggi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Viaggi creata") {
		t.Fatalf("expected italian confirmation, got:\n%s", out)
	}
}

func idArg(id int64) string {
	return strconv.FormatInt(id, 10)
}
