package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"spese-cli/internal/api"
	"spese-cli/internal/audio"
	"spese-cli/internal/i18n"
	"spese-cli/internal/output"
	"spese-cli/internal/session"
	"spese-cli/internal/waveform"
)

const (
	liveHeight       = 9
	defaultPNGWidth  = 800
	defaultPNGHeight = 160
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var (
		pngPath  string
		savePath string
		queue    bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice memo and upload it as an expense",
		Long: "Record from the microphone with a live waveform. Press Enter to stop, p to pause or resume,\n" +
			"q to discard. Once stopped the recording can be played back, uploaded or discarded.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			f := formatter(cmd, deps)
			scr := newScreen(f)
			canvas := waveform.NewTextCanvas(deps.Config.WaveformWidth, liveHeight)
			renderer := waveform.NewRenderer(canvas, scr.frame)

			s := deps.App.NewSession(audio.KindAudio, renderer, scr.update)
			defer s.Close()

			return runRecording(ctx, deps, s, scr, lines(ctx, cmd.InOrStdin()), recordOptions{
				pngPath:  pngPath,
				savePath: savePath,
				queue:    queue,
			})
		},
	}

	cmd.Flags().StringVar(&pngPath, "waveform", "", "Also write the waveform of the recording to this PNG file")
	cmd.Flags().StringVarP(&savePath, "output", "o", "", "Keep a copy of the recording at this path")
	cmd.Flags().BoolVar(&queue, "queue", true, "Queue the upload in the outbox when the server does not respond")

	return cmd
}

type recordOptions struct {
	pngPath  string
	savePath string
	queue    bool
}

func runRecording(ctx context.Context, deps *Dependencies, s *session.Session, scr *screen, input <-chan string, opts recordOptions) error {
	f := scr.f
	if err := s.Start(ctx); err != nil {
		return userError(s, err)
	}
	f.RecordingStarted()

	discarded, err := captureUntilStop(ctx, s, input)
	scr.finish()
	if err != nil {
		return err
	}
	if discarded {
		f.Info(f.T(i18n.MsgRecordingDiscarded))
		return nil
	}

	if err := s.Stop(ctx); err != nil {
		return userError(s, err)
	}
	snap := s.Snapshot()
	f.RecordingStopped(time.Duration(snap.ElapsedSeconds) * time.Second)

	artifact := s.Artifact()
	if opts.savePath != "" {
		if err := os.WriteFile(opts.savePath, artifact.Bytes(), 0o644); err != nil {
			return fmt.Errorf("saving recording: %w", err)
		}
		f.Success(f.T(i18n.MsgRecordingSaved, opts.savePath))
	}
	if opts.pngPath != "" {
		if err := exportWaveform(opts.pngPath, artifact, defaultPNGWidth, defaultPNGHeight); err != nil {
			f.Warning(err.Error())
		} else {
			f.WaveformSaved(opts.pngPath)
		}
	}

	scr.review()
	return review(ctx, deps, s, scr, input, opts.queue)
}

// captureUntilStop handles keys while recording. It reports whether the
// user discarded the recording.
func captureUntilStop(ctx context.Context, s *session.Session, input <-chan string) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			s.Discard()
			return false, ctx.Err()
		case line, ok := <-input:
			if !ok {
				return false, nil
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "p":
				var err error
				if s.Snapshot().Status == session.StatusPaused {
					err = s.Resume()
				} else {
					err = s.Pause()
				}
				if err != nil {
					return false, userError(s, err)
				}
			case "q":
				s.Discard()
				return true, nil
			default:
				return false, nil
			}
		}
	}
}

// review offers playback, upload and discard for a stopped session. The
// static waveform is redrawn above the prompt as playback moves.
func review(ctx context.Context, deps *Dependencies, s *session.Session, scr *screen, input <-chan string, queue bool) error {
	f := scr.f
	defer scr.finish()
	for {
		scr.prompt(f.T(i18n.MsgReviewPrompt))
		var line string
		select {
		case <-ctx.Done():
			scr.finish()
			s.Discard()
			return ctx.Err()
		case l, ok := <-input:
			if !ok {
				l = "d"
			}
			line = strings.ToLower(strings.TrimSpace(l))
		}
		scr.detach()

		switch line {
		case "", "u":
			err := submit(ctx, deps, s, f, queue)
			if err == nil {
				return nil
			}
			f.Error(err.Error())
			if s.Snapshot().Status != session.StatusError {
				return err
			}
		case "p":
			if s.Snapshot().Playing {
				s.PausePlayback()
				continue
			}
			if err := s.Play(ctx); err != nil {
				f.Warning(s.Snapshot().Message)
			}
		case "d":
			scr.finish()
			s.Discard()
			f.Info(f.T(i18n.MsgRecordingDiscarded))
			return nil
		}
	}
}

// submit uploads the session's artifact. When the server cannot be reached
// and queueing is allowed the artifact goes to the outbox instead.
func submit(ctx context.Context, deps *Dependencies, s *session.Session, f *output.Formatter, queue bool) error {
	artifact := s.Artifact()
	if artifact == nil {
		return session.ErrNoArtifact
	}
	f.Uploading(artifact.Name(), artifact.Size())

	e, err := s.Upload(ctx)
	if err == nil {
		f.ExpenseSubmitted(*e)
		return nil
	}
	if queue && errors.Is(err, api.ErrNoResponse) && deps.App.Submission.CanQueue() {
		item, qerr := deps.App.Submission.Queue(api.WithSessionID(ctx, s.ID()), artifact)
		if qerr != nil {
			return fmt.Errorf("queueing upload: %w", qerr)
		}
		s.Discard()
		f.Queued(item.ID)
		f.Info(deps.App.Localizer.T(i18n.MsgUploadQueued))
		return nil
	}
	return userError(s, err)
}

// userError prefers the session's localized message over err's text
func userError(s *session.Session, err error) error {
	if msg := s.Snapshot().Message; msg != "" {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return err
}

// exportWaveform renders the static envelope of a WAV artifact to PNG
func exportWaveform(path string, a *audio.Artifact, width, height int) error {
	pcm, err := audio.DecodeWAV(a.Bytes())
	if err != nil {
		return fmt.Errorf("waveform export: %w", err)
	}
	canvas := waveform.NewImageCanvas(width, height)
	r := waveform.NewRenderer(canvas, nil)
	r.SetSamples(pcm.Samples)
	r.DrawStatic(0)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("waveform export: %w", err)
	}
	if err := canvas.WritePNG(out); err != nil {
		out.Close()
		return fmt.Errorf("waveform export: %w", err)
	}
	return out.Close()
}

// lines delivers input line by line until EOF or until ctx is done
func lines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

type screenMode int

const (
	modeLive screenMode = iota
	modeOff
	modeReview
)

// screen draws the waveform in place. While recording every frame replaces
// the previous one; during review the static envelope is kept above the
// prompt and redrawn when the playback position changes.
type screen struct {
	mu     sync.Mutex
	f      *output.Formatter
	mode   screenMode
	drawn  bool
	height int
	status string
	last   string
	ask    string
}

func newScreen(f *output.Formatter) *screen {
	return &screen{f: f, mode: modeLive}
}

func (sc *screen) frame(c waveform.Canvas) {
	tc, ok := c.(*waveform.TextCanvas)
	if !ok {
		return
	}
	text := tc.String()
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.last = text
	switch sc.mode {
	case modeLive:
		sc.drawn = true
		sc.f.Frame(text, sc.status)
	case modeReview:
		if sc.height > 0 {
			sc.redrawLocked()
		}
	}
}

func (sc *screen) update(snap session.Snapshot) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	status := statusLine(snap)
	if status == sc.status {
		return
	}
	sc.status = status
	if sc.mode == modeReview && sc.height > 0 {
		sc.redrawLocked()
	}
}

// redrawLocked replaces the review block, prompt included. Outside of a
// prompt (height 0) the block is drawn anew at the cursor.
func (sc *screen) redrawLocked() {
	if sc.last == "" {
		return
	}
	sc.height = sc.f.Redraw(sc.last, sc.status, sc.ask, sc.height)
}

// finish stops in-place drawing and moves below the last frame
func (sc *screen) finish() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.mode == modeLive && sc.drawn {
		sc.f.ClearFrame(sc.last)
	}
	if sc.mode == modeReview && sc.height > 0 {
		fmt.Fprintln(sc.f.Writer())
	}
	sc.mode = modeOff
	sc.height = 0
}

// review shows the static waveform from now on
func (sc *screen) review() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.mode = modeReview
	sc.height = 0
}

// prompt draws the review block ending with ask
func (sc *screen) prompt(ask string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.ask = ask
	if sc.mode == modeReview && sc.last != "" {
		sc.redrawLocked()
		return
	}
	fmt.Fprint(sc.f.Writer(), ask)
}

// detach leaves the current block in place; the next redraw starts below
// whatever was printed after it
func (sc *screen) detach() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.height = 0
}

func statusLine(snap session.Snapshot) string {
	switch snap.Status {
	case session.StatusRecording:
		return "● REC " + clock(time.Duration(snap.ElapsedSeconds)*time.Second)
	case session.StatusPaused:
		return "❚❚ PAUSED " + clock(time.Duration(snap.ElapsedSeconds)*time.Second)
	}
	if snap.Duration > 0 {
		icon := "■"
		if snap.Playing {
			icon = "▶"
		}
		pos := time.Duration(snap.PlaybackRatio * float64(snap.Duration))
		return fmt.Sprintf("%s %s / %s", icon, clock(pos), clock(snap.Duration))
	}
	return string(snap.Status)
}

func clock(d time.Duration) string {
	sec := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
