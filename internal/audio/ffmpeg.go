package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"spese-cli/internal/log"
)

const (
	defaultStartTimeout = 5 * time.Second
	defaultStopTimeout  = 3 * time.Second
	analyserWindow      = 2048
	stderrLimit         = 8 << 10
)

// FFmpegConfig describes how to launch ffmpeg for microphone capture
type FFmpegConfig struct {
	Path         string // ffmpeg binary, "ffmpeg" when empty
	Format       string // input format, e.g. avfoundation, pulse, dshow
	Device       string // input device for the format
	SampleRate   int
	StartTimeout time.Duration
	Logger       *log.Logger
}

// FFmpegCapturer records mono 16-bit PCM from an ffmpeg child process
type FFmpegCapturer struct {
	cfg    FFmpegConfig
	logger *log.Logger
}

func NewFFmpegCapturer(cfg FFmpegConfig) *FFmpegCapturer {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &FFmpegCapturer{cfg: cfg, logger: logger.WithComponent(log.ComponentCapture)}
}

// Check verifies that the ffmpeg binary can be found
func (c *FFmpegCapturer) Check() error {
	if _, err := exec.LookPath(c.cfg.Path); err != nil {
		return fmt.Errorf("%w: ffmpeg not found (%s)", ErrDeviceUnavailable, c.cfg.Path)
	}
	return nil
}

func (c *FFmpegCapturer) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", c.cfg.Format,
		"-i", c.cfg.Device,
		"-ac", "1",
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

func (c *FFmpegCapturer) Start(ctx context.Context) (Capture, error) {
	if err := c.Check(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.cfg.Path, c.args()...)
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = defaultStopTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	fc := &ffmpegCapture{
		cmd:        cmd,
		stderr:     stderr,
		analyser:   NewRingAnalyser(analyserWindow),
		sampleRate: c.cfg.SampleRate,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		logger:     c.logger,
	}
	go fc.readLoop(stdout)

	timer := time.NewTimer(c.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case <-fc.ready:
		c.logger.Debug("Capture started",
			"format", c.cfg.Format,
			"device", c.cfg.Device,
			"sample_rate", c.cfg.SampleRate)
		return fc, nil
	case <-fc.done:
		fc.wait()
		err := classifyStderr(stderr.String())
		c.logger.Warn("Capture failed to start", log.FieldError, err.Error())
		return nil, err
	case <-ctx.Done():
		fc.kill()
		return nil, ctx.Err()
	case <-timer.C:
		fc.kill()
		return nil, fmt.Errorf("%w: no audio received within %s", ErrDeviceUnavailable, c.cfg.StartTimeout)
	}
}

type ffmpegCapture struct {
	cmd        *exec.Cmd
	stderr     *limitedBuffer
	analyser   *RingAnalyser
	sampleRate int
	logger     *log.Logger

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	waitOnce  sync.Once
	waitErr   error

	mu      sync.Mutex
	pcm     []byte
	paused  bool
	stopped bool
}

func (fc *ffmpegCapture) readLoop(r io.Reader) {
	defer close(fc.done)

	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			fc.readyOnce.Do(func() { close(fc.ready) })

			chunk := append(carry, buf[:n]...)
			even := len(chunk) &^ 1
			carry = append([]byte(nil), chunk[even:]...)

			fc.mu.Lock()
			if !fc.paused && !fc.stopped {
				fc.pcm = append(fc.pcm, chunk[:even]...)
				fc.mu.Unlock()
				fc.analyser.Push(PCM16ToFloat(chunk[:even]))
			} else {
				fc.mu.Unlock()
			}
		}
		if err != nil {
			return
		}
	}
}

func (fc *ffmpegCapture) wait() error {
	fc.waitOnce.Do(func() {
		fc.waitErr = fc.cmd.Wait()
	})
	return fc.waitErr
}

func (fc *ffmpegCapture) interrupt() {
	if err := fc.cmd.Process.Signal(os.Interrupt); err != nil {
		fc.cmd.Process.Kill()
	}
}

func (fc *ffmpegCapture) kill() {
	fc.cmd.Process.Kill()
	<-fc.done
	fc.wait()
}

func (fc *ffmpegCapture) Analyser() Analyser {
	return fc.analyser
}

func (fc *ffmpegCapture) Pause() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.stopped {
		return ErrNotRecording
	}
	fc.paused = true
	return nil
}

func (fc *ffmpegCapture) Resume() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.stopped {
		return ErrNotRecording
	}
	fc.paused = false
	return nil
}

func (fc *ffmpegCapture) Stop(ctx context.Context) (*Artifact, error) {
	fc.mu.Lock()
	if fc.stopped {
		fc.mu.Unlock()
		return nil, ErrNotRecording
	}
	fc.stopped = true
	pcm := fc.pcm
	fc.pcm = nil
	fc.mu.Unlock()

	fc.interrupt()
	select {
	case <-fc.done:
	case <-ctx.Done():
		fc.kill()
		return nil, ctx.Err()
	}
	fc.wait()

	fc.logger.Debug("Capture stopped", log.FieldBytes, len(pcm))
	name := "recording-" + time.Now().Format("20060102-150405") + ".wav"
	return NewArtifact(name, "audio/wav", EncodeWAV(pcm, fc.sampleRate, 1)), nil
}

func (fc *ffmpegCapture) Close() error {
	fc.mu.Lock()
	if fc.stopped {
		fc.mu.Unlock()
		return nil
	}
	fc.stopped = true
	fc.pcm = nil
	fc.mu.Unlock()

	fc.interrupt()
	select {
	case <-fc.done:
		fc.wait()
	case <-time.After(defaultStopTimeout):
		fc.kill()
	}
	return nil
}

// classifyStderr maps ffmpeg diagnostics to capture errors
func classifyStderr(stderr string) error {
	detail := lastLine(stderr)
	lower := strings.ToLower(stderr)
	for _, hint := range []string{"permission", "not authorized", "not permitted", "access denied"} {
		if strings.Contains(lower, hint) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, detail)
		}
	}
	if detail == "" {
		return ErrDeviceUnavailable
	}
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, detail)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// limitedBuffer keeps the first limit bytes written to it
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ Capture = (*ffmpegCapture)(nil)
