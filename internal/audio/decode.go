package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"spese-cli/internal/log"
)

var ErrDecode = errors.New("audio could not be decoded")

const defaultDecodeTimeout = 30 * time.Second

// Decoder turns an encoded audio artifact into mono PCM
type Decoder interface {
	Decode(ctx context.Context, a *Artifact) (*PCM, error)
}

// FFmpegDecoder decodes any format ffmpeg understands to mono 16-bit PCM
type FFmpegDecoder struct {
	path       string
	sampleRate int
	logger     *log.Logger
}

func NewFFmpegDecoder(path string, sampleRate int, logger *log.Logger) *FFmpegDecoder {
	if path == "" {
		path = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &FFmpegDecoder{path: path, sampleRate: sampleRate, logger: logger.WithComponent(log.ComponentCapture)}
}

func (d *FFmpegDecoder) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(d.sampleRate),
		"-f", "s16le",
		"pipe:1",
	}
}

// Decode pipes the artifact through ffmpeg. Without a deadline on ctx the
// run is bounded by a default timeout.
func (d *FFmpegDecoder) Decode(ctx context.Context, a *Artifact) (*PCM, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDecodeTimeout)
		defer cancel()
	}

	var out bytes.Buffer
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd := exec.CommandContext(ctx, d.path, d.args()...)
	cmd.Stdin = a.Reader()
	cmd.Stdout = &out
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		detail := lastLine(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrDecode, a.Name(), detail)
	}
	if out.Len() < 2 {
		return nil, fmt.Errorf("%w: %s: no audio stream", ErrDecode, a.Name())
	}

	pcm := &PCM{SampleRate: d.sampleRate, Channels: 1, Samples: PCM16ToFloat(out.Bytes())}
	d.logger.Debug("Artifact decoded",
		log.FieldMIMEType, a.MIMEType(),
		"duration", pcm.Duration().String())
	return pcm, nil
}

var _ Decoder = (*FFmpegDecoder)(nil)
