package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/vzahanych/land2port/internal/logger"
)

// Decoder streams RGBA frames from an input through an ffmpeg rawvideo pipe
type Decoder struct {
	logger *logger.Logger
	info   StreamInfo
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr *bytes.Buffer
	cancel context.CancelFunc
	index  int64

	mu     sync.Mutex
	closed bool
}

// NewDecoder starts decoding input. info must come from Probe on the same input.
func (f *FFmpegWrapper) NewDecoder(ctx context.Context, input string, info StreamInfo, log *logger.Logger) (*Decoder, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", info.Width, info.Height)
	}

	ctx, cancel := context.WithCancel(ctx)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}

	cmd := f.BuildCommand(ctx, args)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open decoder pipe: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}

	log.Info("Decoder started",
		"input", input,
		"width", info.Width,
		"height", info.Height,
		"fps", info.FPS,
	)

	return &Decoder{
		logger: log,
		info:   info,
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, info.Width*info.Height*4),
		stderr: stderr,
		cancel: cancel,
	}, nil
}

// Info returns the stream parameters the decoder was opened with
func (d *Decoder) Info() StreamInfo {
	return d.info
}

// Next returns the next frame, or io.EOF at the end of the stream
func (d *Decoder) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, d.info.Width, d.info.Height))
	if _, err := io.ReadFull(d.reader, img.Pix); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			d.logger.Warn("Truncated final frame", "frame_index", d.index)
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame %d: %w", d.index, err)
	}

	f := &Frame{
		Index:     d.index,
		Timestamp: time.Duration(float64(d.index) / d.info.FPS * float64(time.Second)),
		Image:     img,
	}
	d.index++
	return f, nil
}

// Close stops ffmpeg and releases the pipe
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	d.cancel()
	_ = d.stdout.Close()
	err := d.cmd.Wait()
	if err != nil && d.stderr.Len() > 0 {
		return fmt.Errorf("decoder exited: %w (%s)", err, strings.TrimSpace(d.stderr.String()))
	}
	return nil
}
