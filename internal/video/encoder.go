package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vzahanych/land2port/internal/logger"
)

// EncoderConfig contains output encoding settings
type EncoderConfig struct {
	Width         int
	Height        int
	FPS           float64
	Output        string
	CRF           int  // Quality for libx264 (default 20)
	AllowHardware bool // Permit hardware encoders
}

// Encoder writes RGBA frames to an H.264 file through an ffmpeg rawvideo pipe
type Encoder struct {
	logger *logger.Logger
	cfg    EncoderConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	frames int64
}

// encoderArgs builds the ffmpeg arguments for an encoder
func encoderArgs(cfg EncoderConfig, codec string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", strconv.FormatFloat(cfg.FPS, 'f', -1, 64),
		"-i", "-",
		"-c:v", codec,
		"-pix_fmt", "yuv420p",
	}
	if codec == "libx264" {
		args = append(args, "-preset", "veryfast", "-crf", strconv.Itoa(cfg.CRF))
	}
	return append(args, "-movflags", "+faststart", cfg.Output)
}

// NewEncoder starts an encoder process
func (f *FFmpegWrapper) NewEncoder(ctx context.Context, cfg EncoderConfig, log *logger.Logger) (*Encoder, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid output frame rate %v", cfg.FPS)
	}
	if cfg.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if cfg.CRF == 0 {
		cfg.CRF = 20
	}

	codec := f.GetPreferredEncoder(cfg.AllowHardware)
	cmd := f.BuildCommand(ctx, encoderArgs(cfg, codec))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder pipe: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}

	log.Info("Encoder started",
		"output", cfg.Output,
		"codec", codec,
		"width", cfg.Width,
		"height", cfg.Height,
	)

	return &Encoder{logger: log, cfg: cfg, cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

// WriteFrame appends one frame; its size must match the encoder size
func (e *Encoder) WriteFrame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != e.cfg.Width || b.Dy() != e.cfg.Height {
		return fmt.Errorf("frame size %dx%d does not match encoder %dx%d", b.Dx(), b.Dy(), e.cfg.Width, e.cfg.Height)
	}

	if img.Stride == 4*e.cfg.Width && b.Min == (image.Point{}) {
		if _, err := e.stdin.Write(img.Pix[:4*e.cfg.Width*e.cfg.Height]); err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
			if _, err := e.stdin.Write(row); err != nil {
				return fmt.Errorf("failed to write frame: %w", err)
			}
		}
	}
	e.frames++
	return nil
}

// Frames returns the number of frames written
func (e *Encoder) Frames() int64 {
	return e.frames
}

// Close finishes the file and waits for ffmpeg to exit
func (e *Encoder) Close() error {
	if err := e.stdin.Close(); err != nil {
		return fmt.Errorf("failed to close encoder pipe: %w", err)
	}
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder exited: %w (%s)", err, strings.TrimSpace(e.stderr.String()))
	}
	e.logger.Info("Encoder finished", "output", e.cfg.Output, "frames", e.frames)
	return nil
}
