package video

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/vzahanych/land2port/internal/logger"
)

func setupTestFFmpeg(t *testing.T) *FFmpegWrapper {
	log := logger.NewNopLogger()
	ffmpeg, err := NewFFmpegWrapper(log)
	if err != nil {
		t.Skipf("FFmpeg not available, skipping test: %v", err)
	}
	return ffmpeg
}

// writeTestClip encodes solid frames of the given size and returns the file path
func writeTestClip(t *testing.T, ffmpeg *FFmpegWrapper, width, height, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	enc, err := ffmpeg.NewEncoder(context.Background(), EncoderConfig{
		Width:  width,
		Height: height,
		FPS:    25,
		Output: path,
	}, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to start encoder: %v", err)
	}

	for i := 0; i < frames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		c := color.RGBA{R: uint8(i * 10), G: 128, B: 64, A: 255}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetRGBA(x, y, c)
			}
		}
		if err := enc.WriteFrame(img); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close encoder: %v", err)
	}
	return path
}
