package compose

import (
	"context"
	"fmt"
	"image"

	"github.com/vzahanych/land2port/internal/pipeline"
	"github.com/vzahanych/land2port/internal/reframe"
	"github.com/vzahanych/land2port/internal/video"
)

// FrameWriter consumes rendered canvases, typically a video.Encoder
type FrameWriter interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// Sink renders every decision onto the canvas and hands it to a FrameWriter. It implements
// pipeline.Sink. Frames arrive in order, so one canvas buffer is reused.
type Sink struct {
	comp   *Compositor
	out    FrameWriter
	canvas *image.RGBA
	frames int64
}

// NewSink creates a rendering sink
func NewSink(comp *Compositor, out FrameWriter) *Sink {
	w, h := int(comp.Canvas.Width), int(comp.Canvas.Height)
	return &Sink{
		comp:   comp,
		out:    out,
		canvas: image.NewRGBA(image.Rect(0, 0, w, h)),
	}
}

// Write renders one frame
func (s *Sink) Write(_ context.Context, frame *video.Frame, out reframe.FrameOutput) error {
	if frame == nil || frame.Image == nil {
		return fmt.Errorf("frame %d has no image", out.Index)
	}
	s.comp.RenderInto(s.canvas, frame.Image, out.Window)
	if err := s.out.WriteFrame(s.canvas); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", out.Index, err)
	}
	s.frames++
	return nil
}

// Frames returns the number of canvases written
func (s *Sink) Frames() int64 {
	return s.frames
}

// Close closes the writer
func (s *Sink) Close(_ context.Context, _ pipeline.Summary) error {
	return s.out.Close()
}
