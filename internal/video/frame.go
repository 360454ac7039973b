package video

import (
	"image"
	"time"
)

// Frame represents a single decoded video frame
type Frame struct {
	Index     int64         // Zero-based position in the stream
	Timestamp time.Duration // Presentation time from the start of the stream
	Image     *image.RGBA   // Decoded pixels
}

// Width returns the frame width in pixels
func (f *Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f *Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}
