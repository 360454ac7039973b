// Package compose renders crop windows onto a portrait canvas.
package compose

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/geometry"
)

// aspectTolerance is the relative aspect mismatch below which a region fills its row
const aspectTolerance = 0.01

// Compositor draws windows with a fixed scaler and background
type Compositor struct {
	Canvas     geometry.Size
	Scaler     draw.Scaler
	Background color.Color
}

// New returns a compositor for canvas using Catmull-Rom scaling on black
func New(canvas geometry.Size) *Compositor {
	return &Compositor{Canvas: canvas, Scaler: draw.CatmullRom, Background: color.Black}
}

// Render draws src cropped by window into a new canvas image. Each row of the window gets
// the canvas band given by Window.OutputHeights. A region whose aspect differs from its band
// is fit and centered, leaving background bars.
func (c *Compositor) Render(src image.Image, window crop.Window) *image.RGBA {
	w, h := int(c.Canvas.Width), int(c.Canvas.Height)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	c.RenderInto(dst, src, window)
	return dst
}

// RenderInto is Render on a caller-owned canvas, so a frame loop can reuse one buffer
func (c *Compositor) RenderInto(dst *image.RGBA, src image.Image, window crop.Window) {
	bounds := dst.Bounds()
	draw.Draw(dst, bounds, image.NewUniform(c.Background), image.Point{}, draw.Src)
	if window.IsZero() {
		return
	}

	heights := window.OutputHeights(bounds.Dy())
	if len(heights) != len(window.Rects) {
		return
	}
	y := bounds.Min.Y
	for i, r := range window.Rects {
		band := image.Rect(bounds.Min.X, y, bounds.Max.X, y+heights[i])
		y += heights[i]

		sr := sourceRect(r, src.Bounds())
		if sr.Empty() || band.Empty() {
			continue
		}
		c.Scaler.Scale(dst, fit(sr, band), src, sr, draw.Src, nil)
	}
}

// Render draws with a default compositor
func Render(src image.Image, window crop.Window, canvas geometry.Size) *image.RGBA {
	return New(canvas).Render(src, window)
}

// sourceRect converts a window rect to whole pixels inside the source bounds
func sourceRect(r geometry.Rect, b image.Rectangle) image.Rectangle {
	x0 := int(math.Round(r.X)) + b.Min.X
	y0 := int(math.Round(r.Y)) + b.Min.Y
	x1 := int(math.Round(r.Right())) + b.Min.X
	y1 := int(math.Round(r.Bottom())) + b.Min.Y
	return image.Rect(x0, y0, x1, y1).Intersect(b)
}

// fit returns the largest rect with the aspect of sr centered in band
func fit(sr, band image.Rectangle) image.Rectangle {
	sa := float64(sr.Dx()) / float64(sr.Dy())
	ba := float64(band.Dx()) / float64(band.Dy())
	if math.Abs(sa-ba) <= aspectTolerance*ba {
		return band
	}

	if sa > ba {
		h := int(math.Round(float64(band.Dx()) / sa))
		top := band.Min.Y + (band.Dy()-h)/2
		return image.Rect(band.Min.X, top, band.Max.X, top+h)
	}
	w := int(math.Round(float64(band.Dy()) * sa))
	left := band.Min.X + (band.Dx()-w)/2
	return image.Rect(left, band.Min.Y, left+w, band.Max.Y)
}
