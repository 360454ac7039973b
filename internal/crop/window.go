package crop

import (
	"fmt"
	"math"
	"strings"

	"github.com/vzahanych/land2port/internal/geometry"
)

// Layout tags how the rects of a window are composed into the canvas
type Layout int

const (
	// LayoutSingle is one rect scaled into the whole canvas
	LayoutSingle Layout = iota
	// LayoutStacked is k rects composited top to bottom
	LayoutStacked
)

// String returns the layout name
func (l Layout) String() string {
	switch l {
	case LayoutSingle:
		return "single"
	case LayoutStacked:
		return "stacked"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout is the inverse of Layout.String
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "single":
		return LayoutSingle, nil
	case "stacked":
		return LayoutStacked, nil
	default:
		return 0, fmt.Errorf("unknown layout: %s", s)
	}
}

// Window is one or more source rects plus the layout they are composed with.
// For stacked windows Shares holds each row's fraction of the canvas height; the shares sum to 1
// and every rect has aspect canvasWidth : (canvasHeight * share).
type Window struct {
	Layout Layout
	Rects  []geometry.Rect
	Shares []float64
}

// Single builds a single-rect window
func Single(r geometry.Rect) Window {
	return Window{Layout: LayoutSingle, Rects: []geometry.Rect{r}, Shares: []float64{1}}
}

// Stacked builds a stacked window; rects are listed top to bottom
func Stacked(rects []geometry.Rect, shares []float64) Window {
	return Window{
		Layout: LayoutStacked,
		Rects:  append([]geometry.Rect(nil), rects...),
		Shares: append([]float64(nil), shares...),
	}
}

// Rows returns the number of rects (k for Stacked(k))
func (w Window) Rows() int {
	return len(w.Rects)
}

// IsZero reports whether the window holds no rects
func (w Window) IsZero() bool {
	return len(w.Rects) == 0
}

// Tag returns "single" or "stacked(k)"
func (w Window) Tag() string {
	if w.Layout == LayoutStacked {
		return fmt.Sprintf("stacked(%d)", w.Rows())
	}
	return w.Layout.String()
}

// SameShape reports whether two windows can be interpolated into each other: same layout,
// same row count and same row shares.
func (w Window) SameShape(o Window) bool {
	if w.Layout != o.Layout || len(w.Rects) != len(o.Rects) || len(w.Shares) != len(o.Shares) {
		return false
	}
	for i := range w.Shares {
		if math.Abs(w.Shares[i]-o.Shares[i]) > 1e-9 {
			return false
		}
	}
	return true
}

// Center returns the area-weighted center of the window's rects
func (w Window) Center() geometry.Point {
	var cx, cy, total float64
	for _, r := range w.Rects {
		a := r.Area()
		c := r.Center()
		cx += c.X * a
		cy += c.Y * a
		total += a
	}
	if total == 0 {
		return geometry.Point{}
	}
	return geometry.Point{X: cx / total, Y: cy / total}
}

// Clone returns a deep copy
func (w Window) Clone() Window {
	return Window{
		Layout: w.Layout,
		Rects:  append([]geometry.Rect(nil), w.Rects...),
		Shares: append([]float64(nil), w.Shares...),
	}
}

// Inside reports whether every rect is inside the frame with positive size
func (w Window) Inside(frame geometry.Size) bool {
	if len(w.Rects) == 0 {
		return false
	}
	bounds := frame.Bounds()
	for _, r := range w.Rects {
		if !r.Valid() || !bounds.Contains(r) {
			return false
		}
	}
	return true
}

// OutputHeights maps each row to an integer number of canvas rows. The heights always sum to
// canvasHeight exactly; rounding error is pushed to row boundaries, never accumulated.
func (w Window) OutputHeights(canvasHeight int) []int {
	if len(w.Shares) == 0 {
		return nil
	}
	heights := make([]int, len(w.Shares))
	cum := 0.0
	prev := 0
	for i, s := range w.Shares {
		cum += s
		boundary := int(math.Round(cum * float64(canvasHeight)))
		if i == len(w.Shares)-1 {
			boundary = canvasHeight
		}
		heights[i] = boundary - prev
		prev = boundary
	}
	return heights
}

// Lerp interpolates rect by rect from a toward b. Both windows must have the same shape.
func Lerp(a, b Window, t float64) Window {
	out := b.Clone()
	for i := range out.Rects {
		out.Rects[i] = geometry.Lerp(a.Rects[i], b.Rects[i], t)
	}
	return out
}

// MaxAbsDiff returns the largest coordinate difference between same-shaped windows
func MaxAbsDiff(a, b Window) float64 {
	d := 0.0
	for i := range a.Rects {
		d = math.Max(d, geometry.MaxAbsDiff(a.Rects[i], b.Rects[i]))
	}
	return d
}
