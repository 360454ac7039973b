package geometry

import "math"

// Size is a width/height pair in pixels
type Size struct {
	Width  float64
	Height float64
}

// Area returns width times height
func (s Size) Area() float64 {
	return s.Width * s.Height
}

// Diagonal returns the length of the diagonal
func (s Size) Diagonal() float64 {
	return math.Hypot(s.Width, s.Height)
}

// Bounds returns the rectangle covering the whole size, anchored at the origin
func (s Size) Bounds() Rect {
	return Rect{Width: s.Width, Height: s.Height}
}

// Aspect is a width:height ratio such as 9:16
type Aspect struct {
	W float64
	H float64
}

// Common aspects
var (
	Portrait  = Aspect{W: 9, H: 16}
	ThreeFour = Aspect{W: 3, H: 4}
)

// Ratio returns W/H
func (a Aspect) Ratio() float64 {
	return a.W / a.H
}

// Point is a 2D point in pixel space
type Point struct {
	X float64
	Y float64
}

// Dist returns the euclidean distance between two points
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Rect is an axis-aligned rectangle in pixel space
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// RectFromCorners builds a rect from (x1,y1)-(x2,y2)
func RectFromCorners(x1, y1, x2, y2 float64) Rect {
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Right returns X + Width
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns Y + Height
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Area returns Width * Height
func (r Rect) Area() float64 { return r.Width * r.Height }

// Center returns the center point
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Aspect returns Width / Height
func (r Rect) Aspect() float64 {
	return r.Width / r.Height
}

// Finite reports whether every coordinate is a finite number
func (r Rect) Finite() bool {
	for _, v := range [...]float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Valid reports whether the rect is finite with strictly positive dimensions
func (r Rect) Valid() bool {
	return r.Finite() && r.Width > 0 && r.Height > 0
}

// Contains reports whether o lies entirely inside r
func (r Rect) Contains(o Rect) bool {
	const eps = 1e-6
	return o.X >= r.X-eps && o.Y >= r.Y-eps && o.Right() <= r.Right()+eps && o.Bottom() <= r.Bottom()+eps
}

// Union returns the smallest rect containing both
func (r Rect) Union(o Rect) Rect {
	x1 := math.Min(r.X, o.X)
	y1 := math.Min(r.Y, o.Y)
	x2 := math.Max(r.Right(), o.Right())
	y2 := math.Max(r.Bottom(), o.Bottom())
	return RectFromCorners(x1, y1, x2, y2)
}

// Intersect returns the overlap of r and o. The result has zero size when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x1 := math.Max(r.X, o.X)
	y1 := math.Max(r.Y, o.Y)
	x2 := math.Min(r.Right(), o.Right())
	y2 := math.Min(r.Bottom(), o.Bottom())
	if x2 <= x1 || y2 <= y1 {
		return Rect{X: x1, Y: y1}
	}
	return RectFromCorners(x1, y1, x2, y2)
}

// Pad grows the rect by frac of its own size on every side
func (r Rect) Pad(frac float64) Rect {
	dx := r.Width * frac
	dy := r.Height * frac
	return Rect{X: r.X - dx, Y: r.Y - dy, Width: r.Width + 2*dx, Height: r.Height + 2*dy}
}

// CenteredAt returns a rect of the given size centered on c
func CenteredAt(c Point, w, h float64) Rect {
	return Rect{X: c.X - w/2, Y: c.Y - h/2, Width: w, Height: h}
}

// ExpandToAspect grows the rect symmetrically around its center until it has the given aspect.
// It never shrinks either dimension.
func (r Rect) ExpandToAspect(a Aspect) Rect {
	ratio := a.Ratio()
	w, h := r.Width, r.Height
	if w/h < ratio {
		w = h * ratio
	} else {
		h = w / ratio
	}
	return CenteredAt(r.Center(), w, h)
}

// TranslateInto moves r so it lies inside bounds without resizing it.
// If r is larger than bounds along an axis it is centered on that axis.
func (r Rect) TranslateInto(bounds Rect) Rect {
	out := r
	if out.Width >= bounds.Width {
		out.X = bounds.X + (bounds.Width-out.Width)/2
	} else if out.X < bounds.X {
		out.X = bounds.X
	} else if out.Right() > bounds.Right() {
		out.X = bounds.Right() - out.Width
	}
	if out.Height >= bounds.Height {
		out.Y = bounds.Y + (bounds.Height-out.Height)/2
	} else if out.Y < bounds.Y {
		out.Y = bounds.Y
	} else if out.Bottom() > bounds.Bottom() {
		out.Y = bounds.Bottom() - out.Height
	}
	return out
}

// ClipTo returns the part of r inside bounds
func (r Rect) ClipTo(bounds Rect) Rect {
	return r.Intersect(bounds)
}

// LargestWithAspect returns the largest rect of aspect a that fits in frame, centered
func LargestWithAspect(frame Size, a Aspect) Rect {
	ratio := a.Ratio()
	w, h := frame.Width, frame.Width/ratio
	if h > frame.Height {
		h = frame.Height
		w = h * ratio
	}
	return CenteredAt(Point{X: frame.Width / 2, Y: frame.Height / 2}, w, h)
}

// FitAspectInFrame returns a rect of aspect a that contains want where possible, capped at the
// largest rect of that aspect the frame can hold, centered on want and translated inside.
func FitAspectInFrame(want Rect, frame Size, a Aspect) Rect {
	r := want.ExpandToAspect(a)
	max := LargestWithAspect(frame, a)
	if r.Width > max.Width || r.Height > max.Height {
		r = CenteredAt(want.Center(), max.Width, max.Height)
	}
	return r.TranslateInto(frame.Bounds())
}

// Lerp interpolates every coordinate of a toward b by t in [0,1]
func Lerp(a, b Rect, t float64) Rect {
	return Rect{
		X:      a.X + (b.X-a.X)*t,
		Y:      a.Y + (b.Y-a.Y)*t,
		Width:  a.Width + (b.Width-a.Width)*t,
		Height: a.Height + (b.Height-a.Height)*t,
	}
}

// MaxAbsDiff returns the largest per-coordinate difference between a and b
func MaxAbsDiff(a, b Rect) float64 {
	d := math.Abs(a.X - b.X)
	d = math.Max(d, math.Abs(a.Y-b.Y))
	d = math.Max(d, math.Abs(a.Width-b.Width))
	return math.Max(d, math.Abs(a.Height-b.Height))
}
