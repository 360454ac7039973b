package detection

import (
	"math"

	"github.com/vzahanych/land2port/internal/geometry"
)

// ClassText is the class label the text detector reports
const ClassText = "text"

// Detection is one model-reported object instance in a single frame
type Detection struct {
	Box        geometry.Rect `json:"box"`
	Class      string        `json:"class"`
	Confidence float64       `json:"confidence"`
	FrameIndex int64         `json:"frame_index"`
}

// Center returns the center of the bounding box
func (d Detection) Center() geometry.Point {
	return d.Box.Center()
}

// IsText reports whether the detection came from the text detector
func (d Detection) IsText() bool {
	return d.Class == ClassText
}

// Sanitize validates a detection against the frame. Boxes that are non-finite, inverted or
// empty are rejected; boxes that spill over the frame edge are clipped. The second return value
// is false when the detection must be dropped.
func Sanitize(d Detection, frame geometry.Size) (Detection, bool) {
	if !d.Box.Valid() {
		return d, false
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return d, false
	}
	clipped := d.Box.ClipTo(frame.Bounds())
	if !clipped.Valid() {
		return d, false
	}
	d.Box = clipped
	return d, true
}

// LargestArea returns the index of the detection with the largest box area, or -1
func LargestArea(dets []Detection) int {
	best := -1
	bestArea := 0.0
	for i, d := range dets {
		if a := d.Box.Area(); best == -1 || a > bestArea {
			best = i
			bestArea = a
		}
	}
	return best
}

// Bounds returns the union of all boxes. It returns false for an empty slice.
func Bounds(dets []Detection) (geometry.Rect, bool) {
	if len(dets) == 0 {
		return geometry.Rect{}, false
	}
	r := dets[0].Box
	for _, d := range dets[1:] {
		r = r.Union(d.Box)
	}
	return r, true
}

// TotalArea sums the box areas
func TotalArea(dets []Detection) float64 {
	var total float64
	for _, d := range dets {
		total += d.Box.Area()
	}
	return total
}

// Clone returns a copy of the slice
func Clone(dets []Detection) []Detection {
	if dets == nil {
		return nil
	}
	out := make([]Detection, len(dets))
	copy(out, dets)
	return out
}
