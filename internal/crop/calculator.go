package crop

import (
	"math"
	"sort"

	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/logger"
)

// Reasons reported with every raw window
const (
	ReasonDefault           = "default"
	ReasonSingle            = "single"
	ReasonGroup             = "group"
	ReasonStacked           = "stacked"
	ReasonStackedAsymmetric = "stacked_asymmetric"
	ReasonStackedThree      = "stacked_three"
	ReasonLargest           = "largest"
)

// Asymmetric split used for three equally spaced subjects: lone subject on top, pair below
const (
	asymmetricTopShare    = 6.0 / 16.0
	asymmetricBottomShare = 10.0 / 16.0
)

// Config contains the crop calculator settings
type Config struct {
	Canvas           geometry.Size // Output canvas; its aspect is the target aspect
	Margin           float64       // Padding around subjects, fraction of the box size
	MinHeight        float64       // Minimum crop height as a fraction of the frame height
	StackingEnabled  bool
	SpreadThreshold  float64 // Horizontal spread at or above which subjects are stacked
	SpacingTolerance float64 // Relative gap tolerance for the equally spaced triple
	MaxRows          int     // 2 or 3
	KeepText         bool
	PrioritizeText   bool
}

// DefaultConfig returns the calculator defaults for a 1080x1920 canvas
func DefaultConfig() Config {
	return Config{
		Canvas:           geometry.Size{Width: 1080, Height: 1920},
		Margin:           0.35,
		MinHeight:        1.0,
		SpreadThreshold:  0.3,
		SpacingTolerance: 0.2,
		MaxRows:          2,
	}
}

// Result is the raw, unsmoothed decision for one frame
type Result struct {
	Window   Window
	Subjects int    // Number of detections the dispatch saw
	Reason   string // Which branch produced the window
}

// Calculator maps one frame's qualified detections to a raw crop window. It keeps no state
// between calls.
type Calculator struct {
	cfg    Config
	target geometry.Aspect
	logger *logger.Logger
}

// NewCalculator creates a new crop calculator
func NewCalculator(cfg Config, log *logger.Logger) *Calculator {
	if cfg.MaxRows == 0 {
		cfg.MaxRows = 2
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Calculator{
		cfg:    cfg,
		target: geometry.Aspect{W: cfg.Canvas.Width, H: cfg.Canvas.Height},
		logger: log,
	}
}

// Config returns the calculator settings
func (c *Calculator) Config() Config {
	return c.cfg
}

// Target returns the target aspect
func (c *Calculator) Target() geometry.Aspect {
	return c.target
}

// Calculate produces the raw crop window for one frame
func (c *Calculator) Calculate(split detection.Split, frame geometry.Size) Result {
	subjects := split.Subjects
	if c.cfg.PrioritizeText && len(split.Text) > 0 {
		subjects = append(detection.Clone(subjects), split.Text...)
	}

	res := c.dispatch(subjects, frame)

	if c.cfg.KeepText && len(split.Text) > 0 {
		res.Window = c.keepText(res.Window, split.Text, subjects, frame)
	}

	if c.logger.DebugEnabled() {
		c.logger.Debug("Raw crop computed",
			"subjects", res.Subjects,
			"reason", res.Reason,
			"layout", res.Window.Tag(),
		)
	}
	return res
}

// Default returns the window used when nothing qualifies: the largest centered 3:4 rect
func (c *Calculator) Default(frame geometry.Size) Window {
	return Single(geometry.LargestWithAspect(frame, geometry.ThreeFour))
}

// Frame returns the 1-detection window for a subject box
func (c *Calculator) Frame(box geometry.Rect, frame geometry.Size) Window {
	return Single(c.subjectRect(box, frame, c.target, c.cfg.MinHeight))
}

func (c *Calculator) dispatch(subjects []detection.Detection, frame geometry.Size) Result {
	n := len(subjects)
	switch {
	case n == 0:
		return Result{Window: c.Default(frame), Reason: ReasonDefault}
	case n == 1:
		return Result{Window: c.Frame(subjects[0].Box, frame), Subjects: 1, Reason: ReasonSingle}
	case n <= 5:
		w, reason := c.group(subjects, frame)
		return Result{Window: w, Subjects: n, Reason: reason}
	default:
		largest := subjects[detection.LargestArea(subjects)]
		return Result{Window: c.Frame(largest.Box, frame), Subjects: n, Reason: ReasonLargest}
	}
}

// group handles two to five subjects
func (c *Calculator) group(subjects []detection.Detection, frame geometry.Size) (Window, string) {
	sorted := detection.Clone(subjects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Center().X < sorted[j].Center().X
	})

	spread := (sorted[len(sorted)-1].Center().X - sorted[0].Center().X) / frame.Width
	if !c.cfg.StackingEnabled || spread < c.cfg.SpreadThreshold {
		union, _ := detection.Bounds(sorted)
		return Single(c.unionRect(union, frame)), ReasonGroup
	}

	if len(sorted) == 3 && c.equallySpaced(sorted) {
		return c.asymmetric(sorted, frame), ReasonStackedAsymmetric
	}

	if c.cfg.MaxRows >= 3 && len(sorted) >= 4 {
		if w, ok := c.stackThree(sorted, frame); ok {
			return w, ReasonStackedThree
		}
	}

	cut := largestGaps(sorted, 1)[0]
	shares := []float64{0.5, 0.5}
	rows := []geometry.Rect{
		c.rowRect(sorted[:cut+1], frame, shares[0]),
		c.rowRect(sorted[cut+1:], frame, shares[1]),
	}
	return Stacked(rows, shares), ReasonStacked
}

// equallySpaced reports whether the adjacent center distances of three x-sorted subjects are
// within the spacing tolerance of each other
func (c *Calculator) equallySpaced(sorted []detection.Detection) bool {
	g1 := sorted[0].Center().Dist(sorted[1].Center())
	g2 := sorted[1].Center().Dist(sorted[2].Center())
	longest := math.Max(g1, g2)
	if longest == 0 {
		return true
	}
	return math.Abs(g1-g2) <= c.cfg.SpacingTolerance*longest
}

// asymmetric puts the lone subject in a 9:6 band on top and the closer pair in a 9:10 band below.
// On a tie the left pair is kept together.
func (c *Calculator) asymmetric(sorted []detection.Detection, frame geometry.Size) Window {
	g1 := sorted[0].Center().Dist(sorted[1].Center())
	g2 := sorted[1].Center().Dist(sorted[2].Center())

	lone := sorted[2:3]
	pair := sorted[0:2]
	if g2 < g1 {
		lone = sorted[0:1]
		pair = sorted[1:3]
	}

	shares := []float64{asymmetricTopShare, asymmetricBottomShare}
	rows := []geometry.Rect{
		c.rowRect(lone, frame, shares[0]),
		c.rowRect(pair, frame, shares[1]),
	}
	return Stacked(rows, shares)
}

// stackThree splits four or five subjects at their two largest gaps when both are wide enough
func (c *Calculator) stackThree(sorted []detection.Detection, frame geometry.Size) (Window, bool) {
	cuts := largestGaps(sorted, 2)
	for _, i := range cuts {
		gap := sorted[i+1].Center().X - sorted[i].Center().X
		if gap/frame.Width < c.cfg.SpreadThreshold {
			return Window{}, false
		}
	}
	sort.Ints(cuts)

	third := 1.0 / 3.0
	shares := []float64{third, third, 1 - 2*third}
	rows := []geometry.Rect{
		c.rowRect(sorted[:cuts[0]+1], frame, shares[0]),
		c.rowRect(sorted[cuts[0]+1:cuts[1]+1], frame, shares[1]),
		c.rowRect(sorted[cuts[1]+1:], frame, shares[2]),
	}
	return Stacked(rows, shares), true
}

// largestGaps returns the indexes i of the n widest gaps between sorted[i] and sorted[i+1]
func largestGaps(sorted []detection.Detection, n int) []int {
	idx := make([]int, len(sorted)-1)
	for i := range idx {
		idx[i] = i
	}
	gap := func(i int) float64 {
		return sorted[i+1].Center().X - sorted[i].Center().X
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return gap(idx[a]) > gap(idx[b])
	})
	if n > len(idx) {
		n = len(idx)
	}
	return idx[:n]
}

// rowAspect is the source aspect of a stacked row that covers share of the canvas height
func (c *Calculator) rowAspect(share float64) geometry.Aspect {
	return geometry.Aspect{W: c.cfg.Canvas.Width, H: c.cfg.Canvas.Height * share}
}

func (c *Calculator) rowRect(group []detection.Detection, frame geometry.Size, share float64) geometry.Rect {
	union, _ := detection.Bounds(group)
	return c.subjectRect(union, frame, c.rowAspect(share), c.cfg.MinHeight*share)
}

// subjectRect builds a rect of aspect a centered on box, padded by the margin and at least
// minHeight of the frame tall, then capped to the frame and translated inside it
func (c *Calculator) subjectRect(box geometry.Rect, frame geometry.Size, a geometry.Aspect, minHeight float64) geometry.Rect {
	padded := box.Pad(c.cfg.Margin)
	h := math.Max(padded.Height, padded.Width/a.Ratio())
	h = math.Max(h, minHeight*frame.Height)
	want := geometry.CenteredAt(box.Center(), h*a.Ratio(), h)
	return geometry.FitAspectInFrame(want, frame, a)
}

// unionRect pads a group's bounding box to the target aspect. When the result no longer fits the
// frame it is clipped, which distorts the aspect but keeps every subject.
func (c *Calculator) unionRect(union geometry.Rect, frame geometry.Size) geometry.Rect {
	padded := union.Pad(c.cfg.Margin)
	if minH := c.cfg.MinHeight * frame.Height; padded.Height < minH {
		padded = geometry.CenteredAt(padded.Center(), padded.Width, minH)
	}
	r := padded.ExpandToAspect(c.target)
	bounds := frame.Bounds()
	if r.Width <= frame.Width && r.Height <= frame.Height {
		return r.TranslateInto(bounds)
	}
	if r.Width <= frame.Width {
		r = r.TranslateInto(geometry.Rect{X: bounds.X, Y: r.Y, Width: bounds.Width, Height: r.Height})
	}
	if r.Height <= frame.Height {
		r = r.TranslateInto(geometry.Rect{X: r.X, Y: bounds.Y, Width: r.Width, Height: bounds.Height})
	}
	return r.ClipTo(bounds)
}

// keepText adjusts the window so qualifying text boxes are inside it
func (c *Calculator) keepText(w Window, text, subjects []detection.Detection, frame geometry.Size) Window {
	bounds := frame.Bounds()
	out := w.Clone()
	for _, t := range text {
		if windowContains(out, t.Box) {
			continue
		}
		if out.Layout == LayoutSingle {
			out.Rects[0] = c.includeSingle(out.Rects[0], t.Box, subjects, frame)
			continue
		}
		row := bestOverlap(out.Rects, t.Box)
		if moved, ok := translateToInclude(out.Rects[row], t.Box, bounds); ok {
			out.Rects[row] = moved
		}
	}
	return out
}

// includeSingle prefers moving the rect over it growing. Translation is accepted only when the
// subjects stay inside; otherwise the union is expanded to the target aspect and clipped.
func (c *Calculator) includeSingle(r, box geometry.Rect, subjects []detection.Detection, frame geometry.Size) geometry.Rect {
	if moved, ok := translateToInclude(r, box, frame.Bounds()); ok {
		keeps := true
		for _, s := range subjects {
			if r.Contains(s.Box) && !moved.Contains(s.Box) {
				keeps = false
				break
			}
		}
		if keeps {
			return moved
		}
	}
	return c.expandToInclude(r, box, frame)
}

func (c *Calculator) expandToInclude(r, box geometry.Rect, frame geometry.Size) geometry.Rect {
	u := r.Union(box)
	e := u.ExpandToAspect(geometry.Aspect{W: r.Width, H: r.Height})
	bounds := frame.Bounds()
	if e.Width <= frame.Width && e.Height <= frame.Height {
		// keep both r and box inside while staying in the frame
		e = e.TranslateInto(bounds)
		if e.Contains(u) {
			return e
		}
	}
	return u.ClipTo(bounds)
}

// translateToInclude moves r the minimal distance so it contains box. It fails when box is
// larger than r along either axis.
func translateToInclude(r, box, bounds geometry.Rect) (geometry.Rect, bool) {
	if box.Width > r.Width || box.Height > r.Height {
		return r, false
	}
	out := r
	if box.X < out.X {
		out.X = box.X
	} else if box.Right() > out.Right() {
		out.X = box.Right() - out.Width
	}
	if box.Y < out.Y {
		out.Y = box.Y
	} else if box.Bottom() > out.Bottom() {
		out.Y = box.Bottom() - out.Height
	}
	out = out.TranslateInto(bounds)
	return out, out.Contains(box)
}

func windowContains(w Window, box geometry.Rect) bool {
	for _, r := range w.Rects {
		if r.Contains(box) {
			return true
		}
	}
	return false
}

func bestOverlap(rects []geometry.Rect, box geometry.Rect) int {
	best, bestArea := 0, -1.0
	for i, r := range rects {
		if a := r.Intersect(box).Area(); a > bestArea {
			best, bestArea = i, a
		}
	}
	return best
}
