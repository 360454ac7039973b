package smoothing

import (
	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/geometry"
)

// track keeps the last three centers of a fast subject: measured centers, or the prediction on
// frames the subject was missed
type track struct {
	centers []geometry.Point
	size    geometry.Size
	misses  int
}

func (t *track) reset() {
	t.centers = t.centers[:0]
	t.size = geometry.Size{}
	t.misses = 0
}

func (t *track) push(p geometry.Point) {
	if len(t.centers) == 3 {
		copy(t.centers, t.centers[1:])
		t.centers = t.centers[:2]
	}
	t.centers = append(t.centers, p)
}

// predict extrapolates the next center as c3 + v + a/2, falling back to constant velocity or the
// last center when fewer points are known
func (t *track) predict() (geometry.Point, bool) {
	switch len(t.centers) {
	case 0:
		return geometry.Point{}, false
	case 1:
		return t.centers[0], true
	case 2:
		c1, c2 := t.centers[0], t.centers[1]
		return geometry.Point{X: 2*c2.X - c1.X, Y: 2*c2.Y - c1.Y}, true
	default:
		c1, c2, c3 := t.centers[0], t.centers[1], t.centers[2]
		vx, vy := c3.X-c2.X, c3.Y-c2.Y
		ax, ay := vx-(c2.X-c1.X), vy-(c2.Y-c1.Y)
		return geometry.Point{X: c3.X + vx + ax/2, Y: c3.Y + vy + ay/2}, true
	}
}

// motionTarget turns the tracked subject into a raw window. The measurement closest to the
// prediction is blended with it; on a miss the prediction alone is used for up to
// MaxPredictedFrames frames, after which the track is dropped and raw is returned unchanged.
func (s *State) motionTarget(subjects []detection.Detection, raw crop.Window) (crop.Window, bool) {
	t := &s.track
	pred, havePred := t.predict()

	if len(subjects) > 0 {
		m := closest(subjects, pred, havePred)
		measured := m.Center()
		c := measured
		if havePred {
			b := s.cfg.MotionBlend
			c = geometry.Point{X: b*c.X + (1-b)*pred.X, Y: b*c.Y + (1-b)*pred.Y}
		}
		t.push(measured)
		t.size = geometry.Size{Width: m.Box.Width, Height: m.Box.Height}
		t.misses = 0
		return s.calc.Frame(geometry.CenteredAt(c, t.size.Width, t.size.Height), s.frame), false
	}

	if !havePred || t.misses >= s.cfg.MaxPredictedFrames {
		t.reset()
		return raw, false
	}

	t.misses++
	pred = clampPoint(pred, s.frame)
	t.push(pred)
	return s.calc.Frame(geometry.CenteredAt(pred, t.size.Width, t.size.Height), s.frame), true
}

func closest(subjects []detection.Detection, p geometry.Point, havePred bool) detection.Detection {
	best := subjects[0]
	for _, d := range subjects[1:] {
		if havePred {
			if d.Center().Dist(p) < best.Center().Dist(p) {
				best = d
			}
		} else if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best
}

func clampPoint(p geometry.Point, frame geometry.Size) geometry.Point {
	return geometry.Point{
		X: min(max(p.X, 0), frame.Width),
		Y: min(max(p.Y, 0), frame.Height),
	}
}
