package cut

import (
	"fmt"
	"image"
	"math"
)

// Class is the three-way continuity verdict for a frame
type Class int

const (
	// Continuity means normal smoothing applies
	Continuity Class = iota
	// Soft is a fade or wipe in progress; smoothing eases faster
	Soft
	// Hard is a scene cut; history is cleared and the crop snaps
	Hard
)

// String returns the class name
func (c Class) String() string {
	switch c {
	case Continuity:
		return "continuity"
	case Soft:
		return "soft"
	case Hard:
		return "hard"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Signal is the detector output for one frame
type Signal struct {
	Class Class
	Score float64
}

// Event is emitted for every hard cut
type Event struct {
	FrameIndex int64
	Score      float64
}

// Thresholds holds the two similarity limits; Similarity must not exceed Start
type Thresholds struct {
	Similarity float64
	Start      float64
}

// DefaultThresholds returns the stock cut thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{Similarity: 0.4, Start: 0.8}
}

// Validate checks the thresholds
func (t Thresholds) Validate() error {
	if t.Similarity < 0 || t.Similarity > 1 {
		return fmt.Errorf("cut similarity must be in [0,1], got %v", t.Similarity)
	}
	if t.Start < 0 || t.Start > 1 {
		return fmt.Errorf("cut start must be in [0,1], got %v", t.Start)
	}
	if t.Similarity > t.Start {
		return fmt.Errorf("cut similarity (%v) must not exceed cut start (%v)", t.Similarity, t.Start)
	}
	return nil
}

// Classify maps a similarity score to a class
func (t Thresholds) Classify(score float64) Class {
	switch {
	case score < t.Similarity:
		return Hard
	case score < t.Start:
		return Soft
	default:
		return Continuity
	}
}

// Detector compares each frame with the previous one. It is owned by a single stream.
type Detector struct {
	thresholds Thresholds
	prev       *Signature
}

// NewDetector creates a new cut detector
func NewDetector(t Thresholds) *Detector {
	return &Detector{thresholds: t}
}

// Thresholds returns the detector limits
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Observe scores img against the previous frame. A frame that cannot be read scores 1.0 and
// leaves the previous signature in place.
func (d *Detector) Observe(img image.Image) Signal {
	sig, ok := NewSignature(img)
	if !ok {
		return d.ObserveScore(1)
	}
	score := 1.0
	if d.prev != nil {
		score = Similarity(d.prev, sig)
	}
	d.prev = sig
	return d.ObserveScore(score)
}

// ObserveScore classifies a score computed elsewhere
func (d *Detector) ObserveScore(score float64) Signal {
	if math.IsNaN(score) || score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return Signal{Class: d.thresholds.Classify(score), Score: score}
}

// Reset forgets the previous frame
func (d *Detector) Reset() {
	d.prev = nil
}
