package detection

import (
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/logger"
)

// QualifierConfig contains the filters applied to raw detector output
type QualifierConfig struct {
	Objects           []string           // Target classes
	ClassThresholds   map[string]float64 // Per-class minimum confidence
	DefaultThreshold  float64            // Used when a class has no entry in ClassThresholds
	AreaThreshold     float64            // Minimum box area as a fraction of the frame area
	MotionClasses     []string           // Classes exempt from the area threshold
	TextProbability   float64            // Minimum confidence for text boxes
	TextAreaThreshold float64            // Minimum combined text area fraction for text to count
}

// Split is the outcome of qualifying one frame's detections
type Split struct {
	Subjects []Detection // Qualified target-class detections
	Text     []Detection // Qualified text boxes, empty unless their combined area passes the threshold
	Dropped  int         // Malformed detections that were discarded
}

// Qualifier filters detections by class, confidence and area
type Qualifier struct {
	cfg     QualifierConfig
	logger  *logger.Logger
	objects map[string]bool
	motion  map[string]bool
}

// NewQualifier creates a new qualifier
func NewQualifier(cfg QualifierConfig, log *logger.Logger) *Qualifier {
	q := &Qualifier{
		cfg:     cfg,
		logger:  log,
		objects: make(map[string]bool, len(cfg.Objects)),
		motion:  make(map[string]bool, len(cfg.MotionClasses)),
	}
	for _, o := range cfg.Objects {
		q.objects[o] = true
	}
	for _, m := range cfg.MotionClasses {
		q.motion[m] = true
	}
	return q
}

// Threshold returns the confidence threshold for a class
func (q *Qualifier) Threshold(class string) float64 {
	if t, ok := q.cfg.ClassThresholds[class]; ok {
		return t
	}
	if class == ClassText && q.cfg.TextProbability > 0 {
		return q.cfg.TextProbability
	}
	return q.cfg.DefaultThreshold
}

// Qualify sanitizes and filters the detections of one frame
func (q *Qualifier) Qualify(dets []Detection, frame geometry.Size) Split {
	var split Split
	frameArea := frame.Area()

	for _, raw := range dets {
		d, ok := Sanitize(raw, frame)
		if !ok {
			split.Dropped++
			q.logger.Debug("Dropping malformed detection",
				"frame_index", raw.FrameIndex,
				"class", raw.Class,
				"box", raw.Box,
				"confidence", raw.Confidence,
			)
			continue
		}

		if d.Confidence < q.Threshold(d.Class) {
			continue
		}

		if d.IsText() {
			split.Text = append(split.Text, d)
			continue
		}

		if !q.objects[d.Class] {
			continue
		}

		if !q.motion[d.Class] && frameArea > 0 && d.Box.Area()/frameArea < q.cfg.AreaThreshold {
			continue
		}

		split.Subjects = append(split.Subjects, d)
	}

	if len(split.Text) > 0 && !q.textDominant(split.Text, frameArea) {
		split.Text = nil
	}

	return split
}

func (q *Qualifier) textDominant(text []Detection, frameArea float64) bool {
	if q.cfg.TextAreaThreshold <= 0 {
		return true
	}
	if frameArea <= 0 {
		return false
	}
	return TotalArea(text) >= frameArea*q.cfg.TextAreaThreshold
}

// IsMotionClass reports whether class is tracked by the motion-predictive smoother
func (q *Qualifier) IsMotionClass(class string) bool {
	return q.motion[class]
}
