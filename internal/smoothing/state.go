package smoothing

import (
	"time"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/cut"
	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/history"
	"github.com/vzahanych/land2port/internal/logger"
)

// arrivedEpsilon is the pixel distance below which the emitted window counts as on target
const arrivedEpsilon = 1e-6

// Step names reported in Output.Step
const (
	StepFirst  = "first"
	StepCut    = "cut"
	StepLayout = "layout"
	StepGlide  = "glide"
	StepHold   = "hold"
)

// Input is everything the engine knows about one frame
type Input struct {
	FrameIndex int64
	Timestamp  time.Duration
	Raw        crop.Window
	Subjects   []detection.Detection
	Dispatched int // Detections the calculator framed, merged text boxes included
	Cut        cut.Signal
}

// Output is the emitted decision for one frame
type Output struct {
	Window    crop.Window
	Target    crop.Window // What the engine was moving toward
	Step      string
	Snapped   bool
	Predicted bool // The motion track coasted on a prediction this frame
}

// State is the smoothing state of one stream. It is not safe for concurrent use and must see
// frames in order.
type State struct {
	cfg      Config
	strategy Strategy
	calc     *crop.Calculator
	frame    geometry.Size
	logger   *logger.Logger

	history *history.Buffer
	frames  int // Glide length in frames

	emitted    crop.Window
	hasEmitted bool
	remaining  int // Frames left in the current glide, 0 when arrived

	pending      crop.Window
	pendingCount int

	track track
}

// NewState creates the smoothing state for one stream
func NewState(cfg Config, strategy Strategy, calc *crop.Calculator, frame geometry.Size, fps float64, log *logger.Logger) *State {
	if log == nil {
		log = logger.NewNopLogger()
	}
	n := history.Capacity(cfg.Duration, fps)
	return &State{
		cfg:      cfg,
		strategy: strategy,
		calc:     calc,
		frame:    frame,
		logger:   log,
		history:  history.NewBuffer(n),
		frames:   n,
	}
}

// Strategy returns the active strategy
func (s *State) Strategy() Strategy {
	return s.strategy
}

// History exposes the buffer for inspection
func (s *State) History() *history.Buffer {
	return s.history
}

// Last returns the last emitted window
func (s *State) Last() (crop.Window, bool) {
	return s.emitted, s.hasEmitted
}

// Reset returns the state to the start of a stream
func (s *State) Reset() {
	s.history.Clear()
	s.emitted = crop.Window{}
	s.hasEmitted = false
	s.remaining = 0
	s.clearPending()
	s.track.reset()
}

// Consume turns one raw window into the emitted window and records the frame in history
func (s *State) Consume(in Input) Output {
	raw := in.Raw
	if !raw.Inside(s.frame) {
		raw = s.calc.Default(s.frame)
	}

	hard := in.Cut.Class == cut.Hard
	if hard {
		s.history.Clear()
		s.track.reset()
		s.remaining = 0
		s.clearPending()
	}

	var predicted bool
	if s.strategy == StrategyMotion {
		raw, predicted = s.motionTarget(in.Subjects, raw)
	}

	if !s.hasEmitted || hard {
		return s.snap(in, raw, hard, predicted)
	}

	if !raw.SameShape(s.emitted) {
		if s.pendingCount > 0 && raw.SameShape(s.pending) {
			s.pendingCount++
		} else {
			s.pending = raw
			s.pendingCount = 1
		}
		if s.pendingCount >= s.cfg.LayoutSwitchFrames {
			s.logger.Debug("Switching layout",
				"frame_index", in.FrameIndex,
				"from", s.emitted.Tag(),
				"to", raw.Tag(),
			)
			s.clearPending()
			s.remaining = 0
			return s.emit(in, raw, raw, StepLayout, true, predicted)
		}
	} else {
		s.clearPending()
	}

	s.history.Push(history.Entry{
		FrameIndex: in.FrameIndex,
		Timestamp:  in.Timestamp,
		Detections: in.Subjects,
		Raw:        raw,
	})

	target := s.target(raw)
	next, step := s.glide(target, in.Cut.Class == cut.Soft)
	s.commit(in.FrameIndex, next)
	return Output{Window: next, Target: target, Step: step, Predicted: predicted}
}

// snap handles the first frame and hard cuts. A cut that leaves no subjects keeps the previous
// window; with no previous window the raw default is used.
func (s *State) snap(in Input, raw crop.Window, hard, predicted bool) Output {
	step := StepFirst
	out := raw
	if hard && s.hasEmitted {
		step = StepCut
		if in.Dispatched == 0 {
			out = s.emitted
		}
	}
	if hard {
		s.logger.Debug("Hard cut",
			"frame_index", in.FrameIndex,
			"score", in.Cut.Score,
			"subjects", in.Dispatched,
		)
	}
	return s.emit(in, raw, out, step, true, predicted)
}

func (s *State) emit(in Input, raw, out crop.Window, step string, snapped, predicted bool) Output {
	s.history.Push(history.Entry{
		FrameIndex: in.FrameIndex,
		Timestamp:  in.Timestamp,
		Detections: in.Subjects,
		Raw:        raw,
	})
	s.commit(in.FrameIndex, out)
	return Output{Window: out, Target: out, Step: step, Snapped: snapped, Predicted: predicted}
}

func (s *State) commit(frameIndex int64, w crop.Window) {
	s.emitted = w.Clone()
	s.hasEmitted = true
	s.history.SetEmitted(frameIndex, s.emitted)
}

func (s *State) clearPending() {
	s.pending = crop.Window{}
	s.pendingCount = 0
}

// target picks what the emitted window moves toward this frame. While a new layout is pending
// only windows of the current shape are considered.
func (s *State) target(raw crop.Window) crop.Window {
	if s.strategy == StrategyHistory {
		if t, ok := s.history.RecentTarget(s.emitted, s.cfg.Decay); ok {
			return t
		}
		return s.emitted
	}
	if raw.SameShape(s.emitted) {
		return raw
	}
	return s.emitted
}

// glide moves the emitted window toward target at constant velocity: each frame covers 1/r of
// the remaining gap, with r counting down from the glide length, so a fixed target is reached
// after at most that many frames. A new glide starts only once the previous one has arrived.
// The center may move at most Percentage of the frame diagonal per frame; a frame where that
// cap binds does not count down. A soft transition halves the frames left. With a Percentage
// of 0 the window only moves on cuts and layout switches.
func (s *State) glide(target crop.Window, soft bool) (crop.Window, string) {
	if crop.MaxAbsDiff(s.emitted, target) <= arrivedEpsilon {
		s.remaining = 0
		return target, StepHold
	}
	limit := s.maxShift()
	if limit <= 0 {
		return s.emitted.Clone(), StepHold
	}

	if s.remaining <= 0 {
		s.remaining = s.frames
	}
	if soft {
		s.remaining = max(1, s.remaining/2)
	}

	r := s.remaining
	t := 1 / float64(r)
	capped := false
	if shift := centerShift(s.emitted, target) * t; shift > limit {
		t *= limit / shift
		capped = true
	}

	if !capped {
		s.remaining--
		if r == 1 {
			return target.Clone(), StepGlide
		}
	}
	return crop.Lerp(s.emitted, target, t), StepGlide
}

// maxShift is the per-frame center displacement limit in pixels
func (s *State) maxShift() float64 {
	return s.cfg.Percentage / 100 * s.frame.Diagonal()
}

// centerShift is the largest row center displacement between two windows of the same shape
func centerShift(a, b crop.Window) float64 {
	d := 0.0
	for i := range a.Rects {
		d = max(d, a.Rects[i].Center().Dist(b.Rects[i].Center()))
	}
	return d
}
