package reframe

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/cut"
	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/smoothing"
)

// ErrInvalidStream is returned for streams with unusable frame size or rate
var ErrInvalidStream = errors.New("invalid stream")

// Config gathers the per-stream settings of every stage
type Config struct {
	Qualifier detection.QualifierConfig
	Crop      crop.Config
	Cut       cut.Thresholds
	Smoothing smoothing.Config
}

// StreamInfo describes the stream an engine is bound to
type StreamInfo struct {
	ID     string
	Frame  geometry.Size
	FPS    float64
	Object string // Tracked class; selects the smoothing strategy
}

// FrameInput is one decoded frame and its detections
type FrameInput struct {
	Index      int64
	Timestamp  time.Duration
	Image      image.Image // Optional; used by the cut detector
	Similarity *float64    // Optional precomputed similarity; takes precedence over Image
	Detections []detection.Detection
}

// FrameOutput is the decision for one frame
type FrameOutput struct {
	Index     int64
	Timestamp time.Duration
	Window    crop.Window // Emitted window
	Raw       crop.Window // Calculator output
	Reason    string
	Subjects  int
	Dropped   int
	Cut       cut.Signal
	Step      string
	Snapped   bool
	Predicted bool
}

// Stats summarizes a stream so far
type Stats struct {
	Frames          int64 `json:"frames"`
	Cuts            int64 `json:"cuts"`
	SoftTransitions int64 `json:"soft_transitions"`
	Dropped         int64 `json:"dropped"`
	LayoutSwitches  int64 `json:"layout_switches"`
}

// Observer is notified after every frame
type Observer interface {
	FrameProcessed(streamID string, out FrameOutput, elapsed time.Duration)
}

// Engine runs the per-frame decision for one stream: qualify, calculate, classify the cut,
// smooth. It is strictly sequential and not safe for concurrent use.
type Engine struct {
	info      StreamInfo
	qualifier *detection.Qualifier
	calc      *crop.Calculator
	cuts      *cut.Detector
	state     *smoothing.State
	logger    *logger.Logger
	observer  Observer
	onCut     func(cut.Event)
	stats     Stats
}

// Option customizes an engine
type Option func(*Engine)

// WithObserver reports every frame to o
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithCutHandler calls fn for every hard cut
func WithCutHandler(fn func(cut.Event)) Option {
	return func(e *Engine) { e.onCut = fn }
}

// NewEngine creates a new engine for one stream
func NewEngine(cfg Config, info StreamInfo, log *logger.Logger, opts ...Option) (*Engine, error) {
	if !(info.Frame.Width > 0 && info.Frame.Height > 0) {
		return nil, fmt.Errorf("%w: frame size %vx%v", ErrInvalidStream, info.Frame.Width, info.Frame.Height)
	}
	if !(info.FPS > 0) {
		return nil, fmt.Errorf("%w: frame rate %v", ErrInvalidStream, info.FPS)
	}
	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.With("stream_id", info.ID)

	objects := cfg.Qualifier.Objects
	if info.Object != "" {
		objects = []string{info.Object}
		cfg.Qualifier.Objects = objects
	}
	strategy := smoothing.Select(cfg.Smoothing, objects...)

	calc := crop.NewCalculator(cfg.Crop, log.Named("crop"))
	e := &Engine{
		info:      info,
		qualifier: detection.NewQualifier(cfg.Qualifier, log.Named("qualifier")),
		calc:      calc,
		cuts:      cut.NewDetector(cfg.Cut),
		state:     smoothing.NewState(cfg.Smoothing, strategy, calc, info.Frame, info.FPS, log.Named("smoothing")),
		logger:    log,
	}
	for _, opt := range opts {
		opt(e)
	}

	log.Info("Stream engine created",
		"frame_width", info.Frame.Width,
		"frame_height", info.Frame.Height,
		"fps", info.FPS,
		"strategy", strategy.String(),
	)
	return e, nil
}

// ID returns the stream ID
func (e *Engine) ID() string {
	return e.info.ID
}

// Info returns the stream description
func (e *Engine) Info() StreamInfo {
	return e.info
}

// Strategy returns the smoothing strategy chosen for the stream
func (e *Engine) Strategy() smoothing.Strategy {
	return e.state.Strategy()
}

// Process decides the crop for one frame
func (e *Engine) Process(in FrameInput) FrameOutput {
	start := time.Now()

	split := e.qualifier.Qualify(in.Detections, e.info.Frame)
	res := e.calc.Calculate(split, e.info.Frame)

	var signal cut.Signal
	if in.Similarity != nil {
		signal = e.cuts.ObserveScore(*in.Similarity)
	} else if in.Image != nil {
		signal = e.cuts.Observe(in.Image)
	} else {
		signal = e.cuts.ObserveScore(1)
	}

	sm := e.state.Consume(smoothing.Input{
		FrameIndex: in.Index,
		Timestamp:  in.Timestamp,
		Raw:        res.Window,
		Subjects:   split.Subjects,
		Dispatched: res.Subjects,
		Cut:        signal,
	})

	out := FrameOutput{
		Index:     in.Index,
		Timestamp: in.Timestamp,
		Window:    sm.Window,
		Raw:       res.Window,
		Reason:    res.Reason,
		Subjects:  res.Subjects,
		Dropped:   split.Dropped,
		Cut:       signal,
		Step:      sm.Step,
		Snapped:   sm.Snapped,
		Predicted: sm.Predicted,
	}
	e.record(out)

	if e.observer != nil {
		e.observer.FrameProcessed(e.info.ID, out, time.Since(start))
	}
	return out
}

func (e *Engine) record(out FrameOutput) {
	e.stats.Frames++
	e.stats.Dropped += int64(out.Dropped)

	switch out.Cut.Class {
	case cut.Hard:
		e.stats.Cuts++
		e.logger.Debug("Cut detected", "frame_index", out.Index, "score", out.Cut.Score)
		if e.onCut != nil {
			e.onCut(cut.Event{FrameIndex: out.Index, Score: out.Cut.Score})
		}
	case cut.Soft:
		e.stats.SoftTransitions++
		e.logger.Debug("Soft transition", "frame_index", out.Index, "score", out.Cut.Score)
	}

	if out.Step == smoothing.StepLayout {
		e.stats.LayoutSwitches++
	}
}

// Flush returns the last emitted window; it is the state left when a stream stops
func (e *Engine) Flush() (crop.Window, bool) {
	w, ok := e.state.Last()
	e.logger.Info("Stream flushed",
		"frames", e.stats.Frames,
		"cuts", e.stats.Cuts,
		"soft_transitions", e.stats.SoftTransitions,
	)
	return w, ok
}

// Stats returns the counters collected so far
func (e *Engine) Stats() Stats {
	return e.stats
}

// Reset returns the engine to the start of a stream
func (e *Engine) Reset() {
	e.state.Reset()
	e.cuts.Reset()
	e.stats = Stats{}
}

// DefaultConfig returns stock settings for framing faces on a 1080x1920 canvas
func DefaultConfig() Config {
	sm := smoothing.DefaultConfig()
	return Config{
		Qualifier: detection.QualifierConfig{
			Objects:           []string{"face"},
			ClassThresholds:   map[string]float64{"ball": 0.3},
			DefaultThreshold:  0.7,
			AreaThreshold:     0.0025,
			MotionClasses:     sm.MotionClasses,
			TextProbability:   0.8,
			TextAreaThreshold: 0.009,
		},
		Crop:      crop.DefaultConfig(),
		Cut:       cut.DefaultThresholds(),
		Smoothing: sm,
	}
}
