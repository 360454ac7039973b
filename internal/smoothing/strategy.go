package smoothing

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects how the smoothing target is derived
type Strategy int

const (
	// StrategyHistory follows the decay-weighted mean of recent raw windows
	StrategyHistory Strategy = iota
	// StrategySimple follows the current raw window
	StrategySimple
	// StrategyMotion extrapolates a fast subject's center across misses
	StrategyMotion
)

// String returns the strategy name
func (s Strategy) String() string {
	switch s {
	case StrategyHistory:
		return "history"
	case StrategySimple:
		return "simple"
	case StrategyMotion:
		return "motion"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy is the inverse of Strategy.String
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "history":
		return StrategyHistory, nil
	case "simple":
		return StrategySimple, nil
	case "motion":
		return StrategyMotion, nil
	default:
		return 0, fmt.Errorf("unknown smoothing strategy: %s", s)
	}
}

// Config contains smoothing settings
type Config struct {
	Strategy           Strategy
	Percentage         float64       // Max center displacement per frame, percent of the frame diagonal
	Duration           time.Duration // Smoothing window
	Decay              float64       // Per-frame weight decay of the recent target
	LayoutSwitchFrames int           // Frames a new layout must persist before it is adopted
	MotionClasses      []string
	MotionBlend        float64 // Weight of the measurement against the prediction
	MaxPredictedFrames int     // Miss frames bridged by prediction
}

// DefaultConfig returns the stock smoothing settings
func DefaultConfig() Config {
	return Config{
		Strategy:           StrategyHistory,
		Percentage:         7.5,
		Duration:           time.Second,
		Decay:              0.8,
		LayoutSwitchFrames: 8,
		MotionClasses:      []string{"ball", "sports ball"},
		MotionBlend:        0.6,
		MaxPredictedFrames: 5,
	}
}

// Select picks the strategy for a run. Tracking a motion class always selects the motion
// variant; otherwise the configured strategy applies.
func Select(cfg Config, objects ...string) Strategy {
	for _, o := range objects {
		for _, m := range cfg.MotionClasses {
			if strings.EqualFold(o, m) {
				return StrategyMotion
			}
		}
	}
	return cfg.Strategy
}
