package smoothing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/cut"
	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/logger"
)

var hd = geometry.Size{Width: 1920, Height: 1080}

type harness struct {
	t     *testing.T
	calc  *crop.Calculator
	state *State
	index int64
}

func newHarness(t *testing.T, strategy Strategy, mod func(*Config)) *harness {
	cfg := DefaultConfig()
	cfg.Strategy = strategy
	if mod != nil {
		mod(&cfg)
	}
	calcCfg := crop.DefaultConfig()
	calcCfg.StackingEnabled = true
	calc := crop.NewCalculator(calcCfg, logger.NewNopLogger())
	return &harness{
		t:     t,
		calc:  calc,
		state: NewState(cfg, strategy, calc, hd, 30, logger.NewNopLogger()),
	}
}

func (h *harness) step(score float64, dets ...detection.Detection) Output {
	h.t.Helper()
	res := h.calc.Calculate(detection.Split{Subjects: dets}, hd)
	out := h.state.Consume(Input{
		FrameIndex: h.index,
		Timestamp:  time.Duration(h.index) * time.Second / 30,
		Raw:        res.Window,
		Subjects:   dets,
		Dispatched: res.Subjects,
		Cut:        cut.Signal{Class: cut.DefaultThresholds().Classify(score), Score: score},
	})
	h.index++
	require.True(h.t, out.Window.Inside(hd), "frame %d emitted %+v outside the frame", h.index-1, out.Window)
	return out
}

func (h *harness) raw(dets ...detection.Detection) crop.Window {
	return h.calc.Calculate(detection.Split{Subjects: dets}, hd).Window
}

func box(x1, y1, x2, y2 float64) detection.Detection {
	return detection.Detection{Box: geometry.RectFromCorners(x1, y1, x2, y2), Class: "face", Confidence: 0.9}
}

func assertWindowNear(t *testing.T, want, got crop.Window, delta float64) {
	t.Helper()
	require.True(t, want.SameShape(got), "shape %s vs %s", want.Tag(), got.Tag())
	assert.LessOrEqual(t, crop.MaxAbsDiff(want, got), delta, "want %+v got %+v", want.Rects, got.Rects)
}

func TestSelect(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, StrategyHistory, Select(cfg, "face"))
	assert.Equal(t, StrategyMotion, Select(cfg, "ball"))
	assert.Equal(t, StrategyMotion, Select(cfg, "face", "Sports Ball"))

	cfg.Strategy = StrategySimple
	assert.Equal(t, StrategySimple, Select(cfg, "head"))

	_, err := ParseStrategy("kalman")
	assert.Error(t, err)
	s, err := ParseStrategy("simple")
	require.NoError(t, err)
	assert.Equal(t, "simple", s.String())
}

func TestStepChangeReachesTargetInOneDuration(t *testing.T) {
	h := newHarness(t, StrategyHistory, func(cfg *Config) { cfg.Percentage = 10 })

	start := box(1700, 500, 1800, 600)
	for i := 0; i < 40; i++ {
		h.step(1, start)
	}
	before, _ := h.state.Last()
	assertWindowNear(t, h.raw(start), before, 1e-6)

	subject := box(100, 100, 200, 200)
	want := h.raw(subject)
	delta := centerShift(before, want)
	require.Greater(t, delta, 0.0)

	first := h.step(1, subject)
	assert.LessOrEqual(t, centerShift(before, first.Window), 0.1*delta)

	var out Output
	for i := 1; i < 30; i++ {
		out = h.step(1, subject)
	}
	assertWindowNear(t, want, out.Window, 1e-6)
}

func TestConvergenceHoldsStill(t *testing.T) {
	for _, strategy := range []Strategy{StrategyHistory, StrategySimple} {
		t.Run(strategy.String(), func(t *testing.T) {
			h := newHarness(t, strategy, nil)
			h.step(1) // default window first

			subject := box(1200, 300, 1300, 420)
			var prev crop.Window
			for i := 0; i < 45; i++ {
				out := h.step(1, subject)
				if i >= 31 {
					assert.LessOrEqual(t, crop.MaxAbsDiff(prev, out.Window), 1e-9, "frame %d still moving", i)
					assert.Equal(t, StepHold, out.Step)
				}
				prev = out.Window
			}
			assertWindowNear(t, h.raw(subject), prev, 1e-6)
		})
	}
}

func TestBoundedMotion(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, strategy := range []Strategy{StrategyHistory, StrategySimple, StrategyMotion} {
		t.Run(strategy.String(), func(t *testing.T) {
			h := newHarness(t, strategy, func(cfg *Config) { cfg.Percentage = 2 })
			limit := 0.02 * hd.Diagonal()

			var prev crop.Window
			for i := 0; i < 600; i++ {
				score := 1.0
				switch rng.Intn(40) {
				case 0:
					score = 0.1
				case 1:
					score = 0.6
				}
				var dets []detection.Detection
				if rng.Intn(4) != 0 {
					x := rng.Float64() * 1800
					y := rng.Float64() * 960
					dets = append(dets, box(x, y, x+80+rng.Float64()*40, y+80+rng.Float64()*40))
				}

				out := h.step(score, dets...)
				if i > 0 && score >= 0.4 && prev.SameShape(out.Window) {
					assert.LessOrEqual(t, centerShift(prev, out.Window), limit+1e-6, "frame %d", i)
				}
				prev = out.Window
			}
		})
	}
}

func TestHardCutSnapsAndClearsHistory(t *testing.T) {
	h := newHarness(t, StrategyHistory, nil)
	for i := 0; i < 20; i++ {
		h.step(1, box(100, 100, 200, 200))
	}

	subject := box(1500, 700, 1600, 800)
	out := h.step(0.1, subject)

	assert.True(t, out.Snapped)
	assert.Equal(t, StepCut, out.Step)
	assertWindowNear(t, h.raw(subject), out.Window, 0)

	hist := h.state.History()
	assert.Equal(t, 1, hist.Len())
	target, ok := hist.RecentTarget(out.Window, 0.8)
	require.True(t, ok)
	assertWindowNear(t, h.raw(subject), target, 1e-9)
}

func TestHardCutWithoutSubjectsKeepsPrevious(t *testing.T) {
	h := newHarness(t, StrategyHistory, nil)
	for i := 0; i < 5; i++ {
		h.step(1, box(100, 100, 200, 200))
	}
	prev, _ := h.state.Last()

	out := h.step(0.05)
	assert.Equal(t, StepCut, out.Step)
	assertWindowNear(t, prev, out.Window, 0)
}

func TestFirstFrameWithoutSubjectsUsesDefault(t *testing.T) {
	h := newHarness(t, StrategyHistory, nil)
	out := h.step(0.05)
	assert.Equal(t, StepFirst, out.Step)
	assertWindowNear(t, h.calc.Default(hd), out.Window, 0)
}

func TestEasesBackToDefault(t *testing.T) {
	h := newHarness(t, StrategyHistory, nil)
	h.step(1, box(1600, 400, 1700, 500))
	framed, _ := h.state.Last()

	def := h.calc.Default(hd)
	dist := crop.MaxAbsDiff(framed, def)
	for i := 0; i < 5; i++ {
		out := h.step(1)
		d := crop.MaxAbsDiff(out.Window, def)
		assert.False(t, out.Snapped)
		assert.Greater(t, d, 0.0, "frame %d snapped to the default", i)
		assert.Less(t, d, dist, "frame %d did not move toward the default", i)
		dist = d
	}
}

func TestSoftTransitionEasesFaster(t *testing.T) {
	run := func(score float64) float64 {
		h := newHarness(t, StrategySimple, nil)
		h.step(1, box(100, 100, 200, 200))
		before, _ := h.state.Last()
		out := h.step(score, box(1600, 100, 1700, 200))
		return centerShift(before, out.Window)
	}
	assert.Greater(t, run(0.6), run(1))
}

func TestLayoutSwitchWaitsForPersistence(t *testing.T) {
	h := newHarness(t, StrategyHistory, nil)
	for i := 0; i < 10; i++ {
		h.step(1, box(900, 400, 1000, 500))
	}

	apart := []detection.Detection{box(150, 400, 250, 500), box(1650, 400, 1750, 500)}
	require.Equal(t, crop.LayoutStacked, h.raw(apart...).Layout)

	for i := 1; i < 8; i++ {
		out := h.step(1, apart...)
		assert.Equal(t, crop.LayoutSingle, out.Window.Layout, "frame %d switched early", i)
	}
	out := h.step(1, apart...)
	assert.Equal(t, StepLayout, out.Step)
	assert.Equal(t, crop.LayoutStacked, out.Window.Layout)
	assertWindowNear(t, h.raw(apart...), out.Window, 0)
}

func TestMotionCoastsOnPrediction(t *testing.T) {
	h := newHarness(t, StrategyMotion, func(cfg *Config) { cfg.MotionBlend = 1 })
	ball := func(cx float64) detection.Detection {
		return detection.Detection{Box: geometry.CenteredAt(geometry.Point{X: cx, Y: 540}, 20, 20), Class: "ball", Confidence: 0.5}
	}

	for _, cx := range []float64{400, 500, 600} {
		out := h.step(1, ball(cx))
		assert.False(t, out.Predicted)
	}

	for i := 0; i < 5; i++ {
		out := h.step(1)
		assert.True(t, out.Predicted, "miss %d should be bridged", i)
	}
	assert.Equal(t, []geometry.Point{{X: 900, Y: 540}, {X: 1000, Y: 540}, {X: 1100, Y: 540}}, h.state.track.centers)

	out := h.step(1)
	assert.False(t, out.Predicted, "track must be dropped after the prediction limit")
	assert.Empty(t, h.state.track.centers)
}

func TestZeroPercentageMovesOnlyOnCuts(t *testing.T) {
	h := newHarness(t, StrategySimple, func(cfg *Config) { cfg.Percentage = 0 })
	h.step(1, box(100, 100, 200, 200))
	before, _ := h.state.Last()

	subject := box(1500, 700, 1600, 800)
	for i := 0; i < 40; i++ {
		out := h.step(1, subject)
		assert.Zero(t, centerShift(before, out.Window), "frame %d moved", i)
		assert.Equal(t, StepHold, out.Step)
	}

	out := h.step(0.1, subject)
	assert.Equal(t, StepCut, out.Step)
	assertWindowNear(t, h.raw(subject), out.Window, 0)
}

func TestHardCutOnTextOnlyFrameFramesText(t *testing.T) {
	calcCfg := crop.DefaultConfig()
	calcCfg.PrioritizeText = true
	calc := crop.NewCalculator(calcCfg, logger.NewNopLogger())
	state := NewState(DefaultConfig(), StrategyHistory, calc, hd, 30, logger.NewNopLogger())

	face := calc.Calculate(detection.Split{Subjects: []detection.Detection{box(100, 100, 200, 200)}}, hd)
	state.Consume(Input{FrameIndex: 0, Raw: face.Window, Dispatched: face.Subjects, Cut: cut.Signal{Class: cut.Continuity, Score: 1}})

	caption := detection.Detection{Box: geometry.RectFromCorners(1300, 850, 1800, 950), Class: detection.ClassText, Confidence: 0.9}
	res := calc.Calculate(detection.Split{Text: []detection.Detection{caption}}, hd)
	require.Equal(t, 1, res.Subjects)

	out := state.Consume(Input{FrameIndex: 1, Raw: res.Window, Dispatched: res.Subjects, Cut: cut.Signal{Class: cut.Hard, Score: 0.1}})
	assert.Equal(t, StepCut, out.Step)
	assertWindowNear(t, res.Window, out.Window, 0)
	assert.NotEqual(t, face.Window.Rects, out.Window.Rects)
}

func TestMotionTrackStoresMeasuredCenters(t *testing.T) {
	h := newHarness(t, StrategyMotion, func(cfg *Config) { cfg.MotionBlend = 0.5 })
	ball := func(cx float64) detection.Detection {
		return detection.Detection{Box: geometry.CenteredAt(geometry.Point{X: cx, Y: 540}, 20, 20), Class: "ball", Confidence: 0.5}
	}

	// Accelerating, so blended and measured centers differ
	for _, cx := range []float64{400, 410, 440, 490, 560} {
		h.step(1, ball(cx))
	}
	assert.Equal(t, []geometry.Point{{X: 440, Y: 540}, {X: 490, Y: 540}, {X: 560, Y: 540}}, h.state.track.centers)
}

func TestTrackPredict(t *testing.T) {
	var tr track
	_, ok := tr.predict()
	assert.False(t, ok)

	tr.push(geometry.Point{X: 0, Y: 0})
	p, _ := tr.predict()
	assert.Equal(t, geometry.Point{}, p)

	tr.push(geometry.Point{X: 10, Y: 0})
	p, _ = tr.predict()
	assert.Equal(t, geometry.Point{X: 20}, p)

	// accelerating: v = 20, a = 10, p = 30 + 20 + 5
	tr.push(geometry.Point{X: 30, Y: 0})
	p, _ = tr.predict()
	assert.Equal(t, geometry.Point{X: 55}, p)

	tr.push(geometry.Point{X: 60, Y: 0})
	assert.Len(t, tr.centers, 3)
	assert.Equal(t, 10.0, tr.centers[0].X)
}

func TestResetForgetsEverything(t *testing.T) {
	h := newHarness(t, StrategyHistory, nil)
	h.step(1, box(100, 100, 200, 200))
	h.state.Reset()

	_, ok := h.state.Last()
	assert.False(t, ok)
	assert.Equal(t, 0, h.state.History().Len())

	out := h.step(1, box(1500, 100, 1600, 200))
	assert.Equal(t, StepFirst, out.Step)
}
