package geometry

import (
	"math"
	"testing"
)

func TestLargestWithAspect(t *testing.T) {
	frame := Size{Width: 1920, Height: 1080}

	r := LargestWithAspect(frame, ThreeFour)
	if r.Height != 1080 || r.Width != 810 {
		t.Errorf("Expected 810x1080, got %.1fx%.1f", r.Width, r.Height)
	}
	if r.X != 555 || r.Y != 0 {
		t.Errorf("Expected origin (555,0), got (%.1f,%.1f)", r.X, r.Y)
	}

	wide := LargestWithAspect(Size{Width: 400, Height: 1000}, Aspect{W: 16, H: 9})
	if wide.Width != 400 || math.Abs(wide.Height-225) > 1e-9 {
		t.Errorf("Expected 400x225, got %.1fx%.1f", wide.Width, wide.Height)
	}
}

func TestRect_TranslateInto(t *testing.T) {
	bounds := Rect{Width: 1920, Height: 1080}

	r := Rect{X: -100, Y: 50, Width: 600, Height: 1080}.TranslateInto(bounds)
	if r.X != 0 || r.Y != 0 || r.Width != 600 {
		t.Errorf("Expected rect shifted to x=0,y=0 keeping width, got %+v", r)
	}

	r = Rect{X: 1700, Y: 0, Width: 600, Height: 400}.TranslateInto(bounds)
	if r.Right() != 1920 {
		t.Errorf("Expected right edge at 1920, got %.1f", r.Right())
	}
	if r.Width != 600 || r.Height != 400 {
		t.Error("TranslateInto must not resize")
	}
}

func TestRect_ExpandToAspect(t *testing.T) {
	r := Rect{X: 100, Y: 100, Width: 100, Height: 100}.ExpandToAspect(Portrait)

	if math.Abs(r.Aspect()-Portrait.Ratio()) > 1e-9 {
		t.Errorf("Expected aspect %.4f, got %.4f", Portrait.Ratio(), r.Aspect())
	}
	if r.Width != 100 {
		t.Errorf("Width should be kept when height grows, got %.2f", r.Width)
	}
	if c := r.Center(); c.X != 150 || c.Y != 150 {
		t.Errorf("Center should be preserved, got %+v", c)
	}
}

func TestFitAspectInFrame(t *testing.T) {
	frame := Size{Width: 1920, Height: 1080}
	want := Rect{X: 1800, Y: 10, Width: 100, Height: 100}

	r := FitAspectInFrame(want, frame, Portrait)

	if !frame.Bounds().Contains(r) {
		t.Errorf("Result %+v should be inside the frame", r)
	}
	if !r.Contains(want) {
		t.Errorf("Result %+v should contain %+v", r, want)
	}

	huge := FitAspectInFrame(Rect{X: 0, Y: 0, Width: 1900, Height: 1000}, frame, Portrait)
	if huge.Height > 1080+1e-9 || !frame.Bounds().Contains(huge) {
		t.Errorf("Oversized request should be capped to the frame, got %+v", huge)
	}
}

func TestRect_UnionIntersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	b := Rect{X: 5, Y: 5, Width: 10, Height: 10}

	u := a.Union(b)
	if u != (Rect{X: 0, Y: 0, Width: 15, Height: 15}) {
		t.Errorf("Unexpected union %+v", u)
	}

	i := a.Intersect(b)
	if i != (Rect{X: 5, Y: 5, Width: 5, Height: 5}) {
		t.Errorf("Unexpected intersection %+v", i)
	}

	none := a.Intersect(Rect{X: 20, Y: 20, Width: 1, Height: 1})
	if none.Valid() {
		t.Error("Disjoint rects should produce an invalid intersection")
	}
}

func TestRect_Valid(t *testing.T) {
	tests := []struct {
		name string
		rect Rect
		want bool
	}{
		{"normal", Rect{Width: 1, Height: 1}, true},
		{"zero width", Rect{Width: 0, Height: 1}, false},
		{"inverted", Rect{Width: -5, Height: 1}, false},
		{"nan", Rect{X: math.NaN(), Width: 1, Height: 1}, false},
		{"inf", Rect{Width: math.Inf(1), Height: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rect.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLerp(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	b := Rect{X: 100, Y: 50, Width: 200, Height: 100}

	mid := Lerp(a, b, 0.5)
	if mid != (Rect{X: 50, Y: 25, Width: 150, Height: 100}) {
		t.Errorf("Unexpected midpoint %+v", mid)
	}
	if MaxAbsDiff(Lerp(a, b, 1), b) != 0 {
		t.Error("Lerp at t=1 should equal the destination")
	}
}
