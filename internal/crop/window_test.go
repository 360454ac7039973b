package crop

import (
	"testing"

	"github.com/vzahanych/land2port/internal/geometry"
)

func TestWindow_OutputHeights(t *testing.T) {
	tests := []struct {
		name   string
		shares []float64
		canvas int
		want   []int
	}{
		{"single", []float64{1}, 1920, []int{1920}},
		{"even", []float64{0.5, 0.5}, 1920, []int{960, 960}},
		{"asymmetric", []float64{6.0 / 16, 10.0 / 16}, 1920, []int{720, 1200}},
		{"thirds odd canvas", []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, 1001, []int{334, 333, 334}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window{Layout: LayoutStacked, Rects: make([]geometry.Rect, len(tt.shares)), Shares: tt.shares}
			got := w.OutputHeights(tt.canvas)
			sum := 0
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("row %d: got %d, want %d", i, got[i], tt.want[i])
				}
				sum += got[i]
			}
			if sum != tt.canvas {
				t.Errorf("heights sum to %d, want %d", sum, tt.canvas)
			}
		})
	}
}

func TestWindow_SameShape(t *testing.T) {
	r := geometry.Rect{Width: 10, Height: 10}
	single := Single(r)
	even := Stacked([]geometry.Rect{r, r}, []float64{0.5, 0.5})
	asym := Stacked([]geometry.Rect{r, r}, []float64{0.375, 0.625})

	if !single.SameShape(Single(geometry.Rect{X: 5, Width: 3, Height: 4})) {
		t.Error("single windows should share a shape")
	}
	if single.SameShape(even) {
		t.Error("single and stacked should differ")
	}
	if even.SameShape(asym) {
		t.Error("different row shares should differ")
	}
	if got := asym.Tag(); got != "stacked(2)" {
		t.Errorf("Tag() = %q", got)
	}
}

func TestLerpWindow(t *testing.T) {
	a := Single(geometry.Rect{X: 0, Y: 0, Width: 100, Height: 200})
	b := Single(geometry.Rect{X: 100, Y: 0, Width: 100, Height: 200})

	mid := Lerp(a, b, 0.5)
	if mid.Rects[0].X != 50 {
		t.Errorf("X = %v, want 50", mid.Rects[0].X)
	}
	if MaxAbsDiff(a, b) != 100 {
		t.Errorf("MaxAbsDiff = %v, want 100", MaxAbsDiff(a, b))
	}
	if a.Rects[0].X != 0 {
		t.Error("Lerp must not modify its inputs")
	}

	if _, err := ParseLayout("stacked"); err != nil {
		t.Errorf("ParseLayout: %v", err)
	}
	if _, err := ParseLayout("diagonal"); err == nil {
		t.Error("expected error for unknown layout")
	}
}
