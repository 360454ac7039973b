package compose

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/geometry"
)

// halves returns a 1920x1080 frame whose left half is red and right half is blue
func halves() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	for y := 0; y < 1080; y++ {
		for x := 0; x < 1920; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 960 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

var canvas = geometry.Size{Width: 108, Height: 192}

func TestRender_SingleFillsCanvas(t *testing.T) {
	// 9:16 region entirely in the red half
	w := crop.Single(geometry.Rect{X: 100, Y: 0, Width: 607.5, Height: 1080})
	out := Render(halves(), w, canvas)

	require.Equal(t, image.Rect(0, 0, 108, 192), out.Bounds())
	for _, p := range []image.Point{{0, 0}, {54, 96}, {107, 191}} {
		assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(p.X, p.Y), "pixel %v", p)
	}
}

func TestRender_StackedRows(t *testing.T) {
	// top row from the red half, bottom row from the blue half
	w := crop.Stacked([]geometry.Rect{
		{X: 0, Y: 0, Width: 960, Height: 853.33},
		{X: 960, Y: 0, Width: 960, Height: 853.33},
	}, []float64{0.5, 0.5})
	out := Render(halves(), w, canvas)

	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(54, 40))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, out.RGBAAt(54, 150))
}

func TestRender_LetterboxesMismatchedAspect(t *testing.T) {
	// 3:4 region on a 9:16 canvas: 108 wide, 144 tall, bars of 24 above and below
	w := crop.Single(geometry.Rect{X: 0, Y: 0, Width: 810, Height: 1080})
	out := Render(halves(), w, canvas)

	black := color.RGBA{A: 255}
	assert.Equal(t, black, out.RGBAAt(54, 5))
	assert.Equal(t, black, out.RGBAAt(54, 186))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(30, 96))
}

func TestRender_ZeroWindow(t *testing.T) {
	out := Render(halves(), crop.Window{}, canvas)
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(54, 96))
}

func TestFit(t *testing.T) {
	band := image.Rect(0, 0, 100, 200)

	assert.Equal(t, band, fit(image.Rect(0, 0, 50, 100), band))
	assert.Equal(t, image.Rect(0, 50, 100, 150), fit(image.Rect(0, 0, 200, 200), band))
	assert.Equal(t, image.Rect(25, 0, 75, 200), fit(image.Rect(0, 0, 25, 100), band))
}
