package cut

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Signature dimensions
const (
	thumbWidth  = 64
	thumbHeight = 36
	histBins    = 32
	gridSize    = 8
)

// Signature is a cheap fingerprint of one frame: a luma histogram and a coarse mean-luma grid
// taken from a 64x36 thumbnail
type Signature struct {
	Hist [histBins]float64            // Normalized, sums to 1
	Grid [gridSize * gridSize]float64 // Mean luma per cell, 0..255
}

// NewSignature computes the signature of img. It returns false for a nil or empty image.
func NewSignature(img image.Image) (*Signature, bool) {
	if img == nil || img.Bounds().Empty() {
		return nil, false
	}

	thumb := image.NewRGBA(image.Rect(0, 0, thumbWidth, thumbHeight))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Src, nil)

	sig := &Signature{}
	var cellSum [gridSize * gridSize]float64
	var cellCount [gridSize * gridSize]float64

	for y := 0; y < thumbHeight; y++ {
		for x := 0; x < thumbWidth; x++ {
			i := thumb.PixOffset(x, y)
			r, g, b := thumb.Pix[i], thumb.Pix[i+1], thumb.Pix[i+2]
			luma := 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)

			bin := int(luma * histBins / 256)
			if bin >= histBins {
				bin = histBins - 1
			}
			sig.Hist[bin]++

			cell := (y*gridSize/thumbHeight)*gridSize + x*gridSize/thumbWidth
			cellSum[cell] += luma
			cellCount[cell]++
		}
	}

	total := float64(thumbWidth * thumbHeight)
	for i := range sig.Hist {
		sig.Hist[i] /= total
	}
	for i := range sig.Grid {
		if cellCount[i] > 0 {
			sig.Grid[i] = cellSum[i] / cellCount[i]
		}
	}
	return sig, true
}

// Similarity scores two signatures in [0,1]: half histogram intersection, half mean grid
// agreement. Identical frames score 1.
func Similarity(a, b *Signature) float64 {
	if a == nil || b == nil {
		return 1
	}

	var inter float64
	for i := range a.Hist {
		inter += math.Min(a.Hist[i], b.Hist[i])
	}

	var diff float64
	for i := range a.Grid {
		diff += math.Abs(a.Grid[i] - b.Grid[i])
	}
	diff /= float64(len(a.Grid)) * 255

	score := 0.5*inter + 0.5*(1-diff)
	return math.Max(0, math.Min(1, score))
}
