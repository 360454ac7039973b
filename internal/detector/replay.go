package detector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vzahanych/land2port/internal/detection"
	"github.com/vzahanych/land2port/internal/geometry"
	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/video"
)

// Record is one line of a detections file. Boxes are in frame coordinates.
type Record struct {
	FrameIndex    int64         `json:"frame_index"`
	BoundingBoxes []BoundingBox `json:"bounding_boxes"`
}

// ReplayDetector serves detections recorded earlier, keyed by frame index.
// Frames absent from the file have no detections.
type ReplayDetector struct {
	frames map[int64][]BoundingBox
}

// LoadReplay reads a JSON-lines detections file
func LoadReplay(path string, log *logger.Logger) (*ReplayDetector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open detections file: %w", err)
	}
	defer f.Close()

	d, err := ReadReplay(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info("Detections loaded", "path", path, "frames", len(d.frames))
	return d, nil
}

// ReadReplay parses JSON lines from r. Blank lines are skipped; a repeated frame index
// appends to the earlier boxes.
func ReadReplay(r io.Reader) (*ReplayDetector, error) {
	d := &ReplayDetector{frames: make(map[int64][]BoundingBox)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		d.frames[rec.FrameIndex] = append(d.frames[rec.FrameIndex], rec.BoundingBoxes...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read detections: %w", err)
	}
	return d, nil
}

// Frames returns the number of frames with at least one record
func (d *ReplayDetector) Frames() int {
	return len(d.frames)
}

// Detect implements pipeline.Detector
func (d *ReplayDetector) Detect(_ context.Context, frame *video.Frame) ([]detection.Detection, error) {
	boxes := d.frames[frame.Index]
	dets := make([]detection.Detection, 0, len(boxes))
	for _, b := range boxes {
		dets = append(dets, toDetection(b, frame.Index))
	}
	return dets, nil
}

func toDetection(b BoundingBox, frameIndex int64) detection.Detection {
	return detection.Detection{
		Box:        geometry.RectFromCorners(b.X1, b.Y1, b.X2, b.Y2),
		Class:      b.ClassName,
		Confidence: b.Confidence,
		FrameIndex: frameIndex,
	}
}

// Detector is the subset of pipeline.Detector that Tee wraps
type Detector interface {
	Detect(ctx context.Context, frame *video.Frame) ([]detection.Detection, error)
}

// Tee records every successful result of a detector as JSON lines, so a run can be replayed
// without the detection service
type Tee struct {
	inner Detector
	mu    sync.Mutex
	enc   *json.Encoder
}

// NewTee wraps inner and writes its results to w
func NewTee(inner Detector, w io.Writer) *Tee {
	return &Tee{inner: inner, enc: json.NewEncoder(w)}
}

// Detect implements pipeline.Detector
func (t *Tee) Detect(ctx context.Context, frame *video.Frame) ([]detection.Detection, error) {
	dets, err := t.inner.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}

	rec := Record{FrameIndex: frame.Index, BoundingBoxes: make([]BoundingBox, 0, len(dets))}
	for _, d := range dets {
		rec.BoundingBoxes = append(rec.BoundingBoxes, BoundingBox{
			X1:         d.Box.X,
			Y1:         d.Box.Y,
			X2:         d.Box.Right(),
			Y2:         d.Box.Bottom(),
			Confidence: d.Confidence,
			ClassName:  d.Class,
		})
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enc.Encode(rec); err != nil {
		return dets, fmt.Errorf("failed to record detections: %w", err)
	}
	return dets, nil
}
