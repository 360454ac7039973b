package history

import (
	"math"
	"sort"
	"time"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/detection"
)

// Entry is the record kept for one processed frame
type Entry struct {
	FrameIndex int64
	Timestamp  time.Duration
	Detections []detection.Detection // Snapshot of the qualified subjects
	Raw        crop.Window           // Calculator output for the frame
	Emitted    crop.Window           // Smoothed window, zero until SetEmitted
}

// Capacity converts a smoothing duration to a frame count at the given frame rate.
// The result is never below one.
func Capacity(duration time.Duration, fps float64) int {
	n := int(math.Round(duration.Seconds() * fps))
	if n < 1 {
		return 1
	}
	return n
}

// Buffer is a fixed-capacity ring of entries addressed by frame index. An entry is visible
// while its index is within capacity frames of the newest index pushed.
type Buffer struct {
	slots    []Entry
	used     []bool
	capacity int
	newest   int64
	empty    bool
}

// NewBuffer creates a new buffer holding capacity frames
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		slots:    make([]Entry, capacity),
		used:     make([]bool, capacity),
		capacity: capacity,
		empty:    true,
	}
}

// Capacity returns the number of slots
func (b *Buffer) Capacity() int {
	return b.capacity
}

func (b *Buffer) slot(frameIndex int64) int {
	s := int(frameIndex % int64(b.capacity))
	if s < 0 {
		s += b.capacity
	}
	return s
}

func (b *Buffer) visible(frameIndex int64) bool {
	return !b.empty && frameIndex <= b.newest && frameIndex > b.newest-int64(b.capacity)
}

// Push records an entry. Entries too old to be visible are ignored and Push reports false.
func (b *Buffer) Push(e Entry) bool {
	if !b.empty && e.FrameIndex <= b.newest-int64(b.capacity) {
		return false
	}
	if b.empty || e.FrameIndex > b.newest {
		b.newest = e.FrameIndex
		b.empty = false
	}
	e.Detections = detection.Clone(e.Detections)
	s := b.slot(e.FrameIndex)
	b.slots[s] = e
	b.used[s] = true
	return true
}

// SetEmitted stores the smoothed window for a visible entry
func (b *Buffer) SetEmitted(frameIndex int64, w crop.Window) bool {
	e, ok := b.get(frameIndex)
	if !ok {
		return false
	}
	e.Emitted = w
	b.slots[b.slot(frameIndex)] = e
	return true
}

func (b *Buffer) get(frameIndex int64) (Entry, bool) {
	if !b.visible(frameIndex) {
		return Entry{}, false
	}
	s := b.slot(frameIndex)
	if !b.used[s] || b.slots[s].FrameIndex != frameIndex {
		return Entry{}, false
	}
	return b.slots[s], true
}

// Get returns the entry for a frame index if it is visible
func (b *Buffer) Get(frameIndex int64) (Entry, bool) {
	return b.get(frameIndex)
}

// Entries returns the visible entries, oldest first
func (b *Buffer) Entries() []Entry {
	out := make([]Entry, 0, b.capacity)
	for s := range b.slots {
		if b.used[s] && b.visible(b.slots[s].FrameIndex) {
			out = append(out, b.slots[s])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FrameIndex < out[j].FrameIndex
	})
	return out
}

// Len returns the number of visible entries
func (b *Buffer) Len() int {
	n := 0
	for s := range b.slots {
		if b.used[s] && b.visible(b.slots[s].FrameIndex) {
			n++
		}
	}
	return n
}

// Newest returns the newest frame index pushed since the last Clear
func (b *Buffer) Newest() (int64, bool) {
	return b.newest, !b.empty
}

// Clear drops every entry
func (b *Buffer) Clear() {
	for s := range b.slots {
		b.slots[s] = Entry{}
		b.used[s] = false
	}
	b.newest = 0
	b.empty = true
}

// LatestEmitted returns the most recent emitted window
func (b *Buffer) LatestEmitted() (crop.Window, bool) {
	entries := b.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].Emitted.IsZero() {
			return entries[i].Emitted, true
		}
	}
	return crop.Window{}, false
}

// RecentTarget returns the decay-weighted mean of the visible raw windows that share ref's
// shape. An entry age frames older than the newest one weighs decay^age.
func (b *Buffer) RecentTarget(ref crop.Window, decay float64) (crop.Window, bool) {
	if b.empty || ref.IsZero() {
		return crop.Window{}, false
	}

	out := ref.Clone()
	for i := range out.Rects {
		out.Rects[i].X, out.Rects[i].Y, out.Rects[i].Width, out.Rects[i].Height = 0, 0, 0, 0
	}

	total := 0.0
	for s := range b.slots {
		e := b.slots[s]
		if !b.used[s] || !b.visible(e.FrameIndex) || !e.Raw.SameShape(ref) {
			continue
		}
		w := math.Pow(decay, float64(b.newest-e.FrameIndex))
		for i, r := range e.Raw.Rects {
			out.Rects[i].X += r.X * w
			out.Rects[i].Y += r.Y * w
			out.Rects[i].Width += r.Width * w
			out.Rects[i].Height += r.Height * w
		}
		total += w
	}
	if total == 0 {
		return crop.Window{}, false
	}

	for i := range out.Rects {
		out.Rects[i].X /= total
		out.Rects[i].Y /= total
		out.Rects[i].Width /= total
		out.Rects[i].Height /= total
	}
	return out, true
}
