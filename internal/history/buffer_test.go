package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vzahanych/land2port/internal/crop"
	"github.com/vzahanych/land2port/internal/geometry"
)

func rawAt(x float64) crop.Window {
	return crop.Single(geometry.Rect{X: x, Y: 0, Width: 100, Height: 200})
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 30, Capacity(time.Second, 30))
	assert.Equal(t, 15, Capacity(500*time.Millisecond, 29.97))
	assert.Equal(t, 1, Capacity(time.Millisecond, 24))
	assert.Equal(t, 1, Capacity(0, 30))
}

func TestBuffer_Eviction(t *testing.T) {
	b := NewBuffer(3)
	for i := int64(0); i < 5; i++ {
		require.True(t, b.Push(Entry{FrameIndex: i, Raw: rawAt(float64(i))}))
	}

	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(2), entries[0].FrameIndex)
	assert.Equal(t, int64(4), entries[2].FrameIndex)
	assert.Equal(t, 3, b.Len())

	assert.False(t, b.Push(Entry{FrameIndex: 1}), "stale entry must be rejected")
	_, ok := b.Get(1)
	assert.False(t, ok)
}

func TestBuffer_GapsAreInvisible(t *testing.T) {
	b := NewBuffer(4)
	b.Push(Entry{FrameIndex: 0, Raw: rawAt(0)})
	b.Push(Entry{FrameIndex: 1, Raw: rawAt(1)})
	b.Push(Entry{FrameIndex: 10, Raw: rawAt(10)})

	entries := b.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].FrameIndex)
}

func TestBuffer_LatestEmitted(t *testing.T) {
	b := NewBuffer(5)
	_, ok := b.LatestEmitted()
	assert.False(t, ok)

	b.Push(Entry{FrameIndex: 0, Raw: rawAt(0)})
	require.True(t, b.SetEmitted(0, rawAt(5)))
	b.Push(Entry{FrameIndex: 1, Raw: rawAt(10)})

	w, ok := b.LatestEmitted()
	require.True(t, ok)
	assert.Equal(t, 5.0, w.Rects[0].X, "entry 1 has no emitted window yet")

	b.SetEmitted(1, rawAt(7))
	w, _ = b.LatestEmitted()
	assert.Equal(t, 7.0, w.Rects[0].X)
}

func TestBuffer_RecentTarget(t *testing.T) {
	b := NewBuffer(10)
	b.Push(Entry{FrameIndex: 0, Raw: rawAt(0)})
	b.Push(Entry{FrameIndex: 1, Raw: rawAt(100)})

	w, ok := b.RecentTarget(rawAt(0), 0.5)
	require.True(t, ok)
	// weights 0.5 and 1
	assert.InDelta(t, 100.0/1.5, w.Rects[0].X, 1e-9)

	w, ok = b.RecentTarget(rawAt(0), 0)
	require.True(t, ok)
	assert.InDelta(t, 100, w.Rects[0].X, 1e-9, "zero decay keeps only the newest")

	stacked := crop.Stacked([]geometry.Rect{{Width: 1, Height: 1}, {Width: 1, Height: 1}}, []float64{0.5, 0.5})
	_, ok = b.RecentTarget(stacked, 0.5)
	assert.False(t, ok, "no entries of that shape")
}

func TestBuffer_Clear(t *testing.T) {
	b := NewBuffer(30)
	for i := int64(0); i < 20; i++ {
		b.Push(Entry{FrameIndex: i, Raw: rawAt(0)})
	}
	b.Clear()

	assert.Equal(t, 0, b.Len())
	_, ok := b.RecentTarget(rawAt(0), 0.8)
	assert.False(t, ok)

	b.Push(Entry{FrameIndex: 20, Raw: rawAt(500)})
	w, ok := b.RecentTarget(rawAt(0), 0.8)
	require.True(t, ok)
	assert.InDelta(t, 500, w.Rects[0].X, 1e-9, "only post-clear entries count")
}
