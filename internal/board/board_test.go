package board

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/place/internal/palette"
)

// TestNewBoard tests that a fresh board holds only baseline cells
func TestNewBoard(t *testing.T) {
	tests := []struct {
		name string
		dim  int
	}{
		{name: "single cell", dim: 1},
		{name: "three by three", dim: 3},
		{name: "large", dim: 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.dim)
			require.NoError(t, err)
			assert.Equal(t, tt.dim, b.Dimension())

			snap := b.Snapshot()
			require.Len(t, snap.Cells, tt.dim*tt.dim)
			for i, c := range snap.Cells {
				assert.Equal(t, i/tt.dim, c.Row)
				assert.Equal(t, i%tt.dim, c.Col)
				assert.Equal(t, palette.Baseline, c.Color)
				assert.Empty(t, c.Owner)
				assert.Zero(t, c.Timestamp)
			}
		})
	}
}

func TestNewBoardRejectsDimensionOutOfBounds(t *testing.T) {
	for _, dim := range []int{0, -1, MaxDimension + 1, math.MaxInt} {
		_, err := New(dim)
		assert.Error(t, err, "dim %d", dim)
	}
}

// TestGet tests bounds checking on reads
func TestGet(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)

	c, err := b.Get(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Row)
	assert.Equal(t, 1, c.Col)

	for _, coord := range [][2]int{{-1, 0}, {0, -1}, {3, 0}, {0, 3}, {5, 5}} {
		t.Run(fmt.Sprintf("out of range %v", coord), func(t *testing.T) {
			_, err := b.Get(coord[0], coord[1])
			assert.True(t, errors.Is(err, ErrOutOfRange))
		})
	}
}

func TestValidate(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)

	assert.True(t, b.Validate(Cell{Row: 0, Col: 0}))
	assert.True(t, b.Validate(Cell{Row: 2, Col: 2, Color: palette.Fuchsia, Owner: "anyone"}))
	assert.False(t, b.Validate(Cell{Row: 3, Col: 0}))
	assert.False(t, b.Validate(Cell{Row: 0, Col: -1}))
	assert.False(t, b.Validate(Cell{Row: 5, Col: 5}))
}

// TestApply tests that applying stamps and overwrites the whole cell
func TestApply(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)

	fixed := time.UnixMilli(1_700_000_000_000)
	b.SetClock(func() time.Time { return fixed })

	applied := b.Apply(Cell{Row: 1, Col: 1, Color: palette.Red, Owner: "alice", Timestamp: 42})
	assert.Equal(t, fixed.UnixMilli(), applied.Timestamp, "server stamp replaces submitted timestamp")

	got, err := b.Get(1, 1)
	require.NoError(t, err)
	assert.Equal(t, applied, got)

	// Neighbours are untouched
	other, err := b.Get(1, 2)
	require.NoError(t, err)
	assert.Equal(t, palette.Baseline, other.Color)
}

func TestApplyTimestampsNeverDecrease(t *testing.T) {
	b, err := New(2)
	require.NoError(t, err)

	clock := time.UnixMilli(2_000)
	b.SetClock(func() time.Time { return clock })
	first := b.Apply(Cell{Row: 0, Col: 0, Color: palette.Red})

	// Wall clock steps backwards
	clock = time.UnixMilli(1_000)
	second := b.Apply(Cell{Row: 0, Col: 0, Color: palette.Blue})

	assert.GreaterOrEqual(t, second.Timestamp, first.Timestamp)
}

func TestSetKeepsTimestamp(t *testing.T) {
	b, err := New(2)
	require.NoError(t, err)

	c := Cell{Row: 1, Col: 0, Color: palette.Lime, Owner: "bob", Timestamp: 99}
	require.NoError(t, b.Set(c))

	got, err := b.Get(1, 0)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	err = b.Set(Cell{Row: 2, Col: 0})
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

// TestSnapshotIsolation tests that snapshots are copies
func TestSnapshotIsolation(t *testing.T) {
	b, err := New(2)
	require.NoError(t, err)

	snap := b.Snapshot()
	snap.Cells[0].Color = palette.Black

	got, err := b.Get(0, 0)
	require.NoError(t, err)
	assert.Equal(t, palette.Baseline, got.Color)
}

func TestFromSnapshot(t *testing.T) {
	src, err := New(3)
	require.NoError(t, err)
	src.Apply(Cell{Row: 2, Col: 0, Color: palette.Navy, Owner: "carol"})

	replica, err := FromSnapshot(src.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, src.Snapshot(), replica.Snapshot())

	t.Run("wrong cell count", func(t *testing.T) {
		_, err := FromSnapshot(Snapshot{Dimension: 2, Cells: make([]Cell, 3)})
		assert.True(t, errors.Is(err, ErrInvalidSnapshot))
	})

	t.Run("misplaced cell", func(t *testing.T) {
		cells := src.Snapshot().Cells
		cells[4].Row = 0
		_, err := FromSnapshot(Snapshot{Dimension: 3, Cells: cells})
		assert.True(t, errors.Is(err, ErrInvalidSnapshot))
	})

	t.Run("zero dimension", func(t *testing.T) {
		_, err := FromSnapshot(Snapshot{})
		assert.True(t, errors.Is(err, ErrInvalidSnapshot))
	})

	t.Run("overflowing dimension", func(t *testing.T) {
		_, err := FromSnapshot(Snapshot{Dimension: math.MaxInt})
		assert.True(t, errors.Is(err, ErrInvalidSnapshot))
	})
}

func TestString(t *testing.T) {
	b, err := New(2)
	require.NoError(t, err)
	b.Apply(Cell{Row: 0, Col: 1, Color: palette.Red})
	b.Apply(Cell{Row: 1, Col: 0, Color: palette.Fuchsia})

	assert.Equal(t, "35\nF3\n", b.String())
}

// TestConcurrentAccess tests that readers never see torn cells while a writer runs
func TestConcurrentAccess(t *testing.T) {
	b, err := New(4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			color := palette.Color(i % palette.Count)
			// Owner is derived from the color so a torn read would show a mismatch
			b.Apply(Cell{Row: 1, Col: 1, Color: color, Owner: color.String()})
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				c, err := b.Get(1, 1)
				if err != nil {
					t.Errorf("get failed: %v", err)
					return
				}
				if c.Owner != "" && c.Owner != c.Color.String() {
					t.Errorf("torn cell: %+v", c)
					return
				}
			}
		}()
	}

	wg.Wait()
}
