package protocol

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/palette"
)

// worstCaseSnapshot fills every cell with the longest owner and the widest timestamp.
func worstCaseSnapshot(dim int) board.Snapshot {
	owner := strings.Repeat("w", MaxIdentityLength)
	cells := make([]board.Cell, dim*dim)
	for i := range cells {
		cells[i] = board.Cell{
			Row:       i / dim,
			Col:       i % dim,
			Color:     palette.Fuchsia,
			Owner:     owner,
			Timestamp: math.MinInt64,
		}
	}
	return board.Snapshot{Dimension: dim, Cells: cells}
}

func TestMaxBoardPayloadMatchesWorstCase(t *testing.T) {
	for _, dim := range []int{1, 2, 17, 130} {
		payload, err := MarshalPayload(Board(worstCaseSnapshot(dim)))
		require.NoError(t, err)
		assert.Equal(t, MaxBoardPayload(dim), uint64(len(payload)), "dimension %d", dim)
	}
}

func TestMaxBoardPayloadEdges(t *testing.T) {
	assert.Zero(t, MaxBoardPayload(0))
	assert.Zero(t, MaxBoardPayload(-3))
	assert.Equal(t, uint64(math.MaxUint64), MaxBoardPayload(math.MaxInt))
}

func TestMaxBoardDimension(t *testing.T) {
	assert.Equal(t, 469, MaxBoardDimension(DefaultMaxFrameSize))

	for _, size := range []int{DefaultMaxFrameSize, 1 << 20, 4096, 77, 76, 1, 0} {
		dim := MaxBoardDimension(size)
		if dim > 0 {
			assert.LessOrEqual(t, MaxBoardPayload(dim), uint64(size), "frame size %d", size)
		}
		if size > 0 {
			assert.Greater(t, MaxBoardPayload(dim+1), uint64(size), "frame size %d", size)
		}
	}
	assert.Equal(t, 1, MaxBoardDimension(77))
	assert.Zero(t, MaxBoardDimension(76))
}

func TestValidIdentity(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"alice", true},
		{strings.Repeat("a", MaxIdentityLength), true},
		{strings.Repeat("a", MaxIdentityLength+1), false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidIdentity(tt.name), "len %d", len(tt.name))
	}
}
