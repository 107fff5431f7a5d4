package board

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/place/internal/palette"
)

// ErrOutOfRange is returned when a coordinate falls outside [0, dimension)
var ErrOutOfRange = errors.New("board: coordinates out of range")

// ErrInvalidSnapshot is returned when a snapshot cannot back a board
var ErrInvalidSnapshot = errors.New("board: invalid snapshot")

// MaxDimension is the largest board New accepts. dim*dim stays within a
// 32-bit int.
const MaxDimension = 1 << 15

// Cell is one grid position's current color, owner and last-update time.
// Row and Col are the cell's identity within the grid and never change.
type Cell struct {
	Row       int           // Grid row, 0-based
	Col       int           // Grid column, 0-based
	Color     palette.Color // Current color
	Owner     string        // Identity of the last writer, empty for untouched cells
	Timestamp int64         // Epoch milliseconds of the last write, 0 for untouched cells
}

// View is the read-only surface of a board handed to renderers and agents.
type View interface {
	// Dimension returns the number of rows (and columns) of the grid
	Dimension() int

	// Get returns the cell at (row, col)
	// Returns ErrOutOfRange if the coordinates are outside the grid
	Get(row, col int) (Cell, error)

	// Snapshot returns a point-in-time copy of every cell
	Snapshot() Snapshot
}

// Board is a fixed-dimension grid of cells.
// Every (row, col) in range always holds exactly one Cell.
// Uses sync.RWMutex so readers never observe a partially written cell.
type Board struct {
	mu        sync.RWMutex     // Protects cells and lastStamp
	cells     []Cell           // Row-major, len == dim*dim
	now       func() time.Time // Clock used to stamp applied cells
	dim       int              // Fixed at creation
	lastStamp int64            // Highest timestamp handed out by Apply
}

// New creates a board of dim x dim cells, each holding the baseline color,
// no owner and a zero timestamp.
func New(dim int) (*Board, error) {
	if dim < 1 || dim > MaxDimension {
		return nil, fmt.Errorf("board: dimension must be between 1 and %d, got %d", MaxDimension, dim)
	}
	cells := make([]Cell, dim*dim)
	for i := range cells {
		cells[i] = Cell{Row: i / dim, Col: i % dim, Color: palette.Baseline}
	}
	return &Board{dim: dim, cells: cells, now: time.Now}, nil
}

// FromSnapshot builds a board holding exactly the cells of s.
// Used by clients to materialize their replica from the BOARD handshake message.
func FromSnapshot(s Snapshot) (*Board, error) {
	if s.Dimension < 1 || s.Dimension > MaxDimension || len(s.Cells) != s.Dimension*s.Dimension {
		return nil, fmt.Errorf("%w: dimension %d with %d cells", ErrInvalidSnapshot, s.Dimension, len(s.Cells))
	}
	cells := make([]Cell, len(s.Cells))
	for i, c := range s.Cells {
		if c.Row != i/s.Dimension || c.Col != i%s.Dimension {
			return nil, fmt.Errorf("%w: cell %d has coordinates (%d,%d)", ErrInvalidSnapshot, i, c.Row, c.Col)
		}
		cells[i] = c
	}
	return &Board{dim: s.Dimension, cells: cells, now: time.Now}, nil
}

// SetClock replaces the clock used by Apply. Intended for tests.
func (b *Board) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Dimension returns the number of rows (and columns) of the board
func (b *Board) Dimension() int {
	return b.dim
}

// Get returns a copy of the cell at (row, col)
func (b *Board) Get(row, col int) (Cell, error) {
	if !b.inRange(row, col) {
		return Cell{}, fmt.Errorf("%w: (%d,%d) on %dx%d board", ErrOutOfRange, row, col, b.dim, b.dim)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cells[row*b.dim+col], nil
}

// Validate reports whether candidate may be applied.
// Validity is purely geometric: any palette color and any owner are accepted.
func (b *Board) Validate(candidate Cell) bool {
	return b.inRange(candidate.Row, candidate.Col)
}

// Apply overwrites the target cell with candidate after stamping it with the
// current time, and returns the stamped cell.
//
// Callers must call Validate first and must hold whatever lock serializes
// writers; Apply itself only guarantees that readers see whole cells.
// Stamps never go backwards even if the wall clock does.
func (b *Board) Apply(candidate Cell) Cell {
	b.mu.Lock()
	defer b.mu.Unlock()

	stamp := b.now().UnixMilli()
	if stamp < b.lastStamp {
		stamp = b.lastStamp
	}
	b.lastStamp = stamp
	candidate.Timestamp = stamp
	b.cells[candidate.Row*b.dim+candidate.Col] = candidate
	return candidate
}

// Set overwrites a cell with c exactly as given, keeping its timestamp.
// Replicas use it to mirror cells the server already stamped.
func (b *Board) Set(c Cell) error {
	if !b.inRange(c.Row, c.Col) {
		return fmt.Errorf("%w: (%d,%d) on %dx%d board", ErrOutOfRange, c.Row, c.Col, b.dim, b.dim)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cells[c.Row*b.dim+c.Col] = c
	if c.Timestamp > b.lastStamp {
		b.lastStamp = c.Timestamp
	}
	return nil
}

// Snapshot returns a copy of every cell in row-major order
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cells := make([]Cell, len(b.cells))
	copy(cells, b.cells)
	return Snapshot{Dimension: b.dim, Cells: cells}
}

// String renders the board one row per line, each cell as its color digit.
func (b *Board) String() string {
	return b.Snapshot().String()
}

func (b *Board) inRange(row, col int) bool {
	return row >= 0 && row < b.dim && col >= 0 && col < b.dim
}

// Snapshot is an immutable copy of a board's cells in row-major order.
type Snapshot struct {
	Dimension int
	Cells     []Cell
}

// At returns the cell at (row, col) from the snapshot
func (s Snapshot) At(row, col int) (Cell, error) {
	if row < 0 || row >= s.Dimension || col < 0 || col >= s.Dimension {
		return Cell{}, fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, row, col)
	}
	return s.Cells[row*s.Dimension+col], nil
}

// String renders the snapshot one row per line, each cell as its color digit.
func (s Snapshot) String() string {
	var sb strings.Builder
	sb.Grow(s.Dimension * (s.Dimension + 1))
	for i, c := range s.Cells {
		sb.WriteString(c.Color.Digit())
		if (i+1)%s.Dimension == 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
