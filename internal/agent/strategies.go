package agent

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/palette"
)

// ErrInvalidRegion is returned by DefendRegion for a region that does not fit the board.
var ErrInvalidRegion = errors.New("agent: invalid region")

// Fill paints every cell one at a time in row-major order, then finishes.
type Fill struct {
	Color palette.Color
	next  int
}

// NewFill returns a Fill strategy for color.
func NewFill(color palette.Color) *Fill {
	return &Fill{Color: color}
}

// Next implements Strategy.
func (f *Fill) Next(view board.View) ([]Move, error) {
	dim := view.Dimension()
	if f.next >= dim*dim {
		return nil, ErrFinished
	}
	m := Move{Row: f.next / dim, Col: f.next % dim, Color: f.Color}
	f.next++
	if f.next == dim*dim {
		return []Move{m}, ErrFinished
	}
	return []Move{m}, nil
}

// Snake walks the board one cell per tick, bouncing off the edges with a
// random turn. It never finishes.
type Snake struct {
	row, col int
	dr, dc   int
	color    palette.Color
	rnd      *rand.Rand
}

// NewSnake starts a snake at (row, col) heading (dr, dc), each of which
// must be -1 or 1. A nil rnd uses a time-seeded source.
func NewSnake(row, col int, color palette.Color, dr, dc int, rnd *rand.Rand) (*Snake, error) {
	if (dr != 1 && dr != -1) || (dc != 1 && dc != -1) {
		return nil, fmt.Errorf("agent: snake velocity must be -1 or 1, got (%d,%d)", dr, dc)
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Snake{row: row, col: col, dr: dr, dc: dc, color: color, rnd: rnd}, nil
}

// Next implements Strategy.
func (s *Snake) Next(view board.View) ([]Move, error) {
	dim := view.Dimension()
	if s.row < 0 || s.row >= dim || s.col < 0 || s.col >= dim {
		return nil, fmt.Errorf("%w: snake at (%d,%d)", board.ErrOutOfRange, s.row, s.col)
	}
	m := Move{Row: s.row, Col: s.col, Color: s.color}
	if dim > 1 {
		s.turn(dim)
		s.row += s.dr
		s.col += s.dc
	}
	return []Move{m}, nil
}

// turn picks the next heading. At a column edge the column step becomes
// 0 or away from the edge, at a row edge likewise for rows, and the snake
// never stands still.
func (s *Snake) turn(dim int) {
	last := dim - 1
	switch s.col {
	case 0:
		s.dc = s.rnd.Intn(2)
		if s.dr == 0 {
			s.dr = 1
		}
	case last:
		s.dc = s.rnd.Intn(2) - 1
		if s.dr == 0 {
			s.dr = 1
		}
	}

	colEdge := s.col == 0 || s.col == last
	switch s.row {
	case 0:
		s.dr = s.rnd.Intn(2)
		if s.dc == 0 && !colEdge {
			s.dc = 1
		}
	case last:
		s.dr = s.rnd.Intn(2) - 1
		if s.dc == 0 && !colEdge {
			s.dc = 1
		}
	}

	if s.dr == 0 && s.dc == 0 {
		if s.row == last {
			s.dr = -1
		} else {
			s.dr = 1
		}
	}
}

// DefendSquare keeps one cell at a fixed color, resubmitting whenever
// someone else changes it.
type DefendSquare struct {
	Row   int
	Col   int
	Color palette.Color
}

// Next implements Strategy.
func (d DefendSquare) Next(view board.View) ([]Move, error) {
	cell, err := view.Get(d.Row, d.Col)
	if err != nil {
		return nil, err
	}
	if cell.Color == d.Color {
		return nil, nil
	}
	return []Move{{Row: d.Row, Col: d.Col, Color: d.Color}}, nil
}

// DefendRegion remembers the colors of a rectangle on its first tick and
// restores any cell that differs on every tick after.
type DefendRegion struct {
	Top, Left, Bottom, Right int // Inclusive bounds

	captured [][]palette.Color
}

// NewDefendRegion defends the rectangle from (top, left) to (bottom, right) inclusive.
func NewDefendRegion(top, left, bottom, right int) *DefendRegion {
	return &DefendRegion{Top: top, Left: left, Bottom: bottom, Right: right}
}

// Next implements Strategy.
func (d *DefendRegion) Next(view board.View) ([]Move, error) {
	if d.captured == nil {
		return nil, d.capture(view)
	}

	var moves []Move
	for r := d.Top; r <= d.Bottom; r++ {
		for c := d.Left; c <= d.Right; c++ {
			cell, err := view.Get(r, c)
			if err != nil {
				return nil, err
			}
			want := d.captured[r-d.Top][c-d.Left]
			if cell.Color != want {
				moves = append(moves, Move{Row: r, Col: c, Color: want})
			}
		}
	}
	return moves, nil
}

func (d *DefendRegion) capture(view board.View) error {
	dim := view.Dimension()
	if d.Top < 0 || d.Left < 0 || d.Bottom >= dim || d.Right >= dim || d.Top >= d.Bottom || d.Left >= d.Right {
		return fmt.Errorf("%w: (%d,%d)-(%d,%d) on %dx%d board", ErrInvalidRegion, d.Top, d.Left, d.Bottom, d.Right, dim, dim)
	}

	snap := view.Snapshot()
	captured := make([][]palette.Color, d.Bottom-d.Top+1)
	for r := range captured {
		captured[r] = make([]palette.Color, d.Right-d.Left+1)
		for c := range captured[r] {
			cell, err := snap.At(d.Top+r, d.Left+c)
			if err != nil {
				return err
			}
			captured[r][c] = cell.Color
		}
	}
	d.captured = captured
	return nil
}
