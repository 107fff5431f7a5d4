// Package agent drives scripted participants. A Strategy decides which cells
// to change by looking at the replica's board; a Runner owns the tick loop
// and the submit plumbing so strategies stay pure.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/palette"
)

// ErrFinished is returned by a Strategy that has nothing more to do. Moves
// returned alongside it are still submitted.
var ErrFinished = errors.New("agent: finished")

// Move is one cell change an agent wants to make.
type Move struct {
	Row   int
	Col   int
	Color palette.Color
}

// Strategy computes the next moves from the current board.
// Next is called once per tick from a single goroutine.
type Strategy interface {
	Next(view board.View) ([]Move, error)
}

// Replica is what a Runner needs from a connected client.
type Replica interface {
	View() board.View
	Submit(row, col int, color palette.Color) error
	Done() <-chan struct{}
	Err() error
}

// Runner ticks a Strategy against a Replica.
type Runner struct {
	replica  Replica
	strategy Strategy
	interval time.Duration
	log      *slog.Logger
	moves    int
}

// NewRunner creates a runner submitting the strategy's moves every interval.
func NewRunner(replica Replica, strategy Strategy, interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		replica:  replica,
		strategy: strategy,
		interval: interval,
		log:      logger,
	}
}

// Run ticks until the strategy finishes, the replica terminates, or ctx is
// cancelled. The first tick happens immediately.
//
// Returns nil when the strategy finished, ctx.Err() on cancellation, and the
// replica's terminal error if the connection ended first.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("agent started", "strategy", fmt.Sprintf("%T", r.strategy), "interval", r.interval)

	for {
		done, err := r.tick()
		if err != nil {
			return err
		}
		if done {
			r.log.Info("agent finished", "moves", r.moves)
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			r.log.Info("agent stopping due to context cancellation", "moves", r.moves)
			return ctx.Err()
		case <-r.replica.Done():
			err := r.replica.Err()
			r.log.Info("agent stopping, replica terminated", "err", err, "moves", r.moves)
			return fmt.Errorf("agent: replica terminated: %w", err)
		}
	}
}

// Moves returns how many moves Run has submitted.
func (r *Runner) Moves() int {
	return r.moves
}

func (r *Runner) tick() (bool, error) {
	moves, err := r.strategy.Next(r.replica.View())
	finished := errors.Is(err, ErrFinished)
	if err != nil && !finished {
		return false, fmt.Errorf("agent: next move: %w", err)
	}

	for _, m := range moves {
		if err := r.replica.Submit(m.Row, m.Col, m.Color); err != nil {
			return false, fmt.Errorf("agent: submit (%d,%d): %w", m.Row, m.Col, err)
		}
		r.moves++
		r.log.Debug("submitted", "row", m.Row, "col", m.Col, "color", m.Color)
	}
	return finished, nil
}
