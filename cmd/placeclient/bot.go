package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/place/internal/agent"
	"github.com/dreamware/place/internal/client"
	"github.com/dreamware/place/internal/palette"
)

func botCmd(g *globalFlags) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Scripted agents",
		Long: `Scripted agents.

Each bot logs in and submits one tick of moves every --interval until it
finishes, the connection ends or it is interrupted.`,
	}
	cmd.PersistentFlags().DurationVar(&interval, "interval", 0, "time between ticks (default from config, 500ms)")

	runBot := func(cmd *cobra.Command, args []string, strategy func() (agent.Strategy, error)) error {
		s, err := strategy()
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd)
		defer stop()

		r, cfg, err := dial(ctx, cmd, g, args)
		if err != nil {
			return err
		}
		defer r.Close()

		if interval > 0 {
			cfg.Interval = interval
		}
		return runAgent(ctx, r, s, cfg.Interval, slog.Default())
	}

	var fillColor string
	fill := &cobra.Command{
		Use:   "fill [host] [port] [name]",
		Short: "Paint every cell one by one, then exit",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, args, func() (agent.Strategy, error) {
				c, err := palette.Parse(fillColor)
				if err != nil {
					return nil, err
				}
				return agent.NewFill(c), nil
			})
		},
	}
	fill.Flags().StringVar(&fillColor, "color", "0", "color to fill with (0-F or name)")

	var (
		snakeRow, snakeCol int
		snakeDR, snakeDC   int
		snakeColor         string
		snakeSeed          int64
	)
	snake := &cobra.Command{
		Use:   "snake [host] [port] [name]",
		Short: "Walk the board, bouncing off the edges",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, args, func() (agent.Strategy, error) {
				c, err := palette.Parse(snakeColor)
				if err != nil {
					return nil, err
				}
				var rnd *rand.Rand
				if snakeSeed != 0 {
					rnd = rand.New(rand.NewSource(snakeSeed))
				}
				return agent.NewSnake(snakeRow, snakeCol, c, snakeDR, snakeDC, rnd)
			})
		},
	}
	snake.Flags().IntVar(&snakeRow, "row", 0, "starting row")
	snake.Flags().IntVar(&snakeCol, "col", 0, "starting column")
	snake.Flags().IntVar(&snakeDR, "dr", 1, "row velocity, -1 or 1")
	snake.Flags().IntVar(&snakeDC, "dc", 1, "column velocity, -1 or 1")
	snake.Flags().StringVar(&snakeColor, "color", "5", "trail color (0-F or name)")
	snake.Flags().Int64Var(&snakeSeed, "seed", 0, "random seed for turns (0 picks one)")

	var (
		squareRow, squareCol int
		squareColor          string
	)
	square := &cobra.Command{
		Use:   "defend-square [host] [port] [name]",
		Short: "Keep one cell at a color",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, args, func() (agent.Strategy, error) {
				c, err := palette.Parse(squareColor)
				if err != nil {
					return nil, err
				}
				return agent.DefendSquare{Row: squareRow, Col: squareCol, Color: c}, nil
			})
		},
	}
	square.Flags().IntVar(&squareRow, "row", 0, "row to defend")
	square.Flags().IntVar(&squareCol, "col", 0, "column to defend")
	square.Flags().StringVar(&squareColor, "color", "0", "color to hold (0-F or name)")

	var top, left, bottom, right int
	region := &cobra.Command{
		Use:   "defend-region [host] [port] [name]",
		Short: "Restore a rectangle to how it looked at login",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, args, func() (agent.Strategy, error) {
				return agent.NewDefendRegion(top, left, bottom, right), nil
			})
		},
	}
	region.Flags().IntVar(&top, "top", 0, "top row")
	region.Flags().IntVar(&left, "left", 0, "left column")
	region.Flags().IntVar(&bottom, "bottom", 1, "bottom row, inclusive")
	region.Flags().IntVar(&right, "right", 1, "right column, inclusive")

	cmd.AddCommand(fill, snake, square, region)
	return cmd
}

// runAgent runs s to completion. Interrupts and a closed replica are a clean exit.
func runAgent(ctx context.Context, r agent.Replica, s agent.Strategy, interval time.Duration, logger *slog.Logger) error {
	err := agent.NewRunner(r, s, interval, logger).Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, client.ErrClosed):
		return nil
	default:
		return fmt.Errorf("bot: %w", err)
	}
}
