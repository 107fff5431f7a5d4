package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dreamware/place/internal/agent"
	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/client"
	"github.com/dreamware/place/internal/palette"
)

const prompt = "row col color> "

func ptuiCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ptui [host] [port] [name]",
		Short: "Interactive text console",
		Long: `Interactive text console.

Prints the board after login and after every change. Enter a change as
"row col color", where color is a hex digit 0-F or a color name.
A row of -1 exits.`,
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			r, _, err := dial(ctx, cmd, g, args)
			if err != nil {
				return err
			}
			defer r.Close()

			return runConsole(ctx, r, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// consoleReplica is the part of *client.Replica the console uses.
type consoleReplica interface {
	View() board.View
	Submit(row, col int, color palette.Color) error
	Subscribe(l client.Listener) func()
	Done() <-chan struct{}
	Err() error
}

// runConsole renders the board to out and submits moves read from in until
// the user quits, in reaches EOF, ctx is cancelled or the replica terminates.
func runConsole(ctx context.Context, r consoleReplica, in io.Reader, out io.Writer) error {
	var mu sync.Mutex
	render := func(header string) {
		mu.Lock()
		defer mu.Unlock()
		if header != "" {
			fmt.Fprintln(out, header)
		}
		fmt.Fprint(out, r.View().Snapshot().String())
		fmt.Fprint(out, prompt)
	}

	unsubscribe := r.Subscribe(client.ListenerFuncs{
		OnChange: func(c board.Cell) {
			render(fmt.Sprintf("\n%s set (%d,%d) to %s", c.Owner, c.Row, c.Col, c.Color))
		},
		OnTerminate: func(err error) {
			if errors.Is(err, client.ErrClosed) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "\nconnection ended: %v\n", err)
		},
	})
	defer unsubscribe()

	render("")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-r.Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.Done():
			if err := r.Err(); !errors.Is(err, client.ErrClosed) {
				return err
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			move, quit, err := parseMove(line)
			if quit {
				return nil
			}
			if err != nil {
				mu.Lock()
				fmt.Fprintf(out, "%v\n%s", err, prompt)
				mu.Unlock()
				continue
			}
			if err := r.Submit(move.Row, move.Col, move.Color); err != nil {
				return err
			}
		}
	}
}

// parseMove reads "row col color". A row of -1 means quit.
func parseMove(line string) (agent.Move, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return agent.Move{}, false, errors.New("enter: row col color")
	}
	row, err := strconv.Atoi(fields[0])
	if err != nil {
		return agent.Move{}, false, fmt.Errorf("invalid row %q", fields[0])
	}
	if row == -1 {
		return agent.Move{}, true, nil
	}
	if len(fields) != 3 {
		return agent.Move{}, false, errors.New("enter: row col color")
	}
	col, err := strconv.Atoi(fields[1])
	if err != nil {
		return agent.Move{}, false, fmt.Errorf("invalid column %q", fields[1])
	}
	color, err := palette.Parse(fields[2])
	if err != nil {
		return agent.Move{}, false, fmt.Errorf("invalid color %q, use 0-F or a color name", fields[2])
	}
	return agent.Move{Row: row, Col: col, Color: color}, false, nil
}
