package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slices"

	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/palette"
	"github.com/dreamware/place/internal/protocol"
	"github.com/dreamware/place/internal/transport"
)

type options struct {
	log              *slog.Logger
	dialTimeout      time.Duration
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	maxFrameSize     int
	listeners        []Listener
}

func defaultOptions() options {
	return options{
		log:              slog.Default(),
		dialTimeout:      5 * time.Second,
		handshakeTimeout: 10 * time.Second,
		writeTimeout:     5 * time.Second,
		maxFrameSize:     protocol.DefaultMaxFrameSize,
	}
}

// Option configures Connect, ConnectWebSocket and Handshake.
type Option func(*options)

// WithLogger sets the replica's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithDialTimeout bounds establishing the connection.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithHandshakeTimeout bounds LOGIN through BOARD when ctx has no deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

// WithWriteTimeout bounds each Submit.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithMaxFrameSize bounds incoming payloads. The server's BOARD must fit,
// so it should be at least the server's max frame size.
func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithListener subscribes l before the receive loop starts, so it sees
// every change after the initial board. Use Subscribe for listeners that
// only care about changes from some later point on.
func WithListener(l Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// Replica is a logged-in connection plus the local copy of the board it
// keeps current.
//
// The receive goroutine is the only writer of the local board. Readers may
// use View at any time and see whole cells, though the board can change
// between two reads.
type Replica struct {
	identity string
	conn     transport.Conn
	board    *board.Board
	log      *slog.Logger
	opts     options

	mu         sync.Mutex
	listeners  []*registration
	terminated bool
	closing    bool
	err        error

	done chan struct{}
}

// Connect dials addr over TCP and logs in as identity. It returns once the
// server has accepted the login and the initial board has been received.
//
// Errors wrap ErrLoginRejected or ErrConnectionFailed.
func Connect(ctx context.Context, addr, identity string, opts ...Option) (*Replica, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dialer := net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, addr, err)
	}
	return Handshake(ctx, transport.NewStream(conn, o.maxFrameSize), identity, opts...)
}

// ConnectWebSocket is Connect over the server's websocket endpoint,
// e.g. "ws://localhost:8080/ws".
func ConnectWebSocket(ctx context.Context, url, identity string, opts ...Option) (*Replica, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dialer := websocket.Dialer{HandshakeTimeout: o.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, url, err)
	}
	return Handshake(ctx, transport.NewWebSocket(conn, o.maxFrameSize), identity, opts...)
}

// Handshake logs in over an established connection and starts the receive
// loop. conn is closed if the handshake fails.
func Handshake(ctx context.Context, conn transport.Conn, identity string, opts ...Option) (*Replica, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	snap, err := login(ctx, conn, identity, o.handshakeTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	b, err := board.FromSnapshot(snap)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	r := &Replica{
		identity: identity,
		conn:     conn,
		board:    b,
		log:      o.log.With("identity", identity, "remote", conn.RemoteAddr()),
		opts:     o,
		done:     make(chan struct{}),
	}
	for _, l := range o.listeners {
		r.listeners = append(r.listeners, &registration{listener: l})
	}
	r.log.Info("logged in", "dimension", b.Dimension())

	go r.receive()
	return r, nil
}

// login runs LOGIN → LOGIN_SUCCESS → BOARD under a deadline.
func login(ctx context.Context, conn transport.Conn, identity string, timeout time.Duration) (board.Snapshot, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	// Cancelling ctx aborts a blocked read
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	fail := func(err error) (board.Snapshot, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return board.Snapshot{}, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := conn.Write(protocol.Login(identity)); err != nil {
		return fail(fmt.Errorf("send login: %w", err))
	}

	env, err := conn.Read()
	if err != nil {
		return fail(fmt.Errorf("await login result: %w", err))
	}
	switch env.Type {
	case protocol.TypeLoginSuccess:
	case protocol.TypeError:
		if env.Text == protocol.LoginFailure {
			return board.Snapshot{}, fmt.Errorf("%w: identity %q", ErrLoginRejected, identity)
		}
		return board.Snapshot{}, fmt.Errorf("%w: %w", ErrConnectionFailed, &ServerError{Message: env.Text})
	default:
		return fail(fmt.Errorf("expected LOGIN_SUCCESS, got %s", env.Type))
	}

	env, err = conn.Read()
	if err != nil {
		return fail(fmt.Errorf("await board: %w", err))
	}
	if env.Type != protocol.TypeBoard {
		return fail(fmt.Errorf("expected BOARD, got %s", env.Type))
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	return env.Board, nil
}

// receive applies server messages to the local board until the connection
// ends. It never writes to the connection.
func (r *Replica) receive() {
	for {
		env, err := r.conn.Read()
		if err != nil {
			r.terminate(fmt.Errorf("%w: %w", ErrConnectionLost, err))
			return
		}

		switch env.Type {
		case protocol.TypeTileChanged:
			if err := r.board.Set(env.Cell); err != nil {
				r.terminate(fmt.Errorf("%w: %w", ErrConnectionLost, err))
				return
			}
			r.notify(env.Cell)
		case protocol.TypeError:
			r.terminate(&ServerError{Message: env.Text})
			return
		default:
			r.terminate(fmt.Errorf("%w: unexpected %s", ErrConnectionLost, env.Type))
			return
		}
	}
}

func (r *Replica) notify(cell board.Cell) {
	r.mu.Lock()
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	for _, reg := range listeners {
		reg.listener.CellChanged(cell)
	}
}

// terminate records the terminal error, closes the connection, tells every
// listener and then closes done. Only the first call has any effect.
func (r *Replica) terminate(err error) {
	r.mu.Lock()
	if r.terminated {
		r.mu.Unlock()
		return
	}
	if r.closing {
		err = ErrClosed
	}
	r.terminated = true
	r.err = err
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	_ = r.conn.Close()

	if errors.Is(err, ErrClosed) {
		r.log.Info("replica closed")
	} else {
		r.log.Warn("replica terminated", "err", err)
	}
	for _, reg := range listeners {
		reg.listener.Terminated(err)
	}
	close(r.done)
}

// Subscribe registers l and returns a function that removes it. Subscribing
// to a terminated replica calls l.Terminated immediately.
func (r *Replica) Subscribe(l Listener) (unsubscribe func()) {
	reg := &registration{listener: l}

	r.mu.Lock()
	if r.terminated {
		err := r.err
		r.mu.Unlock()
		l.Terminated(err)
		return func() {}
	}
	r.listeners = append(r.listeners, reg)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if i := slices.Index(r.listeners, reg); i >= 0 {
				r.listeners = slices.Delete(r.listeners, i, i+1)
			}
		})
	}
}

// Submit proposes coloring (row, col) and returns without waiting for the
// server. The owner is always this replica's identity. Out-of-range cells are
// sent anyway; the server drops them and no notification follows.
func (r *Replica) Submit(row, col int, color palette.Color) error {
	return r.SubmitCell(board.Cell{Row: row, Col: col, Color: color})
}

// SubmitCell is Submit for a whole cell. Owner and Timestamp are ignored by
// the server.
func (r *Replica) SubmitCell(cell board.Cell) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	if !cell.Color.Valid() {
		return fmt.Errorf("%w: %d", palette.ErrUnknownColor, uint8(cell.Color))
	}

	cell.Owner = r.identity
	_ = r.conn.SetWriteDeadline(time.Now().Add(r.opts.writeTimeout))
	if err := r.conn.Write(protocol.ChangeTile(cell)); err != nil {
		// The receive loop sees the same failure on its next read
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return nil
}

// View returns the live local board.
func (r *Replica) View() board.View {
	return r.board
}

// Identity returns the name this replica logged in with.
func (r *Replica) Identity() string {
	return r.identity
}

// Done is closed when the replica terminates.
func (r *Replica) Done() <-chan struct{} {
	return r.done
}

// Active reports whether the receive loop is still running.
func (r *Replica) Active() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Err returns the terminal error, or nil while the replica is active.
func (r *Replica) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close ends the session. It does not wait: the receive goroutine observes
// the closed connection and delivers Terminated(ErrClosed) to listeners,
// unless the replica had already terminated for another reason. Done is
// closed once that has happened. Safe to call repeatedly and from a listener.
func (r *Replica) Close() error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()

	_ = r.conn.Close()
	return nil
}
