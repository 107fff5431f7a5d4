package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/config"
	"github.com/dreamware/place/internal/palette"
	"github.com/dreamware/place/internal/protocol"
	"github.com/dreamware/place/internal/server"
	"github.com/dreamware/place/internal/transport"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// recorder collects notifications for assertions.
type recorder struct {
	mu      sync.Mutex
	changes []board.Cell
	errs    []error
}

func (r *recorder) CellChanged(c board.Cell) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) Terminated(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshot() ([]board.Cell, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]board.Cell(nil), r.changes...), append([]error(nil), r.errs...)
}

func startServer(t *testing.T, dim int) (*server.Server, string) {
	t.Helper()
	cfg := config.DefaultServer()
	cfg.Dimension = dim
	srv, err := server.New(cfg, server.WithLogger(quiet))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ln.Addr().String()
}

func connect(t *testing.T, addr, name string) *Replica {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := Connect(ctx, addr, name, WithLogger(quiet))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// pipe returns a client conn and the scripted server end of an in-memory link.
func pipe(t *testing.T) (transport.Conn, *transport.Stream) {
	t.Helper()
	a, b := net.Pipe()
	c, s := transport.NewStream(a, 0), transport.NewStream(b, 0)
	t.Cleanup(func() {
		_ = c.Close()
		_ = s.Close()
	})
	return c, s
}

// acceptLogin plays the server half of a successful handshake on s.
// It runs on its own goroutine, so failures are reported with assert.
func acceptLogin(t *testing.T, s *transport.Stream, dim int) {
	b, err := board.New(dim)
	if !assert.NoError(t, err) {
		return
	}

	env, err := s.Read()
	if !assert.NoError(t, err) || !assert.Equal(t, protocol.TypeLogin, env.Type) {
		return
	}
	if !assert.NoError(t, s.Write(protocol.LoginSuccess())) {
		return
	}
	assert.NoError(t, s.Write(protocol.Board(b.Snapshot())))
}

func waitDone(t *testing.T, r *Replica) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replica did not terminate")
	}
}

func TestConnect(t *testing.T) {
	_, addr := startServer(t, 3)
	r := connect(t, addr, "alice")

	assert.True(t, r.Active())
	assert.NoError(t, r.Err())
	assert.Equal(t, "alice", r.Identity())

	view := r.View()
	require.Equal(t, 3, view.Dimension())
	for _, c := range view.Snapshot().Cells {
		assert.Equal(t, palette.Baseline, c.Color)
		assert.Empty(t, c.Owner)
		assert.Zero(t, c.Timestamp)
	}
}

func TestConnectDuplicateIdentity(t *testing.T) {
	_, addr := startServer(t, 3)
	first := connect(t, addr, "alice")

	_, err := Connect(context.Background(), addr, "alice", WithLogger(quiet))
	assert.ErrorIs(t, err, ErrLoginRejected)

	// The first session is unaffected
	assert.True(t, first.Active())
	second := connect(t, addr, "bob")
	assert.True(t, second.Active())
}

func TestConnectFailed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Connect(context.Background(), addr, "alice", WithLogger(quiet), WithDialTimeout(time.Second))
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestSubmitNotifiesEveryReplica(t *testing.T) {
	_, addr := startServer(t, 3)
	alice := connect(t, addr, "alice")
	bob := connect(t, addr, "bob")

	var aliceEvents, bobEvents recorder
	defer alice.Subscribe(&aliceEvents)()
	defer bob.Subscribe(&bobEvents)()

	require.NoError(t, alice.Submit(1, 1, palette.Red))

	for _, tc := range []struct {
		replica *Replica
		events  *recorder
	}{
		{alice, &aliceEvents},
		{bob, &bobEvents},
	} {
		require.Eventually(t, func() bool {
			changes, _ := tc.events.snapshot()
			return len(changes) == 1
		}, 2*time.Second, 10*time.Millisecond)

		changes, _ := tc.events.snapshot()
		assert.Equal(t, 1, changes[0].Row)
		assert.Equal(t, 1, changes[0].Col)
		assert.Equal(t, palette.Red, changes[0].Color)
		assert.Equal(t, "alice", changes[0].Owner)

		// The local board was updated before the notification
		cell, err := tc.replica.View().Get(1, 1)
		require.NoError(t, err)
		assert.Equal(t, changes[0], cell)
	}
}

func TestSubmitOutOfRangeProducesNothing(t *testing.T) {
	_, addr := startServer(t, 3)
	r := connect(t, addr, "alice")

	var events recorder
	defer r.Subscribe(&events)()

	require.NoError(t, r.Submit(5, 5, palette.Red))
	require.NoError(t, r.Submit(0, 0, palette.Blue))

	require.Eventually(t, func() bool {
		changes, _ := events.snapshot()
		return len(changes) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// The valid change is the first and only notification
	changes, _ := events.snapshot()
	require.Len(t, changes, 1)
	assert.Equal(t, 0, changes[0].Row)
	assert.Equal(t, palette.Blue, changes[0].Color)
}

func TestSubmitRejectsInvalidColor(t *testing.T) {
	_, addr := startServer(t, 3)
	r := connect(t, addr, "alice")
	assert.ErrorIs(t, r.Submit(0, 0, palette.Color(42)), palette.ErrUnknownColor)
}

func TestPerCellTimestampsNonDecreasing(t *testing.T) {
	_, addr := startServer(t, 2)
	r := connect(t, addr, "alice")

	var events recorder
	defer r.Subscribe(&events)()

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, r.Submit(1, 0, palette.Color(i%int(palette.Count))))
	}
	require.Eventually(t, func() bool {
		changes, _ := events.snapshot()
		return len(changes) == n
	}, 2*time.Second, 10*time.Millisecond)

	changes, _ := events.snapshot()
	for i := 1; i < n; i++ {
		assert.GreaterOrEqual(t, changes[i].Timestamp, changes[i-1].Timestamp)
		assert.Equal(t, palette.Color(i%int(palette.Count)), changes[i].Color, "wire order preserved")
	}
	cell, err := r.View().Get(1, 0)
	require.NoError(t, err)
	assert.Equal(t, changes[n-1], cell)
}

func TestServerErrorTerminates(t *testing.T) {
	conn, srv := pipe(t)
	go acceptLogin(t, srv, 2)

	r, err := Handshake(context.Background(), conn, "alice", WithLogger(quiet))
	require.NoError(t, err)

	var events recorder
	r.Subscribe(&events)

	cell := board.Cell{Row: 1, Col: 1, Color: palette.Aqua, Owner: "bob", Timestamp: 42}
	require.NoError(t, srv.Write(protocol.TileChanged(cell)))
	require.NoError(t, srv.Write(protocol.Error("server shutting down")))
	waitDone(t, r)

	changes, errs := events.snapshot()
	assert.Equal(t, []board.Cell{cell}, changes)
	require.Len(t, errs, 1)

	var serverErr *ServerError
	require.True(t, errors.As(errs[0], &serverErr))
	assert.Equal(t, "server shutting down", serverErr.Message)
	assert.Equal(t, errs[0], r.Err())
	assert.False(t, r.Active())
	assert.ErrorIs(t, r.Submit(0, 0, palette.Red), ErrClosed)
}

func TestConnectionLost(t *testing.T) {
	conn, srv := pipe(t)
	go acceptLogin(t, srv, 2)

	r, err := Handshake(context.Background(), conn, "alice", WithLogger(quiet))
	require.NoError(t, err)

	var events recorder
	r.Subscribe(&events)

	require.NoError(t, srv.Close())
	waitDone(t, r)

	_, errs := events.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrConnectionLost)

	// Late subscribers still learn about the termination
	var late recorder
	r.Subscribe(&late)
	_, lateErrs := late.snapshot()
	require.Len(t, lateErrs, 1)
	assert.ErrorIs(t, lateErrs[0], ErrConnectionLost)
}

func TestWithListenerSeesChangeSentRightAfterBoard(t *testing.T) {
	conn, srv := pipe(t)
	cell := board.Cell{Row: 0, Col: 1, Color: palette.Olive, Owner: "bob", Timestamp: 7}
	go func() {
		acceptLogin(t, srv, 2)
		// Sent before Handshake has returned to the caller
		assert.NoError(t, srv.Write(protocol.TileChanged(cell)))
	}()

	var events recorder
	r, err := Handshake(context.Background(), conn, "alice", WithLogger(quiet), WithListener(&events))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		changes, _ := events.snapshot()
		return len(changes) == 1
	}, 2*time.Second, 5*time.Millisecond)
	changes, _ := events.snapshot()
	assert.Equal(t, []board.Cell{cell}, changes)

	got, err := r.View().Get(0, 1)
	require.NoError(t, err)
	assert.Equal(t, cell, got)

	require.NoError(t, r.Close())
	waitDone(t, r)
	_, errs := events.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrClosed)
}

func TestUnexpectedEnvelopeTerminates(t *testing.T) {
	conn, srv := pipe(t)
	go acceptLogin(t, srv, 2)

	r, err := Handshake(context.Background(), conn, "alice", WithLogger(quiet))
	require.NoError(t, err)

	require.NoError(t, srv.Write(protocol.LoginSuccess()))
	waitDone(t, r)
	assert.ErrorIs(t, r.Err(), ErrConnectionLost)
}

func TestHandshakeFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply []protocol.Envelope
		want  error
	}{
		{
			name:  "login failure",
			reply: []protocol.Envelope{protocol.Error(protocol.LoginFailure)},
			want:  ErrLoginRejected,
		},
		{
			name:  "other server error",
			reply: []protocol.Envelope{protocol.Error("full")},
			want:  ErrConnectionFailed,
		},
		{
			name:  "board before success",
			reply: []protocol.Envelope{protocol.TileChanged(board.Cell{})},
			want:  ErrConnectionFailed,
		},
		{
			name:  "missing board",
			reply: []protocol.Envelope{protocol.LoginSuccess(), protocol.LoginSuccess()},
			want:  ErrConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, srv := pipe(t)
			go func() {
				if _, err := srv.Read(); err != nil {
					return
				}
				for _, env := range tt.reply {
					if err := srv.Write(env); err != nil {
						return
					}
				}
			}()

			_, err := Handshake(context.Background(), conn, "alice", WithLogger(quiet))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHandshakeTimeout(t *testing.T) {
	conn, srv := pipe(t)
	go func() { _, _ = srv.Read() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := Handshake(ctx, conn, "alice", WithLogger(quiet))
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, addr := startServer(t, 2)
	r := connect(t, addr, "alice")

	var events recorder
	r.Subscribe(&events)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	waitDone(t, r)
	require.NoError(t, r.Close())

	assert.ErrorIs(t, r.Err(), ErrClosed)
	_, errs := events.snapshot()
	assert.Equal(t, []error{ErrClosed}, errs)

	// The name becomes free again
	require.Eventually(t, func() bool {
		return len(srv.Hub().Sessions()) == 0
	}, 2*time.Second, 10*time.Millisecond)
	again := connect(t, addr, "alice")
	assert.True(t, again.Active())
}

func TestUnsubscribe(t *testing.T) {
	_, addr := startServer(t, 2)
	r := connect(t, addr, "alice")

	var kept, removed recorder
	r.Subscribe(&kept)
	unsubscribe := r.Subscribe(&removed)
	unsubscribe()
	unsubscribe()

	require.NoError(t, r.Submit(0, 1, palette.Green))
	require.Eventually(t, func() bool {
		changes, _ := kept.snapshot()
		return len(changes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	changes, _ := removed.snapshot()
	assert.Empty(t, changes)
}

func TestListenerFuncs(t *testing.T) {
	var got board.Cell
	var gotErr error
	l := ListenerFuncs{
		OnChange:    func(c board.Cell) { got = c },
		OnTerminate: func(err error) { gotErr = err },
	}
	l.CellChanged(board.Cell{Row: 2})
	l.Terminated(ErrClosed)
	assert.Equal(t, 2, got.Row)
	assert.ErrorIs(t, gotErr, ErrClosed)

	assert.NotPanics(t, func() {
		ListenerFuncs{}.CellChanged(board.Cell{})
		ListenerFuncs{}.Terminated(nil)
	})
}

func TestConnectWebSocket(t *testing.T) {
	srv, addr := startServer(t, 3)
	httpSrv := httptest.NewServer(srv.Router(nil))
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	ws, err := ConnectWebSocket(context.Background(), url, "wanda", WithLogger(quiet))
	require.NoError(t, err)
	defer ws.Close()

	tcp := connect(t, addr, "tina")

	var events recorder
	defer tcp.Subscribe(&events)()

	require.NoError(t, ws.Submit(2, 2, palette.Purple))
	require.Eventually(t, func() bool {
		changes, _ := events.snapshot()
		return len(changes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	changes, _ := events.snapshot()
	assert.Equal(t, "wanda", changes[0].Owner)

	_, err = ConnectWebSocket(context.Background(), url, "tina", WithLogger(quiet))
	assert.ErrorIs(t, err, ErrLoginRejected)
}
