package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dreamware/place/internal/protocol"
	"github.com/dreamware/place/internal/transport"
)

// Session binds a logged-in identity to its connection.
//
// Outgoing envelopes are queued on a bounded channel and drained by the
// session's own writer goroutine, so the hub never blocks on a peer's socket.
// Thread-safe: enqueue and Close may be called from any goroutine.
type Session struct {
	ID       string         // Connection id for logs, assigned at accept
	identity string         // Set once the handshake succeeds
	conn     transport.Conn // Framed connection to the peer
	outbound chan protocol.Envelope
	done     chan struct{} // Closed when the session begins termination
	limiter  *rate.Limiter // Nil when changes are unthrottled
	log      *slog.Logger

	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newSession(conn transport.Conn, buffer int, writeTimeout, changeInterval time.Duration, logger *slog.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		ID:           id,
		conn:         conn,
		outbound:     make(chan protocol.Envelope, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		log:          logger.With("session", id, "remote", conn.RemoteAddr()),
	}
	if changeInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(changeInterval), 1)
	}
	return s
}

// Identity returns the name the session logged in with, or "" before login.
func (s *Session) Identity() string {
	return s.identity
}

// Done is closed once the session starts shutting down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// enqueue queues env for delivery without blocking.
// Returns false if the session is closing or its queue is full.
func (s *Session) enqueue(env protocol.Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbound <- env:
		return true
	default:
		return false
	}
}

// writeLoop drains the outbound queue until the session closes.
// onFailure runs once if a write fails or times out.
func (s *Session) writeLoop(onFailure func(*Session)) {
	for {
		select {
		case <-s.done:
			return
		case env := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.Write(env); err != nil {
				s.log.Warn("write failed, dropping session", "type", env.Type, "err", err)
				onFailure(s)
				return
			}
		}
	}
}

// writeNow sends env synchronously, bypassing the queue.
// Used only before the writer goroutine exists.
func (s *Session) writeNow(env protocol.Envelope) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.Write(env)
}

// throttle waits until the session may submit another change.
func (s *Session) throttle(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// Close terminates the session: it stops the writer and closes the
// connection, unblocking the handler's pending read. Safe to call repeatedly.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
