package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/config"
	"github.com/dreamware/place/internal/protocol"
	"github.com/dreamware/place/internal/transport"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server accepts connections and runs one session handler per connection
// against a shared Hub.
type Server struct {
	cfg      config.Server
	hub      *Hub
	metrics  *Metrics
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	live      map[*Session]struct{} // Every handler still running, logged in or not
	closing   bool
	wg        sync.WaitGroup // One per live handler
}

// New creates a server with a fresh board of cfg.Dimension.
func New(cfg config.Server, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := board.New(cfg.Dimension)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		log:       slog.Default(),
		listeners: make(map[net.Listener]struct{}),
		live:      make(map[*Session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	// LOGIN_SUCCESS and BOARD are queued before the writer starts
	if s.cfg.OutboundBuffer < 2 {
		s.cfg.OutboundBuffer = 2
	}
	s.hub = NewHub(b, s.metrics, s.log)
	return s, nil
}

// Hub returns the server's session registry and broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe listens on cfg.Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until ln fails or Shutdown is called.
// It always returns a non-nil error; after Shutdown it is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listeners[ln] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.listeners, ln)
		s.mu.Unlock()
	}()

	s.log.Info("listening", "addr", ln.Addr().String(), "dimension", s.cfg.Dimension)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			// Transient accept failures (e.g. EMFILE): back off and retry
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.log.Warn("accept failed", "err", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		stream := transport.NewStream(conn, s.cfg.MaxFrameSize)
		if !s.serveConn(stream) {
			_ = stream.Close()
		}
	}
}

// serveConn starts a handler for conn. Returns false if the server is shutting down.
func (s *Server) serveConn(conn transport.Conn) bool {
	sess := newSession(conn, s.cfg.OutboundBuffer, s.cfg.WriteTimeout, s.cfg.ChangeInterval, s.log)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return false
	}
	s.live[sess] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.connectionAccepted()
	sess.log.Debug("accepted connection")
	go s.handle(sess)
	return true
}

// handle runs one connection from LOGIN to termination. Whatever ends the
// session, it is unregistered and its connection closed exactly once.
func (s *Server) handle(sess *Session) {
	defer s.wg.Done()
	defer s.untrack(sess)
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sess.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.LoginTimeout))
	env, err := sess.conn.Read()
	if err != nil {
		s.terminate(sess, "login read", err)
		return
	}
	if env.Type != protocol.TypeLogin {
		s.terminate(sess, "protocol", fmt.Errorf("expected LOGIN, got %s", env.Type))
		return
	}
	_ = sess.conn.SetReadDeadline(time.Time{})

	sess.identity = env.Text
	sess.log = sess.log.With("identity", sess.identity)

	if !s.hub.Admit(ctx, sess) {
		sess.log.Info("login rejected")
		if err := sess.writeNow(protocol.Error(protocol.LoginFailure)); err != nil {
			sess.log.Debug("could not deliver login failure", "err", err)
		}
		s.metrics.terminated("login_rejected")
		return
	}
	defer s.hub.release(sess)

	go sess.writeLoop(s.hub.drop)
	sess.log.Info("session registered")

	for {
		env, err := sess.conn.Read()
		if err != nil {
			s.terminate(sess, "read", err)
			return
		}

		switch env.Type {
		case protocol.TypeChangeTile:
			if err := sess.throttle(ctx); err != nil {
				s.terminate(sess, "throttle", err)
				return
			}
			cell := env.Cell
			cell.Owner = sess.identity
			s.hub.SubmitChange(ctx, cell)
		case protocol.TypeError:
			sess.log.Info("peer sent error", "message", env.Text)
			s.metrics.terminated("peer_error")
			return
		default:
			s.terminate(sess, "protocol", fmt.Errorf("unexpected %s after login", env.Type))
			return
		}
	}
}

// terminate logs why a session ended and records the reason.
func (s *Server) terminate(sess *Session, stage string, err error) {
	select {
	case <-sess.Done():
		sess.log.Debug("session closed", "stage", stage)
		s.metrics.terminated("closed")
		return
	default:
	}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		sess.log.Info("client disconnected", "stage", stage)
		s.metrics.terminated("disconnect")
	case isProtocolError(err):
		sess.log.Warn("protocol error", "stage", stage, "err", err)
		s.metrics.terminated("protocol")
	default:
		sess.log.Warn("connection lost", "stage", stage, "err", err)
		s.metrics.terminated("connection_lost")
	}
}

func isProtocolError(err error) bool {
	for _, target := range []error{
		protocol.ErrUnknownType,
		protocol.ErrInvalidColor,
		protocol.ErrTrailingData,
		protocol.ErrBadDimension,
		protocol.ErrFrameTooLarge,
		protocol.ErrReservedFlags,
		protocol.ErrVarintOverflow,
		protocol.ErrAllocationTooLarge,
		transport.ErrUnexpectedMessage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.live, sess)
	s.mu.Unlock()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting, closes every live session (unblocking their
// reads) and waits for all handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for ln := range s.listeners {
		_ = ln.Close()
	}
	live := make([]*Session, 0, len(s.live))
	for sess := range s.live {
		live = append(live, sess)
	}
	s.mu.Unlock()

	// A websocket close can wait out its control-frame deadline on a
	// stalled peer, so sessions close in parallel and outside mu.
	for _, sess := range live {
		go func(sess *Session) { _ = sess.Close() }(sess)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
