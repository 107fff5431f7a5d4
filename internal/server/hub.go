package server

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slices"

	"github.com/dreamware/place/internal/board"
	"github.com/dreamware/place/internal/protocol"
)

const tracerName = "github.com/dreamware/place/internal/server"

// Hub is the session registry and broadcaster. It owns the authoritative
// board and the set of logged-in sessions, and it is the only place either
// is mutated.
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│                  Hub                     │
//	├──────────────────────────────────────────┤
//	│  mu: one lock for board + sessions       │
//	│  board: authoritative *board.Board       │
//	│  sessions: identity → *Session           │
//	├──────────────────────────────────────────┤
//	│  SubmitChange:                           │
//	│    lock → validate → apply → enqueue     │
//	│    TILE_CHANGED on every queue → unlock  │
//	└──────────────────────────────────────────┘
//
// Concurrency Model:
//   - validate + apply + broadcast enqueue run under mu as one unit, so the
//     order of TILE_CHANGED on every queue equals commit order
//   - registration enqueues LOGIN_SUCCESS and BOARD under the same lock, so a
//     new session sees either a change in its snapshot or as a later delta,
//     never both and never neither
//   - no socket I/O happens under mu; enqueue never blocks
//   - sessions whose queue is full are removed under mu and closed after it
//     is released
type Hub struct {
	mu       sync.Mutex
	board    *board.Board
	sessions map[string]*Session // identity → session

	metrics *Metrics
	tracer  trace.Tracer
	log     *slog.Logger
}

// NewHub creates a hub around b. A nil metrics disables instrumentation.
//
// Example:
//
//	b, _ := board.New(10)
//	hub := NewHub(b, nil, slog.Default())
func NewHub(b *board.Board, metrics *Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		board:    b,
		sessions: make(map[string]*Session),
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
		log:      logger,
	}
}

// RegisterIfAbsent adds s under identity unless that identity is already
// registered. The test and insert are atomic.
//
// Returns:
//   - true if s was registered
//   - false if identity was taken (nothing is inserted)
func (h *Hub) RegisterIfAbsent(identity string, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registerLocked(identity, s)
}

// Admit performs the server half of the login handshake for s: it registers
// the session and queues LOGIN_SUCCESS followed by the full board, all under
// the hub lock so no broadcast can slip between the snapshot and the
// session's first delta.
//
// Returns false if s.Identity() is empty, longer than
// protocol.MaxIdentityLength or already registered.
func (h *Hub) Admit(ctx context.Context, s *Session) bool {
	_, span := h.tracer.Start(ctx, "hub.admit", trace.WithAttributes(
		attribute.String("place.identity", s.identity),
		attribute.String("place.session", s.ID),
	))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	if !protocol.ValidIdentity(s.identity) || !h.registerLocked(s.identity, s) {
		span.SetAttributes(attribute.Bool("place.admitted", false))
		span.SetStatus(codes.Error, "identity unavailable")
		h.metrics.loginRejected()
		return false
	}

	// The queue is empty and sized at least for these two envelopes
	s.enqueue(protocol.LoginSuccess())
	s.enqueue(protocol.Board(h.board.Snapshot()))

	span.SetAttributes(attribute.Bool("place.admitted", true))
	h.metrics.loginAccepted()
	return true
}

func (h *Hub) registerLocked(identity string, s *Session) bool {
	if _, exists := h.sessions[identity]; exists {
		return false
	}
	h.sessions[identity] = s
	h.metrics.setActive(len(h.sessions))
	return true
}

// Unregister removes whichever session holds identity.
// Removing an identity that is not registered is a no-op.
func (h *Hub) Unregister(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.sessions[identity]; exists {
		delete(h.sessions, identity)
		h.metrics.setActive(len(h.sessions))
	}
}

// release removes s only if it is still the session registered under its
// identity, so a late cleanup cannot evict a newer login with the same name.
func (h *Hub) release(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseLocked(s)
}

func (h *Hub) releaseLocked(s *Session) {
	if current, ok := h.sessions[s.identity]; ok && current == s {
		delete(h.sessions, s.identity)
		h.metrics.setActive(len(h.sessions))
	}
}

// drop unregisters s and closes it. Used when delivery to s fails.
func (h *Hub) drop(s *Session) {
	h.release(s)
	_ = s.Close()
}

// SubmitChange validates and applies candidate, then broadcasts the stamped
// cell to every registered session, including the submitter.
//
// Invalid candidates are dropped silently: no mutation, no broadcast.
// Delivery is best-effort per recipient; a session whose queue is full is
// dropped without affecting the others.
//
// Returns:
//   - true if the change was applied and broadcast
//   - false if the candidate was out of range or its owner too long
func (h *Hub) SubmitChange(ctx context.Context, candidate board.Cell) bool {
	_, span := h.tracer.Start(ctx, "hub.submit_change", trace.WithAttributes(
		attribute.Int("place.row", candidate.Row),
		attribute.Int("place.col", candidate.Col),
		attribute.String("place.color", candidate.Color.String()),
		attribute.String("place.owner", candidate.Owner),
	))
	defer span.End()

	var stragglers []*Session

	h.mu.Lock()
	// Owners longer than any identity would break the BOARD size bound
	if !h.board.Validate(candidate) || len(candidate.Owner) > protocol.MaxIdentityLength {
		h.mu.Unlock()
		span.SetAttributes(attribute.Bool("place.accepted", false))
		span.SetStatus(codes.Error, "invalid change")
		h.metrics.changeRejected()
		h.log.Debug("dropped invalid change", "row", candidate.Row, "col", candidate.Col, "owner", candidate.Owner)
		return false
	}

	applied := h.board.Apply(candidate)
	recipients := len(h.sessions)
	env := protocol.TileChanged(applied)
	for _, s := range h.sessions {
		if !s.enqueue(env) {
			stragglers = append(stragglers, s)
		}
	}
	// Removed before unlocking so no later broadcast targets them
	for _, s := range stragglers {
		h.releaseLocked(s)
	}
	h.mu.Unlock()

	for _, s := range stragglers {
		s.log.Warn("could not queue change, dropping session", "identity", s.identity)
		h.metrics.broadcastDropped()
		_ = s.Close()
	}

	if len(stragglers) > 0 {
		span.AddEvent("dropped stragglers", trace.WithAttributes(attribute.Int("place.dropped", len(stragglers))))
	}
	span.SetAttributes(
		attribute.Bool("place.accepted", true),
		attribute.Int("place.recipients", recipients),
	)
	h.metrics.changeAccepted()
	return true
}

// Sessions returns the registered identities in sorted order.
func (h *Hub) Sessions() []string {
	h.mu.Lock()
	identities := make([]string, 0, len(h.sessions))
	for identity := range h.sessions {
		identities = append(identities, identity)
	}
	h.mu.Unlock()

	slices.Sort(identities)
	return identities
}

// Snapshot returns a copy of the authoritative board.
func (h *Hub) Snapshot() board.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.board.Snapshot()
}

// Dimension returns the board dimension.
func (h *Hub) Dimension() int {
	return h.board.Dimension()
}
