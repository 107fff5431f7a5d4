// Package server implements the canvas server: the connection acceptor, the
// per-connection session handler and the Hub that owns the authoritative
// board and fans committed changes out to every logged-in session.
//
// # Overview
//
// Each accepted connection (TCP or websocket) gets its own handler goroutine.
// The handler waits for LOGIN, asks the Hub to admit the identity, and then
// reads CHANGE_TILE envelopes until the peer leaves or misbehaves. Writes go
// through a bounded per-session queue drained by a dedicated writer, so one
// slow peer never delays a commit for the others.
//
// # Architecture
//
//	┌──────────────┐   accept    ┌──────────────────────┐
//	│  Listener    │────────────▶│  handler (1 per conn) │
//	│  TCP or /ws  │             │  LOGIN → read loop    │
//	└──────────────┘             └──────────┬────────────┘
//	                                        │ Admit / SubmitChange
//	                                        ▼
//	                             ┌──────────────────────┐
//	                             │  Hub                 │
//	                             │  board + sessions    │
//	                             └──────────┬───────────┘
//	                                        │ enqueue
//	                                        ▼
//	                             ┌──────────────────────┐
//	                             │  writer (1 per conn) │
//	                             │  deadline per write  │
//	                             └──────────────────────┘
//
// # Session Lifecycle
//
//  1. Connected: the handler waits up to LoginTimeout for LOGIN
//  2. Rejected: empty or duplicate identity gets ERROR("LOGIN_FAILURE") and the
//     connection is closed
//  3. Active: LOGIN_SUCCESS then BOARD are queued atomically with registration,
//     followed by every TILE_CHANGED committed afterwards
//  4. Terminated: on disconnect, protocol error, write failure or a full queue
//     the session is unregistered and its connection closed exactly once
//
// # Ownership
//
// The owner of an applied change is always the submitting session's identity;
// whatever owner the client put on the wire is ignored.
//
// # Observability
//
// Logging goes through log/slog with session, remote and identity attributes.
// Metrics are registered on a caller-supplied prometheus.Registerer, and the
// Hub opens OpenTelemetry spans for admissions and changes using the global
// tracer provider.
package server
