// Package protocol defines the envelope exchanged between canvas clients and
// the server, and its binary framing.
//
// # Envelope Types
//
//	LOGIN          client → server   identity string
//	LOGIN_SUCCESS  server → client   fixed text
//	ERROR          either            message text; fatal for the session
//	BOARD          server → client   full snapshot, sent once after LOGIN_SUCCESS
//	CHANGE_TILE    client → server   proposed cell
//	TILE_CHANGED   server → client   accepted, server-stamped cell
//
// # Session Flow
//
//	client                          server
//	  │ ── LOGIN{name} ───────────────▶ │
//	  │ ◀── LOGIN_SUCCESS ───────────── │   (or ERROR{"LOGIN_FAILURE"}, then close)
//	  │ ◀── BOARD{snapshot} ─────────── │
//	  │ ── CHANGE_TILE{cell} ─────────▶ │
//	  │ ◀── TILE_CHANGED{cell} ──────── │   (to every session, sender included)
//
// Any read error, decode error or ERROR envelope ends the session on both sides.
// There is no logout message and no heartbeat.
//
// # Framing
//
// Every envelope travels as one frame: a 6-byte header (type, reserved flags,
// big-endian uint32 payload length) followed by the payload. Integers inside
// payloads are varints; coordinates and timestamps use ZigZag so that
// out-of-range proposals such as (-1, 5) survive the trip and can be rejected
// by the board rather than the codec. Colors outside the palette are a decode
// error.
//
// The same frame bytes are used on raw TCP streams (read with ReadEnvelope)
// and as the body of binary websocket messages (read with Decode).
package protocol
