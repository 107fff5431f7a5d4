// Package board implements the canvas grid: a fixed-dimension square of cells,
// each holding a palette color, the identity of its last writer and the time of
// that write.
//
// # Overview
//
// The same Board type plays two roles:
//
//   - On the server it is the single source of truth. It is owned by the hub,
//     which serializes Validate + Apply + broadcast under one lock.
//   - On each client it is a read-mostly replica. The receive loop is its only
//     writer (via Set); renderers and agents read it through the View interface.
//
// # Layout
//
//	┌───────────────────────────────────────┐
//	│ Board (dim = 3)                       │
//	├───────────────────────────────────────┤
//	│ cells: row-major []Cell, len = dim²   │
//	│                                       │
//	│   (0,0) (0,1) (0,2)                   │
//	│   (1,0) (1,1) (1,2)   index = r*dim+c │
//	│   (2,0) (2,1) (2,2)                   │
//	└───────────────────────────────────────┘
//
// # Mutation Rules
//
// Cells are never partially updated. Apply and Set replace the whole Cell value
// under the board's write lock, so a concurrent Get or Snapshot sees either the
// old cell or the new one.
//
// Validate is purely geometric. Any color and any owner are acceptable, and
// there is no staleness check: concurrent writes to the same cell resolve as
// last-writer-wins in the order the caller's lock admits them.
//
// Apply stamps the candidate with the current time in epoch milliseconds. The
// stamp is clamped so it never drops below the previous stamp, which keeps
// per-cell timestamps non-decreasing across wall clock adjustments.
//
// # Errors
//
//   - ErrOutOfRange: coordinates outside [0, dimension)
//   - ErrInvalidSnapshot: a snapshot whose cell count or coordinates do not
//     describe a square grid
package board
