package client

import "github.com/dreamware/place/internal/board"

// Listener receives replica notifications. Both methods are called on the
// replica's receive goroutine, in wire order, after the local board has been
// updated. A slow listener delays every later notification.
type Listener interface {
	// CellChanged is called once per TILE_CHANGED with the cell as stored.
	CellChanged(cell board.Cell)

	// Terminated is called exactly once when the replica stops. err is
	// ErrClosed, a *ServerError, or wraps ErrConnectionLost.
	Terminated(err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnChange    func(cell board.Cell)
	OnTerminate func(err error)
}

// CellChanged implements Listener.
func (f ListenerFuncs) CellChanged(cell board.Cell) {
	if f.OnChange != nil {
		f.OnChange(cell)
	}
}

// Terminated implements Listener.
func (f ListenerFuncs) Terminated(err error) {
	if f.OnTerminate != nil {
		f.OnTerminate(err)
	}
}

// registration gives each Subscribe call its own identity, so the same
// Listener value can be subscribed twice and removed independently.
type registration struct {
	listener Listener
}
