package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dreamware/place/internal/protocol"
)

// ErrUnexpectedMessage is returned when a websocket peer sends a non-binary message.
var ErrUnexpectedMessage = errors.New("transport: expected binary websocket message")

// WebSocket carries one envelope frame per binary websocket message.
type WebSocket struct {
	conn    *websocket.Conn
	maxSize int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewWebSocket wraps an established websocket connection.
func NewWebSocket(conn *websocket.Conn, maxSize int) *WebSocket {
	if maxSize <= 0 {
		maxSize = protocol.DefaultMaxFrameSize
	}
	conn.SetReadLimit(int64(maxSize + protocol.FrameHeaderSize))
	return &WebSocket{
		conn:    conn,
		maxSize: maxSize,
		closed:  make(chan struct{}),
	}
}

// Read implements Conn.
func (w *WebSocket) Read() (protocol.Envelope, error) {
	mt, data, err := w.conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	if mt != websocket.BinaryMessage {
		return protocol.Envelope{}, fmt.Errorf("%w: type %d", ErrUnexpectedMessage, mt)
	}
	return protocol.Decode(data, w.maxSize)
}

// Write implements Conn.
func (w *WebSocket) Write(env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	select {
	case <-w.closed:
		return ErrClosed
	default:
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// SetReadDeadline implements Conn.
func (w *WebSocket) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements Conn.
func (w *WebSocket) SetWriteDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}

// RemoteAddr implements Conn.
func (w *WebSocket) RemoteAddr() string {
	if addr := w.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Close sends a best-effort close frame and closes the underlying connection.
func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() {
		close(w.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
