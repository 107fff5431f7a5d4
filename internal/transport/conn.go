// Package transport carries protocol envelopes over a connection.
//
// Two implementations share the Conn interface: Stream frames envelopes on a
// raw byte stream (TCP), WebSocket sends each frame as one binary message.
// Reads are meant for a single goroutine; writes and Close are safe for
// concurrent use. Close is idempotent.
package transport

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/dreamware/place/internal/protocol"
)

// Conn is a bidirectional, framed envelope connection.
type Conn interface {
	// Read blocks until one complete envelope has been received and decoded.
	Read() (protocol.Envelope, error)

	// Write encodes and sends one envelope.
	Write(env protocol.Envelope) error

	// SetReadDeadline bounds the next Read. The zero time clears it.
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline bounds subsequent Writes. The zero time clears it.
	SetWriteDeadline(t time.Time) error

	// RemoteAddr describes the peer for logging.
	RemoteAddr() string

	// Close releases the connection; any blocked Read returns an error.
	Close() error
}

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("transport: connection closed")

// Stream frames envelopes over a net.Conn.
type Stream struct {
	conn    net.Conn
	reader  *bufio.Reader
	maxSize int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewStream wraps conn. maxSize bounds incoming payloads; 0 selects
// protocol.DefaultMaxFrameSize.
func NewStream(conn net.Conn, maxSize int) *Stream {
	return &Stream{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		maxSize: maxSize,
		closed:  make(chan struct{}),
	}
}

// Read implements Conn.
func (s *Stream) Read() (protocol.Envelope, error) {
	return protocol.ReadEnvelope(s.reader, s.maxSize)
}

// Write implements Conn.
func (s *Stream) Write(env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	_, err = s.conn.Write(frame)
	return err
}

// SetReadDeadline implements Conn.
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements Conn.
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// RemoteAddr implements Conn.
func (s *Stream) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Close implements Conn.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
