package client

import (
	"errors"
	"fmt"
)

var (
	// ErrLoginRejected is returned by Connect when the server refuses the
	// identity, either because it is empty or already logged in.
	ErrLoginRejected = errors.New("client: login rejected")

	// ErrConnectionFailed is returned by Connect when the server cannot be
	// reached or the handshake does not complete.
	ErrConnectionFailed = errors.New("client: connection failed")

	// ErrConnectionLost terminates a replica whose connection failed or
	// carried an unexpected envelope after login.
	ErrConnectionLost = errors.New("client: connection lost")

	// ErrClosed terminates a replica closed by its owner, and is returned by
	// Submit afterwards.
	ErrClosed = errors.New("client: closed")
)

// ServerError is the terminal error of a replica whose server sent ERROR.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("client: server error: %s", e.Message)
}
