package session

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when writing to a session whose stream has ended or
// that was closed.
var ErrClosed = errors.New("session is not alive")

// ConnectionError reports that a console could not be reached or written to.
type ConnectionError struct {
	Session  string // Console name, e.g. "guest"
	Endpoint string // Command line, host:port or user@host
	Op       string // "open", "send" or "ready"
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Session, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
