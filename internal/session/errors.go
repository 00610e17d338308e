package session

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("session closed")
	ErrNotJoined        = errors.New("not in a room")
	ErrAlreadyJoined    = errors.New("already in a room")
	ErrInvalidState     = errors.New("message not valid in current state")
	ErrNoPeerConnection = errors.New("no peer connection")
	ErrNoVideoSender    = errors.New("no outgoing video track")
	ErrChannelFailed    = errors.New("data channel failed to open")
	ErrRelayUnreachable = errors.New("relay unreachable")
	ErrNoMediaSource    = errors.New("no media source configured")
)

// Error annotates a session failure with the operation that hit it.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
