package websocket

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected      = errors.New("websocket: not connected")
	ErrLocalAction       = errors.New("websocket: local action cannot be sent")
	ErrMissingAction     = errors.New("websocket: missing action in envelope")
	ErrUnknownAction     = errors.New("websocket: unknown action")
	ErrMalformedEnvelope = errors.New("websocket: malformed envelope")
	ErrInvalidNumber     = errors.New("websocket: number out of range")
)

// ParseError wraps a parse failure with the offending action, when one was read.
type ParseError struct {
	Action Action
	Err    error
}

func (e *ParseError) Error() string {
	if e.Action == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (action %q)", e.Err, e.Action)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
