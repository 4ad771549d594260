package signaling

import (
	"errors"

	"github.com/morichikawa/echa25/internal/protocol"
)

var (
	// ErrInvalidInput rejects a join before any record is written.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotInRoom rejects a signal from a connection that never joined.
	ErrNotInRoom = errors.New("not in a room")
	// ErrGone means the recipient connection no longer exists.
	ErrGone = errors.New("connection gone")
	// ErrBackpressure means the recipient's send buffer is full.
	ErrBackpressure = errors.New("send buffer full")
)

// errorEnvelope maps a registry error onto the envelope sent to the client.
func errorEnvelope(err error) protocol.Error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return protocol.Error{Code: protocol.CodeInvalidInput, Message: err.Error()}
	case errors.Is(err, ErrNotInRoom):
		return protocol.Error{Code: protocol.CodeNotInRoom, Message: "You must join a room first"}
	case errors.Is(err, protocol.ErrMalformed):
		return protocol.Error{Code: protocol.CodeMalformed, Message: err.Error()}
	default:
		return protocol.Error{Code: protocol.CodeInternal, Message: "Internal error"}
	}
}
