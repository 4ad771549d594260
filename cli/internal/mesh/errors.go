package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrStopped          = errors.New("coordinator stopped")
	ErrUnexpectedSignal = errors.New("unexpected signal")
	ErrChannelNotOpen   = errors.New("channel not open")
)

// MeshError records which negotiation step failed for which peer.
type MeshError struct {
	Op   string
	Peer string
	Err  error
}

func (e *MeshError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MeshError) Unwrap() error {
	return e.Err
}

func NewError(op, peer string, err error) *MeshError {
	return &MeshError{Op: op, Peer: peer, Err: err}
}
