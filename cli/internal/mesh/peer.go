package mesh

import (
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/morichikawa/echa25/cli/internal/canvas"
)

// State is the connection state of a peer entry.
type State int

const (
	StateNegotiating State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// maxQueuedCandidates bounds the candidates held for one peer.
const maxQueuedCandidates = 128

// peer is the coordinator's entry for one remote participant. Only the
// coordinator goroutine touches it.
type peer struct {
	id        string
	initiator bool

	// gen identifies the current transport; callbacks from older ones are
	// ignored.
	gen       int
	// attempt numbers the negotiation in flight: our own offer's number on
	// the initiator, the answered offer's number on the responder.
	attempt   int
	transport Transport
	channel   Channel
	codec     canvas.Codec
	remoteSet bool
	pending   []queuedCandidate

	state     State
	restarts  int
	startedAt time.Time

	sent     int
	received int
	dropped  int
}

// queuedCandidate is a remote candidate waiting for its remote description.
type queuedCandidate struct {
	ci      pion.ICECandidateInit
	attempt int
}

// queue holds a candidate until the remote description is applied.
func (p *peer) queue(c queuedCandidate) {
	if len(p.pending) >= maxQueuedCandidates {
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, c)
}

// stale reports whether a numbered signal belongs to another negotiation
// than the one in flight. Unnumbered signals are always current.
func (p *peer) stale(attempt int) bool {
	return attempt != 0 && p.attempt != 0 && attempt != p.attempt
}

// resetTransport closes the current transport and forgets everything that
// belonged to it.
func (p *peer) resetTransport() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.transport != nil {
		p.transport.Close()
	}
	p.gen++
	p.transport = nil
	p.channel = nil
	p.codec = nil
	p.remoteSet = false
	p.pending = nil
	if p.state == StateOpen {
		p.state = StateNegotiating
	}
}

// PeerStatus is a snapshot of one peer entry.
type PeerStatus struct {
	UserID    string
	Nickname  string
	State     State
	Initiator bool
	Codec     string
	Restarts  int
	Sent      int
	Received  int
	Dropped   int
}

func (p *peer) status(nickname string) PeerStatus {
	s := PeerStatus{
		UserID:    p.id,
		Nickname:  nickname,
		State:     p.state,
		Initiator: p.initiator,
		Restarts:  p.restarts,
		Sent:      p.sent,
		Received:  p.received,
		Dropped:   p.dropped,
	}
	if p.codec != nil {
		s.Codec = p.codec.Name()
	}
	return s
}
