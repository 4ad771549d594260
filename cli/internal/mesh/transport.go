package mesh

import (
	pion "github.com/pion/webrtc/v4"
)

// ChannelLabel is the label of the drawing data channel.
const ChannelLabel = "draw"

// Channel is one end of a data channel.
type Channel interface {
	Label() string
	// Protocol is the sub-protocol negotiated when the channel was created;
	// it names the drawing codec.
	Protocol() string
	Send(data []byte) error
	Close() error
}

// Events are the callbacks a Transport raises. They may be called from any
// goroutine.
type Events struct {
	Candidate     func(pion.ICECandidateInit)
	StateChange   func(pion.PeerConnectionState)
	ChannelOpen   func(Channel)
	ChannelClosed func(Channel)
	Message       func(Channel, []byte)
}

// Transport is a peer connection to one remote participant.
type Transport interface {
	// CreateChannel opens the drawing channel; only the initiator calls it.
	CreateChannel(label, protocol string) (Channel, error)
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (pion.SessionDescription, error)
	// CreateAnswer creates an answer and applies it as the local description.
	CreateAnswer() (pion.SessionDescription, error)
	SetRemoteDescription(pion.SessionDescription) error
	AddICECandidate(pion.ICECandidateInit) error
	Close() error
}

// TransportFactory creates the transport towards peerID.
type TransportFactory func(peerID string, events Events) (Transport, error)
