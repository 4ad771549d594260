package mesh

import (
	"fmt"

	pion "github.com/pion/webrtc/v4"

	"github.com/morichikawa/echa25/cli/internal/canvas"
)

// ICEConfig lists the ICE servers handed to every peer connection.
type ICEConfig struct {
	STUN       []string
	TURN       []string
	Username   string
	Credential string
	// ForceRelay restricts candidates to TURN relays. It only applies when
	// TURN servers are configured.
	ForceRelay bool
}

// NewPionFactory returns a TransportFactory backed by pion peer connections.
func NewPionFactory(cfg ICEConfig) TransportFactory {
	return func(peerID string, events Events) (Transport, error) {
		return newPionTransport(cfg, events)
	}
}

type pionTransport struct {
	pc     *pion.PeerConnection
	events Events
}

func newPionTransport(cfg ICEConfig, events Events) (*pionTransport, error) {
	var iceServers []pion.ICEServer
	if len(cfg.STUN) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: cfg.STUN})
	}
	if len(cfg.TURN) > 0 {
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       cfg.TURN,
			Username:   cfg.Username,
			Credential: cfg.Credential,
		})
	}

	policy := pion.ICETransportPolicyAll
	if len(cfg.TURN) > 0 && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &pionTransport{pc: pc, events: events}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil || events.Candidate == nil {
			return
		}
		events.Candidate(c.ToJSON())
	})
	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		if events.StateChange != nil {
			events.StateChange(s)
		}
	})
	pc.OnDataChannel(func(dc *pion.DataChannel) {
		t.watch(dc)
	})

	return t, nil
}

// watch forwards a data channel's lifecycle to the events.
func (t *pionTransport) watch(dc *pion.DataChannel) Channel {
	ch := &pionChannel{dc: dc}
	dc.OnOpen(func() {
		if t.events.ChannelOpen != nil {
			t.events.ChannelOpen(ch)
		}
	})
	dc.OnClose(func() {
		if t.events.ChannelClosed != nil {
			t.events.ChannelClosed(ch)
		}
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if t.events.Message != nil {
			t.events.Message(ch, msg.Data)
		}
	})
	return ch
}

func (t *pionTransport) CreateChannel(label, protocol string) (Channel, error) {
	ordered := true
	dc, err := t.pc.CreateDataChannel(label, &pion.DataChannelInit{
		Ordered:  &ordered,
		Protocol: &protocol,
	})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return t.watch(dc), nil
}

func (t *pionTransport) CreateOffer() (pion.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return pion.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return pion.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return *t.pc.LocalDescription(), nil
}

func (t *pionTransport) CreateAnswer() (pion.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return pion.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return pion.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return *t.pc.LocalDescription(), nil
}

func (t *pionTransport) SetRemoteDescription(desc pion.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *pionTransport) AddICECandidate(c pion.ICECandidateInit) error {
	return t.pc.AddICECandidate(c)
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

type pionChannel struct {
	dc *pion.DataChannel
}

func (c *pionChannel) Label() string    { return c.dc.Label() }
func (c *pionChannel) Protocol() string { return c.dc.Protocol() }
func (c *pionChannel) Close() error     { return c.dc.Close() }

// Send writes JSON payloads as text frames, which the browser client
// expects, and everything else as binary.
func (c *pionChannel) Send(data []byte) error {
	if c.dc.ReadyState() != pion.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	if canvas.SelectCodec(c.dc.Protocol()) == canvas.JSON {
		return c.dc.SendText(string(data))
	}
	return c.dc.Send(data)
}
