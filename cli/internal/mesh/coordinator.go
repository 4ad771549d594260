package mesh

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/morichikawa/echa25/cli/internal/canvas"
	"github.com/morichikawa/echa25/cli/internal/signaling"
	"github.com/morichikawa/echa25/internal/logging"
	"github.com/morichikawa/echa25/internal/protocol"
)

// Default timings of the retry sweep.
const (
	DefaultRetryInterval      = 5 * time.Second
	DefaultNegotiationTimeout = 10 * time.Second
	DefaultMaxBackoff         = 2 * time.Minute
)

// maxEarlyPeers bounds how many unknown senders may have candidates held.
const maxEarlyPeers = 64

// Signaler relays negotiation data through the relay.
type Signaler interface {
	Signal(target string, d signaling.SignalData) error
}

// Session is the local participant's view of the room.
type Session struct {
	RoomID   string
	Nickname string
	Color    string
	UserID   string
	IsHost   bool
	Members  []protocol.Member
}

// Options tunes a Coordinator. Zero values fall back to defaults.
type Options struct {
	NewTransport       TransportFactory
	Codec              canvas.Codec
	RetryInterval      time.Duration
	NegotiationTimeout time.Duration
	MaxBackoff         time.Duration
	Now                func() time.Time
}

// Coordinator keeps one data channel open to every other member of the
// room. All state is owned by the goroutine running Run; every other entry
// point posts a task to it.
type Coordinator struct {
	signaler      Signaler
	board         *canvas.Board
	newTransport  TransportFactory
	codec         canvas.Codec
	retryInterval time.Duration
	backoff       Backoff
	now           func() time.Time
	log           *slog.Logger

	tasks   chan func()
	done    chan struct{}
	updates chan struct{}

	session  Session
	peers    map[string]*peer
	early    map[string][]queuedCandidate
	departed []PeerStatus

	// attempts numbers our offers across all peers.
	attempts int
}

// New creates a coordinator that draws onto board.
func New(signaler Signaler, board *canvas.Board, session Session, opts Options) *Coordinator {
	if opts.NewTransport == nil {
		opts.NewTransport = NewPionFactory(ICEConfig{})
	}
	if opts.Codec == nil {
		opts.Codec = canvas.JSON
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if opts.MaxBackoff < opts.NegotiationTimeout {
		opts.MaxBackoff = max(DefaultMaxBackoff, opts.NegotiationTimeout)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Coordinator{
		signaler:      signaler,
		board:         board,
		newTransport:  opts.NewTransport,
		codec:         opts.Codec,
		retryInterval: opts.RetryInterval,
		backoff:       Backoff{Base: opts.NegotiationTimeout, Max: opts.MaxBackoff},
		now:           opts.Now,
		log:           logging.Component("mesh"),
		tasks:         make(chan func(), 256),
		done:          make(chan struct{}),
		updates:       make(chan struct{}, 1),
		session:       session,
		peers:         make(map[string]*peer),
		early:         make(map[string][]queuedCandidate),
	}
}

// Run processes tasks and retry sweeps until ctx is cancelled, then tears
// down every peer.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.retryInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
		close(c.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-c.tasks:
			task()
		case <-ticker.C:
			c.retrySweep()
		}
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Updates signals (coalesced) that the roster, a peer state or the board
// changed.
func (c *Coordinator) Updates() <-chan struct{} {
	return c.updates
}

func (c *Coordinator) post(task func()) {
	select {
	case c.tasks <- task:
	case <-c.done:
	}
}

// do runs task on the coordinator goroutine and waits for it.
func (c *Coordinator) do(task func()) bool {
	ran := make(chan struct{})
	c.post(func() {
		task()
		close(ran)
	})
	select {
	case <-ran:
		return true
	case <-c.done:
		return false
	}
}

func (c *Coordinator) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// HandleJoined implements signaling.Receiver.
func (c *Coordinator) HandleJoined(m protocol.Joined) {
	c.post(func() {
		c.session.UserID = m.UserID
		c.session.IsHost = m.IsHost
		c.log.Info("Joined room", "room", c.session.RoomID, "user", m.UserID, "host", m.IsHost, "members", len(m.Members))
		c.applyRoster(m.Members)
	})
}

// HandleUserJoined implements signaling.Receiver.
func (c *Coordinator) HandleUserJoined(m protocol.UserJoined) {
	c.post(func() {
		c.log.Info("Member joined", "user", m.UserID, "nickname", m.Nickname)
		c.applyRoster(m.Members)
	})
}

// HandleUserLeft implements signaling.Receiver.
func (c *Coordinator) HandleUserLeft(m protocol.UserLeft) {
	c.post(func() {
		c.board.RemoveCursor(m.UserID)
		if m.NewHost != "" && m.NewHost == c.session.UserID {
			c.log.Info("Host role handed to us")
		}
		c.applyRoster(m.Members)
	})
}

// HandleSignal implements signaling.Receiver.
func (c *Coordinator) HandleSignal(from string, data signaling.SignalData) {
	c.post(func() {
		c.handleSignal(from, data)
	})
}

// applyRoster diffs the pushed roster against the known peers.
func (c *Coordinator) applyRoster(members []protocol.Member) {
	if c.session.UserID == "" {
		return
	}
	c.session.Members = members

	present := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.UserID == c.session.UserID {
			c.session.IsHost = m.IsHost
			continue
		}
		present[m.UserID] = struct{}{}
	}

	for id, p := range c.peers {
		if _, ok := present[id]; !ok {
			c.teardown(p)
		}
	}
	for _, m := range members {
		if _, ok := present[m.UserID]; !ok {
			continue
		}
		if _, ok := c.peers[m.UserID]; !ok {
			p := c.addPeer(m.UserID)
			if p.initiator {
				c.negotiate(p)
			}
		}
	}
	c.notify()
}

// addPeer creates the entry for id. The lexicographically lower userId
// initiates.
func (c *Coordinator) addPeer(id string) *peer {
	p := &peer{
		id:        id,
		initiator: c.session.UserID < id,
		state:     StateNegotiating,
		startedAt: c.now(),
	}
	if early, ok := c.early[id]; ok {
		p.pending = early
		delete(c.early, id)
	}
	c.peers[id] = p
	c.log.Debug("Peer added", "peer", id, "initiator", p.initiator)
	return p
}

func (c *Coordinator) teardown(p *peer) {
	p.resetTransport()
	p.state = StateClosed
	delete(c.peers, p.id)
	delete(c.early, p.id)
	c.board.RemoveCursor(p.id)
	c.departed = append(c.departed, p.status(c.nickname(p.id)))
	c.log.Debug("Peer removed", "peer", p.id)
}

func (c *Coordinator) shutdown() {
	for _, p := range c.peers {
		c.teardown(p)
	}
	c.early = make(map[string][]queuedCandidate)
}

// openTransport creates a transport for p whose callbacks only reach p while
// it is still the current entry and transport.
func (c *Coordinator) openTransport(p *peer) (Transport, error) {
	id, gen := p.id, p.gen
	guard := func(fn func()) {
		c.post(func() {
			if c.peers[id] != p || p.gen != gen {
				return
			}
			fn()
		})
	}

	t, err := c.newTransport(id, Events{
		Candidate: func(ci pion.ICECandidateInit) {
			guard(func() { c.signal(id, signaling.ICECandidate{Candidate: ci, Attempt: p.attempt}) })
		},
		StateChange: func(s pion.PeerConnectionState) {
			guard(func() { c.handleState(p, s) })
		},
		ChannelOpen: func(ch Channel) {
			guard(func() { c.handleOpen(p, ch) })
		},
		ChannelClosed: func(ch Channel) {
			guard(func() {
				if p.channel == ch {
					c.fail(p, errors.New("data channel closed"))
				}
			})
		},
		Message: func(ch Channel, data []byte) {
			data = append([]byte(nil), data...)
			guard(func() { c.handleMessage(p, ch, data) })
		},
	})
	if err != nil {
		return nil, NewError("create transport", id, err)
	}
	p.transport = t
	return t, nil
}

// negotiate starts a fresh attempt as the initiator.
func (c *Coordinator) negotiate(p *peer) {
	p.resetTransport()
	c.attempts++
	p.attempt = c.attempts
	p.startedAt = c.now()

	t, err := c.openTransport(p)
	if err != nil {
		c.log.Warn("Negotiation failed", "error", err)
		return
	}
	ch, err := t.CreateChannel(ChannelLabel, c.codec.Name())
	if err != nil {
		c.log.Warn("Negotiation failed", "error", NewError("create channel", p.id, err))
		p.resetTransport()
		return
	}
	p.channel = ch

	offer, err := t.CreateOffer()
	if err != nil {
		c.log.Warn("Negotiation failed", "error", NewError("create offer", p.id, err))
		p.resetTransport()
		return
	}
	c.signal(p.id, signaling.Offer{Offer: offer, Attempt: p.attempt})
}

func (c *Coordinator) handleSignal(from string, data signaling.SignalData) {
	if c.session.UserID == "" || from == c.session.UserID {
		return
	}
	switch d := data.(type) {
	case signaling.Offer:
		c.handleOffer(from, d.Offer, d.Attempt)
	case signaling.Answer:
		c.handleAnswer(from, d.Answer, d.Attempt)
	case signaling.ICECandidate:
		c.handleCandidate(from, queuedCandidate{ci: d.Candidate, attempt: d.Attempt})
	}
}

func (c *Coordinator) handleOffer(from string, offer pion.SessionDescription, attempt int) {
	p := c.peers[from]
	if p == nil && c.session.UserID > from {
		p = c.addPeer(from)
	}
	if p == nil || p.initiator {
		c.log.Debug("Dropping offer", "error", NewError("handle offer", from, ErrUnexpectedSignal))
		return
	}

	if attempt != 0 && attempt == p.attempt && p.remoteSet {
		c.log.Debug("Dropping repeated offer", "peer", from, "attempt", attempt)
		return
	}

	// Any other second offer means the initiator restarted.
	if p.transport != nil && p.remoteSet {
		p.resetTransport()
		p.restarts++
	}
	if p.transport == nil {
		p.startedAt = c.now()
		if _, err := c.openTransport(p); err != nil {
			c.log.Warn("Negotiation failed", "error", err)
			return
		}
	}

	if err := p.transport.SetRemoteDescription(offer); err != nil {
		c.log.Warn("Negotiation failed", "error", NewError("set remote description", from, err))
		p.resetTransport()
		return
	}
	p.remoteSet = true
	p.attempt = attempt

	answer, err := p.transport.CreateAnswer()
	if err != nil {
		c.log.Warn("Negotiation failed", "error", NewError("create answer", from, err))
		p.resetTransport()
		return
	}
	c.signal(from, signaling.Answer{Answer: answer, Attempt: attempt})
	c.flush(p)
	c.notify()
}

// handleAnswer applies the answer to the offer in flight. Answers numbered
// for an earlier attempt arrive after a restart and are dropped.
func (c *Coordinator) handleAnswer(from string, answer pion.SessionDescription, attempt int) {
	p := c.peers[from]
	if p == nil || !p.initiator || p.transport == nil || p.remoteSet || p.stale(attempt) {
		c.log.Debug("Dropping answer", "error", NewError("handle answer", from, ErrUnexpectedSignal))
		return
	}

	if err := p.transport.SetRemoteDescription(answer); err != nil {
		c.log.Warn("Negotiation failed", "error", NewError("set remote description", from, err))
		p.resetTransport()
		return
	}
	p.remoteSet = true
	c.flush(p)
}

func (c *Coordinator) handleCandidate(from string, ci queuedCandidate) {
	p := c.peers[from]
	if p == nil {
		held, ok := c.early[from]
		if !ok && len(c.early) >= maxEarlyPeers {
			c.log.Debug("Dropping candidate from unknown peer", "peer", from)
			return
		}
		if len(held) >= maxQueuedCandidates {
			held = held[1:]
		}
		c.early[from] = append(held, ci)
		return
	}

	if p.transport == nil || !p.remoteSet {
		p.queue(ci)
		return
	}
	if p.stale(ci.attempt) {
		c.log.Debug("Dropping candidate of an earlier attempt", "peer", from, "attempt", ci.attempt)
		return
	}
	if err := p.transport.AddICECandidate(ci.ci); err != nil {
		c.log.Debug("Failed to add candidate", "error", NewError("add candidate", from, err))
	}
}

// flush applies the queued candidates of the current attempt in receipt
// order.
func (c *Coordinator) flush(p *peer) {
	pending := p.pending
	p.pending = nil
	for _, ci := range pending {
		if p.stale(ci.attempt) {
			continue
		}
		if err := p.transport.AddICECandidate(ci.ci); err != nil {
			c.log.Debug("Failed to add candidate", "error", NewError("add candidate", p.id, err))
		}
	}
}

func (c *Coordinator) handleState(p *peer, s pion.PeerConnectionState) {
	switch s {
	case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed:
		c.fail(p, errors.New("connection "+s.String()))
	case pion.PeerConnectionStateConnected:
		c.log.Debug("Peer connected", "peer", p.id)
	}
}

func (c *Coordinator) handleOpen(p *peer, ch Channel) {
	if ch.Label() != ChannelLabel {
		c.log.Debug("Ignoring unknown channel", "peer", p.id, "label", ch.Label())
		return
	}
	p.channel = ch
	p.codec = canvas.SelectCodec(ch.Protocol())
	p.state = StateOpen
	p.restarts = 0
	c.log.Info("Channel open", "peer", p.id, "codec", p.codec.Name())
	c.notify()
}

// fail drops the transport. The initiator restarts on a later sweep; the
// responder waits for the next offer.
func (c *Coordinator) fail(p *peer, err error) {
	c.log.Info("Peer connection lost", "peer", p.id, "error", err)
	p.resetTransport()
	p.state = StateNegotiating
	c.notify()
}

func (c *Coordinator) handleMessage(p *peer, ch Channel, data []byte) {
	codec := p.codec
	if codec == nil {
		codec = canvas.SelectCodec(ch.Protocol())
	}
	ev, err := codec.Unmarshal(data)
	if err == nil {
		err = c.board.Apply(p.id, ev)
	}
	if err != nil {
		p.dropped++
		c.log.Debug("Dropping drawing event", "peer", p.id, "error", err)
		return
	}
	p.received++
	c.notify()
}

// retrySweep restarts initiator negotiations that outlived their backoff
// window. Open peers and responders are left alone.
func (c *Coordinator) retrySweep() {
	now := c.now()
	for _, p := range c.peers {
		if p.state == StateOpen || !p.initiator {
			continue
		}
		if now.Sub(p.startedAt) < c.backoff.Wait(p.restarts) {
			continue
		}
		p.restarts++
		c.log.Info("Restarting negotiation", "peer", p.id, "restart", p.restarts)
		c.negotiate(p)
	}
}

func (c *Coordinator) signal(target string, d signaling.SignalData) {
	if err := c.signaler.Signal(target, d); err != nil {
		c.log.Warn("Failed to send signal", "peer", target, "type", d.SignalType(), "error", err)
	}
}

// Broadcast sends a drawing event to every open channel and returns how
// many peers it reached. The event is encoded once per codec.
func (c *Coordinator) Broadcast(e canvas.Event) (int, error) {
	var (
		sent int
		err  error
	)
	if !c.do(func() { sent, err = c.broadcast(e) }) {
		return 0, ErrStopped
	}
	return sent, err
}

func (c *Coordinator) broadcast(e canvas.Event) (int, error) {
	payloads := make(map[string][]byte)
	sent := 0
	for _, p := range c.peers {
		if p.state != StateOpen || p.channel == nil {
			continue
		}
		payload, ok := payloads[p.codec.Name()]
		if !ok {
			b, err := p.codec.Marshal(e)
			if err != nil {
				return sent, err
			}
			payloads[p.codec.Name()] = b
			payload = b
		}
		if err := p.channel.Send(payload); err != nil {
			c.log.Debug("Send failed", "peer", p.id, "error", err)
			continue
		}
		p.sent++
		sent++
	}
	return sent, nil
}

func (c *Coordinator) nickname(userID string) string {
	for _, m := range c.session.Members {
		if m.UserID == userID {
			return m.Nickname
		}
	}
	return ""
}

func (c *Coordinator) statuses() []PeerStatus {
	out := make([]PeerStatus, 0, len(c.peers))
	for _, p := range c.peers {
		out = append(out, p.status(c.nickname(p.id)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Peers returns a snapshot of the live peer entries ordered by userId.
func (c *Coordinator) Peers() []PeerStatus {
	var out []PeerStatus
	c.do(func() { out = c.statuses() })
	return out
}

// Session returns a copy of the local session.
func (c *Coordinator) Session() Session {
	var s Session
	c.do(func() {
		s = c.session
		s.Members = append([]protocol.Member(nil), c.session.Members...)
	})
	return s
}

// Summary lists every peer seen during the session. After Run has returned
// it reports the final state of each.
func (c *Coordinator) Summary() []PeerStatus {
	var out []PeerStatus
	if c.do(func() { out = append(c.statuses(), c.departed...) }) {
		return out
	}
	<-c.done
	return append([]PeerStatus(nil), c.departed...)
}
