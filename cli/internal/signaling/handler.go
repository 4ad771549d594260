package signaling

import (
	"log/slog"

	"github.com/morichikawa/echa25/internal/protocol"
)

// Receiver consumes the relay's roster and signal pushes. Calls arrive in
// the order the relay sent them.
type Receiver interface {
	HandleJoined(protocol.Joined)
	HandleUserJoined(protocol.UserJoined)
	HandleUserLeft(protocol.UserLeft)
	HandleSignal(from string, data SignalData)
}

// Source yields relay envelopes until the channel is closed.
type Source interface {
	Incoming() <-chan protocol.Outbound
}

// Handler routes incoming envelopes to a Receiver.
type Handler struct {
	source   Source
	receiver Receiver

	// Joined receives the first joined acknowledgement.
	Joined chan protocol.Joined
	// Error receives relay rejections; extra ones are dropped when nobody reads.
	Error chan protocol.Error
	// Done is closed when the source is exhausted.
	Done chan struct{}
}

// NewHandler creates a new envelope router.
func NewHandler(source Source, receiver Receiver) *Handler {
	return &Handler{
		source:   source,
		receiver: receiver,
		Joined:   make(chan protocol.Joined, 1),
		Error:    make(chan protocol.Error, 1),
		Done:     make(chan struct{}),
	}
}

// Start listens to incoming envelopes and routes them until the source closes.
func (h *Handler) Start() {
	defer close(h.Done)

	for msg := range h.source.Incoming() {
		switch msg := msg.(type) {
		case protocol.Joined:
			h.receiver.HandleJoined(msg)
			select {
			case h.Joined <- msg:
			default:
			}

		case protocol.UserJoined:
			h.receiver.HandleUserJoined(msg)

		case protocol.UserLeft:
			h.receiver.HandleUserLeft(msg)

		case protocol.SignalMessage:
			h.handleSignal(msg)

		case protocol.Error:
			slog.Warn("Relay rejected request", "code", msg.Code, "message", msg.Message)
			select {
			case h.Error <- msg:
			default:
			}
		}
	}
}

// handleSignal decodes negotiation data; anything unusable is dropped.
func (h *Handler) handleSignal(msg protocol.SignalMessage) {
	if msg.FromUserID == "" {
		slog.Debug("Dropping signal without sender")
		return
	}
	data, err := ParseSignalData(msg.Data)
	if err != nil {
		slog.Debug("Dropping signal", "from", msg.FromUserID, "error", err)
		return
	}
	h.receiver.HandleSignal(msg.FromUserID, data)
}
