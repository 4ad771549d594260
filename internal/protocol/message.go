// Package protocol defines the Relay Bus envelopes exchanged between the
// relay server and participants. Both directions are closed tagged unions:
// inbound envelopes are discriminated by "action", outbound by "type".
package protocol

import "encoding/json"

// Inbound actions (client -> relay).
const (
	ActionJoin   = "join"
	ActionSignal = "signal"
)

// Outbound types (relay -> client).
const (
	TypeJoined     = "joined"
	TypeUserJoined = "user-joined"
	TypeUserLeft   = "user-left"
	TypeSignal     = "signal"
	TypeError      = "error"
)

// Error codes carried by Error envelopes.
const (
	CodeInvalidInput = "invalid-input"
	CodeNotInRoom    = "not-in-room"
	CodeMalformed    = "malformed"
	CodeInternal     = "internal"
)

// Member is the roster projection of a membership record.
type Member struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	Color    string `json:"color,omitempty"`
	IsHost   bool   `json:"isHost"`
}

// Room is a room and its roster as listed by the relay's /rooms endpoint.
type Room struct {
	ID      string   `json:"roomId"`
	Members []Member `json:"members"`
}

// Inbound is implemented by every client -> relay envelope.
type Inbound interface {
	Action() string
}

// JoinRequest asks the relay to place the connection in a room.
type JoinRequest struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
	Color    string `json:"color,omitempty"`
}

func (JoinRequest) Action() string { return ActionJoin }

// SignalRequest relays Data to TargetUserID, or to every other member of the
// sender's room when TargetUserID is empty.
type SignalRequest struct {
	TargetUserID string          `json:"targetUserId,omitempty"`
	Data         json.RawMessage `json:"data"`
}

func (SignalRequest) Action() string { return ActionSignal }

// Outbound is implemented by every relay -> client envelope.
type Outbound interface {
	Type() string
}

// Joined is sent to the member that just joined.
type Joined struct {
	UserID  string   `json:"userId"`
	IsHost  bool     `json:"isHost"`
	Members []Member `json:"members"`
}

func (Joined) Type() string { return TypeJoined }

// UserJoined is sent to every member that was already in the room.
type UserJoined struct {
	UserID   string   `json:"userId"`
	Nickname string   `json:"nickname"`
	IsHost   bool     `json:"isHost"`
	Members  []Member `json:"members"`
}

func (UserJoined) Type() string { return TypeUserJoined }

// UserLeft is sent to the remaining members after a departure. NewHost is
// set only when the departure promoted a different member.
type UserLeft struct {
	UserID  string   `json:"userId"`
	Members []Member `json:"members"`
	NewHost string   `json:"newHost,omitempty"`
}

func (UserLeft) Type() string { return TypeUserLeft }

// SignalMessage carries an opaque negotiation payload from another member.
type SignalMessage struct {
	FromUserID string          `json:"fromUserId"`
	Data       json.RawMessage `json:"data"`
}

func (SignalMessage) Type() string { return TypeSignal }

// Error reports a rejected request back to its sender.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) Type() string { return TypeError }

func (e Error) Error() string { return e.Code + ": " + e.Message }
