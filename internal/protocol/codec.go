package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for envelopes that are not valid JSON objects or
// carry an unknown discriminant.
var ErrMalformed = errors.New("malformed envelope")

type discriminant struct {
	Action string `json:"action"`
	Type   string `json:"type"`
}

// Encode serializes an inbound or outbound envelope together with its
// discriminant field.
func Encode(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case JoinRequest:
		type alias JoinRequest
		return json.Marshal(struct {
			Action string `json:"action"`
			alias
		}{ActionJoin, alias(m)})
	case SignalRequest:
		type alias SignalRequest
		return json.Marshal(struct {
			Action string `json:"action"`
			alias
		}{ActionSignal, alias(m)})
	case Joined:
		type alias Joined
		m.Members = nonNil(m.Members)
		return json.Marshal(struct {
			Type string `json:"type"`
			alias
		}{TypeJoined, alias(m)})
	case UserJoined:
		type alias UserJoined
		m.Members = nonNil(m.Members)
		return json.Marshal(struct {
			Type string `json:"type"`
			alias
		}{TypeUserJoined, alias(m)})
	case UserLeft:
		type alias UserLeft
		m.Members = nonNil(m.Members)
		return json.Marshal(struct {
			Type string `json:"type"`
			alias
		}{TypeUserLeft, alias(m)})
	case SignalMessage:
		type alias SignalMessage
		return json.Marshal(struct {
			Type string `json:"type"`
			alias
		}{TypeSignal, alias(m)})
	case Error:
		type alias Error
		return json.Marshal(struct {
			Type string `json:"type"`
			alias
		}{TypeError, alias(m)})
	default:
		return nil, fmt.Errorf("encode %T: %w", msg, ErrMalformed)
	}
}

// ParseInbound decodes a client -> relay envelope. The signal payload must
// be a JSON object; its content is not inspected.
func ParseInbound(b []byte) (Inbound, error) {
	var d discriminant
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch d.Action {
	case ActionJoin:
		var req JoinRequest
		if err := json.Unmarshal(b, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return req, nil

	case ActionSignal:
		var req SignalRequest
		if err := json.Unmarshal(b, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if !isObject(req.Data) {
			return nil, fmt.Errorf("%w: signal data must be an object", ErrMalformed)
		}
		return req, nil

	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrMalformed, d.Action)
	}
}

// ParseOutbound decodes a relay -> client envelope.
func ParseOutbound(b []byte) (Outbound, error) {
	var d discriminant
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		msg Outbound
		err error
	)
	switch d.Type {
	case TypeJoined:
		var m Joined
		err = json.Unmarshal(b, &m)
		msg = m
	case TypeUserJoined:
		var m UserJoined
		err = json.Unmarshal(b, &m)
		msg = m
	case TypeUserLeft:
		var m UserLeft
		err = json.Unmarshal(b, &m)
		msg = m
	case TypeSignal:
		var m SignalMessage
		err = json.Unmarshal(b, &m)
		if err == nil && !isObject(m.Data) {
			err = errors.New("signal data must be an object")
		}
		msg = m
	case TypeError:
		var m Error
		err = json.Unmarshal(b, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, d.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 1 && trimmed[0] == '{' && json.Valid(trimmed)
}

func nonNil(members []Member) []Member {
	if members == nil {
		return []Member{}
	}
	return members
}
