package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	pion "github.com/pion/webrtc/v4"
)

// Signal data discriminants carried inside a relay signal envelope.
const (
	SignalTypeOffer        = "offer"
	SignalTypeAnswer       = "answer"
	SignalTypeICECandidate = "ice-candidate"
)

// ErrInvalidSignal is returned for signal data that cannot drive negotiation.
var ErrInvalidSignal = errors.New("invalid signal data")

// SignalData is the peer-to-peer negotiation payload relayed verbatim by the
// server. Implemented by Offer, Answer and ICECandidate.
type SignalData interface {
	SignalType() string
}

// Offer carries the initiator's session description. Attempt numbers the
// negotiation it starts; zero means the sender does not number attempts.
type Offer struct {
	Offer   pion.SessionDescription `json:"offer"`
	Attempt int                     `json:"attempt,omitempty"`
}

// Answer carries the responder's session description. Attempt echoes the
// offer it answers.
type Answer struct {
	Answer  pion.SessionDescription `json:"answer"`
	Attempt int                     `json:"attempt,omitempty"`
}

// ICECandidate carries one trickled network candidate for the negotiation
// numbered Attempt.
type ICECandidate struct {
	Candidate pion.ICECandidateInit `json:"candidate"`
	Attempt   int                   `json:"attempt,omitempty"`
}

func (Offer) SignalType() string        { return SignalTypeOffer }
func (Answer) SignalType() string       { return SignalTypeAnswer }
func (ICECandidate) SignalType() string { return SignalTypeICECandidate }

// EncodeSignalData adds the type discriminant to d.
func EncodeSignalData(d SignalData) (json.RawMessage, error) {
	var v any
	switch d := d.(type) {
	case Offer:
		type alias Offer
		v = struct {
			Type string `json:"type"`
			alias
		}{d.SignalType(), alias(d)}
	case Answer:
		type alias Answer
		v = struct {
			Type string `json:"type"`
			alias
		}{d.SignalType(), alias(d)}
	case ICECandidate:
		type alias ICECandidate
		v = struct {
			Type string `json:"type"`
			alias
		}{d.SignalType(), alias(d)}
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidSignal, d)
	}
	return json.Marshal(v)
}

// ParseSignalData decodes relayed signal data and checks its required fields.
func ParseSignalData(raw json.RawMessage) (SignalData, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}

	switch head.Type {
	case SignalTypeOffer:
		var o Offer
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
		if o.Offer.Type != pion.SDPTypeOffer || o.Offer.SDP == "" {
			return nil, fmt.Errorf("%w: offer without session description", ErrInvalidSignal)
		}
		return o, nil

	case SignalTypeAnswer:
		var a Answer
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
		if a.Answer.Type != pion.SDPTypeAnswer || a.Answer.SDP == "" {
			return nil, fmt.Errorf("%w: answer without session description", ErrInvalidSignal)
		}
		return a, nil

	case SignalTypeICECandidate:
		var c ICECandidate
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
		if c.Candidate.Candidate == "" {
			return nil, fmt.Errorf("%w: empty candidate", ErrInvalidSignal)
		}
		return c, nil
	}

	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidSignal, head.Type)
}
