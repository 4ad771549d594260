package canvas

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec names, also used as the data channel sub-protocol.
const (
	CodecJSON    = "json"
	CodecMsgPack = "msgpack"
)

// Codec turns drawing events into data channel payloads and back.
type Codec interface {
	Name() string
	Marshal(Event) ([]byte, error)
	Unmarshal([]byte) (Event, error)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecJSON }

func (jsonCodec) Marshal(e Event) ([]byte, error) {
	w, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (jsonCodec) Unmarshal(b []byte) (Event, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.event()
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return CodecMsgPack }

func (msgpackCodec) Marshal(e Event) ([]byte, error) {
	w, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&w)
}

func (msgpackCodec) Unmarshal(b []byte) (Event, error) {
	var w wire
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.event()
}

var (
	// JSON is compatible with the browser client.
	JSON Codec = jsonCodec{}
	// MsgPack is the compact codec spoken between CLI peers.
	MsgPack Codec = msgpackCodec{}
)

// SelectCodec picks the codec for a data channel from its sub-protocol.
// Unknown or empty protocols fall back to JSON for browser compatibility.
func SelectCodec(protocol string) Codec {
	if protocol == CodecMsgPack {
		return MsgPack
	}
	return JSON
}

// CodecByName returns the named codec.
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return JSON, nil
	case CodecMsgPack:
		return MsgPack, nil
	}
	return nil, fmt.Errorf("unknown codec %q (want %s or %s)", name, CodecJSON, CodecMsgPack)
}
