package canvas

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestJSONMatchesBrowserShape(t *testing.T) {
	b, err := JSON.Marshal(Stroke{X1: 0, Y1: 1, X2: 2, Y2: 3, Color: "#FF1744", Size: 2, LayerID: "L1"})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if _, ok := got["type"]; ok {
		t.Errorf("strokes must not carry a type field: %s", b)
	}
	if got["x1"] != 0.0 || got["tool"] != "pen" || got["layerId"] != "L1" {
		t.Errorf("unexpected stroke encoding: %s", b)
	}

	b, _ = JSON.Marshal(Clear{LayerID: "L1"})
	if string(b) != `{"type":"clear","layerId":"L1"}` {
		t.Errorf("unexpected clear encoding: %s", b)
	}
}

func TestDecodeBrowserPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "stroke",
			raw:  `{"x1":10,"y1":20,"x2":30,"y2":40,"color":"#000000","size":2,"tool":"pen","layerId":"a"}`,
			want: Stroke{X1: 10, Y1: 20, X2: 30, Y2: 40, Color: "#000000", Size: 2, Tool: ToolPen, LayerID: "a"},
		},
		{
			name: "stroke without tool is a pen",
			raw:  `{"x1":0,"y1":0,"x2":1,"y2":1,"color":"#000000","size":1}`,
			want: Stroke{X2: 1, Y2: 1, Color: "#000000", Size: 1, Tool: ToolPen},
		},
		{
			name: "eraser needs no color",
			raw:  `{"x1":0,"y1":0,"x2":1,"y2":1,"size":20,"tool":"eraser"}`,
			want: Stroke{X2: 1, Y2: 1, Size: 20, Tool: ToolEraser},
		},
		{name: "clear", raw: `{"type":"clear","layerId":"a"}`, want: Clear{LayerID: "a"}},
		{name: "cursor", raw: `{"type":"cursor","x":5,"y":6,"color":"#00E676"}`, want: Cursor{X: 5, Y: 6, Color: "#00E676"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JSON.Unmarshal([]byte(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"wave"}`,
		`{"x1":0,"y1":0,"x2":1,"color":"#000","size":1}`,
		`{"x1":0,"y1":0,"x2":1,"y2":1,"color":"#000","size":0}`,
		`{"x1":0,"y1":0,"x2":1,"y2":1,"color":"#000","size":501}`,
		`{"x1":0,"y1":0,"x2":1,"y2":1,"color":"#000","size":1,"tool":"spray"}`,
		`{"x1":0,"y1":0,"x2":1,"y2":1,"size":1}`,
		`{"type":"cursor","x":1}`,
	} {
		if _, err := JSON.Unmarshal([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", raw, err)
		}
	}

	if _, err := JSON.Marshal(Stroke{X1: math.NaN(), Color: "#000", Size: 1}); !errors.Is(err, ErrMalformed) {
		t.Errorf("NaN coordinates must not be encoded, got %v", err)
	}
}

func TestMsgPackCarriesEvents(t *testing.T) {
	events := []Event{
		Stroke{X1: 1.5, Y1: 2, X2: 3, Y2: 4, Color: "#2979FF", Size: 500, Tool: ToolEraser, LayerID: "x"},
		Clear{LayerID: "x"},
		Cursor{X: 0, Y: 0, Color: "#FFEA00"},
	}
	for _, e := range events {
		b, err := MsgPack.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		got, err := MsgPack.Unmarshal(b)
		if err != nil {
			t.Fatal(err)
		}
		if got != e {
			t.Errorf("got %#v, want %#v", got, e)
		}
	}
	if _, err := MsgPack.Unmarshal([]byte{0xc1}); !errors.Is(err, ErrMalformed) {
		t.Errorf("garbage should be malformed, got %v", err)
	}
}

func TestSelectCodec(t *testing.T) {
	if SelectCodec("msgpack") != MsgPack {
		t.Error("msgpack protocol should select MsgPack")
	}
	for _, p := range []string{"", "json", "something-else"} {
		if SelectCodec(p) != JSON {
			t.Errorf("protocol %q should fall back to JSON", p)
		}
	}
	if _, err := CodecByName("yaml"); err == nil {
		t.Error("unknown codec name should fail")
	}
}
