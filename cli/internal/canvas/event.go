package canvas

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned for payloads that are not a valid drawing event.
var ErrMalformed = errors.New("malformed drawing event")

// MaxSize is the largest accepted brush size.
const MaxSize = 500

// Tool selects how a stroke is painted.
type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
)

// Event is a drawing event exchanged over a data channel. Implemented by
// Stroke, Clear and Cursor.
type Event interface {
	Kind() string
}

// Stroke is one line segment drawn on a layer.
type Stroke struct {
	X1, Y1, X2, Y2 float64
	Color          string
	Size           float64
	Tool           Tool
	LayerID        string
}

// Clear empties a layer.
type Clear struct {
	LayerID string
}

// Cursor is the sender's pointer position.
type Cursor struct {
	X, Y  float64
	Color string
}

func (Stroke) Kind() string { return "stroke" }
func (Clear) Kind() string  { return "clear" }
func (Cursor) Kind() string { return "cursor" }

// wire is the shared on-the-wire shape. Strokes carry no type field, which
// keeps them compatible with the browser client.
type wire struct {
	Type    string   `json:"type,omitempty" msgpack:"type,omitempty"`
	X       *float64 `json:"x,omitempty" msgpack:"x,omitempty"`
	Y       *float64 `json:"y,omitempty" msgpack:"y,omitempty"`
	X1      *float64 `json:"x1,omitempty" msgpack:"x1,omitempty"`
	Y1      *float64 `json:"y1,omitempty" msgpack:"y1,omitempty"`
	X2      *float64 `json:"x2,omitempty" msgpack:"x2,omitempty"`
	Y2      *float64 `json:"y2,omitempty" msgpack:"y2,omitempty"`
	Color   string   `json:"color,omitempty" msgpack:"color,omitempty"`
	Size    *float64 `json:"size,omitempty" msgpack:"size,omitempty"`
	Tool    Tool     `json:"tool,omitempty" msgpack:"tool,omitempty"`
	LayerID string   `json:"layerId,omitempty" msgpack:"layerId,omitempty"`
}

func toWire(e Event) (wire, error) {
	if err := Validate(e); err != nil {
		return wire{}, err
	}
	switch e := e.(type) {
	case Stroke:
		tool := e.Tool
		if tool == "" {
			tool = ToolPen
		}
		return wire{
			X1: &e.X1, Y1: &e.Y1, X2: &e.X2, Y2: &e.Y2,
			Color: e.Color, Size: &e.Size, Tool: tool, LayerID: e.LayerID,
		}, nil
	case Clear:
		return wire{Type: "clear", LayerID: e.LayerID}, nil
	case Cursor:
		return wire{Type: "cursor", X: &e.X, Y: &e.Y, Color: e.Color}, nil
	}
	return wire{}, fmt.Errorf("%w: unsupported event %T", ErrMalformed, e)
}

func (w wire) event() (Event, error) {
	var e Event
	switch w.Type {
	case "":
		if w.X1 == nil || w.Y1 == nil || w.X2 == nil || w.Y2 == nil || w.Size == nil {
			return nil, fmt.Errorf("%w: stroke is missing coordinates or size", ErrMalformed)
		}
		tool := w.Tool
		if tool == "" {
			tool = ToolPen
		}
		e = Stroke{
			X1: *w.X1, Y1: *w.Y1, X2: *w.X2, Y2: *w.Y2,
			Color: w.Color, Size: *w.Size, Tool: tool, LayerID: w.LayerID,
		}
	case "clear":
		e = Clear{LayerID: w.LayerID}
	case "cursor":
		if w.X == nil || w.Y == nil {
			return nil, fmt.Errorf("%w: cursor is missing coordinates", ErrMalformed)
		}
		e = Cursor{X: *w.X, Y: *w.Y, Color: w.Color}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, w.Type)
	}
	if err := Validate(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the numeric ranges and enumerations of e.
func Validate(e Event) error {
	switch e := e.(type) {
	case Stroke:
		if !finite(e.X1, e.Y1, e.X2, e.Y2) {
			return fmt.Errorf("%w: non-finite coordinate", ErrMalformed)
		}
		if !(e.Size > 0 && e.Size <= MaxSize) {
			return fmt.Errorf("%w: size %v out of range", ErrMalformed, e.Size)
		}
		if e.Tool != "" && e.Tool != ToolPen && e.Tool != ToolEraser {
			return fmt.Errorf("%w: unknown tool %q", ErrMalformed, e.Tool)
		}
		if e.Tool != ToolEraser && e.Color == "" {
			return fmt.Errorf("%w: pen stroke without color", ErrMalformed)
		}
	case Cursor:
		if !finite(e.X, e.Y) {
			return fmt.Errorf("%w: non-finite coordinate", ErrMalformed)
		}
	case Clear:
	case nil:
		return fmt.Errorf("%w: nil event", ErrMalformed)
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
