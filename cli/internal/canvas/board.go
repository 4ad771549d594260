package canvas

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Canvas dimensions shared by every participant.
const (
	Width  = 1920
	Height = 1080
)

// DefaultSegmentLimit bounds the strokes kept per layer.
const DefaultSegmentLimit = 20000

var (
	ErrUnknownLayer = errors.New("unknown layer")
	ErrLastLayer    = errors.New("cannot delete the last layer")
	ErrLayerName    = errors.New("layer name must not be empty")
)

// Layer is a snapshot of one board layer.
type Layer struct {
	ID       string
	Name     string
	Visible  bool
	Segments []Stroke
}

type layer struct {
	id       string
	name     string
	visible  bool
	segments []Stroke
}

// Board is the local copy of the shared drawing: ordered layers (bottom
// first), an active layer, and the last known cursor of every remote user.
// It is safe for concurrent use.
type Board struct {
	mu      sync.RWMutex
	layers  []*layer
	active  string
	cursors map[string]Cursor
	limit   int
	created int
	version uint64
	newID   func() string
}

// NewBoard creates a board with one visible layer.
func NewBoard() *Board {
	b := &Board{
		cursors: make(map[string]Cursor),
		limit:   DefaultSegmentLimit,
		newID:   uuid.NewString,
	}
	b.active = b.addLayer("", "")
	return b
}

// SetSegmentLimit changes the per-layer stroke cap. Older strokes are
// dropped first.
func (b *Board) SetSegmentLimit(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > 0 {
		b.limit = n
	}
}

func (b *Board) addLayer(id, name string) string {
	b.created++
	if id == "" {
		id = b.newID()
	}
	if name = strings.TrimSpace(name); name == "" {
		name = fmt.Sprintf("Layer %d", b.created)
	}
	b.layers = append(b.layers, &layer{id: id, name: name, visible: true})
	b.version++
	return id
}

func (b *Board) find(id string) (int, *layer) {
	for i, l := range b.layers {
		if l.id == id {
			return i, l
		}
	}
	return -1, nil
}

// CreateLayer adds a layer on top and returns its id.
func (b *Board) CreateLayer(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLayer("", name)
}

// DeleteLayer removes a layer. The last remaining layer cannot be deleted.
// Deleting the active layer activates the bottom layer.
func (b *Board) DeleteLayer(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, l := b.find(id)
	if l == nil {
		return ErrUnknownLayer
	}
	if len(b.layers) == 1 {
		return ErrLastLayer
	}
	b.layers = append(b.layers[:i], b.layers[i+1:]...)
	if b.active == id {
		b.active = b.layers[0].id
	}
	b.version++
	return nil
}

// RenameLayer sets a layer's name, trimmed of surrounding space.
func (b *Board) RenameLayer(id, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, l := b.find(id)
	if l == nil {
		return ErrUnknownLayer
	}
	if name = strings.TrimSpace(name); name == "" {
		return ErrLayerName
	}
	l.name = name
	b.version++
	return nil
}

// MoveLayer shifts a layer by delta positions, clamped to the stack.
func (b *Board) MoveLayer(id string, delta int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, l := b.find(id)
	if l == nil {
		return ErrUnknownLayer
	}
	j := min(max(i+delta, 0), len(b.layers)-1)
	if i == j {
		return nil
	}
	b.layers = append(b.layers[:i], b.layers[i+1:]...)
	b.layers = append(b.layers[:j], append([]*layer{l}, b.layers[j:]...)...)
	b.version++
	return nil
}

// ToggleVisibility flips a layer's visibility and returns the new value.
func (b *Board) ToggleVisibility(id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, l := b.find(id)
	if l == nil {
		return false, ErrUnknownLayer
	}
	l.visible = !l.visible
	b.version++
	return l.visible, nil
}

// SetActive selects the layer local strokes go to.
func (b *Board) SetActive(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, l := b.find(id); l == nil {
		return ErrUnknownLayer
	}
	b.active = id
	return nil
}

// Active returns the active layer id.
func (b *Board) Active() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// Layers returns a snapshot of the layers, bottom first.
func (b *Board) Layers() []Layer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Layer, 0, len(b.layers))
	for _, l := range b.layers {
		out = append(out, Layer{
			ID:       l.id,
			Name:     l.name,
			Visible:  l.visible,
			Segments: append([]Stroke(nil), l.segments...),
		})
	}
	return out
}

// Apply applies a local or remote event. from is the sender's userId and
// only matters for cursors. Strokes and clears naming an unknown layer land
// on the active layer.
func (b *Board) Apply(from string, e Event) error {
	if err := Validate(e); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch e := e.(type) {
	case Stroke:
		l := b.resolve(e.LayerID)
		l.segments = append(l.segments, e)
		if over := len(l.segments) - b.limit; over > 0 {
			l.segments = append(l.segments[:0], l.segments[over:]...)
		}
	case Clear:
		l := b.resolve(e.LayerID)
		l.segments = nil
	case Cursor:
		if from == "" {
			return nil
		}
		b.cursors[from] = e
	default:
		return fmt.Errorf("%w: unsupported event %T", ErrMalformed, e)
	}
	b.version++
	return nil
}

func (b *Board) resolve(id string) *layer {
	if _, l := b.find(id); l != nil {
		return l
	}
	_, l := b.find(b.active)
	return l
}

// RemoveCursor forgets a departed user's cursor.
func (b *Board) RemoveCursor(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.cursors[userID]; ok {
		delete(b.cursors, userID)
		b.version++
	}
}

// Cursors returns the remote cursors keyed by userId.
func (b *Board) Cursors() map[string]Cursor {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]Cursor, len(b.cursors))
	for id, c := range b.cursors {
		out[id] = c
	}
	return out
}

// Version increases on every change. Renderers use it to skip redraws.
func (b *Board) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}
