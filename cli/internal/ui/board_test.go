package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morichikawa/echa25/cli/internal/canvas"
	"github.com/morichikawa/echa25/cli/internal/mesh"
	"github.com/morichikawa/echa25/internal/protocol"
)

type fakeMesh struct {
	session mesh.Session
	peers   []mesh.PeerStatus
	sent    []canvas.Event
	updates chan struct{}
	done    chan struct{}
}

func newFakeMesh() *fakeMesh {
	return &fakeMesh{
		session: mesh.Session{
			RoomID:   "studio",
			UserID:   "u1",
			Nickname: "ann",
			Color:    "#2979FF",
			IsHost:   true,
			Members: []protocol.Member{
				{UserID: "u1", Nickname: "ann", Color: "#2979FF", IsHost: true},
				{UserID: "u2", Nickname: "bob", Color: "#FF1744"},
			},
		},
		peers:   []mesh.PeerStatus{{UserID: "u2", Nickname: "bob", State: mesh.StateOpen}},
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (f *fakeMesh) Broadcast(e canvas.Event) (int, error) {
	f.sent = append(f.sent, e)
	return len(f.peers), nil
}

func (f *fakeMesh) Peers() []mesh.PeerStatus { return f.peers }
func (f *fakeMesh) Session() mesh.Session    { return f.session }
func (f *fakeMesh) Updates() <-chan struct{} { return f.updates }
func (f *fakeMesh) Done() <-chan struct{}    { return f.done }

func press(m *BoardModel, keys ...tea.KeyMsg) {
	for _, k := range keys {
		m.Update(k)
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func strokes(events []canvas.Event) []canvas.Stroke {
	var out []canvas.Stroke
	for _, e := range events {
		if s, ok := e.(canvas.Stroke); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestMovingWithPenUpOnlySendsCursor(t *testing.T) {
	fm := newFakeMesh()
	board := canvas.NewBoard()
	m := NewBoardModel(fm, board)

	press(m, tea.KeyMsg{Type: tea.KeyRight})

	if len(fm.sent) != 1 {
		t.Fatalf("expected one event, got %d", len(fm.sent))
	}
	if _, ok := fm.sent[0].(canvas.Cursor); !ok {
		t.Errorf("expected a cursor event, got %T", fm.sent[0])
	}
	if len(board.Layers()[0].Segments) != 0 {
		t.Error("pen up should not draw")
	}
	if len(board.Cursors()) != 0 {
		t.Error("own cursor should not be stored on the board")
	}
}

func TestDrawingAppliesAndBroadcasts(t *testing.T) {
	fm := newFakeMesh()
	board := canvas.NewBoard()
	m := NewBoardModel(fm, board)

	press(m, runes("p"), tea.KeyMsg{Type: tea.KeyRight}, tea.KeyMsg{Type: tea.KeyDown})

	sent := strokes(fm.sent)
	if len(sent) != 2 {
		t.Fatalf("expected two strokes, got %d", len(sent))
	}
	if sent[0].Color != "#2979FF" || sent[0].Tool != canvas.ToolPen || sent[0].LayerID != board.Active() {
		t.Errorf("unexpected stroke %+v", sent[0])
	}
	if sent[0].X2 != sent[1].X1 || sent[0].Y2 != sent[1].Y1 {
		t.Error("consecutive strokes should connect")
	}
	if got := len(board.Layers()[0].Segments); got != 2 {
		t.Errorf("board should hold both strokes, got %d", got)
	}

	press(m, runes("e"), tea.KeyMsg{Type: tea.KeyLeft})
	last := strokes(fm.sent)
	if last[len(last)-1].Tool != canvas.ToolEraser {
		t.Error("eraser toggle should change the tool")
	}
}

func TestPenStaysOnCanvas(t *testing.T) {
	fm := newFakeMesh()
	m := NewBoardModel(fm, canvas.NewBoard())
	m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})

	for range 100 {
		press(m, tea.KeyMsg{Type: tea.KeyRight}, tea.KeyMsg{Type: tea.KeyDown})
	}
	if m.col != m.cols()-1 || m.row != m.rows()-1 {
		t.Errorf("pen left the canvas: %d,%d", m.col, m.row)
	}
	press(m, tea.KeyMsg{Type: tea.KeyUp})
	if m.row != m.rows()-2 {
		t.Errorf("pen should move back up, row %d", m.row)
	}
}

func TestLayerKeys(t *testing.T) {
	fm := newFakeMesh()
	board := canvas.NewBoard()
	m := NewBoardModel(fm, board)
	first := board.Active()

	press(m, runes("n"))
	if len(board.Layers()) != 2 || board.Active() == first {
		t.Fatal("n should create and activate a layer")
	}

	press(m, tea.KeyMsg{Type: tea.KeyTab})
	if board.Active() != first {
		t.Error("tab should cycle back to the first layer")
	}

	press(m, runes("v"))
	if board.Layers()[0].Visible {
		t.Error("v should hide the active layer")
	}

	press(m, runes("x"))
	if len(board.Layers()) != 1 {
		t.Error("x should delete the active layer")
	}
	press(m, runes("x"))
	if len(board.Layers()) != 1 {
		t.Error("the last layer must survive")
	}
}

func TestClearBroadcasts(t *testing.T) {
	fm := newFakeMesh()
	board := canvas.NewBoard()
	m := NewBoardModel(fm, board)

	press(m, runes("p"), tea.KeyMsg{Type: tea.KeyRight}, runes("c"))

	clear, ok := fm.sent[len(fm.sent)-1].(canvas.Clear)
	if !ok || clear.LayerID != board.Active() {
		t.Fatalf("expected a clear of the active layer, got %+v", fm.sent[len(fm.sent)-1])
	}
	if len(board.Layers()[0].Segments) != 0 {
		t.Error("clear should empty the layer locally")
	}
}

func TestMeshUpdatesRefreshRoster(t *testing.T) {
	fm := newFakeMesh()
	m := NewBoardModel(fm, canvas.NewBoard())

	fm.session.Members = append(fm.session.Members, protocol.Member{UserID: "u3", Nickname: "cy"})
	_, cmd := m.Update(meshUpdateMsg{})
	if cmd == nil {
		t.Error("update should keep listening")
	}
	view := m.View()
	for _, name := range []string{"ann", "bob", "cy", "studio"} {
		if !strings.Contains(view, name) {
			t.Errorf("view missing %q", name)
		}
	}

	_, cmd = m.Update(meshDoneMsg{})
	if cmd == nil || !m.quitting {
		t.Error("mesh shutdown should quit the board")
	}
}

func TestRemoteCursorIsRendered(t *testing.T) {
	fm := newFakeMesh()
	board := canvas.NewBoard()
	m := NewBoardModel(fm, board)

	if err := board.Apply("u2", canvas.Cursor{X: canvas.Width / 2, Y: canvas.Height / 2, Color: "#FF1744"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(m.canvasView(), "●") {
		t.Error("remote cursor should be drawn")
	}
}

func TestRosterMarksPeersWithoutTransport(t *testing.T) {
	fm := newFakeMesh()
	fm.session.Members = append(fm.session.Members, protocol.Member{UserID: "u3", Nickname: "cy"})
	m := NewBoardModel(fm, canvas.NewBoard())

	roster := m.rosterView()
	if !strings.Contains(roster, IconWaiting) {
		t.Errorf("a member with no transport should show the waiting mark:\n%s", roster)
	}
	if strings.Count(roster, IconWaiting) != 1 {
		t.Errorf("only cy is waiting:\n%s", roster)
	}
}
