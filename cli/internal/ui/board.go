package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/morichikawa/echa25/cli/internal/canvas"
	"github.com/morichikawa/echa25/cli/internal/mesh"
)

const (
	rosterWidth = 28
	penSize     = 4
	eraserSize  = 24
)

// Mesh is the part of the peer coordinator the board view drives.
type Mesh interface {
	Broadcast(canvas.Event) (int, error)
	Peers() []mesh.PeerStatus
	Session() mesh.Session
	Updates() <-chan struct{}
	Done() <-chan struct{}
}

type meshUpdateMsg struct{}

type meshDoneMsg struct{}

// BoardModel is the interactive whiteboard: a terminal raster of the shared
// canvas next to the room roster.
type BoardModel struct {
	mesh  Mesh
	board *canvas.Board

	session mesh.Session
	peers   []mesh.PeerStatus

	width, height int
	col, row      int
	penDown       bool
	tool          canvas.Tool

	spinner  spinner.Model
	status   string
	quitting bool
}

// NewBoardModel creates the board view for a joined session.
func NewBoardModel(m Mesh, board *canvas.Board) *BoardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &BoardModel{
		mesh:    m,
		board:   board,
		session: m.Session(),
		peers:   m.Peers(),
		width:   100,
		height:  30,
		tool:    canvas.ToolPen,
		spinner: s,
		status:  "Press p to put the pen down",
	}
}

func (m *BoardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *BoardModel) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.mesh.Updates():
			return meshUpdateMsg{}
		case <-m.mesh.Done():
			return meshDoneMsg{}
		}
	}
}

func (m *BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg.String())

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.col = min(m.col, m.cols()-1)
		m.row = min(m.row, m.rows()-1)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case meshUpdateMsg:
		m.session = m.mesh.Session()
		m.peers = m.mesh.Peers()
		return m, m.listen()

	case meshDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *BoardModel) handleKey(key string) tea.Cmd {
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return tea.Quit
	case "up", "k":
		m.move(0, -1)
	case "down", "j":
		m.move(0, 1)
	case "left", "h":
		m.move(-1, 0)
	case "right", "l":
		m.move(1, 0)
	case "p", " ":
		m.penDown = !m.penDown
		if m.penDown {
			m.status = "Pen down"
		} else {
			m.status = "Pen up"
		}
	case "e":
		if m.tool == canvas.ToolPen {
			m.tool = canvas.ToolEraser
		} else {
			m.tool = canvas.ToolPen
		}
		m.status = "Tool: " + string(m.tool)
	case "c":
		m.publish(canvas.Clear{LayerID: m.board.Active()})
		m.status = "Layer cleared"
	case "n":
		m.board.SetActive(m.board.CreateLayer(""))
		m.status = "New layer"
	case "tab":
		m.cycleLayer()
	case "v":
		if visible, err := m.board.ToggleVisibility(m.board.Active()); err == nil {
			m.status = fmt.Sprintf("Layer visible: %t", visible)
		}
	case "[", "]":
		delta := 1
		if key == "[" {
			delta = -1
		}
		if err := m.board.MoveLayer(m.board.Active(), delta); err != nil {
			m.status = err.Error()
		}
	case "x":
		if err := m.board.DeleteLayer(m.board.Active()); err != nil {
			m.status = err.Error()
		} else {
			m.status = "Layer deleted"
		}
	}
	return nil
}

func (m *BoardModel) cols() int { return max(m.width-rosterWidth-4, 10) }
func (m *BoardModel) rows() int { return max(m.height-6, 5) }

func (m *BoardModel) raster() canvas.Raster {
	return canvas.Raster{Cols: m.cols(), Rows: m.rows()}
}

// move shifts the local pen one cell, drawing a segment when the pen is down.
func (m *BoardModel) move(dc, dr int) {
	r := m.raster()
	x1, y1 := r.CellToCanvas(m.col, m.row)
	m.col = min(max(m.col+dc, 0), r.Cols-1)
	m.row = min(max(m.row+dr, 0), r.Rows-1)
	x2, y2 := r.CellToCanvas(m.col, m.row)

	if m.penDown {
		size := float64(penSize)
		if m.tool == canvas.ToolEraser {
			size = eraserSize
		}
		m.publish(canvas.Stroke{
			X1: x1, Y1: y1, X2: x2, Y2: y2,
			Color:   m.session.Color,
			Size:    size,
			Tool:    m.tool,
			LayerID: m.board.Active(),
		})
	}
	m.publish(canvas.Cursor{X: x2, Y: y2, Color: m.session.Color})
}

// publish applies a local event and sends it to every open peer. The local
// cursor is drawn from the pen position, so cursor events are only sent.
func (m *BoardModel) publish(e canvas.Event) {
	if _, isCursor := e.(canvas.Cursor); !isCursor {
		if err := m.board.Apply(m.session.UserID, e); err != nil {
			m.status = err.Error()
			return
		}
	}
	if _, err := m.mesh.Broadcast(e); err != nil && !errors.Is(err, mesh.ErrStopped) {
		m.status = err.Error()
	}
}

func (m *BoardModel) cycleLayer() {
	layers := m.board.Layers()
	active := m.board.Active()
	for i, l := range layers {
		if l.ID == active {
			next := layers[(i+1)%len(layers)]
			m.board.SetActive(next.ID)
			m.status = "Active layer: " + next.Name
			return
		}
	}
}

func (m *BoardModel) View() string {
	if m.quitting {
		return ""
	}

	header := HeaderStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.session.RoomID))
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		CanvasStyle.Render(m.canvasView()),
		PanelStyle.Width(rosterWidth-2).Render(m.rosterView()+"\n\n"+m.layersView()),
	)

	toolIcon := IconPen
	if m.tool == canvas.ToolEraser {
		toolIcon = IconEraser
	}
	footer := FooterStyle.Render(fmt.Sprintf("%s %s · arrows move · p pen · e eraser · c clear · n/tab/v/[/]/x layers · q quit",
		toolIcon, StatusStyle.Render(m.status)))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *BoardModel) canvasView() string {
	r := m.board.Rasterize(m.cols(), m.rows())

	marks := make(map[[2]int]string)
	for _, c := range m.board.Cursors() {
		col, row := r.CanvasToCell(c.X, c.Y)
		marks[[2]int{col, row}] = c.Color
	}

	var b strings.Builder
	for y, line := range r.Cells {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x, color := range line {
			switch {
			case x == m.col && y == m.row:
				glyph := "+"
				if m.penDown {
					glyph = "◆"
				}
				b.WriteString(Swatch(glyph, m.session.Color))
			case marks[[2]int{x, y}] != "":
				b.WriteString(Swatch("●", marks[[2]int{x, y}]))
			case color != "":
				b.WriteString(Swatch("█", color))
			default:
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func (m *BoardModel) rosterView() string {
	states := make(map[string]mesh.PeerStatus, len(m.peers))
	for _, p := range m.peers {
		states[p.UserID] = p
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Participants"))
	for _, member := range m.session.Members {
		b.WriteString("\n")
		mark := " "
		if member.IsHost {
			mark = IconHost
		}
		name := Swatch(member.Nickname, member.Color)
		if member.UserID == m.session.UserID {
			b.WriteString(fmt.Sprintf("%s %s %s", mark, name, MutedStyle.Render("(you)")))
			continue
		}
		var state string
		switch p, ok := states[member.UserID]; {
		case !ok:
			// No transport yet: waiting for the lower id to offer.
			state = MutedStyle.Render(IconWaiting)
		case p.State == mesh.StateNegotiating:
			state = m.spinner.View()
		case p.State == mesh.StateOpen:
			state = SuccessStyle.Render("●")
		default:
			state = ErrorStyle.Render("○")
		}
		b.WriteString(fmt.Sprintf("%s %s %s", mark, name, state))
	}
	return b.String()
}

func (m *BoardModel) layersView() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(IconLayer + " Layers"))
	active := m.board.Active()
	layers := m.board.Layers()
	// Topmost layer first.
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		line := l.Name
		if !l.Visible {
			line = MutedStyle.Render(line + " (hidden)")
		}
		if l.ID == active {
			line = BoldStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}

// RunBoard runs the interactive board until the user quits or the mesh stops.
func RunBoard(m Mesh, board *canvas.Board) error {
	_, err := tea.NewProgram(NewBoardModel(m, board), tea.WithAltScreen()).Run()
	return err
}
