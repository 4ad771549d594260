package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/morichikawa/echa25/cli/internal/mesh"
	"github.com/morichikawa/echa25/internal/protocol"
)

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// SummaryView lists every peer seen during a session with its final state
// and message counters.
func SummaryView(peers []mesh.PeerStatus) string {
	if len(peers) == 0 {
		return MutedStyle.Render("No peers joined this session")
	}
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		name := p.Nickname
		if name == "" {
			name = shortID(p.UserID)
		}
		rows = append(rows, []string{
			name,
			p.State.String(),
			p.Codec,
			fmt.Sprintf("%d", p.Restarts),
			fmt.Sprintf("%d", p.Sent),
			fmt.Sprintf("%d", p.Received),
			fmt.Sprintf("%d", p.Dropped),
		})
	}
	return newTable([]string{"Peer", "State", "Codec", "Restarts", "Sent", "Received", "Dropped"}, rows).Render()
}

func RenderSummary(peers []mesh.PeerStatus) {
	fmt.Println(SummaryView(peers))
}

// RoomsView renders the relay's room listing.
func RoomsView(rooms []protocol.Room) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgHiCyan, text.Bold}
	t.AppendHeader(prettytable.Row{"Room", "Members", "Host", "Participants"})
	for _, r := range rooms {
		host := ""
		names := make([]string, 0, len(r.Members))
		for _, m := range r.Members {
			if m.IsHost {
				host = m.Nickname
			}
			names = append(names, m.Nickname)
		}
		t.AppendRow(prettytable.Row{r.ID, len(r.Members), host, strings.Join(names, ", ")})
	}
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 4, WidthMax: 48},
	})
	return t.Render()
}

type RoomInfo struct {
	RoomID   string
	Nickname string
	Color    string
	IsHost   bool
}

func (r RoomInfo) View() string {
	role := "member"
	if r.IsHost {
		role = IconHost + " host"
	}
	content := fmt.Sprintf("%s Joined room %s\n\n%s You:    %s (%s)\n%s Share:  %s",
		IconRoom, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconPeer, Swatch(r.Nickname, r.Color), role,
		IconCopy, MutedStyle.Render("echa join "+r.RoomID),
	)
	return SuccessBoxStyle.Render(content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
