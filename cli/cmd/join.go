package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/morichikawa/echa25/cli/internal/config"
	"github.com/morichikawa/echa25/cli/internal/mesh"
	"github.com/morichikawa/echa25/cli/internal/roomname"
	"github.com/morichikawa/echa25/cli/internal/ui"
)

var (
	joinOpts config.Options
	headless bool
)

var joinCmd = &cobra.Command{
	Use:   "join [room]",
	Short: "Join a whiteboard room",
	Long:  `Join a whiteboard room, or start a new one with a generated name when no room is given. Share the room name so others can draw with you.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := roomname.Generate()
		if len(args) == 1 {
			roomID = args[0]
		}
		return runJoin(cmd.Context(), roomID)
	},
}

func init() {
	joinCmd.Flags().StringVarP(&joinOpts.Nickname, "nickname", "n", "", "Display name (default $USER)")
	joinCmd.Flags().StringVar(&joinOpts.Color, "color", "", "Cursor color as #RRGGBB (default random)")
	joinCmd.Flags().StringVarP(&joinOpts.ServerURL, "server", "s", "", "Relay websocket URL")
	joinCmd.Flags().StringVar(&joinOpts.STUNServer, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&joinOpts.TURNServer, "turn", "", "TURN server URL")
	joinCmd.Flags().StringVar(&joinOpts.TURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&joinOpts.TURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVar(&joinOpts.ForceRelay, "relay", false, "Force traffic through the TURN server")
	joinCmd.Flags().StringVar(&joinOpts.Codec, "codec", "", "Drawing event codec: json or msgpack")
	joinCmd.Flags().BoolVar(&headless, "headless", false, "Stay in the room without the board, logging peer changes")

	rootCmd.AddCommand(joinCmd)
}

func runJoin(ctx context.Context, roomID string) error {
	cfg, err := LoadConfig(joinOpts)
	if err != nil {
		return err
	}

	sp := ui.NewConnectionSpinner(ui.IconConnect + " Connecting to relay...")
	sp.Start()
	conn, err := NewConnectionContext(ctx, cfg, roomID)
	if err != nil {
		sp.Error("Could not reach the relay")
		return err
	}
	defer conn.Close()

	sp.UpdateMessage(fmt.Sprintf("Joining %s...", roomID))
	joined, err := conn.Join(ctx)
	if err != nil {
		sp.Error("Join failed")
		return err
	}
	sp.Stop()

	fmt.Println(ui.RoomInfo{
		RoomID:   roomID,
		Nickname: cfg.Nickname,
		Color:    cfg.Color,
		IsHost:   joined.IsHost,
	}.View())

	if headless {
		watch(ctx, conn.Coordinator)
	} else if err := ui.RunBoard(conn.Coordinator, conn.Board); err != nil {
		return fmt.Errorf("run board: %w", err)
	}

	conn.Close()
	fmt.Println()
	ui.RenderSummary(conn.Coordinator.Summary())
	return nil
}

// watch logs roster and connection changes until the session ends.
func watch(ctx context.Context, coord *mesh.Coordinator) {
	seen := make(map[string]mesh.PeerStatus)
	for {
		select {
		case <-ctx.Done():
			return
		case <-coord.Done():
			ui.PrintWarning("Session ended")
			return
		case <-coord.Updates():
		}

		changed, left := diffPeers(seen, coord.Peers())
		for _, p := range changed {
			slog.Info("Peer changed", "peer", p.UserID, "nickname", p.Nickname, "state", p.State, "restarts", p.Restarts)
			switch p.State {
			case mesh.StateOpen:
				ui.PrintSuccessf("Connected to %s", p.Nickname)
			case mesh.StateNegotiating:
				if p.Restarts > 0 {
					ui.PrintWarningf("Reconnecting to %s (attempt %d)", p.Nickname, p.Restarts+1)
				}
			}
		}
		for _, p := range left {
			slog.Info("Peer left", "peer", p.UserID, "nickname", p.Nickname)
			ui.PrintInfof("%s left the room", p.Nickname)
		}
	}
}

// diffPeers updates seen to the current roster and returns the peers whose
// state changed and the peers that are gone.
func diffPeers(seen map[string]mesh.PeerStatus, peers []mesh.PeerStatus) (changed, left []mesh.PeerStatus) {
	current := make(map[string]bool, len(peers))
	for _, p := range peers {
		current[p.UserID] = true
		if prev, ok := seen[p.UserID]; ok && prev.State == p.State {
			continue
		}
		seen[p.UserID] = p
		changed = append(changed, p)
	}
	for id, p := range seen {
		if !current[id] {
			delete(seen, id)
			left = append(left, p)
		}
	}
	slices.SortFunc(left, func(a, b mesh.PeerStatus) int { return strings.Compare(a.UserID, b.UserID) })
	return changed, left
}
