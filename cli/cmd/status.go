package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/morichikawa/echa25/cli/internal/config"
	"github.com/morichikawa/echa25/cli/internal/dns"
	"github.com/morichikawa/echa25/cli/internal/ui"
	"github.com/morichikawa/echa25/internal/protocol"
)

var statusOpts config.Options

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the rooms open on the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(statusOpts)
		if err != nil {
			return err
		}
		rooms, err := fetchRooms(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Println(ui.RoomsView(rooms))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusOpts.ServerURL, "server", "s", "", "Relay websocket URL")
	rootCmd.AddCommand(statusCmd)
}

func fetchRooms(ctx context.Context, cfg *config.Config) ([]protocol.Room, error) {
	roomsURL, err := cfg.RoomsURL()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, roomsURL, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Transport: &http.Transport{DialContext: dns.NewResolver().DialContext},
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query relay: unexpected status %s", resp.Status)
	}
	var rooms []protocol.Room
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}
