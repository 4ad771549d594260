package signaling

import (
	"context"
	"fmt"

	"github.com/morichikawa/echa25/backend/internal/store"
	"github.com/morichikawa/echa25/internal/protocol"
)

// Room is a point-in-time view of a room and its roster.
type Room = protocol.Room

// project converts membership records (already ordered by join time) into
// the roster pushed to clients.
func project(ms []store.Membership) []protocol.Member {
	members := make([]protocol.Member, 0, len(ms))
	for _, m := range ms {
		members = append(members, protocol.Member{
			UserID:   m.UserID,
			Nickname: m.Nickname,
			Color:    m.Color,
			IsHost:   m.IsHost,
		})
	}
	return members
}

// electHost makes the earliest member the only host of a non-empty roster,
// writing any flag change back to the store. roster must be ordered by join
// time and is updated in place. It returns the userId of the member that was
// promoted, or "" when the host did not change.
func (r *Registry) electHost(ctx context.Context, roster []store.Membership) (string, error) {
	promoted := ""
	for i := range roster {
		want := i == 0
		if roster[i].IsHost == want {
			continue
		}
		if err := r.store.SetHost(ctx, roster[i].RoomID, roster[i].ConnectionID, want); err != nil {
			return "", fmt.Errorf("set host: %w", err)
		}
		roster[i].IsHost = want
		if want {
			promoted = roster[i].UserID
		}
	}
	return promoted, nil
}
