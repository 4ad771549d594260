package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/morichikawa/echa25/backend/internal/store"
	"github.com/morichikawa/echa25/internal/protocol"
)

// Options tunes a Registry. Zero values fall back to defaults.
type Options struct {
	TTL   time.Duration
	Now   func() time.Time
	NewID func() string
}

// Registry implements the room operations on top of a Store. Operations on
// the same room must not run concurrently; the Hub serializes them through
// its Sequencer.
type Registry struct {
	store   store.Store
	gateway Gateway
	ttl     time.Duration
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	lastJoin time.Time
}

// NewRegistry creates a registry that delivers through gw.
func NewRegistry(st store.Store, gw Gateway, opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = store.DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Registry{
		store:   st,
		gateway: gw,
		ttl:     opts.TTL,
		now:     opts.Now,
		newID:   opts.NewID,
	}
}

// stamp returns a join time strictly after every previous one.
func (r *Registry) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.now()
	if !t.After(r.lastJoin) {
		t = r.lastJoin.Add(time.Nanosecond)
	}
	r.lastJoin = t
	return t
}

// Attach records a freshly opened connection.
func (r *Registry) Attach(ctx context.Context, connID string) error {
	now := r.now()
	return r.store.PutConnection(ctx, store.Connection{
		ID:          connID,
		ConnectedAt: now,
		ExpiresAt:   now.Add(r.ttl),
	})
}

// Join places the connection in req.RoomID and announces it. The returned
// member is the joiner's roster entry.
func (r *Registry) Join(ctx context.Context, connID string, req protocol.JoinRequest) (protocol.Member, error) {
	if err := req.Validate(); err != nil {
		return protocol.Member{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	userID := r.newID()
	joinedAt := r.stamp()
	expiresAt := joinedAt.Add(r.ttl)

	err := r.store.UpdateConnection(ctx, connID, func(c *store.Connection) {
		c.RoomID = req.RoomID
		c.UserID = userID
		c.Nickname = req.Nickname
		c.ExpiresAt = expiresAt
	})
	if err != nil {
		return protocol.Member{}, fmt.Errorf("update connection: %w", err)
	}

	existing, err := r.store.QueryRoom(ctx, req.RoomID)
	if err != nil {
		return protocol.Member{}, fmt.Errorf("query room: %w", err)
	}

	self := store.Membership{
		RoomID:       req.RoomID,
		ConnectionID: connID,
		UserID:       userID,
		Nickname:     req.Nickname,
		Color:        req.Color,
		JoinedAt:     joinedAt,
		IsHost:       len(existing) == 0,
		ExpiresAt:    expiresAt,
	}
	if err := r.store.PutMembership(ctx, self); err != nil {
		return protocol.Member{}, fmt.Errorf("put membership: %w", err)
	}

	roster := append(append(make([]store.Membership, 0, len(existing)+1), existing...), self)
	if _, err := r.electHost(ctx, roster); err != nil {
		return protocol.Member{}, err
	}
	members := project(roster)
	joiner := members[len(members)-1]

	slog.Info("Client joined room",
		"room", req.RoomID, "user", userID, "host", joiner.IsHost, "members", len(members))

	deliveries := make([]delivery, 0, len(roster))
	for _, m := range roster[:len(roster)-1] {
		deliveries = append(deliveries, delivery{
			connID: m.ConnectionID,
			msg: protocol.UserJoined{
				UserID:   userID,
				Nickname: req.Nickname,
				IsHost:   joiner.IsHost,
				Members:  members,
			},
		})
	}
	deliveries = append(deliveries, delivery{
		connID: connID,
		msg: protocol.Joined{
			UserID:  userID,
			IsHost:  joiner.IsHost,
			Members: members,
		},
	})
	r.deliver(ctx, deliveries)

	return joiner, nil
}

// Signal forwards req.Data to the target member, or to every other member of
// the sender's room. It returns the number of recipients attempted.
func (r *Registry) Signal(ctx context.Context, connID string, req protocol.SignalRequest) (int, error) {
	conn, err := r.store.GetConnection(ctx, connID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !conn.InRoom()) {
		return 0, ErrNotInRoom
	}
	if err != nil {
		return 0, fmt.Errorf("get connection: %w", err)
	}

	members, err := r.store.QueryRoom(ctx, conn.RoomID)
	if err != nil {
		return 0, fmt.Errorf("query room: %w", err)
	}

	msg := protocol.SignalMessage{FromUserID: conn.UserID, Data: req.Data}
	var deliveries []delivery
	for _, m := range members {
		if req.TargetUserID != "" && m.UserID != req.TargetUserID {
			continue
		}
		if req.TargetUserID == "" && m.ConnectionID == connID {
			continue
		}
		deliveries = append(deliveries, delivery{connID: m.ConnectionID, msg: msg})
	}

	if len(deliveries) == 0 {
		slog.Debug("Signal has no recipients", "room", conn.RoomID, "from", conn.UserID, "target", req.TargetUserID)
		return 0, nil
	}

	r.deliver(ctx, deliveries)
	return len(deliveries), nil
}

// Disconnect removes a closed connection and, when it was in a room, hands
// the roster update to the remaining members.
func (r *Registry) Disconnect(ctx context.Context, connID string) error {
	roomID := ""
	conn, err := r.store.GetConnection(ctx, connID)
	switch {
	case err == nil:
		roomID = conn.RoomID
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("get connection: %w", err)
	}

	// The connection record may already have been lazily deleted.
	if roomID == "" {
		if m, err := r.store.MembershipOf(ctx, connID); err == nil {
			roomID = m.RoomID
		}
	}

	if err := r.store.DeleteConnection(ctx, connID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}

	if roomID == "" {
		return nil
	}
	return r.removeMember(ctx, roomID, connID)
}

// Leave takes the connection out of roomID while keeping it attached.
func (r *Registry) Leave(ctx context.Context, connID, roomID string) error {
	err := r.store.UpdateConnection(ctx, connID, func(c *store.Connection) {
		if c.RoomID != roomID {
			return
		}
		c.RoomID = ""
		c.UserID = ""
		c.Nickname = ""
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("update connection: %w", err)
	}
	return r.removeMember(ctx, roomID, connID)
}

func (r *Registry) removeMember(ctx context.Context, roomID, connID string) error {
	roster, err := r.store.QueryRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("query room: %w", err)
	}

	var departing *store.Membership
	remaining := make([]store.Membership, 0, len(roster))
	for i := range roster {
		if roster[i].ConnectionID == connID {
			departing = &roster[i]
			continue
		}
		remaining = append(remaining, roster[i])
	}
	if departing == nil {
		return nil
	}

	if err := r.store.DeleteMembership(ctx, roomID, connID); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}

	if len(remaining) == 0 {
		slog.Info("Room is now empty", "room", roomID)
		return nil
	}

	newHost, err := r.electHost(ctx, remaining)
	if err != nil {
		return err
	}
	if newHost != "" {
		slog.Info("Host reassigned", "room", roomID, "host", newHost)
	}

	members := project(remaining)
	msg := protocol.UserLeft{UserID: departing.UserID, Members: members, NewHost: newHost}
	deliveries := make([]delivery, 0, len(remaining))
	for _, m := range remaining {
		deliveries = append(deliveries, delivery{connID: m.ConnectionID, msg: msg})
	}
	r.deliver(ctx, deliveries)

	slog.Info("Client left room", "room", roomID, "user", departing.UserID, "members", len(members))
	return nil
}

// Touch extends the lifetime of a live connection.
func (r *Registry) Touch(ctx context.Context, connID string) error {
	err := r.store.Touch(ctx, connID, r.now().Add(r.ttl))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Snapshot lists every non-empty room with its roster.
func (r *Registry) Snapshot(ctx context.Context) ([]Room, error) {
	ids, err := r.store.RoomIDs(ctx)
	if err != nil {
		return nil, err
	}
	rooms := make([]Room, 0, len(ids))
	for _, id := range ids {
		ms, err := r.store.QueryRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(ms) == 0 {
			continue
		}
		rooms = append(rooms, Room{ID: id, Members: project(ms)})
	}
	return rooms, nil
}

type delivery struct {
	connID string
	msg    protocol.Outbound
}

// deliver posts every message concurrently and waits for all attempts.
// Failures are never returned: a gone recipient loses its connection record,
// anything else is logged.
func (r *Registry) deliver(ctx context.Context, deliveries []delivery) {
	var g errgroup.Group
	for _, d := range deliveries {
		g.Go(func() error {
			err := r.gateway.Post(ctx, d.connID, d.msg)
			switch {
			case err == nil:
			case errors.Is(err, ErrGone):
				slog.Debug("Dropping stale connection", "connection", d.connID)
				if err := r.store.DeleteConnection(ctx, d.connID); err != nil {
					slog.Warn("Failed to delete stale connection", "connection", d.connID, "error", err)
				}
			default:
				slog.Warn("Delivery failed", "connection", d.connID, "type", d.msg.Type(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
