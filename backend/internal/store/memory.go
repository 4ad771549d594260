package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type memberKey struct {
	roomID       string
	connectionID string
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu          sync.RWMutex
	connections map[string]Connection
	members     map[memberKey]Membership
	byConn      map[string]string // connectionID -> roomID
	now         func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		connections: make(map[string]Connection),
		members:     make(map[memberKey]Membership),
		byConn:      make(map[string]string),
		now:         now,
	}
}

func (s *MemoryStore) live(expiresAt time.Time) bool {
	return expiresAt.IsZero() || s.now().Before(expiresAt)
}

func (s *MemoryStore) PutConnection(_ context.Context, c Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.ID] = c
	return nil
}

func (s *MemoryStore) GetConnection(_ context.Context, id string) (Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok || !s.live(c.ExpiresAt) {
		return Connection{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) UpdateConnection(_ context.Context, id string, fn func(*Connection)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok || !s.live(c.ExpiresAt) {
		return ErrNotFound
	}
	fn(&c)
	c.ID = id
	s.connections[id] = c
	return nil
}

func (s *MemoryStore) DeleteConnection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)
	return nil
}

func (s *MemoryStore) PutMembership(_ context.Context, m Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey{m.RoomID, m.ConnectionID}] = m
	s.byConn[m.ConnectionID] = m.RoomID
	return nil
}

func (s *MemoryStore) DeleteMembership(_ context.Context, roomID, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, memberKey{roomID, connectionID})
	if s.byConn[connectionID] == roomID {
		delete(s.byConn, connectionID)
	}
	return nil
}

func (s *MemoryStore) MembershipOf(_ context.Context, connectionID string) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roomID, ok := s.byConn[connectionID]
	if !ok {
		return Membership{}, ErrNotFound
	}
	m, ok := s.members[memberKey{roomID, connectionID}]
	if !ok || !s.live(m.ExpiresAt) {
		return Membership{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) QueryRoom(_ context.Context, roomID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Membership
	for key, m := range s.members {
		if key.roomID == roomID && s.live(m.ExpiresAt) {
			out = append(out, m)
		}
	}
	SortByJoinedAt(out)
	return out, nil
}

func (s *MemoryStore) SetHost(_ context.Context, roomID, connectionID string, isHost bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{roomID, connectionID}
	m, ok := s.members[key]
	if !ok || !s.live(m.ExpiresAt) {
		return ErrNotFound
	}
	m.IsHost = isHost
	s.members[key] = m
	return nil
}

func (s *MemoryStore) RoomIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key, m := range s.members {
		if s.live(m.ExpiresAt) {
			seen[key.roomID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Touch(_ context.Context, connectionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[connectionID]
	if !ok || !s.live(c.ExpiresAt) {
		return ErrNotFound
	}
	c.ExpiresAt = expiresAt
	s.connections[connectionID] = c

	if roomID, ok := s.byConn[connectionID]; ok {
		key := memberKey{roomID, connectionID}
		if m, ok := s.members[key]; ok && s.live(m.ExpiresAt) {
			m.ExpiresAt = expiresAt
			s.members[key] = m
		}
	}
	return nil
}

// Sweep removes expired records and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.connections {
		if !s.live(c.ExpiresAt) {
			delete(s.connections, id)
			removed++
		}
	}
	for key, m := range s.members {
		if !s.live(m.ExpiresAt) {
			delete(s.members, key)
			if s.byConn[key.connectionID] == key.roomID {
				delete(s.byConn, key.connectionID)
			}
			removed++
		}
	}
	return removed
}

// Run sweeps expired records every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("Expired records swept", "count", n)
			}
		}
	}
}

// SortByJoinedAt orders memberships by join time, breaking ties by
// connection id so the order is total.
func SortByJoinedAt(ms []Membership) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].JoinedAt.Equal(ms[j].JoinedAt) {
			return ms[i].JoinedAt.Before(ms[j].JoinedAt)
		}
		return ms[i].ConnectionID < ms[j].ConnectionID
	})
}
