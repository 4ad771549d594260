// Package store holds the relay's connection and membership tables. Every
// record carries an expiry; expired records are invisible to readers.
package store

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL matches the record lifetime used for both tables.
const DefaultTTL = time.Hour

var ErrNotFound = errors.New("record not found")

// Connection is one record per open Relay Bus channel.
type Connection struct {
	ID          string
	RoomID      string
	UserID      string
	Nickname    string
	ConnectedAt time.Time
	ExpiresAt   time.Time
}

// InRoom reports whether the connection has joined a room.
func (c Connection) InRoom() bool {
	return c.RoomID != ""
}

// Membership is one record per (room, connection) pair.
type Membership struct {
	RoomID       string
	ConnectionID string
	UserID       string
	Nickname     string
	Color        string
	JoinedAt     time.Time
	IsHost       bool
	ExpiresAt    time.Time
}

// Store is the keyed store behind the Room Registry. Implementations must be
// safe for concurrent use.
type Store interface {
	PutConnection(ctx context.Context, c Connection) error
	GetConnection(ctx context.Context, id string) (Connection, error)
	UpdateConnection(ctx context.Context, id string, fn func(*Connection)) error
	DeleteConnection(ctx context.Context, id string) error

	PutMembership(ctx context.Context, m Membership) error
	DeleteMembership(ctx context.Context, roomID, connectionID string) error
	// MembershipOf finds the membership held by a connection, if any.
	MembershipOf(ctx context.Context, connectionID string) (Membership, error)
	// QueryRoom returns the room's members ordered by JoinedAt.
	QueryRoom(ctx context.Context, roomID string) ([]Membership, error)
	SetHost(ctx context.Context, roomID, connectionID string, isHost bool) error
	RoomIDs(ctx context.Context) ([]string, error)

	// Touch extends the expiry of a connection and its membership.
	Touch(ctx context.Context, connectionID string, expiresAt time.Time) error
}
