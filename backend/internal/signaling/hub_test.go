package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/morichikawa/echa25/backend/internal/store"
	"github.com/morichikawa/echa25/internal/protocol"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(store.NewMemoryStore(nil), HubOptions{Workers: 4, QueueSize: 16})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func newTestClient(hub *Hub, id string) *Client {
	c := NewClient(hub, nil, id, 64)
	hub.Register(c)
	return c
}

// await reads from c until a message of the wanted type shows up.
func await[T protocol.Outbound](t *testing.T, c *Client) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				t.Fatalf("%s: send channel closed", c.ID)
			}
			if m, ok := msg.(T); ok {
				return m
			}
		case <-timeout:
			var zero T
			t.Fatalf("%s: timed out waiting for %T", c.ID, zero)
		}
	}
}

func TestHubConcurrentJoinsElectOneHost(t *testing.T) {
	hub := startHub(t)

	const n = 12
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = newTestClient(hub, fmt.Sprintf("conn-%d", i))
	}

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Submit(c, protocol.JoinRequest{RoomID: "race", Nickname: fmt.Sprintf("user-%d", i)})
		}()
	}
	wg.Wait()

	hostCount := 0
	for _, c := range clients {
		if await[protocol.Joined](t, c).IsHost {
			hostCount++
		}
	}
	if hostCount != 1 {
		t.Errorf("expected exactly one joiner to be told it is host, got %d", hostCount)
	}

	rooms, err := hub.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || len(rooms[0].Members) != n {
		t.Fatalf("unexpected snapshot: %+v", rooms)
	}
	if got := hosts(rooms[0].Members); len(got) != 1 || got[0] != rooms[0].Members[0].UserID {
		t.Errorf("earliest member must be the only host, hosts=%v", got)
	}
}

func TestHubUnregisterAnnouncesDeparture(t *testing.T) {
	hub := startHub(t)
	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")

	hub.Submit(alice, protocol.JoinRequest{RoomID: "R1", Nickname: "alice"})
	aliceJoined := await[protocol.Joined](t, alice)
	hub.Submit(bob, protocol.JoinRequest{RoomID: "R1", Nickname: "bob"})
	bobJoined := await[protocol.Joined](t, bob)

	hub.Unregister(alice)

	left := await[protocol.UserLeft](t, bob)
	if left.UserID != aliceJoined.UserID || left.NewHost != bobJoined.UserID {
		t.Errorf("unexpected user-left: %+v", left)
	}

	if err := hub.Post(context.Background(), "alice", protocol.Error{}); !errors.Is(err, ErrGone) {
		t.Errorf("posting to an unregistered client should fail with ErrGone, got %v", err)
	}
}

func TestHubRejoinMovesRooms(t *testing.T) {
	hub := startHub(t)
	a := newTestClient(hub, "a")
	b := newTestClient(hub, "b")

	hub.Submit(a, protocol.JoinRequest{RoomID: "R1", Nickname: "a"})
	await[protocol.Joined](t, a)
	hub.Submit(b, protocol.JoinRequest{RoomID: "R1", Nickname: "b"})
	await[protocol.Joined](t, b)

	hub.Submit(a, protocol.JoinRequest{RoomID: "R2", Nickname: "a"})
	joined := await[protocol.Joined](t, a)
	if !joined.IsHost || len(joined.Members) != 1 {
		t.Errorf("a should be alone and host in R2: %+v", joined)
	}

	left := await[protocol.UserLeft](t, b)
	if len(left.Members) != 1 || !left.Members[0].IsHost {
		t.Errorf("b should be the only member and host of R1: %+v", left)
	}
}

func TestHubRejectsInvalidJoinAndStraySignal(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub, "c")

	hub.Submit(c, protocol.JoinRequest{RoomID: "", Nickname: "x"})
	if e := await[protocol.Error](t, c); e.Code != protocol.CodeInvalidInput {
		t.Errorf("unexpected error code %q", e.Code)
	}

	hub.Submit(c, protocol.SignalRequest{Data: json.RawMessage(`{}`)})
	if e := await[protocol.Error](t, c); e.Code != protocol.CodeNotInRoom {
		t.Errorf("unexpected error code %q", e.Code)
	}
}
