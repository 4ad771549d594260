package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morichikawa/echa25/backend/internal/config"
	"github.com/morichikawa/echa25/backend/internal/signaling"
	"github.com/morichikawa/echa25/backend/internal/store"
	"github.com/morichikawa/echa25/internal/protocol"
)

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{SendBuffer: 64}
	}
	hub := signaling.NewHub(store.NewMemoryStore(nil), signaling.HubOptions{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(Routes(hub, cfg))
	t.Cleanup(srv.Close)
	return srv
}

type testConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn}
}

func (c *testConn) send(raw string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testConn) read() protocol.Outbound {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseOutbound(data)
	if err != nil {
		c.t.Fatalf("parse %s: %v", data, err)
	}
	return msg
}

func (c *testConn) join(room, nickname string) protocol.Joined {
	c.t.Helper()
	c.send(`{"action":"join","roomId":"` + room + `","nickname":"` + nickname + `"}`)
	joined, ok := c.read().(protocol.Joined)
	if !ok {
		c.t.Fatalf("%s expected joined", nickname)
	}
	return joined
}

func TestRelayJoinSignalAndHandoff(t *testing.T) {
	srv := newTestServer(t, nil)

	alice := dial(t, srv)
	aliceJoined := alice.join("R1", "alice")
	if !aliceJoined.IsHost || len(aliceJoined.Members) != 1 {
		t.Fatalf("alice should be alone and host: %+v", aliceJoined)
	}

	bob := dial(t, srv)
	bobJoined := bob.join("R1", "bob")
	if bobJoined.IsHost || len(bobJoined.Members) != 2 {
		t.Fatalf("bob should see two members without host: %+v", bobJoined)
	}
	if uj, ok := alice.read().(protocol.UserJoined); !ok || uj.UserID != bobJoined.UserID {
		t.Fatalf("alice should be told bob joined, got %+v", uj)
	}

	carol := dial(t, srv)
	carolJoined := carol.join("R1", "carol")
	alice.read()
	bob.read()

	// Broadcast signal reaches everyone but the sender.
	carol.send(`{"action":"signal","data":{"type":"offer","offer":{"type":"offer","sdp":"v=0"}}}`)
	for _, c := range []*testConn{alice, bob} {
		sig, ok := c.read().(protocol.SignalMessage)
		if !ok || sig.FromUserID != carolJoined.UserID {
			t.Fatalf("expected carol's signal, got %+v", sig)
		}
		var data map[string]any
		if err := json.Unmarshal(sig.Data, &data); err != nil || data["type"] != "offer" {
			t.Errorf("signal data not relayed verbatim: %s", sig.Data)
		}
	}

	// Host leaves; the oldest survivor is promoted.
	alice.conn.Close()
	for _, c := range []*testConn{bob, carol} {
		left, ok := c.read().(protocol.UserLeft)
		if !ok {
			t.Fatal("expected user-left")
		}
		if left.UserID != aliceJoined.UserID || left.NewHost != bobJoined.UserID {
			t.Errorf("unexpected user-left: %+v", left)
		}
		if len(left.Members) != 2 || !left.Members[0].IsHost || left.Members[0].UserID != bobJoined.UserID {
			t.Errorf("bob should head the roster as host: %+v", left.Members)
		}
	}
}

func TestRelayRejections(t *testing.T) {
	srv := newTestServer(t, nil)
	c := dial(t, srv)

	c.send(`{"action":"join","roomId":"R1","nickname":"` + strings.Repeat("n", 51) + `"}`)
	if e, ok := c.read().(protocol.Error); !ok || e.Code != protocol.CodeInvalidInput {
		t.Errorf("expected invalid-input error, got %+v", e)
	}

	c.send(`{"action":"signal","data":{}}`)
	if e, ok := c.read().(protocol.Error); !ok || e.Code != protocol.CodeNotInRoom {
		t.Errorf("expected not-in-room error, got %+v", e)
	}

	c.send(`not json`)
	if e, ok := c.read().(protocol.Error); !ok || e.Code != protocol.CodeMalformed {
		t.Errorf("expected malformed error, got %+v", e)
	}

	// The connection survives rejections.
	c.join("R1", "ok")
}

func TestRoomsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/rooms")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("expected empty list, got %s", body)
	}

	c := dial(t, srv)
	c.join("studio", "ann")

	resp, err = http.Get(srv.URL + "/rooms")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rooms []signaling.Room
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].ID != "studio" || rooms[0].Members[0].Nickname != "ann" {
		t.Errorf("unexpected rooms %+v", rooms)
	}
}

func TestHealthAndOrigin(t *testing.T) {
	srv := newTestServer(t, &config.Config{SendBuffer: 8, AllowedOrigins: []string{"https://board.example"}})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health returned %d", resp.StatusCode)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("foreign origin should be refused")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}

	header.Set("Origin", "https://board.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin refused: %v", err)
	}
	conn.Close()
}
