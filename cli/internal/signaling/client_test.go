package signaling

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	pion "github.com/pion/webrtc/v4"

	"github.com/morichikawa/echa25/internal/protocol"
)

// fakeRelay answers every join with a joined envelope and echoes signals
// back as if they came from "peer".
func fakeRelay(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.ParseInbound(data)
			if err != nil {
				continue
			}
			var reply protocol.Outbound
			switch m := msg.(type) {
			case protocol.JoinRequest:
				reply = protocol.Joined{UserID: "u-" + m.Nickname, IsHost: true,
					Members: []protocol.Member{{UserID: "u-" + m.Nickname, Nickname: m.Nickname, IsHost: true}}}
			case protocol.SignalRequest:
				reply = protocol.SignalMessage{FromUserID: "peer", Data: m.Data}
			}
			out, _ := protocol.Encode(reply)
			conn.WriteMessage(websocket.TextMessage, out)
			// Garbage must be skipped by the client.
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func next(t *testing.T, c *Client) protocol.Outbound {
	t.Helper()
	select {
	case msg, ok := <-c.Incoming():
		if !ok {
			t.Fatal("incoming closed")
		}
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
	return nil
}

func TestClientJoinAndSignal(t *testing.T) {
	srv := fakeRelay(t)
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Join("R1", "ann", ""); err != nil {
		t.Fatal(err)
	}
	joined, ok := next(t, c).(protocol.Joined)
	if !ok || joined.UserID != "u-ann" {
		t.Fatalf("unexpected reply %+v", joined)
	}

	cand := ICECandidate{Candidate: pion.ICECandidateInit{Candidate: "candidate:1 1 udp 1 192.0.2.1 5000 typ host"}}
	if err := c.Signal("peer", cand); err != nil {
		t.Fatal(err)
	}
	sig, ok := next(t, c).(protocol.SignalMessage)
	if !ok {
		t.Fatal("expected echoed signal")
	}
	data, err := ParseSignalData(sig.Data)
	if err != nil {
		t.Fatal(err)
	}
	if got := data.(ICECandidate).Candidate.Candidate; got != cand.Candidate.Candidate {
		t.Errorf("candidate mangled: %q", got)
	}
}

func TestClientCloseIsIdempotent(t *testing.T) {
	srv := fakeRelay(t)
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Close()
	c.Close()

	if err := c.Join("R1", "ann", ""); err != ErrClosed {
		t.Errorf("send after close should fail with ErrClosed, got %v", err)
	}

	// The read side drains and closes once the relay hangs up.
	timeout := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.Incoming():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("incoming never closed")
		}
	}
}

func TestSendFailsAfterRelayLoss(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	timeout := time.After(3 * time.Second)
	for drained := false; !drained; {
		select {
		case _, ok := <-c.Incoming():
			drained = !ok
		case <-timeout:
			t.Fatal("incoming never closed")
		}
	}

	errs := make(chan error, 1)
	go func() {
		for range 100 {
			if err := c.Signal("peer", ICECandidate{Candidate: pion.ICECandidateInit{Candidate: "c"}}); err != ErrClosed {
				errs <- fmt.Errorf("send after relay loss: got %v, want ErrClosed", err)
				return
			}
		}
		errs <- nil
	}()
	select {
	case err := <-errs:
		if err != nil {
			t.Error(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send blocked after the relay went away")
	}
}

func TestClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"http://relay.example/ws", "::bad"} {
		if err := NewClient(raw, nil).Connect(context.Background()); err == nil {
			t.Errorf("Connect(%q) should fail", raw)
		}
	}
}
