package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Inbound
		wantErr bool
	}{
		{
			name:  "join",
			input: `{"action":"join","roomId":"R1","nickname":"alice","color":"#FF1744"}`,
			want:  JoinRequest{RoomID: "R1", Nickname: "alice", Color: "#FF1744"},
		},
		{
			name:  "targeted signal",
			input: `{"action":"signal","targetUserId":"b2","data":{"type":"offer"}}`,
			want:  SignalRequest{TargetUserID: "b2", Data: json.RawMessage(`{"type":"offer"}`)},
		},
		{
			name:  "broadcast signal",
			input: `{"action":"signal","data":{"type":"ice-candidate"}}`,
			want:  SignalRequest{Data: json.RawMessage(`{"type":"ice-candidate"}`)},
		},
		{name: "signal without data", input: `{"action":"signal"}`, wantErr: true},
		{name: "signal with array data", input: `{"action":"signal","data":[1,2]}`, wantErr: true},
		{name: "unknown action", input: `{"action":"dance"}`, wantErr: true},
		{name: "not json", input: `join please`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			switch want := tt.want.(type) {
			case JoinRequest:
				if got != want {
					t.Errorf("got %+v, want %+v", got, want)
				}
			case SignalRequest:
				req, ok := got.(SignalRequest)
				if !ok {
					t.Fatalf("got %T, want SignalRequest", got)
				}
				if req.TargetUserID != want.TargetUserID || string(req.Data) != string(want.Data) {
					t.Errorf("got %+v, want %+v", req, want)
				}
			}
		})
	}
}

func TestEncodeAddsDiscriminant(t *testing.T) {
	b, err := Encode(Joined{UserID: "a1", IsHost: true})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"joined","userId":"a1","isHost":true,"members":[]}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}

	b, err = Encode(SignalRequest{Data: json.RawMessage(`{"type":"answer"}`)})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"action":"signal"`) || strings.Contains(string(b), "targetUserId") {
		t.Errorf("unexpected signal encoding: %s", b)
	}

	b, err = Encode(UserLeft{UserID: "a1", Members: []Member{{UserID: "b2", Nickname: "bob", IsHost: true}}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "newHost") {
		t.Errorf("newHost should be omitted when empty: %s", b)
	}

	if _, err := Encode(struct{}{}); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for unknown value, got %v", err)
	}
}

func TestParseOutbound(t *testing.T) {
	msg, err := ParseOutbound([]byte(`{"type":"user-left","userId":"a1","members":[{"userId":"b2","nickname":"bob","isHost":true}],"newHost":"b2"}`))
	if err != nil {
		t.Fatal(err)
	}
	left, ok := msg.(UserLeft)
	if !ok {
		t.Fatalf("got %T, want UserLeft", msg)
	}
	if left.NewHost != "b2" || len(left.Members) != 1 || !left.Members[0].IsHost {
		t.Errorf("unexpected user-left: %+v", left)
	}

	msg, err = ParseOutbound([]byte(`{"type":"signal","fromUserId":"a1","data":{"type":"offer"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if sig := msg.(SignalMessage); sig.FromUserID != "a1" {
		t.Errorf("unexpected signal: %+v", sig)
	}

	for _, bad := range []string{`{"type":"party"}`, `{"type":"signal","fromUserId":"a1","data":"x"}`, `[]`} {
		if _, err := ParseOutbound([]byte(bad)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", bad, err)
		}
	}
}

func TestJoinRequestValidate(t *testing.T) {
	tests := []struct {
		name  string
		req   JoinRequest
		valid bool
	}{
		{"minimal", JoinRequest{RoomID: "R", Nickname: "a"}, true},
		{"bounds", JoinRequest{RoomID: strings.Repeat("r", 100), Nickname: strings.Repeat("n", 50)}, true},
		{"multibyte nickname at bound", JoinRequest{RoomID: "R", Nickname: strings.Repeat("絵", 50)}, true},
		{"empty room", JoinRequest{Nickname: "a"}, false},
		{"empty nickname", JoinRequest{RoomID: "R"}, false},
		{"room too long", JoinRequest{RoomID: strings.Repeat("r", 101), Nickname: "a"}, false},
		{"nickname 51 characters", JoinRequest{RoomID: "R", Nickname: strings.Repeat("n", 51)}, false},
		{"bad color", JoinRequest{RoomID: "R", Nickname: "a", Color: "red"}, false},
		{"good color", JoinRequest{RoomID: "R", Nickname: "a", Color: "#00e676"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidJoin) {
				t.Errorf("expected ErrInvalidJoin, got %v", err)
			}
		})
	}
}
