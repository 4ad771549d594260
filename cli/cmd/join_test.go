package cmd

import (
	"testing"

	"github.com/morichikawa/echa25/cli/internal/mesh"
)

func TestDiffPeersReportsChangesAndDepartures(t *testing.T) {
	seen := make(map[string]mesh.PeerStatus)

	changed, left := diffPeers(seen, []mesh.PeerStatus{
		{UserID: "b", Nickname: "bob", State: mesh.StateNegotiating},
		{UserID: "c", Nickname: "cy", State: mesh.StateNegotiating},
	})
	if len(changed) != 2 || len(left) != 0 {
		t.Fatalf("new peers should be reported once: changed=%v left=%v", changed, left)
	}

	changed, left = diffPeers(seen, []mesh.PeerStatus{
		{UserID: "b", Nickname: "bob", State: mesh.StateOpen},
		{UserID: "c", Nickname: "cy", State: mesh.StateNegotiating},
	})
	if len(changed) != 1 || changed[0].UserID != "b" || len(left) != 0 {
		t.Fatalf("only b changed: changed=%v left=%v", changed, left)
	}

	changed, left = diffPeers(seen, []mesh.PeerStatus{
		{UserID: "b", Nickname: "bob", State: mesh.StateOpen},
	})
	if len(changed) != 0 {
		t.Errorf("nothing changed state, got %v", changed)
	}
	if len(left) != 1 || left[0].UserID != "c" || left[0].Nickname != "cy" {
		t.Fatalf("c should be reported as gone, got %v", left)
	}
	if _, ok := seen["c"]; ok {
		t.Error("departed peer must be forgotten")
	}

	// A peer that rejoins is reported again.
	changed, _ = diffPeers(seen, []mesh.PeerStatus{
		{UserID: "b", Nickname: "bob", State: mesh.StateOpen},
		{UserID: "c", Nickname: "cy", State: mesh.StateNegotiating},
	})
	if len(changed) != 1 || changed[0].UserID != "c" {
		t.Errorf("rejoined peer should be reported, got %v", changed)
	}
}
