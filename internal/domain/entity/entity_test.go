package entity

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusConflict}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusInProgress} {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestDirectionValid(t *testing.T) {
	for _, d := range []Direction{DirectionToExternal, DirectionFromExternal, DirectionBidirectional} {
		if !d.Valid() {
			t.Fatalf("expected %s to be valid", d)
		}
	}
	if Direction("sideways").Valid() {
		t.Fatal("expected unknown direction to be invalid")
	}
}

func TestCreateRequestValidate(t *testing.T) {
	req := CreateRequest{EntityType: "issue", Direction: DirectionBidirectional}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := (&CreateRequest{Direction: DirectionBidirectional}).Validate(); err != ErrMissingType {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
	if err := (&CreateRequest{EntityType: "issue"}).Validate(); err != ErrBadDirection {
		t.Fatalf("expected ErrBadDirection, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	e := &Entity{
		ID:           "e1",
		Metadata:     map[string]string{"k": "v"},
		Payload:      json.RawMessage(`{"a":1}`),
		LastSyncTime: &now,
	}

	c := e.Clone()
	c.Metadata["k"] = "changed"
	c.Payload[2] = 'x'
	*c.LastSyncTime = now.Add(time.Hour)

	if e.Metadata["k"] != "v" {
		t.Fatal("metadata not deep-copied")
	}
	if string(e.Payload) != `{"a":1}` {
		t.Fatal("payload not deep-copied")
	}
	if !e.LastSyncTime.Equal(now) {
		t.Fatal("last sync time not deep-copied")
	}
}

func TestDiff(t *testing.T) {
	before := &Entity{InternalID: "i-1", Payload: json.RawMessage(`{"v":1}`)}
	after := &Entity{InternalID: "i-1", ExternalID: "X-1", Payload: json.RawMessage(`{"v":2}`)}

	changes := Diff(before, after)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %v", changes)
	}
	if changes["external_id"].To != "X-1" {
		t.Fatalf("expected external_id change, got %v", changes["external_id"])
	}
	if changes["payload"].From != `{"v":1}` || changes["payload"].To != `{"v":2}` {
		t.Fatalf("unexpected payload change %v", changes["payload"])
	}

	if Diff(after, after) != nil {
		t.Fatal("expected nil diff for identical snapshots")
	}
}
