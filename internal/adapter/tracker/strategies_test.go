package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/syncbridge/syncbridge/internal/domain/entity"
	"github.com/syncbridge/syncbridge/internal/port/reconciler"
)

func trackerStub(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/issues", func(w http.ResponseWriter, r *http.Request) {
		var in Issue
		_ = json.NewDecoder(r.Body).Decode(&in)
		in.ID = "TRK-1"
		in.UpdatedAt = "2026-08-29T09:00:00Z"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(in)
	})
	mux.HandleFunc("PUT /api/issues/{id}", func(w http.ResponseWriter, r *http.Request) {
		var in Issue
		_ = json.NewDecoder(r.Body).Decode(&in)
		in.ID = r.PathValue("id")
		in.UpdatedAt = "2026-08-29T09:30:00Z"
		_ = json.NewEncoder(w).Encode(in)
	})
	mux.HandleFunc("GET /api/issues/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Issue{
			ID:        r.PathValue("id"),
			Key:       "u-9",
			Title:     "pulled title",
			Status:    "in_review",
			UpdatedAt: "2026-08-29T08:00:00Z",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, "")
}

func TestIssuePushCreatesWhenUnlinked(t *testing.T) {
	_, client := trackerStub(t)
	s := &issueStrategy{client: client}

	payload, _ := json.Marshal(Issue{Title: "brand new", Key: "u-5"})
	e := &entity.Entity{
		ID:         "e-1",
		EntityType: EntityTypeIssue,
		InternalID: "u-5",
		Direction:  entity.DirectionToExternal,
		Payload:    payload,
	}

	updated, err := s.PushToExternal(context.Background(), e)
	if err != nil {
		t.Fatalf("PushToExternal: %v", err)
	}
	if updated.ExternalID != "TRK-1" {
		t.Fatalf("expected assigned external id, got %q", updated.ExternalID)
	}
	if updated.Metadata[entity.MetaExternalModified] == "" {
		t.Fatal("expected external modification stamp")
	}
	if e.ExternalID != "" {
		t.Fatal("input entity must not be mutated")
	}
}

func TestIssuePushUpdatesWhenLinked(t *testing.T) {
	_, client := trackerStub(t)
	s := &issueStrategy{client: client}

	payload, _ := json.Marshal(Issue{Title: "renamed"})
	e := &entity.Entity{
		ID:         "e-1",
		EntityType: EntityTypeIssue,
		ExternalID: "TRK-42",
		Direction:  entity.DirectionToExternal,
		Payload:    payload,
	}

	updated, err := s.PushToExternal(context.Background(), e)
	if err != nil {
		t.Fatalf("PushToExternal: %v", err)
	}
	if updated.ExternalID != "TRK-42" {
		t.Fatalf("external id must be stable, got %q", updated.ExternalID)
	}

	var out Issue
	if err := json.Unmarshal(updated.Payload, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out.Title != "renamed" {
		t.Fatalf("unexpected payload title %q", out.Title)
	}
}

func TestIssuePushRequiresTitle(t *testing.T) {
	_, client := trackerStub(t)
	s := &issueStrategy{client: client}

	e := &entity.Entity{ID: "e-1", EntityType: EntityTypeIssue, InternalID: "u-5"}
	if _, err := s.PushToExternal(context.Background(), e); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestIssuePullRefreshesPayload(t *testing.T) {
	_, client := trackerStub(t)
	s := &issueStrategy{client: client}

	e := &entity.Entity{
		ID:         "e-1",
		EntityType: EntityTypeIssue,
		ExternalID: "TRK-9",
		Direction:  entity.DirectionFromExternal,
	}

	updated, err := s.PullFromExternal(context.Background(), e)
	if err != nil {
		t.Fatalf("PullFromExternal: %v", err)
	}

	var out Issue
	if err := json.Unmarshal(updated.Payload, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out.Title != "pulled title" || out.Status != "in_review" {
		t.Fatalf("unexpected issue: %+v", out)
	}
	if updated.InternalID != "u-9" {
		t.Fatalf("expected internal id adopted from issue key, got %q", updated.InternalID)
	}
}

func TestIssuePullRequiresExternalID(t *testing.T) {
	_, client := trackerStub(t)
	s := &issueStrategy{client: client}

	e := &entity.Entity{ID: "e-1", EntityType: EntityTypeIssue, InternalID: "u-5"}
	if _, err := s.PullFromExternal(context.Background(), e); err == nil {
		t.Fatal("expected error without external id")
	}
}

func TestRegisterWiresBothPaths(t *testing.T) {
	_, client := trackerStub(t)
	reg := reconciler.NewRegistry()
	Register(reg, client)

	for _, path := range []entity.Path{entity.PathPushToExternal, entity.PathPullFromExternal} {
		if _, err := reg.Lookup(EntityTypeIssue, path); err != nil {
			t.Fatalf("Lookup(%s): %v", path, err)
		}
	}
}
