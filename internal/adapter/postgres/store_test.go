package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syncbridge/syncbridge/internal/adapter/postgres"
	"github.com/syncbridge/syncbridge/internal/domain"
	"github.com/syncbridge/syncbridge/internal/domain/entity"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

// newTestEntity builds a pending entity with unique external/internal IDs.
func newTestEntity(entityType string) *entity.Entity {
	suffix := uuid.New().String()[:8]
	return &entity.Entity{
		ID:         uuid.NewString(),
		EntityType: entityType,
		ExternalID: "TRK-" + suffix,
		InternalID: "u-" + suffix,
		Direction:  entity.DirectionBidirectional,
		Status:     entity.StatusPending,
		Metadata:   map[string]string{"source": "test"},
		Payload:    json.RawMessage(`{"title":"store test"}`),
	}
}

func TestStore_EntityRoundtrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	e := newTestEntity("issue")
	if err := store.SaveEntity(ctx, e); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	t.Cleanup(func() { _, _ = store.DeleteEntity(ctx, e.ID) })

	t.Run("GetByID", func(t *testing.T) {
		got, err := store.GetEntity(ctx, e.ID)
		if err != nil {
			t.Fatalf("GetEntity: %v", err)
		}
		if got.ExternalID != e.ExternalID || got.InternalID != e.InternalID {
			t.Fatalf("identity mismatch: %+v", got)
		}
		if got.Status != entity.StatusPending || got.Version != 0 {
			t.Fatalf("unexpected state: status=%s version=%d", got.Status, got.Version)
		}
		if got.Metadata["source"] != "test" {
			t.Fatalf("metadata lost: %+v", got.Metadata)
		}
	})

	t.Run("GetByExternalID", func(t *testing.T) {
		got, err := store.GetEntityByExternalID(ctx, "issue", e.ExternalID)
		if err != nil {
			t.Fatalf("GetEntityByExternalID: %v", err)
		}
		if got.ID != e.ID {
			t.Fatalf("expected %s, got %s", e.ID, got.ID)
		}
	})

	t.Run("GetByInternalID", func(t *testing.T) {
		got, err := store.GetEntityByInternalID(ctx, "issue", e.InternalID)
		if err != nil {
			t.Fatalf("GetEntityByInternalID: %v", err)
		}
		if got.ID != e.ID {
			t.Fatalf("expected %s, got %s", e.ID, got.ID)
		}
	})

	t.Run("Update", func(t *testing.T) {
		e.Status = entity.StatusCompleted
		e.Version = 1
		now := time.Now().UTC()
		e.LastSyncTime = &now
		if err := store.SaveEntity(ctx, e); err != nil {
			t.Fatalf("SaveEntity update: %v", err)
		}

		got, err := store.GetEntity(ctx, e.ID)
		if err != nil {
			t.Fatalf("GetEntity: %v", err)
		}
		if got.Status != entity.StatusCompleted || got.Version != 1 {
			t.Fatalf("update not persisted: %+v", got)
		}
		if got.LastSyncTime == nil {
			t.Fatal("last sync time not persisted")
		}
	})
}

func TestStore_GetEntityNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetEntity(context.Background(), uuid.NewString())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_EmptyIdentityStoredAsNull(t *testing.T) {
	// Two entities of the same type with no internal ID must not collide on
	// the partial unique index.
	store := setupStore(t)
	ctx := context.Background()

	a := newTestEntity("issue")
	a.InternalID = ""
	b := newTestEntity("issue")
	b.InternalID = ""

	if err := store.SaveEntity(ctx, a); err != nil {
		t.Fatalf("SaveEntity a: %v", err)
	}
	t.Cleanup(func() { _, _ = store.DeleteEntity(ctx, a.ID) })

	if err := store.SaveEntity(ctx, b); err != nil {
		t.Fatalf("SaveEntity b: %v", err)
	}
	t.Cleanup(func() { _, _ = store.DeleteEntity(ctx, b.ID) })

	got, err := store.GetEntity(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.InternalID != "" {
		t.Fatalf("expected empty internal id, got %q", got.InternalID)
	}
}

func TestStore_ClaimEntity(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	e := newTestEntity("issue")
	if err := store.SaveEntity(ctx, e); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	t.Cleanup(func() { _, _ = store.DeleteEntity(ctx, e.ID) })

	claimed, err := store.ClaimEntity(ctx, e.ID, entity.StatusPending, entity.StatusInProgress)
	if err != nil {
		t.Fatalf("ClaimEntity: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to win")
	}

	claimed, err = store.ClaimEntity(ctx, e.ID, entity.StatusPending, entity.StatusInProgress)
	if err != nil {
		t.Fatalf("ClaimEntity: %v", err)
	}
	if claimed {
		t.Fatal("second claim must lose")
	}

	got, err := store.GetEntity(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Status != entity.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", got.Status)
	}
}

func TestStore_ListEntities(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entityType := "list-test-" + uuid.New().String()[:8]
	e := newTestEntity(entityType)
	if err := store.SaveEntity(ctx, e); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	t.Cleanup(func() { _, _ = store.DeleteEntity(ctx, e.ID) })

	byType, err := store.ListEntitiesByType(ctx, entityType)
	if err != nil {
		t.Fatalf("ListEntitiesByType: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != e.ID {
		t.Fatalf("unexpected list result: %+v", byType)
	}

	pending, err := store.ListEntitiesByStatus(ctx, entity.StatusPending)
	if err != nil {
		t.Fatalf("ListEntitiesByStatus: %v", err)
	}
	found := false
	for _, got := range pending {
		if got.ID == e.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("seeded entity missing from pending list")
	}
}

func TestStore_DeleteEntity(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	e := newTestEntity("issue")
	if err := store.SaveEntity(ctx, e); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}

	existed, err := store.DeleteEntity(ctx, e.ID)
	if err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if !existed {
		t.Fatal("expected delete to report existence")
	}

	existed, err = store.DeleteEntity(ctx, e.ID)
	if err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if existed {
		t.Fatal("second delete must report absence")
	}
}

func TestStore_RecordsOrderingAndSurvival(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	e := newTestEntity("issue")
	if err := store.SaveEntity(ctx, e); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		rec := &entity.Record{
			ID:         uuid.NewString(),
			EntityID:   e.ID,
			EntityType: e.EntityType,
			ExternalID: e.ExternalID,
			InternalID: e.InternalID,
			Direction:  entity.PathPushToExternal,
			SyncTime:   base.Add(time.Duration(i) * time.Second),
			Status:     entity.StatusCompleted,
			Metadata:   map[string]string{"attempt": string(rune('a' + i))},
		}
		if err := store.SaveRecord(ctx, rec); err != nil {
			t.Fatalf("SaveRecord %d: %v", i, err)
		}
	}

	records, err := store.ListRecords(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].SyncTime.After(records[i-1].SyncTime) {
			t.Fatal("records not ordered most recent first")
		}
	}

	// Audit records survive administrative entity deletion.
	if _, err := store.DeleteEntity(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	records, err = store.ListRecords(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListRecords after delete: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected audit trail to survive delete, got %d records", len(records))
	}
}
