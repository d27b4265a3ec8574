package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syncbridge/syncbridge/internal/domain"
	"github.com/syncbridge/syncbridge/internal/domain/entity"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const entityColumns = `id, entity_type, COALESCE(external_id, ''), COALESCE(internal_id, ''),
	direction, status, last_sync_time, sync_error, version, metadata, payload, created_at, updated_at`

// --- Entities ---

// SaveEntity upserts the entity by ID. The whole row is written in one
// statement, so a failure never leaves a partial write behind.
func (s *Store) SaveEntity(ctx context.Context, e *entity.Entity) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	e.UpdatedAt = time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (id, entity_type, external_id, internal_id, direction, status,
		                       last_sync_time, sync_error, version, metadata, payload, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   entity_type = EXCLUDED.entity_type,
		   external_id = EXCLUDED.external_id,
		   internal_id = EXCLUDED.internal_id,
		   direction = EXCLUDED.direction,
		   status = EXCLUDED.status,
		   last_sync_time = EXCLUDED.last_sync_time,
		   sync_error = EXCLUDED.sync_error,
		   version = EXCLUDED.version,
		   metadata = EXCLUDED.metadata,
		   payload = EXCLUDED.payload,
		   updated_at = EXCLUDED.updated_at`,
		e.ID, e.EntityType, e.ExternalID, e.InternalID, e.Direction, e.Status,
		e.LastSyncTime, e.SyncError, e.Version, metadataJSON, []byte(e.Payload), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save entity %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (*entity.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)

	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get entity %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	return &e, nil
}

func (s *Store) GetEntityByExternalID(ctx context.Context, entityType, externalID string) (*entity.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = $1 AND external_id = $2`,
		entityType, externalID)

	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get %s entity by external id %s: %w", entityType, externalID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s entity by external id %s: %w", entityType, externalID, err)
	}
	return &e, nil
}

func (s *Store) GetEntityByInternalID(ctx context.Context, entityType, internalID string) (*entity.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = $1 AND internal_id = $2`,
		entityType, internalID)

	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get %s entity by internal id %s: %w", entityType, internalID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s entity by internal id %s: %w", entityType, internalID, err)
	}
	return &e, nil
}

func (s *Store) ListEntitiesByStatus(ctx context.Context, status entity.Status) ([]entity.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list entities by status %s: %w", status, err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

func (s *Store) ListEntitiesByType(ctx context.Context, entityType string) ([]entity.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = $1 ORDER BY created_at`, entityType)
	if err != nil {
		return nil, fmt.Errorf("list entities by type %s: %w", entityType, err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

func (s *Store) DeleteEntity(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete entity %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimEntity performs the compare-and-set status transition. Only one
// caller can win a given from/to transition for a row.
func (s *Store) ClaimEntity(ctx context.Context, id string, from, to entity.Status) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("claim entity %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- Sync records ---

func (s *Store) SaveRecord(ctx context.Context, r *entity.Record) error {
	changesJSON, err := json.Marshal(r.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sync_records (id, entity_id, entity_type, external_id, internal_id, direction,
		                           sync_time, status, sync_error, changes, metadata)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11)`,
		r.ID, r.EntityID, r.EntityType, r.ExternalID, r.InternalID, r.Direction,
		r.SyncTime, r.Status, r.SyncError, changesJSON, metadataJSON)
	if err != nil {
		return fmt.Errorf("save sync record for entity %s: %w", r.EntityID, err)
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, entityID string) ([]entity.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_id, entity_type, COALESCE(external_id, ''), COALESCE(internal_id, ''),
		        direction, sync_time, status, sync_error, changes, metadata
		 FROM sync_records WHERE entity_id = $1 ORDER BY sync_time DESC, id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list sync records for entity %s: %w", entityID, err)
	}
	defer rows.Close()

	var records []entity.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (entity.Entity, error) {
	var (
		e            entity.Entity
		lastSync     *time.Time
		metadataJSON []byte
		payload      []byte
	)
	err := row.Scan(&e.ID, &e.EntityType, &e.ExternalID, &e.InternalID, &e.Direction, &e.Status,
		&lastSync, &e.SyncError, &e.Version, &metadataJSON, &payload, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return entity.Entity{}, err
	}

	e.LastSyncTime = lastSync
	e.Payload = payload
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
			return entity.Entity{}, fmt.Errorf("unmarshal entity metadata: %w", err)
		}
	}
	return e, nil
}

func scanRecord(row rowScanner) (entity.Record, error) {
	var (
		r            entity.Record
		changesJSON  []byte
		metadataJSON []byte
	)
	err := row.Scan(&r.ID, &r.EntityID, &r.EntityType, &r.ExternalID, &r.InternalID,
		&r.Direction, &r.SyncTime, &r.Status, &r.SyncError, &changesJSON, &metadataJSON)
	if err != nil {
		return entity.Record{}, err
	}

	if len(changesJSON) > 0 {
		if err := json.Unmarshal(changesJSON, &r.Changes); err != nil {
			return entity.Record{}, fmt.Errorf("unmarshal record changes: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
			return entity.Record{}, fmt.Errorf("unmarshal record metadata: %w", err)
		}
	}
	return r, nil
}

func collectEntities(rows pgx.Rows) ([]entity.Entity, error) {
	var entities []entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
