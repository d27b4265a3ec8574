// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/syncbridge/syncbridge/internal/domain/entity"
)

// Store is the port interface for durable entity and audit-record storage.
// It is the single source of truth for entity status: crash recovery depends
// on in_progress rows surviving a restart.
type Store interface {
	// SaveEntity upserts the entity by ID in a single-row transaction.
	SaveEntity(ctx context.Context, e *entity.Entity) error

	// GetEntity returns the entity or a domain.ErrNotFound-wrapped error.
	GetEntity(ctx context.Context, id string) (*entity.Entity, error)

	// GetEntityByExternalID and GetEntityByInternalID support idempotent
	// re-creation: ingestion adapters look up before creating.
	GetEntityByExternalID(ctx context.Context, entityType, externalID string) (*entity.Entity, error)
	GetEntityByInternalID(ctx context.Context, entityType, internalID string) (*entity.Entity, error)

	ListEntitiesByStatus(ctx context.Context, status entity.Status) ([]entity.Entity, error)
	ListEntitiesByType(ctx context.Context, entityType string) ([]entity.Entity, error)

	// DeleteEntity removes the entity row and reports whether it existed.
	// Audit records are kept.
	DeleteEntity(ctx context.Context, id string) (bool, error)

	// ClaimEntity transitions status from one value to another only if the
	// current status matches (compare-and-set). The returned bool reports
	// whether this caller won the transition. This is what makes running
	// multiple workers against one store safe.
	ClaimEntity(ctx context.Context, id string, from, to entity.Status) (bool, error)

	// SaveRecord appends an audit record. Records are never updated.
	SaveRecord(ctx context.Context, r *entity.Record) error

	// ListRecords returns the audit trail for an entity, most recent first.
	ListRecords(ctx context.Context, entityID string) ([]entity.Record, error)
}
