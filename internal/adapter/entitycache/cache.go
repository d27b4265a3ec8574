// Package entitycache decorates a database.Store with a ristretto-backed
// read cache for the introspection path. Only GetEntity is cached; every
// write or claim through the decorator invalidates the cached row, and list
// queries always go to the store.
package entitycache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/syncbridge/syncbridge/internal/domain/entity"
	"github.com/syncbridge/syncbridge/internal/port/database"
)

// Store wraps an inner database.Store with an in-process entity cache.
type Store struct {
	inner database.Store
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

// New creates a caching store decorator. maxCostBytes bounds the total size
// of cached serialized entities.
func New(inner database.Store, maxCostBytes int64, ttl time.Duration) (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Store{inner: inner, cache: cache, ttl: ttl}, nil
}

// Close releases cache resources. The inner store is not closed.
func (s *Store) Close() {
	s.cache.Close()
}

func (s *Store) GetEntity(ctx context.Context, id string) (*entity.Entity, error) {
	if data, ok := s.cache.Get(id); ok {
		var e entity.Entity
		if err := json.Unmarshal(data, &e); err == nil {
			return &e, nil
		}
		s.cache.Del(id)
	}

	e, err := s.inner.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(e); err == nil {
		s.cache.SetWithTTL(id, data, int64(len(data)), s.ttl)
	}
	return e, nil
}

func (s *Store) SaveEntity(ctx context.Context, e *entity.Entity) error {
	s.cache.Del(e.ID)
	return s.inner.SaveEntity(ctx, e)
}

func (s *Store) ClaimEntity(ctx context.Context, id string, from, to entity.Status) (bool, error) {
	s.cache.Del(id)
	return s.inner.ClaimEntity(ctx, id, from, to)
}

func (s *Store) DeleteEntity(ctx context.Context, id string) (bool, error) {
	s.cache.Del(id)
	return s.inner.DeleteEntity(ctx, id)
}

func (s *Store) GetEntityByExternalID(ctx context.Context, entityType, externalID string) (*entity.Entity, error) {
	return s.inner.GetEntityByExternalID(ctx, entityType, externalID)
}

func (s *Store) GetEntityByInternalID(ctx context.Context, entityType, internalID string) (*entity.Entity, error) {
	return s.inner.GetEntityByInternalID(ctx, entityType, internalID)
}

func (s *Store) ListEntitiesByStatus(ctx context.Context, status entity.Status) ([]entity.Entity, error) {
	return s.inner.ListEntitiesByStatus(ctx, status)
}

func (s *Store) ListEntitiesByType(ctx context.Context, entityType string) ([]entity.Entity, error) {
	return s.inner.ListEntitiesByType(ctx, entityType)
}

func (s *Store) SaveRecord(ctx context.Context, r *entity.Record) error {
	return s.inner.SaveRecord(ctx, r)
}

func (s *Store) ListRecords(ctx context.Context, entityID string) ([]entity.Record, error) {
	return s.inner.ListRecords(ctx, entityID)
}
