package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/domain"
	"github.com/syncbridge/syncbridge/internal/domain/entity"
	"github.com/syncbridge/syncbridge/internal/port/database"
	"github.com/syncbridge/syncbridge/internal/port/messagequeue"
)

// ChangeNotification is the engine-facing shape of an external change event,
// produced by webhook handlers and polling jobs alike. The engine makes no
// assumption about how the adapter learned of the change.
type ChangeNotification struct {
	EntityType string            `json:"entity_type"`
	ExternalID string            `json:"external_id,omitempty"`
	InternalID string            `json:"internal_id,omitempty"`
	Direction  entity.Direction  `json:"direction,omitempty"`
	Priority   *int              `json:"priority,omitempty"`
	ModifiedAt string            `json:"modified_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

// IngestService translates external change notifications into entity rows
// and queue insertions. It creates the entity on first sight (looking up by
// external or internal ID first, so repeated notifications stay idempotent)
// and re-queues it on every subsequent one.
type IngestService struct {
	store  database.Store
	engine *EngineService
	cfg    config.Engine
}

// NewIngestService creates a new IngestService.
func NewIngestService(store database.Store, engine *EngineService, cfg config.Engine) *IngestService {
	return &IngestService{store: store, engine: engine, cfg: cfg}
}

// Notify records the change and schedules a reconciliation. It returns the
// affected entity.
func (s *IngestService) Notify(ctx context.Context, n ChangeNotification) (*entity.Entity, error) {
	if n.EntityType == "" {
		return nil, entity.ErrMissingType
	}
	if n.ExternalID == "" && n.InternalID == "" {
		return nil, entity.ErrUnresolvable
	}

	e, err := s.findOrCreate(ctx, n)
	if err != nil {
		return nil, err
	}

	changed := false
	if n.ModifiedAt != "" {
		metaSet(e, entity.MetaExternalModified, n.ModifiedAt)
		changed = true
	}
	for k, v := range n.Metadata {
		metaSet(e, k, v)
		changed = true
	}
	if changed {
		if err := s.store.SaveEntity(ctx, e); err != nil {
			return nil, fmt.Errorf("update entity metadata: %w", err)
		}
	}

	priority := s.cfg.DefaultPriority
	if n.Priority != nil {
		priority = *n.Priority
	}

	if _, err := s.engine.Enqueue(ctx, e.ID, priority, false); err != nil {
		return nil, err
	}
	return e, nil
}

// findOrCreate looks the entity up by whichever identity the notification
// carries and creates a pending row when neither lookup matches.
func (s *IngestService) findOrCreate(ctx context.Context, n ChangeNotification) (*entity.Entity, error) {
	if n.ExternalID != "" {
		e, err := s.store.GetEntityByExternalID(ctx, n.EntityType, n.ExternalID)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup by external id: %w", err)
		}
	}
	if n.InternalID != "" {
		e, err := s.store.GetEntityByInternalID(ctx, n.EntityType, n.InternalID)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup by internal id: %w", err)
		}
	}

	direction := n.Direction
	if direction == "" {
		direction = entity.DirectionBidirectional
	}
	req := entity.CreateRequest{
		EntityType: n.EntityType,
		ExternalID: n.ExternalID,
		InternalID: n.InternalID,
		Direction:  direction,
		Metadata:   n.Metadata,
		Payload:    n.Payload,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	e := &entity.Entity{
		ID:         uuid.NewString(),
		EntityType: req.EntityType,
		ExternalID: req.ExternalID,
		InternalID: req.InternalID,
		Direction:  req.Direction,
		Status:     entity.StatusPending,
		Metadata:   req.Metadata,
		Payload:    req.Payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.SaveEntity(ctx, e); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}

	slog.Info("entity registered", "entity_id", e.ID, "entity_type", e.EntityType, "direction", e.Direction)
	return e, nil
}

// StartChangeSubscriber consumes external change notifications from the
// message queue (sync.changes.>) and feeds them into Notify. The returned
// function cancels the subscription.
func (s *IngestService) StartChangeSubscriber(ctx context.Context, q messagequeue.Queue) (func(), error) {
	return q.Subscribe(ctx, messagequeue.SubjectChanges+".>", func(ctx context.Context, subject string, data []byte) error {
		var n ChangeNotification
		if err := json.Unmarshal(data, &n); err != nil {
			// Malformed payloads are dropped, not redelivered forever.
			slog.Error("drop malformed change notification", "subject", subject, "error", err)
			return nil
		}
		if _, err := s.Notify(ctx, n); err != nil {
			return fmt.Errorf("ingest change from %s: %w", subject, err)
		}
		return nil
	})
}

func metaSet(e *entity.Entity, k, v string) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[k] = v
}
