// Package reconciler defines the port for per-entity-type reconciliation
// strategies and the registry the worker dispatches through.
package reconciler

import (
	"context"
	"errors"

	"github.com/syncbridge/syncbridge/internal/domain/entity"
)

// ErrNotSupported is returned when no strategy is registered for the
// requested entity type and direction. The worker treats it as fatal for the
// entity until configuration is fixed, never as a silent no-op.
var ErrNotSupported = errors.New("NotSupported: no reconciler registered for entity type and direction")

// Func performs the field-level reconciliation for one entity in one
// direction, talking to whatever external client the integration needs.
// It returns the updated entity (identity fields and payload may change) or
// an error. It must not persist anything; the worker owns the store.
type Func func(ctx context.Context, e *entity.Entity) (*entity.Entity, error)

// Strategy bundles both directions for an entity type. Integrations that
// only support one direction register the single Func directly.
type Strategy interface {
	PushToExternal(ctx context.Context, e *entity.Entity) (*entity.Entity, error)
	PullFromExternal(ctx context.Context, e *entity.Entity) (*entity.Entity, error)
}
