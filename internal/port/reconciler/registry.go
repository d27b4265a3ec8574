package reconciler

import (
	"fmt"
	"sync"

	"github.com/syncbridge/syncbridge/internal/domain/entity"
)

type key struct {
	entityType string
	path       entity.Path
}

// Registry maps (entity type, direction) to a reconciliation Func. It is
// created at startup, populated during wiring, and handed to the engine;
// there is no package-level registration.
type Registry struct {
	mu    sync.RWMutex
	funcs map[key]Func
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[key]Func)}
}

// RegisterPush registers the push (internal to external) Func for a type.
// It panics on duplicate registration, which indicates a wiring bug.
func (r *Registry) RegisterPush(entityType string, fn Func) {
	r.register(key{entityType, entity.PathPushToExternal}, fn)
}

// RegisterPull registers the pull (external to internal) Func for a type.
func (r *Registry) RegisterPull(entityType string, fn Func) {
	r.register(key{entityType, entity.PathPullFromExternal}, fn)
}

// Register registers both directions of a Strategy for a type.
func (r *Registry) Register(entityType string, s Strategy) {
	r.RegisterPush(entityType, s.PushToExternal)
	r.RegisterPull(entityType, s.PullFromExternal)
}

func (r *Registry) register(k key, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[k]; exists {
		panic(fmt.Sprintf("reconciler: duplicate registration for %q %s", k.entityType, k.path))
	}
	r.funcs[k] = fn
}

// Lookup returns the Func for the given type and path, or ErrNotSupported.
func (r *Registry) Lookup(entityType string, path entity.Path) (Func, error) {
	r.mu.RLock()
	fn, ok := r.funcs[key{entityType, path}]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotSupported, entityType, path)
	}
	return fn, nil
}

// Types returns the entity types with at least one registered direction.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range r.funcs {
		seen[k.entityType] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	return types
}
