package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/syncbridge/internal/adapter/otel"
	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/domain"
	"github.com/syncbridge/syncbridge/internal/domain/entity"
	"github.com/syncbridge/syncbridge/internal/port/database"
	"github.com/syncbridge/syncbridge/internal/port/messagequeue"
	"github.com/syncbridge/syncbridge/internal/port/reconciler"
)

// EngineService drives entities through the reconciliation state machine:
// it owns the work queue, the background workers that drain it, and every
// status transition in the store. Reconciliation itself is delegated to the
// strategies registered for each entity type.
type EngineService struct {
	store    database.Store
	registry *reconciler.Registry
	resolver entity.Resolver
	queue    *entityQueue
	cfg      config.Engine

	metrics *otel.Metrics
	events  messagequeue.Queue

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	strandedMu sync.Mutex
	stranded   map[string]*pendingOutcome
}

// pendingOutcome retains a finished attempt whose terminal status could not
// be persisted, so the retry only repeats the store write and never the
// strategy's external calls.
type pendingOutcome struct {
	entity     *entity.Entity
	before     *entity.Entity
	path       entity.Path
	attemptErr error
}

// NewEngineService creates an engine over the given store and strategy
// registry. A nil resolver selects the baseline external-wins policy.
func NewEngineService(store database.Store, registry *reconciler.Registry, resolver entity.Resolver, cfg config.Engine) *EngineService {
	if resolver == nil {
		resolver = entity.Resolve
	}
	return &EngineService{
		store:    store,
		registry: registry,
		resolver: resolver,
		queue:    newEntityQueue(),
		cfg:      cfg,
		stranded: make(map[string]*pendingOutcome),
	}
}

// SetMetrics attaches engine metric instruments.
func (s *EngineService) SetMetrics(m *otel.Metrics) {
	s.metrics = m
}

// SetEvents attaches a queue on which terminal transitions are published.
// Publishing is fire-and-forget; failures are logged, never propagated.
func (s *EngineService) SetEvents(q messagequeue.Queue) {
	s.events = q
}

// QueueDepth returns the number of entity IDs currently queued.
func (s *EngineService) QueueDepth() int {
	return s.queue.len()
}

// ---------------------------------------------------------------------------
// Enqueue surface
// ---------------------------------------------------------------------------

// Enqueue schedules the entity for reconciliation at the given priority
// (lower is sooner). If the entity is currently in progress and force is
// false the call is a logged no-op, which is what guarantees at most one
// concurrent reconciliation per entity. The pending status is persisted
// before the ID is pushed, so a crash between the two is recovered by the
// startup scan. The returned bool reports whether the entity was queued.
func (s *EngineService) Enqueue(ctx context.Context, entityID string, priority int, force bool) (bool, error) {
	e, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", entityID, err)
	}

	if e.Status == entity.StatusInProgress && !force {
		slog.Info("enqueue skipped, entity in progress", "entity_id", entityID, "entity_type", e.EntityType)
		return false, nil
	}

	e.Status = entity.StatusPending
	if err := s.store.SaveEntity(ctx, e); err != nil {
		return false, fmt.Errorf("enqueue %s: persist pending: %w", entityID, err)
	}

	s.queue.push(entityID, priority)
	if s.metrics != nil {
		s.metrics.Enqueued.Add(ctx, 1)
	}
	slog.Debug("entity enqueued", "entity_id", entityID, "priority", priority, "force", force)
	return true, nil
}

// EnqueueAllPending re-queues every entity in pending status and returns the
// count. Used at startup and by administrative callers.
func (s *EngineService) EnqueueAllPending(ctx context.Context) (int, error) {
	pending, err := s.store.ListEntitiesByStatus(ctx, entity.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	for i := range pending {
		s.queue.push(pending[i].ID, s.cfg.DefaultPriority)
	}
	return len(pending), nil
}

// EnqueueAllByType schedules every entity of the given type at the given
// priority and returns how many were queued.
func (s *EngineService) EnqueueAllByType(ctx context.Context, entityType string, priority int) (int, error) {
	all, err := s.store.ListEntitiesByType(ctx, entityType)
	if err != nil {
		return 0, fmt.Errorf("list %s entities: %w", entityType, err)
	}

	queued := 0
	for i := range all {
		ok, err := s.Enqueue(ctx, all[i].ID, priority, false)
		if err != nil {
			slog.Warn("bulk enqueue failed", "entity_id", all[i].ID, "error", err)
			continue
		}
		if ok {
			queued++
		}
	}
	return queued, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Start runs the crash-recovery scan and launches the worker pool. It is
// idempotent: calling Start on a running engine is a no-op.
func (s *EngineService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stop = make(chan struct{})
	s.mu.Unlock()

	if err := s.Recover(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("recovery scan: %w", err)
	}

	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.runWorker(i)
	}

	slog.Info("sync engine started", "workers", workers, "poll_interval", s.cfg.PollInterval)
	return nil
}

// Stop signals the workers and blocks until the in-flight entities finish or
// the configured shutdown timeout elapses. It is idempotent.
func (s *EngineService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("sync engine stopped")
	case <-time.After(s.cfg.ShutdownTimeout):
		slog.Warn("sync engine stop timed out with work in flight", "timeout", s.cfg.ShutdownTimeout)
	}
}

// Recover resets entities orphaned in progress by a prior crash back to
// pending and re-queues them, then re-queues everything already pending.
// Entities that were pending when the process died are not lost: enqueue
// persists pending before pushing, and this scan picks the rows back up.
func (s *EngineService) Recover(ctx context.Context) error {
	orphaned, err := s.store.ListEntitiesByStatus(ctx, entity.StatusInProgress)
	if err != nil {
		return fmt.Errorf("list in-progress: %w", err)
	}

	recovered := make(map[string]struct{}, len(orphaned))
	for i := range orphaned {
		e := &orphaned[i]
		e.Status = entity.StatusPending
		if err := s.store.SaveEntity(ctx, e); err != nil {
			return fmt.Errorf("reset orphaned entity %s: %w", e.ID, err)
		}
		s.queue.push(e.ID, s.cfg.RecoveryPriority)
		recovered[e.ID] = struct{}{}
		slog.Warn("recovered orphaned entity", "entity_id", e.ID, "entity_type", e.EntityType)
	}

	// The pending scan sees the rows just reset above; skip those so each
	// orphan is queued exactly once, at recovery priority.
	pending, err := s.store.ListEntitiesByStatus(ctx, entity.StatusPending)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	requeued := 0
	for i := range pending {
		if _, ok := recovered[pending[i].ID]; ok {
			continue
		}
		s.queue.push(pending[i].ID, s.cfg.DefaultPriority)
		requeued++
	}

	if len(orphaned) > 0 || requeued > 0 {
		slog.Info("recovery scan complete", "orphaned", len(orphaned), "pending", requeued)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Worker loop
// ---------------------------------------------------------------------------

func (s *EngineService) runWorker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		entityID, ok := s.queue.pop(s.cfg.PollInterval)
		if !ok {
			continue
		}
		s.reconcile(context.Background(), entityID)
	}
}

// reconcile drives one entity through a full attempt. Strategy errors and
// panics are contained here: one bad entity must never kill the worker.
func (s *EngineService) reconcile(ctx context.Context, entityID string) {
	e, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Warn("queued entity no longer exists", "entity_id", entityID)
			return
		}
		// Store unavailable: put the ID back and let a later tick retry.
		slog.Error("load entity failed, re-queueing", "entity_id", entityID, "error", err)
		s.queue.push(entityID, s.cfg.RecoveryPriority)
		return
	}

	// An in-progress row normally belongs to another attempt, so skip it.
	// The exception is a row this process already finished but could not
	// persist a terminal status for; retry just the persist for those.
	if e.Status == entity.StatusInProgress {
		if out := s.takeStranded(entityID); out != nil {
			slog.Warn("retrying unpersisted outcome", "entity_id", entityID, "status", out.entity.Status)
			s.persistOutcome(ctx, out.entity, out.before, out.path, out.attemptErr)
			return
		}
		slog.Info("skipping entity already in progress", "entity_id", entityID)
		return
	}

	claimed, err := s.store.ClaimEntity(ctx, entityID, e.Status, entity.StatusInProgress)
	if err != nil {
		slog.Error("claim entity failed, re-queueing", "entity_id", entityID, "error", err)
		s.queue.push(entityID, s.cfg.RecoveryPriority)
		return
	}
	if !claimed {
		// The first read may have been served stale by a caching store
		// decorator while the row is actually still pending. Re-read and
		// retry the claim once so the queued ID is not dropped; any other
		// fresh status means the claim was genuinely lost.
		fresh, freshErr := s.store.GetEntity(ctx, entityID)
		if freshErr != nil || fresh.Status != entity.StatusPending {
			slog.Info("lost claim on entity", "entity_id", entityID)
			return
		}
		claimed, err = s.store.ClaimEntity(ctx, entityID, entity.StatusPending, entity.StatusInProgress)
		if err != nil || !claimed {
			slog.Info("lost claim on entity", "entity_id", entityID)
			return
		}
		e = fresh
	}
	e.Status = entity.StatusInProgress

	start := time.Now()
	before := e.Clone()

	path, err := s.resolver(e)
	if err != nil {
		s.finalize(ctx, e, before, path, fmt.Errorf("resolve direction: %w", err))
		return
	}

	fn, err := s.registry.Lookup(e.EntityType, path)
	if err != nil {
		s.finalize(ctx, e, before, path, err)
		return
	}

	updated, err := s.invoke(ctx, fn, e)
	if err != nil {
		s.finalize(ctx, e, before, path, err)
		return
	}

	e.ExternalID = updated.ExternalID
	e.InternalID = updated.InternalID
	e.Payload = updated.Payload
	if updated.Metadata != nil {
		e.Metadata = updated.Metadata
	}
	s.finalize(ctx, e, before, path, nil)

	if s.metrics != nil {
		s.metrics.Duration.Record(ctx, time.Since(start).Seconds())
	}
}

// invoke calls a strategy with panic containment.
func (s *EngineService) invoke(ctx context.Context, fn reconciler.Func, e *entity.Entity) (updated *entity.Entity, err error) {
	defer func() {
		if r := recover(); r != nil {
			updated = nil
			err = fmt.Errorf("reconciler panic: %v", r)
		}
	}()
	return fn(ctx, e.Clone())
}

// finalize applies the terminal transition for one attempt, persists it, and
// appends exactly one audit record. Success bumps the version and clears the
// error; failure leaves the version untouched. A strategy error wrapping
// domain.ErrConflict lands in conflict status instead of failed.
func (s *EngineService) finalize(ctx context.Context, e, before *entity.Entity, path entity.Path, attemptErr error) {
	now := time.Now().UTC()
	e.LastSyncTime = &now

	switch {
	case attemptErr == nil:
		e.Status = entity.StatusCompleted
		e.SyncError = ""
		e.Version++
	case errors.Is(attemptErr, domain.ErrConflict):
		e.Status = entity.StatusConflict
		e.SyncError = attemptErr.Error()
	default:
		e.Status = entity.StatusFailed
		e.SyncError = attemptErr.Error()
	}

	s.persistOutcome(ctx, e, before, path, attemptErr)
}

// persistOutcome writes an already-applied terminal transition to the store.
// On failure the outcome is retained and the ID re-queued, so the next tick
// retries the write without repeating the strategy's external calls.
func (s *EngineService) persistOutcome(ctx context.Context, e, before *entity.Entity, path entity.Path, attemptErr error) {
	if err := s.store.SaveEntity(ctx, e); err != nil {
		slog.Error("persist terminal status failed, re-queueing", "entity_id", e.ID, "status", e.Status, "error", err)
		s.markStranded(e.ID, &pendingOutcome{entity: e, before: before, path: path, attemptErr: attemptErr})
		s.queue.push(e.ID, s.cfg.RecoveryPriority)
		return
	}

	rec := &entity.Record{
		ID:         uuid.NewString(),
		EntityID:   e.ID,
		EntityType: e.EntityType,
		ExternalID: e.ExternalID,
		InternalID: e.InternalID,
		Direction:  path,
		SyncTime:   *e.LastSyncTime,
		Status:     e.Status,
		SyncError:  e.SyncError,
		Metadata:   e.Metadata,
	}
	if e.Status == entity.StatusCompleted {
		rec.Changes = entity.Diff(before, e)
	}
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		slog.Error("append audit record failed", "entity_id", e.ID, "error", err)
	}

	s.observeOutcome(ctx, e)
	s.publishResult(ctx, e, rec)

	logAttrs := []any{"entity_id", e.ID, "entity_type", e.EntityType, "status", e.Status, "version", e.Version}
	if attemptErr != nil {
		logAttrs = append(logAttrs, "error", attemptErr)
		slog.Warn("reconciliation finished", logAttrs...)
		return
	}
	slog.Info("reconciliation finished", logAttrs...)
}

func (s *EngineService) markStranded(id string, out *pendingOutcome) {
	s.strandedMu.Lock()
	defer s.strandedMu.Unlock()
	s.stranded[id] = out
}

// takeStranded removes and returns the retained outcome for id, or nil.
func (s *EngineService) takeStranded(id string) *pendingOutcome {
	s.strandedMu.Lock()
	defer s.strandedMu.Unlock()
	out := s.stranded[id]
	delete(s.stranded, id)
	return out
}

func (s *EngineService) observeOutcome(ctx context.Context, e *entity.Entity) {
	if s.metrics == nil {
		return
	}
	switch e.Status {
	case entity.StatusCompleted:
		s.metrics.Completed.Add(ctx, 1)
	case entity.StatusConflict:
		s.metrics.Conflicts.Add(ctx, 1)
	case entity.StatusFailed:
		s.metrics.Failed.Add(ctx, 1)
	}
}

func (s *EngineService) publishResult(ctx context.Context, e *entity.Entity, rec *entity.Record) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("marshal result event failed", "entity_id", e.ID, "error", err)
		return
	}
	subject := messagequeue.SubjectResults + "." + e.EntityType
	if err := s.events.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish result event failed", "subject", subject, "error", err)
	}
}
