package tracker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// requestPool limits concurrent requests against the tracker API using a
// weighted semaphore. With multiple reconciliation workers every outbound
// call goes through a shared pool so the tracker is not flooded.
type requestPool struct {
	sem *semaphore.Weighted
}

// newRequestPool creates a pool that allows at most limit in-flight requests.
func newRequestPool(limit int) *requestPool {
	if limit < 1 {
		limit = 1
	}
	return &requestPool{sem: semaphore.NewWeighted(int64(limit))}
}

// run acquires a slot, runs fn, and releases the slot. Blocks if all slots
// are busy. Returns ctx.Err() if the context is cancelled while waiting.
// A nil pool executes fn directly without concurrency control.
func (p *requestPool) run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
