package service

import (
	"container/heap"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// entityQueue — priority-ordered work queue of entity IDs
// ---------------------------------------------------------------------------

// queueItem is one queued entity ID. seq preserves FIFO order among equal
// priorities.
type queueItem struct {
	entityID string
	priority int
	seq      uint64
}

type itemHeap []queueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// entityQueue is an in-memory min-heap of entity IDs awaiting reconciliation.
// Lower priority values are popped first; ties pop in insertion order. pop
// blocks for at most the given wait so callers can observe stop signals.
type entityQueue struct {
	mu     sync.Mutex
	items  itemHeap
	seq    uint64
	notify chan struct{}
}

func newEntityQueue() *entityQueue {
	q := &entityQueue{notify: make(chan struct{}, 1)}
	heap.Init(&q.items)
	return q
}

// push adds an entity ID with the given priority and wakes one waiter.
func (q *entityQueue) push(entityID string, priority int) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, queueItem{entityID: entityID, priority: priority, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the highest-priority entity ID, waiting up to wait
// for one to arrive. The second return is false on timeout.
func (q *entityQueue) pop(wait time.Duration) (string, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			item := heap.Pop(&q.items).(queueItem)
			q.mu.Unlock()
			return item.entityID, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-timer.C:
			return "", false
		}
	}
}

// len returns the number of queued IDs.
func (q *entityQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
