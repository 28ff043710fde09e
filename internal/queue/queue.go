// Package queue implements the bounded buffer of pending requests captured
// while connectivity is impaired. Entries keep FIFO order; priority is a
// replay-time concern and is not consulted here.
package queue

import (
	"sync"
	"time"

	"netmend/internal/model"
)

// Queue is a bounded deque of queued requests. When full, Push evicts the
// single oldest entry. Eviction is O(1) amortized: entries live in a slice
// with a moving head index that is compacted once the dead prefix dominates.
type Queue struct {
	mu    sync.Mutex
	items []model.QueuedRequest
	head  int
	max   int
}

// New creates a queue holding at most max entries.
func New(max int) *Queue {
	if max <= 0 {
		max = 1
	}
	return &Queue{
		items: make([]model.QueuedRequest, 0, max),
		max:   max,
	}
}

// Push appends a request. If the queue is at capacity the oldest entry is
// evicted first and returned so the caller can account for the loss.
func (q *Queue) Push(req model.QueuedRequest) (evicted *model.QueuedRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.len() >= q.max {
		old := q.items[q.head]
		q.head++
		evicted = &old
	}
	q.items = append(q.items, req)
	q.compact()
	return evicted
}

// SetCapacity changes the bound, evicting oldest entries while the queue
// is over the new limit. Returns the evictions.
func (q *Queue) SetCapacity(max int) []model.QueuedRequest {
	if max <= 0 {
		max = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.max = max
	var evicted []model.QueuedRequest
	for q.len() > q.max {
		evicted = append(evicted, q.items[q.head])
		q.head++
	}
	q.compact()
	return evicted
}

// Cancel removes the entry with the given id. No-op if absent.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := q.head; i < len(q.items); i++ {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the queue and returns how many entries were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.len()
	q.items = q.items[:0]
	q.head = 0
	return n
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}

// Snapshot returns deep copies of the pending entries in FIFO order.
// Callers can't mutate queue-owned state through the result.
func (q *Queue) Snapshot() []model.QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]model.QueuedRequest, 0, q.len())
	for i := q.head; i < len(q.items); i++ {
		out = append(out, q.items[i].Clone())
	}
	return out
}

// IncrementRetries bumps the retry counter on the entry with the given id
// and returns the new count. Returns false if the entry is gone.
func (q *Queue) IncrementRetries(id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := q.head; i < len(q.items); i++ {
		if q.items[i].ID == id {
			q.items[i].Retries++
			return q.items[i].Retries, true
		}
	}
	return 0, false
}

// ResetRetries zeroes the retry counter on every pending entry.
func (q *Queue) ResetRetries() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := q.head; i < len(q.items); i++ {
		q.items[i].Retries = 0
	}
}

// RemoveExpired drops entries past their deadline at now and returns them.
func (q *Queue) RemoveExpired(now time.Time) []model.QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []model.QueuedRequest
	kept := q.items[:q.head]
	for i := q.head; i < len(q.items); i++ {
		if q.items[i].Expired(now) {
			removed = append(removed, q.items[i])
			continue
		}
		kept = append(kept, q.items[i])
	}
	q.items = kept
	return removed
}

// callers hold q.mu
func (q *Queue) len() int {
	return len(q.items) - q.head
}

// compact reclaims the dead prefix once it outweighs the live entries,
// keeping Push amortized O(1) without unbounded slice growth.
func (q *Queue) compact() {
	if q.head > q.max && q.head > q.len() {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
}
