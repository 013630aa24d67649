// Package queue holds pending request snapshots between submission and the
// matching cycle that drains them. FIFO semantics; no transactional dequeue
// guarantee, so a drained-but-uncommitted snapshot is lost on crash
// (at-most-once by design).
package queue

import (
	"context"
	"sync"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

// Queue is the minimal interface required by the submit path and the
// scheduler.
type Queue interface {
	Enqueue(ctx context.Context, s models.Snapshot) error
	// DequeueUpTo drains up to n snapshots in FIFO order; fewer than n
	// available is not an error, zero means an empty queue.
	DequeueUpTo(ctx context.Context, n int) ([]models.Snapshot, error)
	// Remove deletes a not-yet-drained entry by request ID; a linear scan
	// is accepted given low cancellation frequency.
	Remove(ctx context.Context, requestID string) (bool, error)
	Len(ctx context.Context) (int, error)
}

// Memory is the in-process Queue used in tests and single-node deployments.
type Memory struct {
	mu      sync.Mutex
	entries []models.Snapshot
}

func NewMemory() *Memory {
	return &Memory{}
}

func (q *Memory) Enqueue(_ context.Context, s models.Snapshot) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, s)
	return nil
}

func (q *Memory) DequeueUpTo(_ context.Context, n int) ([]models.Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.entries) == 0 {
		return nil, nil
	}
	if n > len(q.entries) {
		n = len(q.entries)
	}
	out := make([]models.Snapshot, n)
	copy(out, q.entries[:n])
	q.entries = append(q.entries[:0:0], q.entries[n:]...)
	return out, nil
}

func (q *Memory) Remove(_ context.Context, requestID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ID == requestID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (q *Memory) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}
