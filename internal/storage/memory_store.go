package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

// MemoryStore is the in-process Store used in tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.Request
	pools    map[string]*models.Pool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*models.Request),
		pools:    make(map[string]*models.Pool),
	}
}

func (m *MemoryStore) CreateRequest(_ context.Context, r *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.requests[r.ID]; exists {
		return fmt.Errorf("request %s already exists", r.ID)
	}
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, id string) (*models.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListRequestsByStatus(_ context.Context, status models.RequestStatus, limit, offset int) ([]*models.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Request
	for _, r := range m.requests {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// TransitionRequest is a compare-and-set on status under the store lock; the
// Postgres implementation gets the same semantics from a guarded UPDATE. An
// edge outside the lifecycle table is a caller bug, rejected outright.
func (m *MemoryStore) TransitionRequest(_ context.Context, id string, from, to models.RequestStatus, poolID *string) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, fmt.Errorf("transition %s to %s not allowed", from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	r.PoolID = poolID
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) SetRating(_ context.Context, id string, rating int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != models.StatusCompleted {
		return false, nil
	}
	r.Rating = &rating
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) CreatePool(_ context.Context, p *models.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pools[p.ID]; exists {
		return fmt.Errorf("pool %s already exists", p.ID)
	}
	cp := *p
	cp.MemberIDs = append([]string(nil), p.MemberIDs...)
	m.pools[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPool(_ context.Context, id string) (*models.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.MemberIDs = append([]string(nil), p.MemberIDs...)
	return &cp, nil
}

func (m *MemoryStore) ListPoolsByStatus(_ context.Context, status models.PoolStatus, limit, offset int) ([]*models.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Pool
	for _, p := range m.pools {
		if p.Status == status {
			cp := *p
			cp.MemberIDs = append([]string(nil), p.MemberIDs...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (m *MemoryStore) UpdatePoolStatus(_ context.Context, id string, from, to models.PoolStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[id]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
