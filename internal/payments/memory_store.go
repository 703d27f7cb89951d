package payments

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

var _ PaymentStore = (*MemoryStore)(nil)

type MemoryStore struct {
	mu       sync.RWMutex
	payments map[int64]*Payment
	nextID   int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[int64]*Payment),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, p *Payment) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored := p.clone()
	stored.ID = s.nextID
	stored.Version = 0
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.payments[stored.ID] = stored

	return stored.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, p *Payment) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.payments[p.ID]
	if !ok {
		return nil, notFound(p.ID)
	}
	if current.Version != p.Version {
		return nil, ErrVersionConflict
	}

	stored := p.clone()
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = s.now()
	s.payments[stored.ID] = stored

	return stored.clone(), nil
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, notFound(id)
	}
	return p.clone(), nil
}

func (s *MemoryStore) FindAll(_ context.Context) ([]*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p.clone())
	}
	slices.SortFunc(out, func(a, b *Payment) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}
