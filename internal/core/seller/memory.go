package seller

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	sellers map[string]*Seller
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sellers: make(map[string]*Seller)}
}

func (s *MemoryStore) Upsert(_ context.Context, sl *Seller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	cp := *sl
	cp.UpdatedAt = now
	if existing, ok := s.sellers[sl.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	s.sellers[sl.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sellerID string) (*Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.sellers[sellerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sl
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Seller, 0, len(s.sellers))
	for _, sl := range s.sellers {
		cp := *sl
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *MemoryStore) SetAutoScrapeInterval(_ context.Context, sellerID string, hours int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.sellers[sellerID]
	if !ok {
		return ErrNotFound
	}
	sl.AutoScrapeInterval = hours
	sl.UpdatedAt = time.Now().UTC()
	return nil
}
