package job

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*ScrapeJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*ScrapeJob)}
}

func (s *MemoryStore) Create(_ context.Context, j *ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now
	cp := *j
	s.jobs[j.JobID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) ListBySeller(_ context.Context, sellerID string, limit int) ([]*ScrapeJob, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ScrapeJob
	for _, j := range s.jobs {
		if j.SellerID == sellerID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, jobID string, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(j.Status, to) {
		return ErrBadTransition
	}
	now := time.Now().UTC()
	j.Status = to
	j.UpdatedAt = now
	if to == StatusActive && j.StartTime == nil {
		t := now
		j.StartTime = &t
	}
	if to.Terminal() && j.EndTime == nil {
		t := now
		j.EndTime = &t
	}
	return nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, jobID string, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.CurrentPage = p.CurrentPage
	j.TotalPages = p.TotalPages
	j.ProductsScraped = p.ProductsScraped
	j.ProductsSaved = p.ProductsSaved
	j.ProductsUpdated = p.ProductsUpdated
	j.Errors = p.Errors
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CancelActiveAutoJobs(_ context.Context, sellerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var ids []string
	for _, j := range s.jobs {
		if j.SellerID != sellerID || j.Mode != ModeAuto || j.Status.Terminal() {
			continue
		}
		j.Status = StatusCancelled
		j.UpdatedAt = now
		if j.EndTime == nil {
			t := now
			j.EndTime = &t
		}
		ids = append(ids, j.JobID)
	}
	sort.Strings(ids)
	return ids, nil
}
