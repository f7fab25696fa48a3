package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	redisv8 "github.com/go-redis/redis/v8"

	rds "seedscraper/internal/platform/redis"
)

// Entry records the live recurring definition for a seller. It bridges the
// two identifier spaces explicitly: the scheduler entry id asynq hands back
// and the stable queue job id derived from the seller. Keeping the mapping
// as data rather than a naming convention means unschedule never has to
// guess which definition it owns.
type Entry struct {
	SellerID   string    `json:"seller_id"`
	EntryID    string    `json:"entry_id"`
	QueueJobID string    `json:"queue_job_id"`
	JobID      string    `json:"job_id"`
	Cron       string    `json:"cron"`
	CreatedAt  time.Time `json:"created_at"`
}

// EntryStore persists the seller→Entry mapping. Get returns (nil, nil) when
// no schedule exists.
type EntryStore interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, sellerID string) (*Entry, error)
	Delete(ctx context.Context, sellerID string) error
}

const entryKeyPrefix = "schedule:auto:"

// RedisEntryStore keeps entries next to the queue they describe, so a
// process restart can rebuild its schedules from the same Redis.
type RedisEntryStore struct {
	redis *rds.Service
}

func NewRedisEntryStore(r *rds.Service) *RedisEntryStore { return &RedisEntryStore{redis: r} }

func (s *RedisEntryStore) Put(ctx context.Context, e Entry) error {
	return s.redis.CacheSet(ctx, entryKeyPrefix+e.SellerID, e, 0)
}

func (s *RedisEntryStore) Get(ctx context.Context, sellerID string) (*Entry, error) {
	var e Entry
	err := s.redis.CacheGet(ctx, entryKeyPrefix+sellerID, &e)
	if errors.Is(err, redisv8.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *RedisEntryStore) Delete(ctx context.Context, sellerID string) error {
	return s.redis.CacheDel(ctx, entryKeyPrefix+sellerID)
}

// MemoryEntryStore backs tests.
type MemoryEntryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryEntryStore() *MemoryEntryStore {
	return &MemoryEntryStore{entries: make(map[string]Entry)}
}

func (s *MemoryEntryStore) Put(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.SellerID] = e
	return nil
}

func (s *MemoryEntryStore) Get(_ context.Context, sellerID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sellerID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryEntryStore) Delete(_ context.Context, sellerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sellerID)
	return nil
}
