package scrape

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"seedscraper/internal/core/extract"
	pg "seedscraper/internal/platform/postgres"
)

// ProductStore persists extracted records. Upsert returns how many records
// were newly inserted versus refreshed, which is what the job's saved/updated
// counters report.
type ProductStore interface {
	Upsert(ctx context.Context, sellerID, sourceName string, recs []extract.ProductRecord) (saved, updated int, err error)
}

type PostgresProductStore struct {
	db *pg.Service
}

func NewPostgresProductStore(db *pg.Service) *PostgresProductStore {
	return &PostgresProductStore{db: db}
}

func (s *PostgresProductStore) Upsert(ctx context.Context, sellerID, sourceName string, recs []extract.ProductRecord) (int, int, error) {
	var saved, updated int
	for _, rec := range recs {
		key := recordKey(rec)
		if key == "" {
			continue
		}
		body, err := json.Marshal(rec)
		if err != nil {
			return saved, updated, err
		}
		// xmax is zero only for a freshly inserted row.
		var inserted bool
		err = s.db.Pool().QueryRow(ctx, `
			INSERT INTO products (seller_id, source_name, slug, record)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (seller_id, source_name, slug)
			DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()
			RETURNING (xmax = 0)`,
			sellerID, sourceName, key, body).Scan(&inserted)
		if err != nil {
			return saved, updated, err
		}
		if inserted {
			saved++
		} else {
			updated++
		}
	}
	return saved, updated, nil
}

// MemoryProductStore backs tests.
type MemoryProductStore struct {
	mu   sync.Mutex
	rows map[string]extract.ProductRecord
}

func NewMemoryProductStore() *MemoryProductStore {
	return &MemoryProductStore{rows: make(map[string]extract.ProductRecord)}
}

func (s *MemoryProductStore) Upsert(_ context.Context, sellerID, sourceName string, recs []extract.ProductRecord) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var saved, updated int
	for _, rec := range recs {
		key := recordKey(rec)
		if key == "" {
			continue
		}
		full := sellerID + "|" + sourceName + "|" + key
		if _, ok := s.rows[full]; ok {
			updated++
		} else {
			saved++
		}
		s.rows[full] = rec
	}
	return saved, updated, nil
}

func (s *MemoryProductStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows))
	for k := range s.rows {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// recordKey is the per-source identity of a record: the slug when the
// extractor produced one, otherwise the page URL. A record with neither is
// unidentifiable and silently dropped.
func recordKey(rec extract.ProductRecord) string {
	if rec.Slug != "" {
		return rec.Slug
	}
	return rec.URL
}
