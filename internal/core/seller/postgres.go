package seller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"seedscraper/internal/platform/postgres"
)

type PostgresStore struct {
	db *postgres.Service
}

func NewPostgresStore(db *postgres.Service) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Upsert(ctx context.Context, sl *Seller) error {
	sources, err := json.Marshal(sl.ScrapingSources)
	if err != nil {
		return fmt.Errorf("marshal scraping sources: %w", err)
	}
	now := time.Now().UTC()
	sl.UpdatedAt = now
	_, err = s.db.Pool().Exec(ctx, `
		INSERT INTO sellers (seller_id, name, is_active, auto_scrape_interval, scraping_sources, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (seller_id) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			auto_scrape_interval = EXCLUDED.auto_scrape_interval,
			scraping_sources = EXCLUDED.scraping_sources,
			updated_at = NOW()`,
		sl.ID, sl.Name, sl.IsActive, sl.AutoScrapeInterval, sources)
	if err != nil {
		return fmt.Errorf("upsert seller: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sellerID string) (*Seller, error) {
	row := s.db.Pool().QueryRow(ctx, `
		SELECT seller_id, name, is_active, auto_scrape_interval, scraping_sources, created_at, updated_at
		FROM sellers WHERE seller_id = $1`, sellerID)
	sl, err := scanSeller(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sl, err
}

func (s *PostgresStore) List(ctx context.Context) ([]*Seller, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT seller_id, name, is_active, auto_scrape_interval, scraping_sources, created_at, updated_at
		FROM sellers ORDER BY seller_id`)
	if err != nil {
		return nil, fmt.Errorf("list sellers: %w", err)
	}
	defer rows.Close()

	var out []*Seller
	for rows.Next() {
		sl, err := scanSeller(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetAutoScrapeInterval(ctx context.Context, sellerID string, hours int) error {
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE sellers SET auto_scrape_interval = $2, updated_at = NOW() WHERE seller_id = $1`,
		sellerID, hours)
	if err != nil {
		return fmt.Errorf("set auto scrape interval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSeller(row pgx.Row) (*Seller, error) {
	var sl Seller
	var sources []byte
	if err := row.Scan(&sl.ID, &sl.Name, &sl.IsActive, &sl.AutoScrapeInterval, &sources, &sl.CreatedAt, &sl.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sources, &sl.ScrapingSources); err != nil {
		return nil, fmt.Errorf("unmarshal scraping sources: %w", err)
	}
	return &sl, nil
}
