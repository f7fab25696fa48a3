package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"seedscraper/internal/logger"
)

type Service struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func New(ctx context.Context, connString string) (*Service, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Service{pool: pool, log: logger.New("Postgres")}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Service) Close()              { s.pool.Close() }
func (s *Service) Pool() *pgxpool.Pool { return s.pool }

func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		s.log.LogErrorf("Postgres health check failed: %v", err)
		return fmt.Errorf("postgres ping failed: %v", err)
	}
	return nil
}

// migrate creates the tables owned by this service. Idempotent so the engine
// can start against a fresh database without a separate migration step.
func (s *Service) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scrape_jobs (
			job_id           TEXT PRIMARY KEY,
			seller_id        TEXT NOT NULL,
			mode             TEXT NOT NULL,
			status           TEXT NOT NULL,
			current_page     INT NOT NULL DEFAULT 0,
			total_pages      INT NOT NULL DEFAULT 0,
			products_scraped INT NOT NULL DEFAULT 0,
			products_saved   INT NOT NULL DEFAULT 0,
			products_updated INT NOT NULL DEFAULT 0,
			errors           INT NOT NULL DEFAULT 0,
			start_page       INT,
			end_page         INT,
			max_pages        INT,
			start_time       TIMESTAMPTZ,
			end_time         TIMESTAMPTZ,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scrape_jobs_seller ON scrape_jobs (seller_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS sellers (
			seller_id            TEXT PRIMARY KEY,
			name                 TEXT NOT NULL DEFAULT '',
			is_active            BOOLEAN NOT NULL DEFAULT TRUE,
			auto_scrape_interval INT NOT NULL DEFAULT 0,
			scraping_sources     JSONB NOT NULL DEFAULT '[]',
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			seller_id   TEXT NOT NULL,
			source_name TEXT NOT NULL,
			slug        TEXT NOT NULL,
			record      JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (seller_id, source_name, slug)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
