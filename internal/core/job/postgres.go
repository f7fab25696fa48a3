package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"seedscraper/internal/platform/postgres"
)

// PostgresStore is the durable Store implementation.
type PostgresStore struct {
	db *postgres.Service
}

func NewPostgresStore(db *postgres.Service) *PostgresStore { return &PostgresStore{db: db} }

const jobColumns = `job_id, seller_id, mode, status, current_page, total_pages,
	products_scraped, products_saved, products_updated, errors,
	start_page, end_page, max_pages, start_time, end_time, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, j *ScrapeJob) error {
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO scrape_jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		j.JobID, j.SellerID, j.Mode, j.Status, j.CurrentPage, j.TotalPages,
		j.ProductsScraped, j.ProductsSaved, j.ProductsUpdated, j.Errors,
		j.StartPage, j.EndPage, j.MaxPages, j.StartTime, j.EndTime, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scrape job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*ScrapeJob, error) {
	row := s.db.Pool().QueryRow(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE job_id = $1`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (s *PostgresStore) ListBySeller(ctx context.Context, sellerID string, limit int) ([]*ScrapeJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Pool().Query(ctx, `
		SELECT `+jobColumns+` FROM scrape_jobs
		WHERE seller_id = $1 ORDER BY created_at DESC LIMIT $2`, sellerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list scrape jobs: %w", err)
	}
	defer rows.Close()

	var out []*ScrapeJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, jobID string, to Status) error {
	froms := allowedFrom(to)
	if len(froms) == 0 {
		return ErrBadTransition
	}
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE scrape_jobs SET
			status = $2,
			start_time = CASE WHEN $2 = 'ACTIVE' THEN COALESCE(start_time, NOW()) ELSE start_time END,
			end_time   = CASE WHEN $2 IN ('COMPLETED','FAILED','CANCELLED') THEN COALESCE(end_time, NOW()) ELSE end_time END,
			updated_at = NOW()
		WHERE job_id = $1 AND status = ANY($3)`,
		jobID, to, froms)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
		return ErrBadTransition
	}
	return nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, jobID string, p Progress) error {
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE scrape_jobs SET
			current_page = $2, total_pages = $3,
			products_scraped = $4, products_saved = $5, products_updated = $6,
			errors = $7, updated_at = NOW()
		WHERE job_id = $1`,
		jobID, p.CurrentPage, p.TotalPages, p.ProductsScraped, p.ProductsSaved, p.ProductsUpdated, p.Errors)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CancelActiveAutoJobs(ctx context.Context, sellerID string) ([]string, error) {
	rows, err := s.db.Pool().Query(ctx, `
		UPDATE scrape_jobs SET
			status = 'CANCELLED', end_time = COALESCE(end_time, NOW()), updated_at = NOW()
		WHERE seller_id = $1 AND mode = 'auto'
		  AND status IN ('CREATED','WAITING','DELAYED','ACTIVE')
		RETURNING job_id`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("cancel auto jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// allowedFrom lists the statuses a job may hold immediately before moving to
// the given status, mirroring CanTransition for the guarded SQL update.
func allowedFrom(to Status) []string {
	var out []string
	for _, from := range []Status{StatusCreated, StatusWaiting, StatusDelayed, StatusActive} {
		if CanTransition(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}

func scanJob(row pgx.Row) (*ScrapeJob, error) {
	var j ScrapeJob
	err := row.Scan(
		&j.JobID, &j.SellerID, &j.Mode, &j.Status, &j.CurrentPage, &j.TotalPages,
		&j.ProductsScraped, &j.ProductsSaved, &j.ProductsUpdated, &j.Errors,
		&j.StartPage, &j.EndPage, &j.MaxPages, &j.StartTime, &j.EndTime, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
