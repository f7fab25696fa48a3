package job

import (
	"context"
	"fmt"

	"seedscraper/internal/logger"
	rds "seedscraper/internal/platform/redis"
)

// Service keeps the durable ScrapeJob row a faithful mirror of run progress.
// Besides the store it maintains a Redis cache of the hot job state and
// publishes an update event per write so dashboards can follow along without
// polling Postgres. The cache and pubsub are best-effort; only store errors
// propagate.
type Service struct {
	store Store
	redis *rds.Service // nil in tests
	log   *logger.Logger
}

func NewService(store Store, redis *rds.Service) *Service {
	return &Service{store: store, redis: redis, log: logger.New("JobService")}
}

// CreateParams carries the optional test-mode bounds.
type CreateParams struct {
	StartPage *int
	EndPage   *int
	MaxPages  *int
}

// Create writes a new job row in CREATED. The row exists before anything is
// enqueued so a queue failure still leaves an auditable record.
func (s *Service) Create(ctx context.Context, sellerID string, mode Mode, params CreateParams) (*ScrapeJob, error) {
	j := &ScrapeJob{
		JobID:     NewJobID(mode),
		SellerID:  sellerID,
		Mode:      mode,
		Status:    StatusCreated,
		StartPage: params.StartPage,
		EndPage:   params.EndPage,
		MaxPages:  params.MaxPages,
	}
	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}
	s.mirror(ctx, j.JobID)
	s.log.LogInfof("created job %s seller=%s mode=%s", j.JobID, sellerID, mode)
	return j, nil
}

func (s *Service) MarkWaiting(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, StatusWaiting)
}

func (s *Service) MarkActive(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, StatusActive)
}

// Progress writes advisory counters. A failure here is logged and swallowed:
// a monitoring write must never abort a crawl.
func (s *Service) Progress(ctx context.Context, jobID string, p Progress) {
	if err := s.store.UpdateProgress(ctx, jobID, p); err != nil {
		s.log.LogWarnf("progress write failed for %s: %v", jobID, err)
		return
	}
	s.mirror(ctx, jobID)
}

// Complete finalizes a successful run. A run that exhausted its URL set with
// some failures still completes; a non-zero error counter is not FAILED.
func (s *Service) Complete(ctx context.Context, jobID string, final Progress) error {
	if err := s.store.UpdateProgress(ctx, jobID, final); err != nil {
		s.log.LogWarnf("final progress write failed for %s: %v", jobID, err)
	}
	return s.transition(ctx, jobID, StatusCompleted)
}

// Fail marks a run-level catastrophic failure. Partial results already
// persisted stay put; nothing is rolled back.
func (s *Service) Fail(ctx context.Context, jobID string, final Progress, cause error) error {
	if err := s.store.UpdateProgress(ctx, jobID, final); err != nil {
		s.log.LogWarnf("final progress write failed for %s: %v", jobID, err)
	}
	s.log.LogErrorf("job %s failed: %v", jobID, cause)
	return s.transition(ctx, jobID, StatusFailed)
}

func (s *Service) Cancel(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, StatusCancelled)
}

// CancelActiveAutoJobs supersedes any live auto jobs for the seller, keeping
// the rows as CANCELLED history.
func (s *Service) CancelActiveAutoJobs(ctx context.Context, sellerID string) ([]string, error) {
	ids, err := s.store.CancelActiveAutoJobs(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.mirror(ctx, id)
	}
	if len(ids) > 0 {
		s.log.LogInfof("cancelled %d auto job(s) for seller %s", len(ids), sellerID)
	}
	return ids, nil
}

func (s *Service) Get(ctx context.Context, jobID string) (*ScrapeJob, error) {
	return s.store.Get(ctx, jobID)
}

func (s *Service) ListBySeller(ctx context.Context, sellerID string, limit int) ([]*ScrapeJob, error) {
	return s.store.ListBySeller(ctx, sellerID, limit)
}

func (s *Service) transition(ctx context.Context, jobID string, to Status) error {
	if err := s.store.UpdateStatus(ctx, jobID, to); err != nil {
		return fmt.Errorf("job %s -> %s: %w", jobID, to, err)
	}
	s.mirror(ctx, jobID)
	return nil
}

// mirror refreshes the Redis copy of the row and notifies subscribers.
func (s *Service) mirror(ctx context.Context, jobID string) {
	if s.redis == nil {
		return
	}
	j, err := s.store.Get(ctx, jobID)
	if err != nil {
		s.log.LogWarnf("cache mirror read failed for %s: %v", jobID, err)
		return
	}
	if err := s.redis.CacheSet(ctx, key(jobID), j, ttl(j.Status)); err != nil {
		s.log.LogWarnf("cache mirror write failed for %s: %v", jobID, err)
		return
	}
	_ = s.redis.Client().Publish(ctx, key(jobID), "updated").Err()
}

func key(id string) string { return "job:" + id }

func ttl(s Status) int {
	if s.Terminal() {
		return 3600
	}
	return 600
}
