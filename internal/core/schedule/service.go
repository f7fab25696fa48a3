package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"seedscraper/internal/core/extract"
	"seedscraper/internal/core/job"
	"seedscraper/internal/core/scrape"
	"seedscraper/internal/core/seller"
	"seedscraper/internal/logger"
	"seedscraper/internal/platform/tasks"
)

// Queue is the slice of the task client the scheduler needs. tasks.Client
// satisfies it; tests swap in a recorder.
type Queue interface {
	Enqueue(task *asynq.Task, queue string, maxRetries int, taskID string) error
	Register(cronspec string, task *asynq.Task, queue string, maxRetries int) (string, error)
	Unregister(entryID string) error
	DeletePending(queue, taskID string) (bool, error)
}

// Service owns job admission: manual one-shots, recurring auto schedules and
// stop requests. Validation happens before any row is written; queue errors
// always surface to the caller.
type Service struct {
	jobs       *job.Service
	sellers    seller.Store
	registry   *extract.Registry
	queue      Queue
	entries    EntryStore
	maxRetries int
	log        *logger.Logger

	// mu guards sellerMu; each seller gets its own lock so the
	// unschedule-then-schedule sequence can never interleave for one seller
	// while different sellers proceed in parallel.
	mu       sync.Mutex
	sellerMu map[string]*sync.Mutex
}

type Deps struct {
	Jobs       *job.Service
	Sellers    seller.Store
	Registry   *extract.Registry
	Queue      Queue
	Entries    EntryStore
	MaxRetries int
}

func NewService(d Deps) *Service {
	if d.MaxRetries <= 0 {
		d.MaxRetries = 3
	}
	return &Service{
		jobs:       d.Jobs,
		sellers:    d.Sellers,
		registry:   d.Registry,
		queue:      d.Queue,
		entries:    d.Entries,
		maxRetries: d.MaxRetries,
		log:        logger.New("Scheduler"),
		sellerMu:   make(map[string]*sync.Mutex),
	}
}

// AutoQueueID is the stable queue identity for a seller's recurring scrape.
func AutoQueueID(sellerID string) string { return "auto_scrape_" + sellerID }

// CreateManualJob validates, writes the job row, enqueues a one-shot task
// under the job's own id and moves the row to WAITING. An enqueue failure
// leaves the CREATED row behind as an audit record and surfaces the error.
func (s *Service) CreateManualJob(ctx context.Context, sellerID string, sources []seller.ScrapingSource, cfg scrape.RunConfig) (string, error) {
	if cfg.Mode == "" {
		cfg.Mode = job.ModeManual
	}
	if cfg.Mode != job.ModeManual && cfg.Mode != job.ModeTest {
		return "", fmt.Errorf("mode %q cannot be requested manually", cfg.Mode)
	}
	if err := s.validate(sellerID, sources); err != nil {
		return "", err
	}
	if cfg.Mode == job.ModeTest {
		if cfg.StartPage == nil || cfg.EndPage == nil || *cfg.StartPage < 1 || *cfg.EndPage <= *cfg.StartPage {
			return "", fmt.Errorf("test mode needs startPage >= 1 and endPage > startPage")
		}
	}

	j, err := s.jobs.Create(ctx, sellerID, cfg.Mode, job.CreateParams{StartPage: cfg.StartPage, EndPage: cfg.EndPage})
	if err != nil {
		return "", err
	}

	task, err := buildTask(scrape.Payload{
		JobID:           j.JobID,
		SellerID:        sellerID,
		ScrapingSources: sources,
		Config:          cfg,
	})
	if err != nil {
		return "", err
	}
	if err := s.queue.Enqueue(task, tasks.QueueDefault, s.maxRetries, j.JobID); err != nil {
		s.log.LogErrorf("enqueue %s failed: %v", j.JobID, err)
		return "", fmt.Errorf("enqueue %s: %w", j.JobID, err)
	}
	if err := s.jobs.MarkWaiting(ctx, j.JobID); err != nil {
		return "", err
	}
	s.log.LogInfof("manual job %s enqueued seller=%s mode=%s", j.JobID, sellerID, cfg.Mode)
	return j.JobID, nil
}

// ScheduleAutoJob replaces the seller's recurring scrape. Any existing
// definition is unregistered first and its job rows move to CANCELLED, so at
// most one live auto schedule exists per seller. The anchor, when given,
// pins the time of day the cadence fires at.
func (s *Service) ScheduleAutoJob(ctx context.Context, sellerID string, intervalHours int, sources []seller.ScrapingSource, anchor *time.Time) (string, error) {
	cronspec, err := GenerateCronPattern(intervalHours, anchor)
	if err != nil {
		return "", err
	}
	if err := s.validate(sellerID, sources); err != nil {
		return "", err
	}

	lock := s.lockFor(sellerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.unscheduleLocked(ctx, sellerID); err != nil {
		return "", err
	}

	j, err := s.jobs.Create(ctx, sellerID, job.ModeAuto, job.CreateParams{})
	if err != nil {
		return "", err
	}
	entryID, err := s.registerDefinition(ctx, sellerID, j.JobID, cronspec, sources)
	if err != nil {
		return "", err
	}
	if err := s.jobs.MarkWaiting(ctx, j.JobID); err != nil {
		return "", err
	}
	if err := s.sellers.SetAutoScrapeInterval(ctx, sellerID, intervalHours); err != nil {
		s.log.LogWarnf("interval write for %s failed: %v", sellerID, err)
	}
	s.log.LogInfof("auto schedule for %s: cron=%q entry=%s job=%s", sellerID, cronspec, entryID, j.JobID)
	return j.JobID, nil
}

// UnscheduleAutoJob removes the seller's recurring scrape. Idempotent;
// unscheduling a seller with no schedule is a no-op.
func (s *Service) UnscheduleAutoJob(ctx context.Context, sellerID string) error {
	lock := s.lockFor(sellerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.unscheduleLocked(ctx, sellerID); err != nil {
		return err
	}
	if err := s.sellers.SetAutoScrapeInterval(ctx, sellerID, 0); err != nil {
		s.log.LogWarnf("interval reset for %s failed: %v", sellerID, err)
	}
	return nil
}

// StopJob removes a pending task from the queue and cancels its row. A task
// already dispatched to a worker keeps running; stopping only prevents
// future dispatch.
func (s *Service) StopJob(ctx context.Context, jobID string) (bool, error) {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return false, err
	}
	deleted, err := s.queue.DeletePending(tasks.QueueDefault, jobID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	if err := s.jobs.Cancel(ctx, jobID); err != nil {
		return true, err
	}
	s.log.LogInfof("job %s stopped before dispatch", jobID)
	return true, nil
}

// Entry reports the live recurring definition for a seller, if any.
func (s *Service) Entry(ctx context.Context, sellerID string) (*Entry, error) {
	return s.entries.Get(ctx, sellerID)
}

// Resync re-registers every persisted auto schedule with the queue. The
// underlying cron scheduler only holds its entries in memory, so after a
// process restart the definitions must be rebuilt from the seller store and
// the persisted entry mapping before the scheduler starts. Returns how many
// schedules were re-registered.
func (s *Service) Resync(ctx context.Context) (int, error) {
	all, err := s.sellers.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sellers: %w", err)
	}
	var n int
	for _, sel := range all {
		if !sel.IsActive || sel.AutoScrapeInterval <= 0 {
			continue
		}
		if len(sel.ScrapingSources) == 0 {
			s.log.LogWarnf("seller %s has an auto interval but no sources, skipping resync", sel.ID)
			continue
		}
		if err := s.resyncSeller(ctx, sel); err != nil {
			s.log.LogErrorf("resync schedule for %s: %v", sel.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

func (s *Service) resyncSeller(ctx context.Context, sel *seller.Seller) error {
	lock := s.lockFor(sel.ID)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.entries.Get(ctx, sel.ID)
	if err != nil {
		return err
	}

	// The stored cron keeps a user-chosen anchor across restarts.
	var cronspec string
	if e != nil {
		cronspec = e.Cron
	}
	if cronspec == "" {
		if cronspec, err = GenerateCronPattern(sel.AutoScrapeInterval, nil); err != nil {
			return err
		}
	}

	// Reuse the WAITING row from before the restart when it is still live;
	// otherwise mint a fresh one so the schedule has a row to report into.
	var jobID string
	if e != nil && e.JobID != "" {
		if j, err := s.jobs.Get(ctx, e.JobID); err == nil && !j.Status.Terminal() {
			jobID = j.JobID
		}
	}
	if jobID == "" {
		j, err := s.jobs.Create(ctx, sel.ID, job.ModeAuto, job.CreateParams{})
		if err != nil {
			return err
		}
		if err := s.jobs.MarkWaiting(ctx, j.JobID); err != nil {
			return err
		}
		jobID = j.JobID
	}

	if _, err := s.registerDefinition(ctx, sel.ID, jobID, cronspec, sel.ScrapingSources); err != nil {
		return err
	}
	s.log.LogInfof("resynced auto schedule for %s: cron=%q job=%s", sel.ID, cronspec, jobID)
	return nil
}

// registerDefinition registers the repeating task and persists the entry
// mapping. A mapping write failure withdraws the registration again so an
// untracked definition can never outlive the call.
func (s *Service) registerDefinition(ctx context.Context, sellerID, jobID, cronspec string, srcs []seller.ScrapingSource) (string, error) {
	task, err := buildTask(scrape.Payload{
		JobID:           jobID,
		SellerID:        sellerID,
		ScrapingSources: srcs,
		Config:          scrape.RunConfig{Mode: job.ModeAuto},
		RepeatOptions:   &scrape.RepeatOptions{Repeat: scrape.Repeat{Cron: cronspec}, JobID: AutoQueueID(sellerID)},
	})
	if err != nil {
		return "", err
	}
	entryID, err := s.queue.Register(cronspec, task, tasks.QueueDefault, s.maxRetries)
	if err != nil {
		s.log.LogErrorf("register recurring scrape for %s failed: %v", sellerID, err)
		return "", fmt.Errorf("register recurring scrape for %s: %w", sellerID, err)
	}
	if err := s.entries.Put(ctx, Entry{
		SellerID:   sellerID,
		EntryID:    entryID,
		QueueJobID: AutoQueueID(sellerID),
		JobID:      jobID,
		Cron:       cronspec,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		if uerr := s.queue.Unregister(entryID); uerr != nil {
			s.log.LogErrorf("withdraw untracked entry %s for %s: %v", entryID, sellerID, uerr)
		}
		return "", fmt.Errorf("persist schedule entry for %s: %w", sellerID, err)
	}
	return entryID, nil
}

func (s *Service) unscheduleLocked(ctx context.Context, sellerID string) error {
	e, err := s.entries.Get(ctx, sellerID)
	if err != nil {
		return err
	}
	if e != nil {
		if err := s.queue.Unregister(e.EntryID); err != nil {
			s.log.LogWarnf("unregister entry %s for %s: %v", e.EntryID, sellerID, err)
		}
		if err := s.entries.Delete(ctx, sellerID); err != nil {
			return err
		}
	}
	// Rows are history: cancelled, never deleted.
	if _, err := s.jobs.CancelActiveAutoJobs(ctx, sellerID); err != nil {
		return err
	}
	return nil
}

func (s *Service) validate(sellerID string, sources []seller.ScrapingSource) error {
	if sellerID == "" {
		return fmt.Errorf("sellerId is required")
	}
	if len(sources) == 0 {
		return fmt.Errorf("at least one scraping source is required")
	}
	for _, src := range sources {
		if src.URL == "" || src.SourceName == "" {
			return fmt.Errorf("scraping source needs both url and sourceName")
		}
		if _, ok := s.registry.Lookup(src.SourceName); !ok {
			return fmt.Errorf("unknown scraping source %q", src.SourceName)
		}
	}
	return nil
}

func (s *Service) lockFor(sellerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.sellerMu[sellerID]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.sellerMu[sellerID] = m
	return m
}

func buildTask(p scrape.Payload) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(tasks.TaskTypeScrape, body), nil
}
