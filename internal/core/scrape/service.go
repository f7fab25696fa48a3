package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hibiken/asynq"

	"seedscraper/internal/core/extract"
	"seedscraper/internal/core/job"
	"seedscraper/internal/core/mapper"
	"seedscraper/internal/core/robots"
	"seedscraper/internal/core/runner"
	"seedscraper/internal/core/seller"
	"seedscraper/internal/logger"
)

// Service is the worker-side consumer of scrape tasks. One invocation drives
// one job across all of its seller's sources, keeping the job row current
// through the lifecycle tracker.
type Service struct {
	jobs     *job.Service
	sellers  seller.Store
	robots   *robots.Service
	registry *extract.Registry
	runner   *runner.Runner
	mapper   *mapper.Service
	products ProductStore
	log      *logger.Logger
}

type Deps struct {
	Jobs     *job.Service
	Sellers  seller.Store
	Robots   *robots.Service
	Registry *extract.Registry
	Runner   *runner.Runner
	Mapper   *mapper.Service
	Products ProductStore
}

func NewService(d Deps) *Service {
	return &Service{
		jobs:     d.Jobs,
		sellers:  d.Sellers,
		robots:   d.Robots,
		registry: d.Registry,
		runner:   d.Runner,
		mapper:   d.Mapper,
		products: d.Products,
		log:      logger.New("ScrapeWorker"),
	}
}

// HandleScrapeTask processes one queued scrape. Per-URL failures accumulate
// in the job's error counter; only a run-level failure on every source marks
// the job FAILED. Errors that would not benefit from a redelivery carry
// asynq.SkipRetry.
func (s *Service) HandleScrapeTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode scrape payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(p.ScrapingSources) == 0 {
		return fmt.Errorf("job %s has no sources: %w", p.JobID, asynq.SkipRetry)
	}

	sel, err := s.sellers.Get(ctx, p.SellerID)
	if err != nil {
		if errors.Is(err, seller.ErrNotFound) {
			return s.failSkip(ctx, p.JobID, fmt.Errorf("unknown seller %s", p.SellerID))
		}
		return fmt.Errorf("load seller %s: %w", p.SellerID, err)
	}
	if !sel.IsActive {
		return s.failSkip(ctx, p.JobID, fmt.Errorf("seller %s is inactive", p.SellerID))
	}

	jobID, err := s.resolveJobID(ctx, p)
	if err != nil {
		return err
	}
	if err := s.jobs.MarkActive(ctx, jobID); err != nil {
		// A job someone already cancelled must not run.
		return fmt.Errorf("activate %s: %v: %w", jobID, err, asynq.SkipRetry)
	}
	s.log.LogInfof("job %s started seller=%s sources=%d mode=%s", jobID, p.SellerID, len(p.ScrapingSources), p.Config.Mode)

	var agg job.Progress
	var runFailures int
	for _, src := range p.ScrapingSources {
		if err := s.runSource(ctx, jobID, p, src, &agg); err != nil {
			runFailures++
			agg.Errors++
			s.log.LogErrorf("job %s source %s run failed: %v", jobID, src.SourceName, err)
		}
	}

	if runFailures == len(p.ScrapingSources) {
		err := fmt.Errorf("all %d source(s) failed at run level", runFailures)
		if ferr := s.jobs.Fail(ctx, jobID, agg, err); ferr != nil {
			s.log.LogErrorf("final FAILED write for %s: %v", jobID, ferr)
		}
		return fmt.Errorf("job %s: %v: %w", jobID, err, asynq.SkipRetry)
	}
	if err := s.jobs.Complete(ctx, jobID, agg); err != nil {
		s.log.LogErrorf("final COMPLETED write for %s: %v", jobID, err)
	}
	s.log.LogInfof("job %s done scraped=%d saved=%d updated=%d errors=%d",
		jobID, agg.ProductsScraped, agg.ProductsSaved, agg.ProductsUpdated, agg.Errors)
	return nil
}

// runSource executes one source and folds its result into agg. The returned
// error is run-level only; per-URL failures land in the counters.
func (s *Service) runSource(ctx context.Context, jobID string, p Payload, src seller.ScrapingSource, agg *job.Progress) error {
	source, ok := s.registry.Lookup(src.SourceName)
	if !ok {
		return fmt.Errorf("no extractor registered for source %q", src.SourceName)
	}
	policy := s.robots.PolicyFor(ctx, src.URL)

	in := runner.Input{
		Source:    source,
		BaseURL:   src.URL,
		Policy:    policy,
		TestLimit: p.Config.TestLimit(),
		MaxPage:   src.MaxPage,
	}
	if p.Config.FullSiteCrawl && source.Detail != nil {
		urls, err := s.discoverByCrawl(ctx, src.URL, source)
		if err != nil {
			return err
		}
		in.DiscoveredURLs = urls
	}

	base := *agg
	in.Progress = func(rp runner.Progress) {
		s.jobs.Progress(ctx, jobID, job.Progress{
			CurrentPage:     rp.CurrentPage,
			TotalPages:      base.TotalPages + rp.TotalPages,
			ProductsScraped: base.ProductsScraped + rp.Products,
			ProductsSaved:   base.ProductsSaved,
			ProductsUpdated: base.ProductsUpdated,
			Errors:          base.Errors + rp.Errors,
		})
	}

	res, err := s.runner.Run(ctx, in)
	if err != nil {
		return err
	}

	saved, updated, err := s.products.Upsert(ctx, p.SellerID, src.SourceName, res.Records)
	if err != nil {
		// Persistence of an otherwise good run failing wholesale is run-level.
		return fmt.Errorf("persist %d records: %w", len(res.Records), err)
	}

	agg.CurrentPage = res.TotalPages
	agg.TotalPages += res.TotalPages
	agg.ProductsScraped += res.TotalProducts
	agg.ProductsSaved += saved
	agg.ProductsUpdated += updated
	agg.Errors += res.Errors
	s.jobs.Progress(ctx, jobID, *agg)
	return nil
}

// discoverByCrawl walks the site and filters the collected links down to
// product detail pages. Links come back sorted so repeated crawls of an
// unchanged site process URLs in a stable order.
func (s *Service) discoverByCrawl(ctx context.Context, baseURL string, source extract.Source) ([]string, error) {
	res, err := s.mapper.Map(ctx, mapper.Request{URL: baseURL})
	if err != nil {
		return nil, fmt.Errorf("site crawl discovery: %w", err)
	}
	sort.Strings(res.Links)
	urls, err := extract.FilterProductURLs(res.Links, source.ProductPathPatterns)
	if err != nil {
		return nil, err
	}
	return urls, nil
}

// resolveJobID returns the durable row this firing reports into. Repeating
// auto definitions re-fire with the payload of the firing that registered
// them; once that row is terminal each subsequent firing gets a fresh row,
// keeping one record per attempt.
func (s *Service) resolveJobID(ctx context.Context, p Payload) (string, error) {
	j, err := s.jobs.Get(ctx, p.JobID)
	if err == nil && !j.Status.Terminal() {
		return p.JobID, nil
	}
	if err != nil && !errors.Is(err, job.ErrNotFound) {
		return "", fmt.Errorf("load job %s: %w", p.JobID, err)
	}
	if p.Config.Mode != job.ModeAuto {
		return "", fmt.Errorf("job %s is finished or missing: %w", p.JobID, asynq.SkipRetry)
	}
	fresh, err := s.jobs.Create(ctx, p.SellerID, job.ModeAuto, job.CreateParams{})
	if err != nil {
		return "", fmt.Errorf("create recurrence row for %s: %w", p.SellerID, err)
	}
	s.log.LogInfof("recurring firing for %s continues as %s", p.JobID, fresh.JobID)
	return fresh.JobID, nil
}

// failSkip finalizes the job as FAILED and tells the queue not to redeliver.
func (s *Service) failSkip(ctx context.Context, jobID string, cause error) error {
	if err := s.jobs.Fail(ctx, jobID, job.Progress{}, cause); err != nil {
		s.log.LogWarnf("FAILED write for %s: %v", jobID, err)
	}
	return fmt.Errorf("%v: %w", cause, asynq.SkipRetry)
}
