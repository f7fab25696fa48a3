package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"seedscraper/internal/core/extract"
	"seedscraper/internal/core/robots"
	"seedscraper/internal/logger"
)

// Runner executes one bounded scraping pass for one source. All fetches to
// the bound source are strictly sequential; parallelism exists only across
// runners. Concurrency within one origin would make the courtesy delay
// meaningless.
type Runner struct {
	client     *http.Client
	maxRetries int
	log        *logger.Logger

	// sleep is context-aware and replaceable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

type Config struct {
	Client     *http.Client
	MaxRetries int
}

func New(cfg Config) *Runner {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Runner{
		client:     cfg.Client,
		maxRetries: cfg.MaxRetries,
		log:        logger.New("CrawlRunner"),
		sleep:      sleepCtx,
	}
}

// Input is one run's pre-resolved configuration: the scheduler has already
// looked up the extractor and policy, the runner only drives them.
type Input struct {
	Source  extract.Source
	BaseURL string
	Policy  *robots.Policy

	// TestLimit bounds the URL/page set deterministically (first N in
	// discovery order). Zero means unbounded.
	TestLimit int
	// MaxPage is the source-configured page ceiling for pagination sources.
	// Zero means no ceiling.
	MaxPage int

	// Progress receives advisory snapshots after each processed page/URL.
	// May be nil.
	Progress func(Progress)

	// DiscoveredURLs, when non-empty, bypasses discovery and processes the
	// given URLs as detail pages (used by full-site crawl mapping).
	DiscoveredURLs []string
}

// Progress is an advisory mid-run snapshot.
type Progress struct {
	CurrentPage int
	TotalPages  int
	Products    int
	Errors      int
}

// Result aggregates one completed run. A run with zero records and a
// non-zero error count is still a well-formed, successful result.
type Result struct {
	Records        []extract.ProductRecord
	TotalProducts  int
	TotalPages     int // pages or detail URLs actually fetched
	URLsDiscovered int
	URLsToProcess  int
	Errors         int
	StartedAt      time.Time
	Elapsed        time.Duration
}

// Run executes the pass. The returned error is run-level only (source
// unreachable, no strategy); per-URL failures land in Result.Errors.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()
	var res *Result
	var err error

	switch {
	case len(in.DiscoveredURLs) > 0:
		res, err = r.runDetailURLs(ctx, in, in.DiscoveredURLs, len(in.DiscoveredURLs))
	case in.Source.Strategy == extract.StrategySitemap:
		res, err = r.runSitemap(ctx, in)
	case in.Source.Strategy == extract.StrategyPagination:
		res, err = r.runPagination(ctx, in)
	default:
		return nil, fmt.Errorf("source %s: no traversal strategy", in.Source.Name)
	}
	if err != nil {
		return nil, err
	}

	res.StartedAt = started.UTC()
	res.Elapsed = time.Since(started)
	res.TotalProducts = len(res.Records)
	r.log.LogInfof("run done source=%s pages=%d products=%d errors=%d elapsed=%s",
		in.Source.Name, res.TotalPages, res.TotalProducts, res.Errors, res.Elapsed)
	return res, nil
}

func (r *Runner) runSitemap(ctx context.Context, in Input) (*Result, error) {
	sitemapURL, err := resolveSitemapURL(in.BaseURL, in.Source.SitemapPath)
	if err != nil {
		return nil, err
	}
	entries, err := extract.LoadSitemap(ctx, r.client, sitemapURL, in.Policy.UserAgent())
	if err != nil {
		// Unable to even discover URLs: this is the run-level failure case.
		return nil, fmt.Errorf("source %s: %w", in.Source.Name, err)
	}

	urls, err := extract.FilterProductURLs(entries, in.Source.ProductPathPatterns)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", in.Source.Name, err)
	}
	discovered := len(urls)

	allowed := urls[:0]
	for _, u := range urls {
		if in.Policy.IsAllowed(u) {
			allowed = append(allowed, u)
		}
	}
	urls = allowed

	// Test mode takes the first N in discovery order so runs are reproducible.
	if in.TestLimit > 0 && len(urls) > in.TestLimit {
		urls = urls[:in.TestLimit]
	}

	res, err := r.runDetailURLs(ctx, in, urls, discovered)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) runDetailURLs(ctx context.Context, in Input, urls []string, discovered int) (*Result, error) {
	res := &Result{URLsDiscovered: discovered, URLsToProcess: len(urls)}

	for i, u := range urls {
		if ctx.Err() != nil {
			break
		}
		doc, status, err := r.fetchDocument(ctx, u, in.Policy)
		res.TotalPages++
		if err != nil {
			res.Errors++
			r.log.LogWarnf("fetch failed url=%s status=%d: %v", u, status, err)
		} else {
			rec, err := in.Source.Detail.ExtractDetail(doc, u)
			if err != nil || rec == nil {
				// One bad page never aborts a multi-hundred-page crawl.
				res.Errors++
				r.log.LogDebugf("extraction miss url=%s err=%v", u, err)
			} else {
				res.Records = append(res.Records, *rec)
			}
		}

		r.report(in, Progress{CurrentPage: res.TotalPages, TotalPages: len(urls), Products: len(res.Records), Errors: res.Errors})

		if i < len(urls)-1 {
			r.sleep(ctx, in.Policy.CrawlDelay())
		}
	}
	return res, nil
}

func (r *Runner) runPagination(ctx context.Context, in Input) (*Result, error) {
	res := &Result{}
	pageURL := in.BaseURL
	emptyStreak := 0

	for pageURL != "" {
		if ctx.Err() != nil {
			break
		}
		if in.MaxPage > 0 && res.TotalPages >= in.MaxPage {
			break
		}
		if in.TestLimit > 0 && res.TotalPages >= in.TestLimit {
			break
		}
		if !in.Policy.IsAllowed(pageURL) {
			r.log.LogWarnf("listing page disallowed by robots: %s", pageURL)
			break
		}

		doc, status, err := r.fetchDocument(ctx, pageURL, in.Policy)
		if err != nil {
			if res.TotalPages == 0 {
				// Could not reach the source at all.
				return nil, fmt.Errorf("source %s: first page fetch (status %d): %w", in.Source.Name, status, err)
			}
			res.TotalPages++
			res.Errors++
			r.log.LogWarnf("listing fetch failed url=%s status=%d: %v", pageURL, status, err)
			break
		}
		res.TotalPages++
		res.URLsDiscovered++
		res.URLsToProcess++

		page, err := in.Source.Listing.ExtractListing(doc)
		if err != nil || page == nil {
			res.Errors++
			r.log.LogWarnf("listing extraction failed url=%s: %v", pageURL, err)
			break
		}
		res.Records = append(res.Records, page.Records...)

		// Two consecutive empty pages means the listing has stalled out even
		// though next links keep appearing.
		if len(page.Records) == 0 {
			emptyStreak++
			if emptyStreak >= 2 {
				r.log.LogInfof("stall detected after %d pages on %s", res.TotalPages, in.Source.Name)
				break
			}
		} else {
			emptyStreak = 0
		}

		r.report(in, Progress{CurrentPage: res.TotalPages, TotalPages: res.TotalPages, Products: len(res.Records), Errors: res.Errors})

		next := strings.TrimSpace(page.NextPageURL)
		if next == "" || next == pageURL {
			break
		}
		pageURL = next
		r.sleep(ctx, in.Policy.CrawlDelay())
	}
	return res, nil
}

// fetchDocument fetches one URL under the policy's retry/backoff discipline.
// Retryable statuses sleep the policy-computed backoff and try again, up to
// the retry bound; anything else fails the URL immediately.
func (r *Runner) fetchDocument(ctx context.Context, rawURL string, policy *robots.Policy) (*goquery.Document, int, error) {
	profile := pickHeaderProfile()
	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("build request: %w", err)
		}
		profile.apply(req, policy.UserAgent())

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			lastStatus = 0
			if ctx.Err() != nil {
				return nil, 0, err
			}
			// Network-level failures get the base backoff before a retry.
			if attempt < r.maxRetries {
				r.sleep(ctx, policy.BackoffFor(0))
			}
			continue
		}

		lastStatus = resp.StatusCode
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			doc, err := goquery.NewDocumentFromReader(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, resp.StatusCode, fmt.Errorf("parse document: %w", err)
			}
			return doc, resp.StatusCode, nil
		}
		resp.Body.Close()

		if !policy.ShouldRetry(resp.StatusCode) {
			return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
		if attempt < r.maxRetries {
			backoff := policy.BackoffFor(resp.StatusCode)
			r.log.LogDebugf("retryable status %d on %s, backing off %s (attempt %d/%d)",
				resp.StatusCode, rawURL, backoff, attempt, r.maxRetries)
			r.sleep(ctx, backoff)
		}
	}
	return nil, lastStatus, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (r *Runner) report(in Input, p Progress) {
	if in.Progress != nil {
		in.Progress(p)
	}
}

func resolveSitemapURL(baseURL, sitemapPath string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("bad base url %q", baseURL)
	}
	if strings.HasSuffix(parsed.Path, ".xml") {
		return baseURL, nil
	}
	if sitemapPath == "" {
		sitemapPath = "/sitemap.xml"
	}
	return parsed.Scheme + "://" + parsed.Host + sitemapPath, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
