package robots

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"seedscraper/internal/logger"
)

// DefaultCacheTTL bounds how long a parsed robots.txt is trusted before a
// refetch. Sites change their crawl rules rarely; a day is plenty.
const DefaultCacheTTL = 24 * time.Hour

const defaultRequestsPerMinute = 15

type Options struct {
	UserAgent string
	// Courtesy window sampled when a site declares no Crawl-delay.
	MinDelay time.Duration
	MaxDelay time.Duration
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Service fetches and caches robots.txt policies per origin. It is
// constructed once at process start and shared across concurrent runs; a
// stale read worst-cases into a redundant refetch, never a wrong answer.
type Service struct {
	opts   Options
	client *http.Client
	log    *logger.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	policy    *Policy
	expiresAt time.Time
}

func New(opts Options) *Service {
	if opts.UserAgent == "" {
		opts.UserAgent = "SeedScraperBot/1.0"
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = 2 * time.Second
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Service{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		log:    logger.New("RobotsPolicy"),
		cache:  make(map[string]cacheEntry),
	}
}

// PolicyFor returns the effective crawl policy for the url's origin. It never
// fails: an unreachable or unparseable robots.txt degrades to a conservative
// default rather than blocking the caller.
func (s *Service) PolicyFor(ctx context.Context, rawURL string) *Policy {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		s.log.LogWarnf("unparseable url %q, using default policy", rawURL)
		return s.defaultPolicy("")
	}
	origin := strings.ToLower(parsed.Scheme + "://" + parsed.Host)

	s.mu.RLock()
	entry, ok := s.cache[origin]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.policy
	}

	policy := s.fetch(ctx, origin)
	s.mu.Lock()
	s.cache[origin] = cacheEntry{policy: policy, expiresAt: time.Now().Add(s.opts.CacheTTL)}
	s.mu.Unlock()
	return policy
}

func (s *Service) fetch(ctx context.Context, origin string) *Policy {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return s.defaultPolicy(origin)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.LogWarnf("robots fetch failed for %s: %v (default policy)", origin, err)
		return s.defaultPolicy(origin)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		s.log.LogWarnf("robots read failed for %s: %v (default policy)", origin, err)
		return s.defaultPolicy(origin)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		s.log.LogWarnf("robots parse failed for %s: %v (default policy)", origin, err)
		return s.defaultPolicy(origin)
	}

	group := data.FindGroup(s.opts.UserAgent)
	p := &Policy{
		origin:    origin,
		userAgent: s.opts.UserAgent,
		group:     group,
		minDelay:  s.opts.MinDelay,
		maxDelay:  s.opts.MaxDelay,
	}
	if group != nil && group.CrawlDelay > 0 {
		p.crawlDelay = group.CrawlDelay
		p.hasExplicitDelay = true
	}
	s.log.LogDebugf("robots loaded for %s explicit_delay=%v rpm=%d", origin, p.hasExplicitDelay, p.RequestsPerMinute())
	return p
}

func (s *Service) defaultPolicy(origin string) *Policy {
	return &Policy{
		origin:    origin,
		userAgent: s.opts.UserAgent,
		minDelay:  s.opts.MinDelay,
		maxDelay:  s.opts.MaxDelay,
	}
}

// Policy is an immutable per-origin snapshot. Safe for concurrent use.
type Policy struct {
	origin           string
	userAgent        string
	group            *robotstxt.Group
	crawlDelay       time.Duration
	hasExplicitDelay bool
	minDelay         time.Duration
	maxDelay         time.Duration
}

func (p *Policy) Origin() string    { return p.origin }
func (p *Policy) UserAgent() string { return p.userAgent }

func (p *Policy) HasExplicitCrawlDelay() bool { return p.hasExplicitDelay }

// IsAllowed reports whether the path may be fetched. Ambiguity (no robots.txt,
// no matching group) never blocks.
func (p *Policy) IsAllowed(rawURL string) bool {
	if p.group == nil {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	return p.group.Test(path)
}

// CrawlDelay returns the declared Crawl-delay when present, otherwise a value
// sampled uniformly from the configured window so request intervals do not
// form a fixed fingerprint.
func (p *Policy) CrawlDelay() time.Duration {
	if p.hasExplicitDelay {
		return p.crawlDelay
	}
	spread := p.maxDelay - p.minDelay
	if spread <= 0 {
		return p.minDelay
	}
	return p.minDelay + time.Duration(rand.Int63n(int64(spread)+1))
}

// baseDelay is the deterministic anchor for backoff math: the declared delay
// when present, else the midpoint of the sampling window.
func (p *Policy) baseDelay() time.Duration {
	if p.hasExplicitDelay {
		return p.crawlDelay
	}
	return (p.minDelay + p.maxDelay) / 2
}

// BackoffFor scales the base delay by status severity. Rate limiting (429) is
// punished hardest, then overload (503), then gateway failures (502/504).
func (p *Policy) BackoffFor(status int) time.Duration {
	base := p.baseDelay()
	switch status {
	case http.StatusTooManyRequests:
		return base * 3
	case http.StatusServiceUnavailable:
		return base * 2
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return base * 3 / 2
	default:
		return base
	}
}

// ShouldRetry is true only for transient server-side statuses. Other 4xx
// responses mark a permanently bad URL and are not worth a second fetch.
func (p *Policy) ShouldRetry(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// RequestsPerMinute reports the sustained request budget the origin's delay
// works out to. The CrawlDelay sleep between fetches is the enforcing
// mechanism; this figure exists for operators and logs, not as a second
// limiter.
func (p *Policy) RequestsPerMinute() int {
	if !p.hasExplicitDelay || p.crawlDelay <= 0 {
		return defaultRequestsPerMinute
	}
	rpm := int(time.Minute / p.crawlDelay)
	if rpm < 1 {
		return 1
	}
	return rpm
}
