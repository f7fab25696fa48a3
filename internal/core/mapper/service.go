package mapper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly"

	"seedscraper/internal/core/robots"
	"seedscraper/internal/logger"
)

// Service walks a storefront and collects same-domain page URLs. It is the
// discovery half of a full-site crawl: the collected links are filtered down
// to product pages afterwards and handed to the runner as pre-discovered
// detail URLs.
type Service struct {
	log    *logger.Logger
	robots *robots.Service
}

func New(robotsSvc *robots.Service) *Service {
	return &Service{log: logger.New("SiteMapper"), robots: robotsSvc}
}

type Request struct {
	URL               string
	Depth             int
	LinkLimit         int
	IncludeSubdomains bool
}

type Result struct {
	Links []string `json:"links"`
}

const (
	defaultDepth     = 3
	defaultLinkLimit = 5000
)

// Map crawls from req.URL up to the configured depth and returns every
// unique same-domain link found. Disallowed paths are never visited and
// never reported. The per-request delay comes from the origin's policy so
// mapping is as polite as scraping.
func (s *Service) Map(ctx context.Context, req Request) (*Result, error) {
	if req.Depth <= 0 {
		req.Depth = defaultDepth
	}
	if req.LinkLimit <= 0 {
		req.LinkLimit = defaultLinkLimit
	}
	start := ensureScheme(req.URL)
	host := hostOf(start)
	if host == "" {
		return nil, fmt.Errorf("bad map url %q", req.URL)
	}
	policy := s.robots.PolicyFor(ctx, start)

	links := make(map[string]struct{})
	var mu sync.Mutex

	c := colly.NewCollector(colly.MaxDepth(req.Depth), colly.Async(true))
	c.UserAgent = policy.UserAgent()
	// Single worker: one origin gets one connection, same as the runner.
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       policy.CrawlDelay(),
		RandomDelay: 500 * time.Millisecond,
	}); err != nil {
		return nil, fmt.Errorf("limit rule: %w", err)
	}

	c.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
			return
		default:
		}
		mu.Lock()
		reached := len(links) >= req.LinkLimit
		mu.Unlock()
		if reached {
			r.Abort()
			return
		}
		if !policy.IsAllowed(r.URL.String()) {
			s.log.LogDebugf("map skip disallowed %s", r.URL)
			r.Abort()
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		s.log.LogWarnf("map fetch error %s status=%d: %v", r.Request.URL, r.StatusCode, err)
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := normalizeLink(e.Request.AbsoluteURL(e.Attr("href")))
		if link == "" {
			return
		}
		if !sameSite(hostOf(link), host, req.IncludeSubdomains) {
			return
		}
		if !policy.IsAllowed(link) {
			return
		}

		mu.Lock()
		_, seen := links[link]
		if !seen {
			links[link] = struct{}{}
		}
		reached := len(links) >= req.LinkLimit
		mu.Unlock()

		if !seen && !reached && e.Request.Depth < req.Depth {
			_ = e.Request.Visit(link)
		}
	})

	if err := c.Visit(start); err != nil {
		return nil, fmt.Errorf("visit %s: %w", start, err)
	}
	c.Wait()

	out := make([]string, 0, len(links))
	for l := range links {
		out = append(out, l)
	}
	s.log.LogInfof("map done url=%s discovered=%d depth=%d", start, len(out), req.Depth)
	return &Result{Links: out}, nil
}

func ensureScheme(u string) string {
	if !strings.HasPrefix(u, "http") {
		return "https://" + u
	}
	return u
}

func hostOf(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return p.Hostname()
}

func normalizeLink(u string) string {
	p, err := url.Parse(u)
	if err != nil || p.Host == "" {
		return ""
	}
	p.Fragment = ""
	if p.Path == "/" {
		p.Path = ""
	}
	return p.String()
}

func sameSite(a, b string, includeSubdomains bool) bool {
	if a == "" || b == "" {
		return false
	}
	a = strings.TrimPrefix(a, "www.")
	b = strings.TrimPrefix(b, "www.")
	if a == b {
		return true
	}
	return includeSubdomains && (strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a))
}
