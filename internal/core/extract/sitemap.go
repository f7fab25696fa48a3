package extract

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Standard sitemap shapes per sitemaps.org. A sitemap index nests further
// sitemaps one level down.
type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

const maxSitemapDepth = 2

// LoadSitemap fetches a sitemap (or sitemap index) and returns every URL it
// lists, in document order.
func LoadSitemap(ctx context.Context, client *http.Client, sitemapURL, userAgent string) ([]string, error) {
	return loadSitemap(ctx, client, sitemapURL, userAgent, 0)
}

func loadSitemap(ctx context.Context, client *http.Client, sitemapURL, userAgent string, depth int) ([]string, error) {
	if depth > maxSitemapDepth {
		return nil, fmt.Errorf("sitemap nesting exceeds %d levels", maxSitemapDepth)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("sitemap request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sitemap fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap fetch %s: status %d", sitemapURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("sitemap read: %w", err)
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		out := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				out = append(out, loc)
			}
		}
		return out, nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("sitemap parse: %w", err)
	}
	var out []string
	for _, sm := range index.Sitemaps {
		loc := strings.TrimSpace(sm.Loc)
		if loc == "" {
			continue
		}
		nested, err := loadSitemap(ctx, client, loc, userAgent, depth+1)
		if err != nil {
			// One unreadable child sitemap should not lose the rest.
			continue
		}
		out = append(out, nested...)
	}
	return out, nil
}

// Paths that show up in marketplace sitemaps but never lead to a product
// detail page.
var nonProductPathRe = regexp.MustCompile(`(?i)/(page/\d+|category|categories|tag|author|cart|checkout|basket|account|login|wishlist|blog|news)(/|$)`)

// FilterProductURLs keeps only genuine product-detail URLs, preserving
// discovery order and dropping duplicates. patterns are the source's
// ProductPathPatterns; an entry must match at least one and must not hit the
// non-product blocklist.
func FilterProductURLs(entries []string, patterns []string) ([]string, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad product path pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	seen := make(map[string]struct{}, len(entries))
	var out []string
	for _, entry := range entries {
		parsed, err := url.Parse(entry)
		if err != nil {
			continue
		}
		path := parsed.Path
		if path == "" {
			path = "/"
		}
		if nonProductPathRe.MatchString(path) {
			continue
		}
		matched := false
		for _, re := range compiled {
			if re.MatchString(path) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out, nil
}
