package extract

import (
	"fmt"
	"sort"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is how a source's product URLs are discovered.
type Strategy string

const (
	// StrategyPagination walks listing pages following next-page links.
	StrategyPagination Strategy = "pagination"
	// StrategySitemap discovers product-detail URLs from the sitemap and
	// fetches each one individually.
	StrategySitemap Strategy = "sitemap"
)

// ListingExtractor pulls zero or more products plus the next-page URL out of
// one listing document.
type ListingExtractor interface {
	ExtractListing(doc *goquery.Document) (*ListingPage, error)
}

// DetailExtractor pulls a single product out of one detail document. A
// structural mismatch returns (nil, nil), not an error.
type DetailExtractor interface {
	ExtractDetail(doc *goquery.Document, url string) (*ProductRecord, error)
}

// Source binds an extractor variant to one scrape source. The crawl runner
// treats all sources uniformly through this struct.
type Source struct {
	Name     string
	Strategy Strategy

	Listing ListingExtractor
	Detail  DetailExtractor

	// SitemapPath is where the source publishes its sitemap, relative to the
	// site root. Only meaningful for StrategySitemap.
	SitemapPath string

	// ProductPathPatterns are regexp patterns identifying genuine
	// product-detail paths, used to filter sitemap entries and mapped links.
	ProductPathPatterns []string
}

// Registry resolves a source name to its extractor exactly once per run.
// Selecting per-site logic is a lookup here, never branching in the runner.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

func (r *Registry) Register(src Source) error {
	if src.Name == "" {
		return fmt.Errorf("source name is required")
	}
	switch src.Strategy {
	case StrategyPagination:
		if src.Listing == nil {
			return fmt.Errorf("source %s: pagination strategy requires a listing extractor", src.Name)
		}
	case StrategySitemap:
		if src.Detail == nil {
			return fmt.Errorf("source %s: sitemap strategy requires a detail extractor", src.Name)
		}
		if len(src.ProductPathPatterns) == 0 {
			return fmt.Errorf("source %s: sitemap strategy requires product path patterns", src.Name)
		}
	default:
		return fmt.Errorf("source %s: unknown strategy %q", src.Name, src.Strategy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[src.Name]; exists {
		return fmt.Errorf("source %s already registered", src.Name)
	}
	r.sources[src.Name] = src
	return nil
}

func (r *Registry) Lookup(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[name]
	return src, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the registry with every built-in site plugin.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, src := range builtinSources() {
		if err := r.Register(src); err != nil {
			// Built-in registration only fails on a programming error.
			panic(err)
		}
	}
	return r
}
