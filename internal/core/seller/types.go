package seller

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("seller not found")

// ScrapingSource is one site a seller is scraped from.
type ScrapingSource struct {
	URL        string `json:"scrapingSourceUrl" yaml:"url"`
	SourceName string `json:"scrapingSourceName" yaml:"source_name"`
	MaxPage    int    `json:"maxPage" yaml:"max_page"`
}

// Seller is a scrape source owner with its recurring configuration.
// AutoScrapeInterval is in hours; zero disables auto-scraping.
type Seller struct {
	ID                 string           `json:"seller_id" yaml:"id"`
	Name               string           `json:"name" yaml:"name"`
	IsActive           bool             `json:"is_active" yaml:"is_active"`
	AutoScrapeInterval int              `json:"auto_scrape_interval" yaml:"auto_scrape_interval"`
	ScrapingSources    []ScrapingSource `json:"scraping_sources" yaml:"scraping_sources"`
	CreatedAt          time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt          time.Time        `json:"updated_at" yaml:"-"`
}

// Store persists sellers. The scheduler reads IsActive/AutoScrapeInterval and
// writes the interval back when auto-scrape is toggled.
type Store interface {
	Upsert(ctx context.Context, s *Seller) error
	Get(ctx context.Context, sellerID string) (*Seller, error)
	List(ctx context.Context) ([]*Seller, error)
	SetAutoScrapeInterval(ctx context.Context, sellerID string, hours int) error
}
