package scrape

import (
	"seedscraper/internal/core/job"
	"seedscraper/internal/core/seller"
)

// Payload is the queued work unit. The job row referenced by JobID exists
// before this payload is ever enqueued.
type Payload struct {
	JobID           string                  `json:"jobId"`
	SellerID        string                  `json:"sellerId"`
	ScrapingSources []seller.ScrapingSource `json:"scrapingSources"`
	Config          RunConfig               `json:"config"`
	RepeatOptions   *RepeatOptions          `json:"repeatOptions,omitempty"`
}

// RunConfig bounds one run. StartPage/EndPage only apply in test mode.
type RunConfig struct {
	Mode          job.Mode `json:"mode"`
	FullSiteCrawl bool     `json:"fullSiteCrawl,omitempty"`
	StartPage     *int     `json:"startPage,omitempty"`
	EndPage       *int     `json:"endPage,omitempty"`
}

// RepeatOptions is present only on auto-mode payloads. JobID here is the
// stable queue identity (auto_scrape_<sellerID>), distinct from the durable
// record id in Payload.JobID.
type RepeatOptions struct {
	Repeat Repeat `json:"repeat"`
	JobID  string `json:"jobId"`
}

type Repeat struct {
	Cron string `json:"cron"`
}

// TestLimit derives the URL/page cap for test-mode runs: EndPage minus
// StartPage. Zero means unbounded.
func (c RunConfig) TestLimit() int {
	if c.Mode != job.ModeTest || c.StartPage == nil || c.EndPage == nil {
		return 0
	}
	n := *c.EndPage - *c.StartPage
	if n < 0 {
		return 0
	}
	return n
}
