package job

import (
	"time"

	"github.com/google/uuid"
)

// Mode classifies who asked for a scrape and how bounded it is.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeTest   Mode = "test"
	ModeAuto   Mode = "auto"
)

// Status is the durable job state. Transitions only move forward:
// CREATED → WAITING → ACTIVE → {COMPLETED, FAILED, CANCELLED}. DELAYED is a
// transient sub-state of WAITING used while a cron-scheduled job sits ahead
// of its fire time.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusWaiting   Status = "WAITING"
	StatusDelayed   Status = "DELAYED"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

var statusRank = map[Status]int{
	StatusCreated:   0,
	StatusWaiting:   1,
	StatusDelayed:   1,
	StatusActive:    2,
	StatusCompleted: 3,
	StatusFailed:    3,
	StatusCancelled: 3,
}

func (s Status) Terminal() bool { return statusRank[s] == 3 }

// CanTransition enforces forward-only movement. WAITING and DELAYED share a
// rank and may flip between each other; nothing ever re-enters CREATED.
func CanTransition(from, to Status) bool {
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	if to == StatusCreated {
		return false
	}
	if fr == tr {
		// Only the WAITING/DELAYED pair shares a rank.
		return fr == 1 && from != to
	}
	return tr > fr
}

// ScrapeJob is one durable record per scraping attempt.
type ScrapeJob struct {
	JobID    string `json:"job_id"`
	SellerID string `json:"seller_id"`
	Mode     Mode   `json:"mode"`
	Status   Status `json:"status"`

	CurrentPage     int `json:"current_page"`
	TotalPages      int `json:"total_pages"`
	ProductsScraped int `json:"products_scraped"`
	ProductsSaved   int `json:"products_saved"`
	ProductsUpdated int `json:"products_updated"`
	Errors          int `json:"errors"`

	// Test-mode bounds. Nil outside test mode.
	StartPage *int `json:"start_page,omitempty"`
	EndPage   *int `json:"end_page,omitempty"`
	MaxPages  *int `json:"max_pages,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Progress is an advisory counter snapshot written mid-run.
type Progress struct {
	CurrentPage     int `json:"current_page"`
	TotalPages      int `json:"total_pages"`
	ProductsScraped int `json:"products_scraped"`
	ProductsSaved   int `json:"products_saved"`
	ProductsUpdated int `json:"products_updated"`
	Errors          int `json:"errors"`
}

// NewJobID mints a globally unique id with a human-legible mode prefix,
// e.g. auto_9f1c… so operators can read mode off a log line.
func NewJobID(mode Mode) string {
	return string(mode) + "_" + uuid.New().String()
}
