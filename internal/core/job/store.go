package job

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("scrape job not found")
	ErrBadTransition = errors.New("invalid job status transition")
)

// Store persists ScrapeJob rows. Implementations must enforce the
// forward-only status machine in UpdateStatus so no caller can rewind a job.
type Store interface {
	Create(ctx context.Context, j *ScrapeJob) error
	Get(ctx context.Context, jobID string) (*ScrapeJob, error)
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]*ScrapeJob, error)

	// UpdateStatus moves the job forward, stamping StartTime on ACTIVE and
	// EndTime on any terminal status. Returns ErrBadTransition when the move
	// would rewind the state machine.
	UpdateStatus(ctx context.Context, jobID string, to Status) error

	// UpdateProgress overwrites the advisory counters.
	UpdateProgress(ctx context.Context, jobID string, p Progress) error

	// CancelActiveAutoJobs transitions every non-terminal auto-mode job for
	// the seller to CANCELLED and returns the affected job ids. Rows are
	// never deleted; cancelled history stays auditable.
	CancelActiveAutoJobs(ctx context.Context, sellerID string) ([]string, error)
}
