package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Repository stores job snapshots. Implementations hand out clones so callers
// never share a *Job with the running service.
type Repository interface {
	// Save inserts or replaces the snapshot of job.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound for unknown IDs.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns every job in submission order.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job and returns its last snapshot, so the caller can
	// release the results it still references.
	Delete(ctx context.Context, id string) (*Job, error)
}
