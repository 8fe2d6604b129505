package database

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/metricbridge/core/pkg/models"
)

var (
	// ErrNotFound is returned by Update and Delete when the job id is unknown.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateName is returned by Save when the job name is already taken.
	ErrDuplicateName = errors.New("job name already exists")
)

// OrderDir is the sort direction for list queries.
type OrderDir string

const (
	OrderAsc  OrderDir = "ASC"
	OrderDesc OrderDir = "DESC"
)

// ListFilter controls ordering and paging for job list queries.
type ListFilter struct {
	// Count is the page size. Zero means the default of 50.
	Count int
	// Page is the 1-based page number. Zero means the first page.
	Page int
	// OrderBy is the sort column: name, status, start_time, created_at or
	// updated_at. Empty means created_at.
	OrderBy string
	// OrderDir is ASC or DESC. Empty means DESC.
	OrderDir OrderDir
}

const defaultPageSize = 50

// Limit returns the effective page size.
func (f ListFilter) Limit() int {
	if f.Count <= 0 {
		return defaultPageSize
	}
	return f.Count
}

// Offset returns the effective row offset.
func (f ListFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit()
}

// JobStore is the persistence contract the scheduler and the API depend on.
// Implementations surface backend failures as wrapped errors; the sentinel
// errors above are matched with errors.Is.
type JobStore interface {
	// Save persists a new job and assigns its id and timestamps.
	Save(ctx context.Context, job *models.Job) error

	// Update persists mutations to an existing job.
	Update(ctx context.Context, job *models.Job) error

	// Delete removes a job. Callers must have validated terminal status.
	Delete(ctx context.Context, id uuid.UUID) error

	// FindByID returns the job, or (nil, nil) when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error)

	// ExistsByName reports whether a job with the exact name exists.
	ExistsByName(ctx context.Context, name string) (bool, error)

	// DueForScheduling returns every active job the scheduler must re-arm
	// at startup: PENDING jobs and recurring jobs.
	DueForScheduling(ctx context.Context) ([]*models.Job, error)

	// List returns one page of jobs.
	List(ctx context.Context, filter ListFilter) ([]*models.Job, error)

	// Count returns the total number of jobs.
	Count(ctx context.Context) (int64, error)
}
