package scheduler

import (
	"context"

	"github.com/google/uuid"

	"github.com/metricbridge/core/pkg/database"
	"github.com/metricbridge/core/pkg/models"
)

// CancelInStore performs the cancel transition against persisted state:
// PENDING jobs become CANCELED, anything else fails with
// InvalidTransitionError. The entity is returned as persisted.
func CancelInStore(ctx context.Context, store database.JobStore, id uuid.UUID) (*models.Job, error) {
	job, err := store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, database.ErrNotFound
	}

	if err := job.Transition(models.JobStatusCanceled); err != nil {
		return nil, err
	}
	job.Errors = "Job has been canceled."

	if err := store.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// StoreDispatcher implements Dispatcher for deployments where the API and the
// scheduler run as separate processes. It mutates persisted state only; the
// scheduler process picks up new and canceled jobs through periodic
// reconciliation, and a fired timer re-checks status before running, so a
// cancel persisted here is honored there.
type StoreDispatcher struct {
	store database.JobStore
}

// NewStoreDispatcher creates a store-only dispatcher.
func NewStoreDispatcher(store database.JobStore) *StoreDispatcher {
	return &StoreDispatcher{store: store}
}

// Accept is a no-op: the job is already persisted PENDING and the scheduler
// process arms it on its next reconciliation pass.
func (d *StoreDispatcher) Accept(job *models.Job) error {
	return nil
}

// Cancel cancels a PENDING job in the store.
func (d *StoreDispatcher) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return CancelInStore(ctx, d.store, id)
}
