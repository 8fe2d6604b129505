package validation

import (
	"context"
	"fmt"

	"github.com/metricbridge/core/pkg/database"
	"github.com/metricbridge/core/pkg/models"
	"github.com/metricbridge/core/pkg/scheduler"
)

// ProfileResolver resolves opaque provider profile references. The concrete
// implementation lives with the provider clients.
type ProfileResolver interface {
	SourceProfileExists(ctx context.Context, profileID string) (bool, error)
	DestinationProfileExists(ctx context.Context, profileID string) (bool, error)
}

// Validator checks a job request before acceptance. Validation never mutates
// the job or the store.
type Validator struct {
	store    database.JobStore
	profiles ProfileResolver
}

// New creates a validator.
func New(store database.JobStore, profiles ProfileResolver) *Validator {
	return &Validator{store: store, profiles: profiles}
}

// Validate returns a field→message map; an empty map means the job is
// acceptable. Structural checks run first, then uniqueness. A non-nil error
// means a backend failed and the request must abort rather than persist.
func (v *Validator) Validate(ctx context.Context, job *models.Job) (models.ValidationErrors, error) {
	result := models.ValidationErrors{}

	if job.Name == "" {
		result["name"] = "Job name is required"
	}
	if job.OwnerID == "" {
		result["owner_id"] = "Job owner is required"
	}

	if job.SourceProfileID == "" {
		result["source_profile_id"] = "Source profile is required"
	} else {
		exists, err := v.profiles.SourceProfileExists(ctx, job.SourceProfileID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source profile: %w", err)
		}
		if !exists {
			result["source_profile_id"] = "Source profile not found"
		}
	}

	if job.DestinationProfileID == "" {
		result["destination_profile_id"] = "Destination profile is required"
	} else {
		exists, err := v.profiles.DestinationProfileExists(ctx, job.DestinationProfileID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve destination profile: %w", err)
		}
		if !exists {
			result["destination_profile_id"] = "Destination profile not found"
		}
	}

	if job.StartTime.IsZero() {
		result["start_time"] = "Start time is required"
	}

	if job.RepeatPeriod != "" {
		if _, err := scheduler.ParsePeriod(job.RepeatPeriod); err != nil {
			result["repeat_period"] = "Unrecognized repeat period"
		}
	}

	if job.Name != "" {
		exists, err := v.store.ExistsByName(ctx, job.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to check job name: %w", err)
		}
		if exists {
			result["name"] = "Job already exists"
		}
	}

	return result, nil
}
