package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a transfer job.
type JobStatus string

const (
	// JobStatusPending means the job is waiting for its scheduled time.
	JobStatusPending JobStatus = "PENDING"
	// JobStatusRunning means a transfer is currently executing for the job.
	JobStatusRunning JobStatus = "RUNNING"
	// JobStatusCompleted means a one-shot job finished successfully.
	JobStatusCompleted JobStatus = "COMPLETED"
	// JobStatusFailed means a one-shot job ran and reported an error.
	JobStatusFailed JobStatus = "FAILED"
	// JobStatusCanceled means the job was canceled before it ran.
	JobStatusCanceled JobStatus = "CANCELED"
)

// Job is a unit of scheduled work transferring analytics data from a source
// provider profile to a destination provider profile.
type Job struct {
	ID                   uuid.UUID       `json:"id"`
	Name                 string          `json:"name"`
	Slug                 string          `json:"slug"`
	SourceProfileID      string          `json:"source_profile_id"`
	DestinationProfileID string          `json:"destination_profile_id"`
	Config               json.RawMessage `json:"config"`
	OwnerID              string          `json:"owner_id"`
	Status               JobStatus       `json:"status"`
	StartTime            time.Time       `json:"start_time"`
	RepeatPeriod         string          `json:"repeat_period,omitempty"`
	Active               bool            `json:"active"`
	IncludePreviousData  bool            `json:"include_previous_data"`
	Errors               string          `json:"errors,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// IsRecurring reports whether the job has a repeat period.
func (j *Job) IsRecurring() bool {
	return j.RepeatPeriod != ""
}

// IsTerminal reports whether the job's status is terminal.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// IsTerminal reports whether the status is one no normal execution leaves.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// Valid reports whether the status is a known value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// legal transitions, keyed by current status
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusCanceled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusPending},
}

// CanTransition reports whether the state machine permits from→to.
// A RUNNING job returns to PENDING only when recurring; that guard lives in
// Transition, which has the job in hand.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the job to the given status, enforcing the state machine
// guards. On an illegal request the job is left unchanged and an
// *InvalidTransitionError is returned.
func (j *Job) Transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return &InvalidTransitionError{From: j.Status, To: to}
	}

	switch to {
	case JobStatusCompleted, JobStatusFailed:
		if j.IsRecurring() {
			// Recurring jobs never terminate on their own; they fall back
			// to PENDING and retry on the next cycle.
			return &InvalidTransitionError{From: j.Status, To: to, Reason: "recurring job cannot terminate"}
		}
	case JobStatusPending:
		if !j.IsRecurring() {
			return &InvalidTransitionError{From: j.Status, To: to, Reason: "one-shot job cannot re-enter PENDING"}
		}
	}

	j.Status = to
	if to.IsTerminal() {
		j.Active = false
	}
	return nil
}
