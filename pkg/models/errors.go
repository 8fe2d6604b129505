package models

import "fmt"

// InvalidTransitionError reports a state machine guard violation. The job
// that triggered it is never mutated.
type InvalidTransitionError struct {
	From   JobStatus
	To     JobStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// ValidationErrors maps field names to human-readable messages. An empty map
// means the input is acceptable.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(v))
}

// Empty reports whether validation passed.
func (v ValidationErrors) Empty() bool {
	return len(v) == 0
}
