package runner

import (
	"context"

	"github.com/metricbridge/core/pkg/models"
)

// Outcome is the result of one job execution.
type Outcome struct {
	Err error
}

// Success reports whether the run completed without error.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Runner executes one job's transfer and reports the outcome. A run may take
// arbitrary wall-clock time; the scheduler imposes no timeout of its own.
type Runner interface {
	Run(ctx context.Context, job *models.Job) Outcome
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, job *models.Job) Outcome

func (f Func) Run(ctx context.Context, job *models.Job) Outcome {
	return f(ctx, job)
}
