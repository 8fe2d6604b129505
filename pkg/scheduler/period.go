package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Period is a parsed repeat-period token. The grammar is a closed set of
// keywords (hourly, daily, weekly, monthly) plus anything the standard
// robfig/cron parser accepts: 5-field cron expressions and descriptors such
// as "@every 15m".
//
// Keywords advance by a fixed step from the anchor time, so an hourly job
// scheduled for 09:30 fires at 10:30, 11:30, and so on. Cron expressions
// follow the expression's own calendar instead.
type Period struct {
	token    string
	step     time.Duration
	months   int
	schedule cron.Schedule
}

var keywordSteps = map[string]time.Duration{
	"hourly": time.Hour,
	"daily":  24 * time.Hour,
	"weekly": 7 * 24 * time.Hour,
}

// ParsePeriod parses a repeat-period token.
func ParsePeriod(token string) (*Period, error) {
	normalized := strings.ToLower(strings.TrimSpace(token))
	if normalized == "" {
		return nil, fmt.Errorf("repeat period is empty")
	}

	if step, ok := keywordSteps[normalized]; ok {
		return &Period{token: normalized, step: step}, nil
	}
	if normalized == "monthly" {
		return &Period{token: normalized, months: 1}, nil
	}

	schedule, err := cron.ParseStandard(token)
	if err != nil {
		return nil, fmt.Errorf("unrecognized repeat period %q: %w", token, err)
	}
	return &Period{token: token, schedule: schedule}, nil
}

// Next returns the occurrence following the given anchor time.
func (p *Period) Next(after time.Time) time.Time {
	switch {
	case p.step > 0:
		return after.Add(p.step)
	case p.months > 0:
		return after.AddDate(0, p.months, 0)
	default:
		return p.schedule.Next(after)
	}
}

func (p *Period) String() string {
	return p.token
}
