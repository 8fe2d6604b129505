package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metricbridge/core/pkg/database"
	"github.com/metricbridge/core/pkg/logger"
	"github.com/metricbridge/core/pkg/models"
	"github.com/metricbridge/core/pkg/runner"
)

// Dispatcher is the scheduling surface the API layer depends on. Accept is
// asynchronous relative to the caller: the persisted PENDING job is returned
// to the client immediately while the dispatch side arms its timer.
type Dispatcher interface {
	Accept(job *models.Job) error
	Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// Config holds optional scheduler settings.
type Config struct {
	// Locks guards executions across processes. Nil means NoopLockManager.
	Locks JobLockManager
	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
	// LockRetryDelay is how long to wait before re-trying a job whose lock
	// is held by another instance. Zero means one minute.
	LockRetryDelay time.Duration
}

// slot is the single timer/execution unit a job holds while it has
// outstanding work. running means the timer has fired and the transfer is in
// flight; the timer field is stale from that point on.
type slot struct {
	timer        *time.Timer
	scheduledFor time.Time
	running      bool
}

// Scheduler owns one active timer per job with outstanding work, executes
// jobs when due, re-arms recurring jobs, and rebuilds its timer set from the
// store on startup. The store is the source of truth; the slot map is only a
// cache of what to do next.
//
// Lifecycle: New → Recover → (Accept/Cancel/timers fire) → Shutdown.
type Scheduler struct {
	store          database.JobStore
	runner         runner.Runner
	locks          JobLockManager
	logger         *logger.Logger
	now            func() time.Time
	lockRetryDelay time.Duration

	mu      sync.Mutex
	slots   map[uuid.UUID]*slot
	stopped bool
	wg      sync.WaitGroup
}

// New creates a scheduler. It arms no timers until Recover or Accept is
// called.
func New(store database.JobStore, run runner.Runner, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = &Config{}
	}
	locks := cfg.Locks
	if locks == nil {
		locks = NoopLockManager{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	retry := cfg.LockRetryDelay
	if retry <= 0 {
		retry = time.Minute
	}

	return &Scheduler{
		store:          store,
		runner:         run,
		locks:          locks,
		logger:         logger.New("scheduler"),
		now:            clock,
		lockRetryDelay: retry,
		slots:          make(map[uuid.UUID]*slot),
	}
}

// Accept arms a timer for a freshly persisted PENDING job. A job id that
// already holds a slot is a programming error and fails fast rather than
// queuing a second execution.
func (s *Scheduler) Accept(job *models.Job) error {
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("cannot accept job %s in status %s", job.ID, job.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is shut down")
	}
	if _, ok := s.slots[job.ID]; ok {
		return fmt.Errorf("job %s already holds a schedule slot", job.ID)
	}

	s.armLocked(job.ID, job.StartTime)
	return nil
}

// Cancel cancels a PENDING job: its timer is stopped before the status
// mutation is persisted. If the timer has already fired the cancellation
// fails with InvalidTransitionError; an execution is never interrupted.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	if sl, ok := s.slots[id]; ok {
		if sl.running {
			s.mu.Unlock()
			return nil, &models.InvalidTransitionError{
				From:   models.JobStatusRunning,
				To:     models.JobStatusCanceled,
				Reason: "execution has begun",
			}
		}
		sl.timer.Stop()
		delete(s.slots, id)
	}
	s.mu.Unlock()

	return CancelInStore(ctx, s.store, id)
}

// Recover rebuilds the timer set from persisted state. Jobs found RUNNING
// crashed mid-execution and are restarted with PENDING semantics, which makes
// execution at-least-once across restarts. Calling Recover again without new
// events arms nothing: jobs that already hold a slot are skipped, so the same
// method serves periodic reconciliation.
func (s *Scheduler) Recover(ctx context.Context) error {
	due, err := s.store.DueForScheduling(ctx)
	if err != nil {
		return fmt.Errorf("recovery query failed: %w", err)
	}

	armed := 0
	for _, job := range due {
		s.mu.Lock()
		_, held := s.slots[job.ID]
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return nil
		}
		if held {
			continue
		}

		if job.Status == models.JobStatusRunning {
			// Crashed mid-execution. Reset outside the state machine: this
			// is recovery re-deriving state, not a lifecycle event.
			job.Status = models.JobStatusPending
			if err := s.store.Update(ctx, job); err != nil {
				s.logger.Error().
					Err(err).
					Str("job_id", job.ID.String()).
					Str("action", "recovery_reset_failed").
					Msg("Failed to reset crashed job, skipping")
				continue
			}
			s.logger.Warn().
				Str("job_id", job.ID.String()).
				Str("job_name", job.Name).
				Str("action", "recovery_restart").
				Msg("Restarting job that crashed mid-execution")
		}
		if job.Status != models.JobStatusPending {
			continue
		}

		s.mu.Lock()
		if _, ok := s.slots[job.ID]; !ok && !s.stopped {
			s.armLocked(job.ID, job.StartTime)
			armed++
		}
		s.mu.Unlock()
	}

	s.logger.Info().
		Int("due", len(due)).
		Int("armed", armed).
		Str("action", "recovery_complete").
		Msg("Recovered outstanding jobs from store")
	return nil
}

// Shutdown stops all pending timers and waits for in-flight executions to
// finish, or until the context expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for id, sl := range s.slots {
		if !sl.running {
			sl.timer.Stop()
			delete(s.slots, id)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduledCount returns the number of jobs currently holding a slot.
func (s *Scheduler) ScheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// armLocked arms a one-shot timer for the job. Caller holds s.mu. A start
// time in the past fires immediately.
func (s *Scheduler) armLocked(id uuid.UUID, at time.Time) {
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	sl := &slot{scheduledFor: at}
	sl.timer = time.AfterFunc(delay, func() { s.fire(id) })
	s.slots[id] = sl
}

// fire runs one due job end to end. Transitions for a single job are
// serialized here: the slot's running flag keeps Cancel out, and the slot
// itself guarantees no concurrent execution for the same id. Every status
// mutation is persisted before the slot is cleared or re-armed.
func (s *Scheduler) fire(id uuid.UUID) {
	s.mu.Lock()
	sl, ok := s.slots[id]
	if !ok || s.stopped {
		delete(s.slots, id)
		s.mu.Unlock()
		return
	}
	sl.running = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := context.Background()

	job, err := s.store.FindByID(ctx, id)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", id.String()).
			Str("action", "fire_load_failed").
			Msg("Failed to load due job, leaving it for recovery")
		s.clearSlot(id)
		return
	}
	if job == nil || !job.Active || job.Status != models.JobStatusPending {
		// Canceled or deleted between arming and firing.
		s.clearSlot(id)
		return
	}
	if job.StartTime.After(s.now()) {
		// Another instance ran this cycle while our lock retry was pending
		// and advanced the schedule. Wait for the new occurrence.
		s.rearm(id, job.StartTime)
		return
	}

	lock, acquired, err := s.locks.Acquire(ctx, id)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", id.String()).
			Str("action", "fire_lock_failed").
			Msg("Failed to acquire job lock, retrying later")
		s.rearm(id, s.now().Add(s.lockRetryDelay))
		return
	}
	if !acquired {
		s.logger.Info().
			Str("job_id", id.String()).
			Str("action", "fire_lock_held").
			Msg("Job held by another instance, retrying later")
		s.rearm(id, s.now().Add(s.lockRetryDelay))
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id.String()).Msg("Failed to release job lock")
		}
	}()

	scheduledFor := job.StartTime

	if err := job.Transition(models.JobStatusRunning); err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", id.String()).
			Str("action", "fire_transition_failed").
			Msg("Due job refused RUNNING transition")
		s.clearSlot(id)
		return
	}
	if err := s.store.Update(ctx, job); err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", id.String()).
			Str("action", "fire_persist_failed").
			Msg("Failed to persist RUNNING status, leaving job for recovery")
		s.clearSlot(id)
		return
	}

	s.logger.LogJobFire(job.ID.String(), job.Name, scheduledFor)
	start := s.now()
	outcome := s.runner.Run(ctx, job)

	s.applyOutcome(ctx, job, scheduledFor, outcome)
	s.logger.LogJobOutcome(job.ID.String(), job.Name, string(job.Status), time.Since(start), outcome.Err)
}

// applyOutcome drives the post-run state machine transition, persists it, and
// clears or re-arms the job's slot.
func (s *Scheduler) applyOutcome(ctx context.Context, job *models.Job, scheduledFor time.Time, outcome runner.Outcome) {
	if !job.IsRecurring() {
		target := models.JobStatusCompleted
		job.Errors = ""
		if !outcome.Success() {
			target = models.JobStatusFailed
			job.Errors = outcome.Err.Error()
		}
		if err := job.Transition(target); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("Outcome transition refused")
			s.clearSlot(job.ID)
			return
		}
		if err := s.store.Update(ctx, job); err != nil {
			s.logger.Error().
				Err(err).
				Str("job_id", job.ID.String()).
				Str("action", "outcome_persist_failed").
				Msg("Failed to persist outcome, job stays RUNNING until recovery")
		}
		s.clearSlot(job.ID)
		return
	}

	// Recurring: failure is recorded but the job retries on its next cycle.
	job.Errors = ""
	if !outcome.Success() {
		job.Errors = outcome.Err.Error()
	}

	period, err := ParsePeriod(job.RepeatPeriod)
	if err != nil {
		// The token was validated at creation; if it no longer parses the
		// job cannot be re-armed.
		s.logger.Error().
			Err(err).
			Str("job_id", job.ID.String()).
			Str("repeat_period", job.RepeatPeriod).
			Msg("Repeat period no longer parses, parking job")
		job.Errors = err.Error()
		if terr := job.Transition(models.JobStatusPending); terr == nil {
			if uerr := s.store.Update(ctx, job); uerr != nil {
				s.logger.Error().Err(uerr).Str("job_id", job.ID.String()).Msg("Failed to park job")
			}
		}
		s.clearSlot(job.ID)
		return
	}

	// Anchor the next occurrence to the previous scheduled time so the cycle
	// does not drift. If this fire already ran past the next deadline, anchor
	// to now instead to avoid a cascading backlog.
	next := period.Next(scheduledFor)
	if !next.After(s.now()) {
		next = period.Next(s.now())
	}
	job.StartTime = next

	if err := job.Transition(models.JobStatusPending); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("Recurring job refused PENDING transition")
		s.clearSlot(job.ID)
		return
	}
	if err := s.store.Update(ctx, job); err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", job.ID.String()).
			Str("action", "rearm_persist_failed").
			Msg("Failed to persist next cycle, job stays RUNNING until recovery")
		s.clearSlot(job.ID)
		return
	}

	s.rearm(job.ID, next)
}

// rearm replaces the job's slot with a fresh timer. A stopped scheduler
// drops the slot instead; recovery re-derives it on the next startup.
func (s *Scheduler) rearm(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		delete(s.slots, id)
		return
	}
	s.armLocked(id, at)
}

func (s *Scheduler) clearSlot(id uuid.UUID) {
	s.mu.Lock()
	delete(s.slots, id)
	s.mu.Unlock()
}
