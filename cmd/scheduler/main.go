package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/metricbridge/core/internal/config"
	"github.com/metricbridge/core/pkg/database"
	"github.com/metricbridge/core/pkg/database/pool"
	"github.com/metricbridge/core/pkg/logger"
	"github.com/metricbridge/core/pkg/runner"
	"github.com/metricbridge/core/pkg/scheduler"
	"github.com/metricbridge/core/pkg/services"
)

const reconcileInterval = 30 * time.Second

func main() {
	var (
		jobID = flag.String("job", "", "Run a specific job once by id and exit")
		once  = flag.Bool("once", false, "Run job once and exit")
	)
	flag.Parse()

	logger.SetupLogger()
	log := logger.New("scheduler-service")

	cfg := config.Load()

	var store database.JobStore
	var locks scheduler.JobLockManager = scheduler.NoopLockManager{}

	if cfg.Scheduler.Store == "memory" {
		store = database.NewMemoryStore()
	} else {
		dbPool, err := pool.New(context.Background(), cfg.DatabaseURL(), nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbPool.Close()
		store = database.NewPostgresStore(dbPool)
		if cfg.Scheduler.LockJobs {
			locks = scheduler.NewPostgresLockManager(dbPool)
		}
	}

	sourceClient := services.NewSourceClient(cfg)
	destClient := services.NewDestinationClient(cfg)
	transfer := runner.NewTransferRunner(sourceClient, destClient)

	// Handle single job execution
	if *once && *jobID != "" {
		runOnce(store, transfer, *jobID, log)
		return
	}

	sched := scheduler.New(store, transfer, &scheduler.Config{Locks: locks})

	// Rebuild the timer set from persisted state before serving.
	if err := sched.Recover(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to recover outstanding jobs")
	}

	log.Info().
		Int("scheduled", sched.ScheduledCount()).
		Msg("Scheduler service started")

	// Reconcile periodically: jobs created or canceled by the API process
	// are picked up here.
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := sched.Recover(context.Background()); err != nil {
				log.Error().Err(err).Msg("Reconciliation pass failed")
			}
		case <-quit:
			log.Info().Msg("Shutting down scheduler service...")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := sched.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("Shutdown did not drain in time")
			}
			cancel()
			log.Info().Msg("Scheduler service stopped")
			return
		}
	}
}

// runOnce executes one job immediately, outside the scheduler, for manual
// re-runs and debugging.
func runOnce(store database.JobStore, transfer runner.Runner, rawID string, log *logger.Logger) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		log.Fatal().Str("job", rawID).Msg("Invalid job id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	job, err := store.FindByID(ctx, id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load job")
	}
	if job == nil {
		log.Fatal().Str("job_id", rawID).Msg("Job not found")
	}

	log.Info().Str("job_id", rawID).Str("job_name", job.Name).Msg("Running job once...")
	outcome := transfer.Run(ctx, job)
	if !outcome.Success() {
		log.Fatal().Err(outcome.Err).Msg("Job execution failed")
	}
	log.Info().Str("job_id", rawID).Msg("Job completed successfully")
}
