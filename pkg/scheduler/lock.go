package scheduler

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metricbridge/core/pkg/logger"
)

// JobLock is a held per-job execution lock.
type JobLock interface {
	// Release releases the lock.
	Release(ctx context.Context) error
}

// JobLockManager extends the at-most-one-execution-per-job guarantee across
// processes. Acquire returns (nil, false, nil) when another instance already
// holds the job.
type JobLockManager interface {
	Acquire(ctx context.Context, jobID uuid.UUID) (JobLock, bool, error)
}

// PostgresLockManager implements per-job locking with PostgreSQL advisory
// locks. Advisory locks are session-scoped, so a dedicated pool connection is
// held for the lifetime of each lock.
type PostgresLockManager struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresLockManager creates a PostgreSQL-based job lock manager.
func NewPostgresLockManager(pool *pgxpool.Pool) *PostgresLockManager {
	return &PostgresLockManager{
		pool:   pool,
		logger: logger.New("job-lock-manager"),
	}
}

// lockID derives the int64 advisory lock key from the job id. The first
// eight bytes of a v4 UUID are random, which is enough to avoid collisions
// between jobs.
func lockID(jobID uuid.UUID) int64 {
	id := int64(binary.BigEndian.Uint64(jobID[:8]))
	if id < 0 {
		id = -id
	}
	return id
}

func (m *PostgresLockManager) Acquire(ctx context.Context, jobID uuid.UUID) (JobLock, bool, error) {
	key := lockID(jobID)

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection for job lock: %w", err)
	}

	var acquired bool
	err = conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired)
	if err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("failed to acquire lock for job %s: %w", jobID, err)
	}

	if !acquired {
		conn.Release()
		m.logger.Debug().
			Str("job_id", jobID.String()).
			Int64("lock_id", key).
			Str("action", "lock_already_held").
			Msg("Job lock held by another instance")
		return nil, false, nil
	}

	m.logger.Debug().
		Str("job_id", jobID.String()).
		Int64("lock_id", key).
		Str("action", "lock_acquired").
		Msg("Acquired job lock")

	return &postgresLock{conn: conn, key: key, logger: m.logger}, true, nil
}

type postgresLock struct {
	conn   *pgxpool.Conn
	key    int64
	logger *logger.Logger
}

func (l *postgresLock) Release(ctx context.Context) error {
	defer l.conn.Release()

	var released bool
	err := l.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released)
	if err != nil {
		return fmt.Errorf("failed to release job lock %d: %w", l.key, err)
	}
	if !released {
		l.logger.Warn().
			Int64("lock_id", l.key).
			Str("action", "lock_not_held").
			Msg("Attempted to release lock that was not held")
	}
	return nil
}

// NoopLockManager always grants the lock. Used with the in-memory store,
// where only one process exists.
type NoopLockManager struct{}

func (NoopLockManager) Acquire(ctx context.Context, jobID uuid.UUID) (JobLock, bool, error) {
	return noopLock{}, true, nil
}

type noopLock struct{}

func (noopLock) Release(ctx context.Context) error { return nil }
