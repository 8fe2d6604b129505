package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metricbridge/core/pkg/models"
)

// PostgresStore implements JobStore on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed job store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const jobColumns = `id, name, slug, source_profile_id, destination_profile_id,
	config, owner_id, status, start_time, repeat_period, active,
	include_previous_data, errors, created_at, updated_at`

const uniqueViolation = "23505"

func (s *PostgresStore) Save(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.pool.Exec(ctx, query,
		job.ID, job.Name, job.Slug, job.SourceProfileID, job.DestinationProfileID,
		job.Config, job.OwnerID, job.Status, job.StartTime, nullable(job.RepeatPeriod),
		job.Active, job.IncludePreviousData, nullable(job.Errors), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to save job %q: %w", job.Name, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()

	query := `UPDATE jobs SET
		name = $2, slug = $3, source_profile_id = $4, destination_profile_id = $5,
		config = $6, owner_id = $7, status = $8, start_time = $9,
		repeat_period = $10, active = $11, include_previous_data = $12,
		errors = $13, updated_at = $14
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		job.ID, job.Name, job.Slug, job.SourceProfileID, job.DestinationProfileID,
		job.Config, job.OwnerID, job.Status, job.StartTime, nullable(job.RepeatPeriod),
		job.Active, job.IncludePreviousData, nullable(job.Errors), job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job %s: %w", id, err)
	}
	return job, nil
}

func (s *PostgresStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check job name %q: %w", name, err)
	}
	return exists, nil
}

func (s *PostgresStore) DueForScheduling(ctx context.Context) ([]*models.Job, error) {
	// Recurring jobs are selected by period, not status, so a job that was
	// mid-cycle at crash time is still recovered. The active flag keeps
	// canceled recurring jobs from being resurrected.
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE active = true AND (status = $1 OR repeat_period IS NOT NULL)
		ORDER BY start_time`

	rows, err := s.pool.Query(ctx, query, models.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

var orderColumns = map[string]string{
	"name":       "name",
	"status":     "status",
	"start_time": "start_time",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*models.Job, error) {
	column, ok := orderColumns[filter.OrderBy]
	if !ok {
		column = "created_at"
	}
	dir := "DESC"
	if filter.OrderDir == OrderAsc {
		dir = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM jobs ORDER BY %s %s LIMIT $1 OFFSET $2`,
		jobColumns, column, dir)

	rows, err := s.pool.Query(ctx, query, filter.Limit(), filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM jobs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	var repeatPeriod, jobErrors *string

	err := row.Scan(
		&job.ID, &job.Name, &job.Slug, &job.SourceProfileID, &job.DestinationProfileID,
		&job.Config, &job.OwnerID, &job.Status, &job.StartTime, &repeatPeriod,
		&job.Active, &job.IncludePreviousData, &jobErrors, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if repeatPeriod != nil {
		job.RepeatPeriod = *repeatPeriod
	}
	if jobErrors != nil {
		job.Errors = *jobErrors
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job rows: %w", err)
	}
	return jobs, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
