package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/regwatch/munireg/internal/munireg"
)

// JobStore persists orchestration jobs in the jobs table.
type JobStore struct {
	pool Pool
}

// NewJobStore constructs a store from an existing pool.
func NewJobStore(pool Pool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// CreateRunning claims the single running slot with a conditional insert.
// Zero rows affected means another job holds the slot.
func (s *JobStore) CreateRunning(ctx context.Context, job munireg.Job) error {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO jobs (id, kind, actor_id, target, status, started_at, considered, updated, failed, skipped)
SELECT $1, $2, $3, $4, 'running', $5, 0, 0, 0, 0
WHERE NOT EXISTS (SELECT 1 FROM jobs WHERE status = 'running')`,
		job.ID, string(job.Kind), job.ActorID, job.Target, job.Started,
	)
	if err != nil {
		return fmt.Errorf("insert running job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return munireg.ErrRunActive
	}
	return nil
}

// UpdateCounters checkpoints counters for a running job.
func (s *JobStore) UpdateCounters(ctx context.Context, jobID string, c munireg.JobCounters) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs
SET considered = $2, updated = $3, failed = $4, skipped = $5
WHERE id = $1`,
		jobID, c.Considered, c.Updated, c.Failed, c.Skipped,
	)
	if err != nil {
		return fmt.Errorf("update job counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return munireg.ErrNotFound
	}
	return nil
}

// Finish transitions a job out of running exactly once.
func (s *JobStore) Finish(ctx context.Context, jobID string, status munireg.JobStatus, errText string, c munireg.JobCounters, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs
SET status = $2, error_text = $3, finished_at = $4,
	considered = $5, updated = $6, failed = $7, skipped = $8
WHERE id = $1 AND status = 'running'`,
		jobID, string(status), errText, at,
		c.Considered, c.Updated, c.Failed, c.Skipped,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not running", jobID)
	}
	return nil
}

const selectJob = `
SELECT id, kind, actor_id, target, status, started_at, finished_at, error_text,
	considered, updated, failed, skipped
FROM jobs`

// Get fetches one job.
func (s *JobStore) Get(ctx context.Context, jobID string) (munireg.Job, error) {
	row := s.pool.QueryRow(ctx, selectJob+` WHERE id = $1`, jobID)
	return scanJob(row)
}

// List returns jobs newest first, optionally filtered by status.
func (s *JobStore) List(ctx context.Context, status *munireg.JobStatus, limit, offset int) ([]munireg.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectJob
	args := []any{limit, offset}
	if status != nil {
		query += ` WHERE status = $3`
		args = append(args, string(*status))
	}
	query += ` ORDER BY started_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []munireg.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// ActiveRun returns the currently running job, or ErrNotFound.
func (s *JobStore) ActiveRun(ctx context.Context) (munireg.Job, error) {
	row := s.pool.QueryRow(ctx, selectJob+` WHERE status = 'running'`)
	return scanJob(row)
}

func scanJob(row pgx.Row) (munireg.Job, error) {
	var (
		job          munireg.Job
		kind, status string
	)
	err := row.Scan(
		&job.ID, &kind, &job.ActorID, &job.Target, &status,
		&job.Started, &job.Finished, &job.ErrorText,
		&job.Counters.Considered, &job.Counters.Updated,
		&job.Counters.Failed, &job.Counters.Skipped,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return munireg.Job{}, munireg.ErrNotFound
	}
	if err != nil {
		return munireg.Job{}, fmt.Errorf("scan job: %w", err)
	}
	job.Kind = munireg.RunKind(kind)
	job.Status = munireg.JobStatus(status)
	return job, nil
}
