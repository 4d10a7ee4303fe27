package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/regwatch/munireg/internal/munireg"
)

// RunLogStore persists per-attempt outcome rows in the run_log table.
type RunLogStore struct {
	pool Pool
}

// NewRunLogStore constructs a store from an existing pool.
func NewRunLogStore(pool Pool) (*RunLogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunLogStore{pool: pool}, nil
}

// Append inserts one run log row.
func (s *RunLogStore) Append(ctx context.Context, e munireg.RunLogEntry) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO run_log (job_id, code, name, outcome, error_text, duration_ms, attempt, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.JobID, e.Code, e.Name, string(e.Outcome), e.ErrorText,
		e.Duration.Milliseconds(), e.Attempt, e.At,
	)
	if err != nil {
		return fmt.Errorf("insert run log entry: %w", err)
	}
	return nil
}

// ListByJob returns entries in append order.
func (s *RunLogStore) ListByJob(ctx context.Context, jobID string) ([]munireg.RunLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT job_id, code, name, outcome, error_text, duration_ms, attempt, at
FROM run_log
WHERE job_id = $1
ORDER BY at, attempt`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run log: %w", err)
	}
	defer rows.Close()

	var out []munireg.RunLogEntry
	for rows.Next() {
		var (
			e          munireg.RunLogEntry
			outcome    string
			durationMs int64
		)
		if err := rows.Scan(&e.JobID, &e.Code, &e.Name, &outcome, &e.ErrorText, &durationMs, &e.Attempt, &e.At); err != nil {
			return nil, fmt.Errorf("scan run log entry: %w", err)
		}
		e.Outcome = munireg.Outcome(outcome)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run log: %w", err)
	}
	return out, nil
}

// CountOutcomes reduces a job's rows to per-country final outcomes in SQL:
// any success row wins, otherwise any failure, otherwise skipped.
func (s *RunLogStore) CountOutcomes(ctx context.Context, jobID string) (munireg.JobCounters, error) {
	row := s.pool.QueryRow(ctx, `
SELECT
	COUNT(*) FILTER (WHERE final = 'success'),
	COUNT(*) FILTER (WHERE final = 'failed'),
	COUNT(*) FILTER (WHERE final = 'skipped')
FROM (
	SELECT code,
		CASE
			WHEN bool_or(outcome = 'success') THEN 'success'
			WHEN bool_or(outcome = 'failed') THEN 'failed'
			ELSE 'skipped'
		END AS final
	FROM run_log
	WHERE job_id = $1
	GROUP BY code
) per_country`,
		jobID,
	)
	var c munireg.JobCounters
	if err := row.Scan(&c.Updated, &c.Failed, &c.Skipped); err != nil {
		return munireg.JobCounters{}, fmt.Errorf("count run log outcomes: %w", err)
	}
	return c, nil
}
