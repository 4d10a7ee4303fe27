package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/regwatch/munireg/internal/munireg"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestRecordStore_FindByCode(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewRecordStore(mock)
	require.NoError(t, err)

	updated := time.Unix(1700000000, 0).UTC()
	summary := munireg.Summary{Overview: "French rules"}.Normalized()
	payload, err := json.Marshal(summary)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT code, name, summary, version, last_updated").
		WithArgs("FR").
		WillReturnRows(pgxmock.NewRows([]string{"code", "name", "summary", "version", "last_updated"}).
			AddRow("FR", "France", payload, 3, &updated))

	rec, err := store.FindByCode(context.Background(), "FR")
	require.NoError(t, err)
	require.Equal(t, "France", rec.Name)
	require.Equal(t, 3, rec.Version)
	require.Equal(t, "French rules", rec.Summary.Overview)
	require.NotNil(t, rec.Summary.Penalties)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStore_FindByCodeNotFound(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewRecordStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT code, name, summary, version, last_updated").
		WithArgs("XX").
		WillReturnRows(pgxmock.NewRows([]string{"code", "name", "summary", "version", "last_updated"}))

	_, err = store.FindByCode(context.Background(), "XX")
	require.ErrorIs(t, err, munireg.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStore_SaveSummaryMergesExistingRow(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewRecordStore(mock)
	require.NoError(t, err)

	existing := munireg.Summary{
		Overview:        "old",
		AdditionalNotes: "operator note",
	}.Normalized()
	existingPayload, err := json.Marshal(existing)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT code, name, summary, version, last_updated").
		WithArgs("FR").
		WillReturnRows(pgxmock.NewRows([]string{"code", "name", "summary", "version", "last_updated"}).
			AddRow("FR", "France", existingPayload, 3, (*time.Time)(nil)))

	at := time.Unix(1700000000, 0).UTC()
	merged := munireg.Summary{
		Overview:        "new",
		AdditionalNotes: "operator note",
	}.Normalized()
	mergedPayload, err := json.Marshal(merged)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO countries").
		WithArgs("FR", "France", mergedPayload, 4, &at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := store.SaveSummary(context.Background(), "FR", "France",
		munireg.Summary{Overview: "new", AdditionalNotes: "model note"}, at)
	require.NoError(t, err)
	require.Equal(t, 4, rec.Version)
	require.Equal(t, "operator note", rec.Summary.AdditionalNotes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStore_SaveSummaryUpserts(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewRecordStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT code, name, summary, version, last_updated").
		WithArgs("AD").
		WillReturnRows(pgxmock.NewRows([]string{"code", "name", "summary", "version", "last_updated"}))

	at := time.Unix(1700000000, 0).UTC()
	payload, err := json.Marshal(munireg.Summary{Overview: "fresh"}.Normalized())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO countries").
		WithArgs("AD", "Andorra", payload, 1, &at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := store.SaveSummary(context.Background(), "AD", "Andorra",
		munireg.Summary{Overview: "fresh"}, at)
	require.NoError(t, err)
	require.Equal(t, 1, rec.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_CreateRunningClaimsSlot(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewJobStore(mock)
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	job := munireg.Job{
		ID:      "job-1",
		Kind:    munireg.RunKindScheduled,
		ActorID: "scheduler",
		Started: started,
	}

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", "scheduled", "scheduler", "", started).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRunning(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_CreateRunningConflict(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewJobStore(mock)
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job-2", "manual", "tester", "FR", started).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = store.CreateRunning(context.Background(), munireg.Job{
		ID: "job-2", Kind: munireg.RunKindManual, ActorID: "tester", Target: "FR", Started: started,
	})
	require.ErrorIs(t, err, munireg.ErrRunActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_FinishRequiresRunning(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewJobStore(mock)
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	counters := munireg.JobCounters{Considered: 5, Updated: 4, Failed: 1}

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "completed", "", at, 5, 4, 1, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Finish(context.Background(), "job-1", munireg.JobStatusCompleted, "", counters, at)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not running")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_ActiveRun(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewJobStore(mock)
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT id, kind, actor_id, target, status").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "actor_id", "target", "status", "started_at", "finished_at", "error_text",
			"considered", "updated", "failed", "skipped",
		}).AddRow("job-1", "scheduled", "scheduler", "", "running", started, (*time.Time)(nil), "", 10, 3, 0, 2))

	job, err := store.ActiveRun(context.Background())
	require.NoError(t, err)
	require.Equal(t, munireg.JobStatusRunning, job.Status)
	require.Equal(t, 10, job.Counters.Considered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogStore_AppendAndCount(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewRunLogStore(mock)
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	entry := munireg.RunLogEntry{
		JobID:     "job-1",
		Code:      "FR",
		Name:      "France",
		Outcome:   munireg.OutcomeFailed,
		ErrorText: "upstream model unavailable",
		Duration:  1500 * time.Millisecond,
		Attempt:   1,
		At:        at,
	}

	mock.ExpectExec("INSERT INTO run_log").
		WithArgs("job-1", "FR", "France", "failed", "upstream model unavailable", int64(1500), 1, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Append(context.Background(), entry))

	mock.ExpectQuery("FROM run_log").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"updated", "failed", "skipped"}).AddRow(3, 1, 2))

	counters, err := store.CountOutcomes(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, munireg.JobCounters{Updated: 3, Failed: 1, Skipped: 2}, counters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogStore_ListByJob(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewRunLogStore(mock)
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT job_id, code, name, outcome").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"job_id", "code", "name", "outcome", "error_text", "duration_ms", "attempt", "at",
		}).
			AddRow("job-1", "FR", "France", "failed", "boom", int64(900), 1, at).
			AddRow("job-1", "FR", "France", "success", "", int64(1100), 2, at.Add(time.Minute)))

	entries, err := store.ListByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, munireg.OutcomeFailed, entries[0].Outcome)
	require.Equal(t, 900*time.Millisecond, entries[0].Duration)
	require.Equal(t, 2, entries[1].Attempt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDigestStore_RoundTrip(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	store, err := NewDigestStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT digest FROM source_digests").
		WithArgs("FR").
		WillReturnRows(pgxmock.NewRows([]string{"digest"}))

	_, err = store.GetDigest(context.Background(), "FR")
	require.ErrorIs(t, err, munireg.ErrNotFound)

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO source_digests").
		WithArgs("FR", "abc123", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.PutDigest(context.Background(), "FR", "abc123", at))
	require.NoError(t, mock.ExpectationsWereMet())
}
