package memory

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/munireg/internal/munireg"
)

func TestRecordStore_SaveSummaryMergesAndUpserts(t *testing.T) {
	t.Parallel()
	s := NewRecordStore()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.FindByCode(ctx, "FR")
	require.ErrorIs(t, err, munireg.ErrNotFound)

	created, err := s.SaveSummary(ctx, "FR", "France", munireg.Summary{Overview: "v1"}, at)
	require.NoError(t, err)
	require.Equal(t, 1, created.Version)
	require.NotNil(t, created.LastUpdated)

	s.Put(munireg.Country{
		Code: "FR", Name: "France", Version: 1,
		Summary: munireg.Summary{Overview: "v1", AdditionalNotes: "keep me"}.Normalized(),
	})
	updated, err := s.SaveSummary(ctx, "FR", "France", munireg.Summary{Overview: "v2"}, at.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, "v2", updated.Summary.Overview)
	require.Equal(t, "keep me", updated.Summary.AdditionalNotes)
}

func TestRecordStore_EnsureIsIdempotent(t *testing.T) {
	t.Parallel()
	s := NewRecordStore()
	ctx := context.Background()

	require.NoError(t, s.Ensure(ctx, "DE", "Germany"))
	_, err := s.SaveSummary(ctx, "DE", "Germany", munireg.Summary{Overview: "x"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Ensure(ctx, "DE", "Germany"))

	rec, err := s.FindByCode(ctx, "DE")
	require.NoError(t, err)
	require.Equal(t, 1, rec.Version)
}

func TestRecordStore_ListOrdersByCode(t *testing.T) {
	t.Parallel()
	s := NewRecordStore()
	ctx := context.Background()
	require.NoError(t, s.Ensure(ctx, "FR", "France"))
	require.NoError(t, s.Ensure(ctx, "AU", "Australia"))
	require.NoError(t, s.Ensure(ctx, "DE", "Germany"))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "AU", all[0].Code)
	require.Equal(t, "DE", all[1].Code)
	require.Equal(t, "FR", all[2].Code)
}

func TestJobStore_SingleRunningSlot(t *testing.T) {
	t.Parallel()
	s := NewJobStore()
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateRunning(ctx, munireg.Job{ID: "a", Started: started}))
	err := s.CreateRunning(ctx, munireg.Job{ID: "b", Started: started})
	require.ErrorIs(t, err, munireg.ErrRunActive)

	active, err := s.ActiveRun(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", active.ID)

	counters := munireg.JobCounters{Considered: 10, Updated: 8, Failed: 1, Skipped: 1}
	require.NoError(t, s.Finish(ctx, "a", munireg.JobStatusCompleted, "", counters, started.Add(time.Minute)))

	_, err = s.ActiveRun(ctx)
	require.ErrorIs(t, err, munireg.ErrNotFound)

	// Slot freed, the next claim succeeds.
	require.NoError(t, s.CreateRunning(ctx, munireg.Job{ID: "b", Started: started.Add(2 * time.Minute)}))

	done, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, munireg.JobStatusCompleted, done.Status)
	require.Equal(t, counters, done.Counters)
	require.NotNil(t, done.Finished)
}

func TestJobStore_FinishTwiceRejected(t *testing.T) {
	t.Parallel()
	s := NewJobStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateRunning(ctx, munireg.Job{ID: "a", Started: now}))
	require.NoError(t, s.Finish(ctx, "a", munireg.JobStatusFailed, "boom", munireg.JobCounters{}, now))
	require.Error(t, s.Finish(ctx, "a", munireg.JobStatusCompleted, "", munireg.JobCounters{}, now))
}

func TestJobStore_ListFiltersAndPaginates(t *testing.T) {
	t.Parallel()
	s := NewJobStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateRunning(ctx, munireg.Job{ID: id, Started: base.Add(time.Duration(i) * time.Minute)}))
		require.NoError(t, s.Finish(ctx, id, munireg.JobStatusCompleted, "", munireg.JobCounters{}, base.Add(time.Hour)))
	}
	require.NoError(t, s.CreateRunning(ctx, munireg.Job{ID: "d", Started: base.Add(time.Hour)}))

	all, err := s.List(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "d", all[0].ID)

	completed := munireg.JobStatusCompleted
	page, err := s.List(ctx, &completed, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "b", page[0].ID)
	require.Equal(t, "a", page[1].ID)
}

func TestRunLogStore_CountOutcomesUsesFinalPerCountry(t *testing.T) {
	t.Parallel()
	s := NewRunLogStore()
	ctx := context.Background()
	at := time.Now()

	entries := []munireg.RunLogEntry{
		{JobID: "j", Code: "AA", Outcome: munireg.OutcomeFailed, Attempt: 1, At: at},
		{JobID: "j", Code: "AA", Outcome: munireg.OutcomeSuccess, Attempt: 2, At: at},
		{JobID: "j", Code: "BB", Outcome: munireg.OutcomeFailed, Attempt: 1, At: at},
		{JobID: "j", Code: "BB", Outcome: munireg.OutcomeFailed, Attempt: 2, At: at},
		{JobID: "j", Code: "CC", Outcome: munireg.OutcomeSkipped, Attempt: 0, At: at},
		{JobID: "other", Code: "AA", Outcome: munireg.OutcomeFailed, Attempt: 1, At: at},
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, e))
	}

	counters, err := s.CountOutcomes(ctx, "j")
	require.NoError(t, err)
	require.Equal(t, 1, counters.Updated)
	require.Equal(t, 1, counters.Failed)
	require.Equal(t, 1, counters.Skipped)

	logged, err := s.ListByJob(ctx, "j")
	require.NoError(t, err)
	require.Len(t, logged, 5)
	require.Equal(t, "AA", logged[0].Code)
}

func TestDigestStore_RoundTrip(t *testing.T) {
	t.Parallel()
	s := NewDigestStore()
	ctx := context.Background()

	_, err := s.GetDigest(ctx, "FR")
	require.ErrorIs(t, err, munireg.ErrNotFound)

	require.NoError(t, s.PutDigest(ctx, "FR", "abc123", time.Now()))
	digest, err := s.GetDigest(ctx, "FR")
	require.NoError(t, err)
	require.Equal(t, "abc123", digest)
}

func TestBlobStore_PutObject(t *testing.T) {
	t.Parallel()
	s := NewBlobStore()

	uri, err := s.PutObject(context.Background(), "runs/j1/FR.json", "application/json", bytes.NewReader([]byte(`{"code":"FR"}`)))
	require.NoError(t, err)
	require.Equal(t, "memory://runs/j1/FR.json", uri)

	data, ok := s.Object("runs/j1/FR.json")
	require.True(t, ok)
	require.JSONEq(t, `{"code":"FR"}`, string(data))
}
