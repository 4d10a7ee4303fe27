package memory

import (
	"context"
	"sync"

	"github.com/regwatch/munireg/internal/munireg"
)

// RunLogStore keeps append-only run log entries per job.
type RunLogStore struct {
	mu      sync.RWMutex
	entries map[string][]munireg.RunLogEntry
}

// NewRunLogStore constructs a RunLogStore.
func NewRunLogStore() *RunLogStore {
	return &RunLogStore{
		entries: make(map[string][]munireg.RunLogEntry),
	}
}

// Append adds one entry. Entries are never mutated afterwards.
func (s *RunLogStore) Append(_ context.Context, entry munireg.RunLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.JobID] = append(s.entries[entry.JobID], entry)
	return nil
}

// ListByJob returns entries in append order.
func (s *RunLogStore) ListByJob(_ context.Context, jobID string) ([]munireg.RunLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.entries[jobID]
	out := make([]munireg.RunLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// CountOutcomes reports per-country final outcomes: any success row wins
// over failures logged in earlier attempts.
func (s *RunLogStore) CountOutcomes(_ context.Context, jobID string) (munireg.JobCounters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	final := make(map[string]munireg.Outcome)
	for _, entry := range s.entries[jobID] {
		switch entry.Outcome {
		case munireg.OutcomeSuccess:
			final[entry.Code] = munireg.OutcomeSuccess
		case munireg.OutcomeSkipped:
			if _, seen := final[entry.Code]; !seen {
				final[entry.Code] = munireg.OutcomeSkipped
			}
		case munireg.OutcomeFailed:
			if final[entry.Code] != munireg.OutcomeSuccess {
				final[entry.Code] = munireg.OutcomeFailed
			}
		}
	}

	var counters munireg.JobCounters
	for _, outcome := range final {
		switch outcome {
		case munireg.OutcomeSuccess:
			counters.Updated++
		case munireg.OutcomeFailed:
			counters.Failed++
		case munireg.OutcomeSkipped:
			counters.Skipped++
		}
	}
	return counters, nil
}
