package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/regwatch/munireg/internal/munireg"
)

// JobStore provides an in-memory implementation for development/testing.
// It enforces the one-active-running-job invariant the same way the
// Postgres store does.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]munireg.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]munireg.Job),
	}
}

// CreateRunning claims the single running slot or fails with ErrRunActive.
func (s *JobStore) CreateRunning(_ context.Context, job munireg.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	for _, j := range s.jobs {
		if j.Status == munireg.JobStatusRunning {
			return munireg.ErrRunActive
		}
	}
	job.Status = munireg.JobStatusRunning
	s.jobs[job.ID] = job
	return nil
}

// UpdateCounters overwrites the counters for a running job.
func (s *JobStore) UpdateCounters(_ context.Context, jobID string, counters munireg.JobCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return munireg.ErrNotFound
	}
	job.Counters = counters
	s.jobs[jobID] = job
	return nil
}

// Finish transitions a job out of running exactly once.
func (s *JobStore) Finish(_ context.Context, jobID string, status munireg.JobStatus, errText string, counters munireg.JobCounters, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return munireg.ErrNotFound
	}
	if job.Status != munireg.JobStatusRunning {
		return errors.New("job is not running")
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	finished := at
	job.Finished = &finished
	s.jobs[jobID] = job
	return nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (munireg.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return munireg.Job{}, munireg.ErrNotFound
	}
	return job, nil
}

// List returns jobs newest first, optionally filtered by status.
func (s *JobStore) List(_ context.Context, status *munireg.JobStatus, limit, offset int) ([]munireg.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]munireg.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ActiveRun returns the currently running job, or ErrNotFound.
func (s *JobStore) ActiveRun(_ context.Context) (munireg.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Status == munireg.JobStatusRunning {
			return job, nil
		}
	}
	return munireg.Job{}, munireg.ErrNotFound
}
