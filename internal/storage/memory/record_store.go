// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/regwatch/munireg/internal/munireg"
)

// RecordStore keeps country records in a map.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]munireg.Country
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]munireg.Country),
	}
}

// FindByCode fetches a country record by its code.
func (s *RecordStore) FindByCode(_ context.Context, code string) (munireg.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[code]
	if !ok {
		return munireg.Country{}, munireg.ErrNotFound
	}
	return rec, nil
}

// List returns all country records ordered by code.
func (s *RecordStore) List(_ context.Context) ([]munireg.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]munireg.Country, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// SaveSummary merge-updates (or creates) a country record.
func (s *RecordStore) SaveSummary(_ context.Context, code, name string, summary munireg.Summary, at time.Time) (munireg.Country, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := munireg.MergeSummary(s.records[code], code, name, summary, at)
	s.records[code] = merged
	return merged, nil
}

// Ensure creates an empty record for the country if absent.
func (s *RecordStore) Ensure(_ context.Context, code, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[code]; exists {
		return nil
	}
	s.records[code] = munireg.Country{
		Code:    code,
		Name:    name,
		Summary: munireg.Summary{}.Normalized(),
	}
	return nil
}

// Put replaces a record wholesale. Test helper.
func (s *RecordStore) Put(rec munireg.Country) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Code] = rec
}
