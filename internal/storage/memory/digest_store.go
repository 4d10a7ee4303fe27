package memory

import (
	"context"
	"sync"
	"time"

	"github.com/regwatch/munireg/internal/munireg"
)

// DigestStore keeps per-country source content digests in memory.
type DigestStore struct {
	mu      sync.RWMutex
	digests map[string]string
}

// NewDigestStore constructs a DigestStore.
func NewDigestStore() *DigestStore {
	return &DigestStore{
		digests: make(map[string]string),
	}
}

// GetDigest returns the last stored digest, or ErrNotFound.
func (s *DigestStore) GetDigest(_ context.Context, code string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	digest, ok := s.digests[code]
	if !ok {
		return "", munireg.ErrNotFound
	}
	return digest, nil
}

// PutDigest stores the digest for a country.
func (s *DigestStore) PutDigest(_ context.Context, code, digest string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[code] = digest
	return nil
}
