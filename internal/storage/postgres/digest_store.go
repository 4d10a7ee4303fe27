package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/regwatch/munireg/internal/munireg"
)

// DigestStore persists per-country source content digests.
type DigestStore struct {
	pool Pool
}

// NewDigestStore constructs a store from an existing pool.
func NewDigestStore(pool Pool) (*DigestStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DigestStore{pool: pool}, nil
}

// GetDigest returns the stored digest for a country, or ErrNotFound.
func (s *DigestStore) GetDigest(ctx context.Context, code string) (string, error) {
	var digest string
	err := s.pool.QueryRow(ctx, `
SELECT digest FROM source_digests WHERE code = $1`, code).Scan(&digest)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", munireg.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select source digest: %w", err)
	}
	return digest, nil
}

// PutDigest upserts the digest for a country.
func (s *DigestStore) PutDigest(ctx context.Context, code, digest string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO source_digests (code, digest, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (code) DO UPDATE SET digest = EXCLUDED.digest, updated_at = EXCLUDED.updated_at`,
		code, digest, at,
	)
	if err != nil {
		return fmt.Errorf("upsert source digest: %w", err)
	}
	return nil
}
