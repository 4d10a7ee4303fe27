package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/regwatch/munireg/internal/munireg"
)

// RecordStore persists country records in the countries table.
type RecordStore struct {
	pool Pool
}

// NewRecordStore constructs a store from an existing pool.
func NewRecordStore(pool Pool) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RecordStore{pool: pool}, nil
}

const selectCountry = `
SELECT code, name, summary, version, last_updated
FROM countries
WHERE code = $1`

// FindByCode fetches one country record.
func (s *RecordStore) FindByCode(ctx context.Context, code string) (munireg.Country, error) {
	row := s.pool.QueryRow(ctx, selectCountry, code)
	return scanCountry(row)
}

// List returns all country records ordered by code.
func (s *RecordStore) List(ctx context.Context) ([]munireg.Country, error) {
	rows, err := s.pool.Query(ctx, `
SELECT code, name, summary, version, last_updated
FROM countries
ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer rows.Close()

	var out []munireg.Country
	for rows.Next() {
		rec, err := scanCountry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate countries: %w", err)
	}
	return out, nil
}

// SaveSummary merge-updates a country record, preserving stored
// additional_notes. Relies on the single-flight run invariant; there is no
// concurrent writer for the same code.
func (s *RecordStore) SaveSummary(ctx context.Context, code, name string, summary munireg.Summary, at time.Time) (munireg.Country, error) {
	existing, err := s.FindByCode(ctx, code)
	if err != nil && !errors.Is(err, munireg.ErrNotFound) {
		return munireg.Country{}, err
	}

	merged := munireg.MergeSummary(existing, code, name, summary, at)
	payload, err := json.Marshal(merged.Summary)
	if err != nil {
		return munireg.Country{}, fmt.Errorf("marshal summary: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO countries (code, name, summary, version, last_updated)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (code) DO UPDATE SET
	name = EXCLUDED.name,
	summary = EXCLUDED.summary,
	version = EXCLUDED.version,
	last_updated = EXCLUDED.last_updated`,
		merged.Code, merged.Name, payload, merged.Version, merged.LastUpdated,
	)
	if err != nil {
		return munireg.Country{}, fmt.Errorf("upsert country %s: %w", code, err)
	}
	return merged, nil
}

// Ensure creates an empty record for the country if absent.
func (s *RecordStore) Ensure(ctx context.Context, code, name string) error {
	payload, err := json.Marshal(munireg.Summary{}.Normalized())
	if err != nil {
		return fmt.Errorf("marshal empty summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO countries (code, name, summary, version, last_updated)
VALUES ($1, $2, $3, 0, NULL)
ON CONFLICT (code) DO NOTHING`,
		code, name, payload,
	)
	if err != nil {
		return fmt.Errorf("ensure country %s: %w", code, err)
	}
	return nil
}

func scanCountry(row pgx.Row) (munireg.Country, error) {
	var (
		rec     munireg.Country
		payload []byte
	)
	err := row.Scan(&rec.Code, &rec.Name, &payload, &rec.Version, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return munireg.Country{}, munireg.ErrNotFound
	}
	if err != nil {
		return munireg.Country{}, fmt.Errorf("scan country: %w", err)
	}
	if err := json.Unmarshal(payload, &rec.Summary); err != nil {
		return munireg.Country{}, fmt.Errorf("decode summary for %s: %w", rec.Code, err)
	}
	rec.Summary = rec.Summary.Normalized()
	return rec, nil
}
