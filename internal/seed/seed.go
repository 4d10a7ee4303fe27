// Package seed bootstraps the country catalog.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/regwatch/munireg/internal/munireg"
)

//go:embed countries.json
var countriesJSON []byte

// Entry is one tracked country.
type Entry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Countries returns the embedded catalog.
func Countries() ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(countriesJSON, &entries); err != nil {
		return nil, fmt.Errorf("decode embedded country catalog: %w", err)
	}
	return entries, nil
}

// EnsureAll creates an empty record for every cataloged country that does
// not exist yet. Existing records are left untouched.
func EnsureAll(ctx context.Context, store munireg.RecordStore, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := Countries()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := store.Ensure(ctx, e.Code, e.Name); err != nil {
			return 0, fmt.Errorf("ensure %s: %w", e.Code, err)
		}
	}
	logger.Info("country catalog ensured", zap.Int("countries", len(entries)))
	return len(entries), nil
}
