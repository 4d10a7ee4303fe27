package munireg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeSummary_PreservesAdditionalNotes(t *testing.T) {
	t.Parallel()

	prev := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := Country{
		Code:    "FR",
		Name:    "France",
		Version: 3,
		Summary: Summary{
			Overview:        "old overview",
			AdditionalNotes: "operator note: see DGAC circular 2019-14",
		},
		LastUpdated: &prev,
	}
	generated := Summary{
		Overview:        "new overview",
		ProhibitedItems: []string{"live ordnance"},
		AdditionalNotes: "generator must never win here",
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	merged := MergeSummary(existing, "FR", "France", generated, now)

	require.Equal(t, 4, merged.Version)
	require.Equal(t, "new overview", merged.Summary.Overview)
	require.Equal(t, []string{"live ordnance"}, merged.Summary.ProhibitedItems)
	require.Equal(t, "operator note: see DGAC circular 2019-14", merged.Summary.AdditionalNotes)
	require.Equal(t, now, *merged.LastUpdated)
}

func TestMergeSummary_UpsertFromZeroRecord(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	merged := MergeSummary(Country{}, "NZ", "New Zealand", Summary{Overview: "fresh"}, now)

	require.Equal(t, 1, merged.Version)
	require.Equal(t, "NZ", merged.Code)
	require.Equal(t, "New Zealand", merged.Name)
	require.Empty(t, merged.Summary.AdditionalNotes)
	require.NotNil(t, merged.Summary.Contacts)
	require.NotNil(t, merged.Summary.References)
}

func TestSummaryNormalized_NonNilSlices(t *testing.T) {
	t.Parallel()

	s := Summary{Overview: "x"}.Normalized()
	require.NotNil(t, s.ProhibitedItems)
	require.NotNil(t, s.PermitProcess)
	require.NotNil(t, s.Penalties)
	require.NotNil(t, s.Contacts)
	require.NotNil(t, s.References)
}
