package munireg

import "time"

// MergeSummary applies a freshly generated summary onto an existing record.
// The generator never produces additional_notes, so any existing notes are
// carried over byte-for-byte. A missing prior record (zero Country) is
// treated as version 0, yielding version 1.
func MergeSummary(existing Country, code, name string, generated Summary, at time.Time) Country {
	merged := generated.Normalized()
	merged.AdditionalNotes = existing.Summary.AdditionalNotes

	version := existing.Version
	if version < 0 {
		version = 0
	}

	updated := at
	out := Country{
		Code:        code,
		Name:        name,
		Summary:     merged,
		Version:     version + 1,
		LastUpdated: &updated,
	}
	if out.Name == "" {
		out.Name = existing.Name
	}
	return out
}
