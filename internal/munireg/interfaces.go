package munireg

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrRunActive signals that another job is currently running. At most one
// job may be in the running state at any time.
var ErrRunActive = errors.New("a refresh job is already running")

// RecordStore persists country records.
type RecordStore interface {
	FindByCode(ctx context.Context, code string) (Country, error)
	List(ctx context.Context) ([]Country, error)
	// SaveSummary merge-updates a country record: the existing
	// additional_notes section is preserved verbatim, every other section is
	// overwritten, the version increments by 1 and last-updated is set.
	// Upserts when no record exists.
	SaveSummary(ctx context.Context, code, name string, summary Summary, at time.Time) (Country, error)
	// Ensure creates an empty record for the country if absent.
	Ensure(ctx context.Context, code, name string) error
}

// JobStore persists orchestration jobs.
type JobStore interface {
	// CreateRunning atomically claims the single running slot. Returns
	// ErrRunActive when another job is still running.
	CreateRunning(ctx context.Context, job Job) error
	UpdateCounters(ctx context.Context, jobID string, counters JobCounters) error
	Finish(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters, at time.Time) error
	Get(ctx context.Context, jobID string) (Job, error)
	List(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, error)
	// ActiveRun returns the currently running job, or ErrNotFound.
	ActiveRun(ctx context.Context) (Job, error)
}

// RunLogStore appends and reads per-attempt outcome rows.
type RunLogStore interface {
	Append(ctx context.Context, entry RunLogEntry) error
	ListByJob(ctx context.Context, jobID string) ([]RunLogEntry, error)
	// CountOutcomes reports per-country final outcomes for a job: a country
	// with any success row counts as updated regardless of earlier failures.
	CountOutcomes(ctx context.Context, jobID string) (JobCounters, error)
}

// SummaryGenerator produces a structured summary for one country, typically
// by calling a web-grounded generative model. It must coerce malformed
// output into the expected shape; a returned Summary is always success.
type SummaryGenerator interface {
	Generate(ctx context.Context, name, code string) (Summary, error)
}

// Publisher pushes record-updated events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// DigestStore persists per-country source content digests.
type DigestStore interface {
	GetDigest(ctx context.Context, code string) (string, error)
	PutDigest(ctx context.Context, code, digest string, at time.Time) error
}

// Hasher computes digests for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Pacer spaces outbound generator calls. Implementations decide the policy
// (fixed interval, token bucket); the orchestrator only marks the
// boundaries.
type Pacer interface {
	BetweenCalls(ctx context.Context) error
	BetweenBatches(ctx context.Context) error
	RetryCooldown(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
