// Package munireg defines core types shared across subsystems.
package munireg

import "time"

// JobStatus represents the lifecycle state of an orchestration run.
type JobStatus string

// Job status values persisted in the job store. A job leaves running exactly
// once, to either completed or failed.
const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// RunKind tags how a job was started.
type RunKind string

// Run kinds persisted for audit.
const (
	RunKindScheduled RunKind = "scheduled"
	RunKindManual    RunKind = "manual"
)

// Outcome is the result of one attempt to process a single country.
type Outcome string

// Outcomes recorded in the run log.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Contact is a regulator point of contact within a country summary.
type Contact struct {
	Agency  string `json:"agency"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
}

// Reference is a cited source within a country summary.
type Reference struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Accessed string `json:"accessed,omitempty"`
}

// Summary is the structured munitions-of-war regulation payload for one
// country. Sections are either scalar text, ordered string lists, or lists
// of structured sub-objects.
type Summary struct {
	Overview        string      `json:"overview"`
	ProhibitedItems []string    `json:"prohibited_items"`
	PermitProcess   []string    `json:"permit_process"`
	Penalties       []string    `json:"penalties"`
	Contacts        []Contact   `json:"contacts"`
	References      []Reference `json:"references"`
	AdditionalNotes string      `json:"additional_notes,omitempty"`
}

// Normalized returns a copy with non-nil slices so persisted payloads always
// serialize as arrays, even for records never updated.
func (s Summary) Normalized() Summary {
	if s.ProhibitedItems == nil {
		s.ProhibitedItems = []string{}
	}
	if s.PermitProcess == nil {
		s.PermitProcess = []string{}
	}
	if s.Penalties == nil {
		s.Penalties = []string{}
	}
	if s.Contacts == nil {
		s.Contacts = []Contact{}
	}
	if s.References == nil {
		s.References = []Reference{}
	}
	return s
}

// Country is the per-country record kept up to date by the orchestrator.
// Code is immutable once created; Version increments by exactly 1 on every
// successful merge-update.
type Country struct {
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Summary     Summary    `json:"summary"`
	Version     int        `json:"version"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// JobCounters tracks per-run stats. Counts are derived from run-log rows at
// checkpoint and finalization time, so a replayed checkpoint never drifts.
type JobCounters struct {
	Considered int `json:"considered"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Job represents one execution of the batch orchestrator. Retained forever
// for audit.
type Job struct {
	ID        string      `json:"id"`
	Kind      RunKind     `json:"kind"`
	ActorID   string      `json:"actor_id,omitempty"`
	Target    string      `json:"target,omitempty"`
	Status    JobStatus   `json:"status"`
	Started   time.Time   `json:"started_at"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	Counters  JobCounters `json:"counters"`
}

// RunLogEntry records one attempt to process a single country within a job.
// Append-only; a country retried across rounds produces one entry per
// attempt. Skips use attempt 0, the first pass 1, retry rounds 2 and up.
type RunLogEntry struct {
	JobID     string        `json:"job_id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Outcome   Outcome       `json:"outcome"`
	ErrorText string        `json:"error_text,omitempty"`
	Duration  time.Duration `json:"duration"`
	Attempt   int           `json:"attempt"`
	At        time.Time     `json:"at"`
}

// Source names one regulator page watched for content changes.
type Source struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}
