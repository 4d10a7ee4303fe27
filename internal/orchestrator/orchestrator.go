// Package orchestrator implements the batch refresh loop that keeps country
// regulation records up to date.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/munireg/internal/metrics"
	"github.com/regwatch/munireg/internal/munireg"
	"github.com/regwatch/munireg/internal/pacing"
)

const skipReason = "Recently updated."

// Config controls Orchestrator behavior.
type Config struct {
	BatchSize      int
	SkipWindow     time.Duration
	ErrorThreshold int
	MaxRetries     int
	SaveEvery      int
	// Topic, when set, receives one record-updated event per successful merge.
	Topic string
	// ArchivePrefix, when set together with a blob store, receives a JSON
	// snapshot of every merged record.
	ArchivePrefix      string
	ArchiveContentType string
}

// Orchestrator selects stale records, paces generator calls in batches,
// checkpoints progress, and escalates to bounded retry rounds.
type Orchestrator struct {
	records   munireg.RecordStore
	jobs      munireg.JobStore
	runLog    munireg.RunLogStore
	generator munireg.SummaryGenerator
	publisher munireg.Publisher
	blobs     munireg.BlobStore
	pacer     munireg.Pacer
	clock     munireg.Clock
	idGen     munireg.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. Publisher and blob store are optional;
// pacing defaults to no waiting when nil.
func New(
	records munireg.RecordStore,
	jobs munireg.JobStore,
	runLog munireg.RunLogStore,
	generator munireg.SummaryGenerator,
	publisher munireg.Publisher,
	blobs munireg.BlobStore,
	pacer munireg.Pacer,
	clock munireg.Clock,
	idGen munireg.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if pacer == nil {
		pacer = pacing.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 5
	}
	if cfg.ArchiveContentType == "" {
		cfg.ArchiveContentType = "application/json"
	}
	metrics.Init()
	return &Orchestrator{
		records:   records,
		jobs:      jobs,
		runLog:    runLog,
		generator: generator,
		publisher: publisher,
		blobs:     blobs,
		pacer:     pacer,
		clock:     clock,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger,
	}
}

type retryItem struct {
	code string
	name string
}

// Run executes one refresh job. A non-empty target restricts processing to
// that single country, bypassing the staleness filter and all pacing. The
// running-job slot is claimed atomically; a second concurrent call fails
// with munireg.ErrRunActive before any work starts.
func (o *Orchestrator) Run(ctx context.Context, kind munireg.RunKind, actorID, target string) (munireg.Job, error) {
	jobID, err := o.idGen.NewID()
	if err != nil {
		return munireg.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := munireg.Job{
		ID:      jobID,
		Kind:    kind,
		ActorID: actorID,
		Target:  target,
		Status:  munireg.JobStatusRunning,
		Started: o.clock.Now(),
	}
	if err := o.jobs.CreateRunning(ctx, job); err != nil {
		return munireg.Job{}, fmt.Errorf("claim running job: %w", err)
	}
	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	o.logger.Info("refresh job started",
		zap.String("job_id", jobID),
		zap.String("kind", string(kind)),
		zap.String("target", target),
	)

	finalJob, err := o.execute(ctx, job, target)
	if err != nil {
		metrics.ObserveRun(string(kind), "failed")
		return finalJob, err
	}
	metrics.ObserveRun(string(kind), "completed")
	return finalJob, nil
}

func (o *Orchestrator) execute(ctx context.Context, job munireg.Job, target string) (munireg.Job, error) {
	candidates, err := o.resolveCandidates(ctx, target)
	if err != nil {
		return o.fail(ctx, job, err)
	}
	job.Counters.Considered = len(candidates)

	targeted := target != ""
	pending := o.applySkipWindow(ctx, job, candidates, targeted)
	if len(pending) == 0 {
		return o.complete(ctx, job)
	}

	var processed int
	queue, err := o.firstPass(ctx, &job, pending, targeted, &processed)
	if err != nil {
		return o.fail(ctx, job, err)
	}

	if len(queue) >= o.cfg.ErrorThreshold && len(queue) > 0 {
		queue, err = o.retryRounds(ctx, &job, queue, &processed)
		if err != nil {
			return o.fail(ctx, job, err)
		}
	}

	if len(queue) > 0 {
		o.logger.Warn("countries still failing after all retry rounds",
			zap.String("job_id", job.ID),
			zap.Int("count", len(queue)),
		)
	}
	return o.complete(ctx, job)
}

func (o *Orchestrator) resolveCandidates(ctx context.Context, target string) ([]munireg.Country, error) {
	if target != "" {
		rec, err := o.records.FindByCode(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("resolve target %q: %w", target, err)
		}
		return []munireg.Country{rec}, nil
	}
	all, err := o.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return all, nil
}

// applySkipWindow logs a skip entry for every country updated within the
// window. Targeted runs never skip.
func (o *Orchestrator) applySkipWindow(ctx context.Context, job munireg.Job, candidates []munireg.Country, targeted bool) []munireg.Country {
	if targeted || o.cfg.SkipWindow <= 0 {
		return candidates
	}
	now := o.clock.Now()
	pending := make([]munireg.Country, 0, len(candidates))
	for _, c := range candidates {
		if c.LastUpdated != nil && now.Sub(*c.LastUpdated) < o.cfg.SkipWindow {
			o.appendLog(ctx, munireg.RunLogEntry{
				JobID:     job.ID,
				Code:      c.Code,
				Name:      c.Name,
				Outcome:   munireg.OutcomeSkipped,
				ErrorText: skipReason,
				Attempt:   0,
				At:        now,
			})
			metrics.ObserveCountry(string(munireg.OutcomeSkipped))
			continue
		}
		pending = append(pending, c)
	}
	return pending
}

func (o *Orchestrator) firstPass(
	ctx context.Context,
	job *munireg.Job,
	pending []munireg.Country,
	targeted bool,
	processed *int,
) ([]retryItem, error) {
	var queue []retryItem
	batches := partition(pending, o.cfg.BatchSize)
	for bi, batch := range batches {
		for i, c := range batch {
			if ok := o.processOne(ctx, job.ID, c.Code, c.Name, 1); !ok {
				queue = append(queue, retryItem{code: c.Code, name: c.Name})
			}
			*processed++
			o.maybeCheckpoint(ctx, job, *processed)
			if !targeted && i < len(batch)-1 {
				if err := o.pacer.BetweenCalls(ctx); err != nil {
					return nil, err
				}
			}
		}
		if !targeted && bi < len(batches)-1 {
			if err := o.pacer.BetweenBatches(ctx); err != nil {
				return nil, err
			}
		}
	}
	return queue, nil
}

// retryRounds reprocesses the failure queue for up to MaxRetries-1 extra
// rounds, stopping early once the queue drains.
func (o *Orchestrator) retryRounds(
	ctx context.Context,
	job *munireg.Job,
	queue []retryItem,
	processed *int,
) ([]retryItem, error) {
	o.logger.Warn("failure threshold reached, scheduling retry rounds",
		zap.String("job_id", job.ID),
		zap.Int("failed", len(queue)),
	)
	if err := o.pacer.RetryCooldown(ctx); err != nil {
		return queue, err
	}
	for round := 2; round <= o.cfg.MaxRetries && len(queue) > 0; round++ {
		metrics.ObserveRetryRound()
		var still []retryItem
		for i, item := range queue {
			if ok := o.processOne(ctx, job.ID, item.code, item.name, round); !ok {
				still = append(still, item)
			}
			*processed++
			o.maybeCheckpoint(ctx, job, *processed)
			if i < len(queue)-1 {
				if err := o.pacer.BetweenCalls(ctx); err != nil {
					return still, err
				}
			}
		}
		queue = still
	}
	return queue, nil
}

// processOne runs the generate+merge pipeline for one country and records
// the attempt. Failures are contained here; they only feed the retry queue.
func (o *Orchestrator) processOne(ctx context.Context, jobID, code, name string, attempt int) bool {
	start := o.clock.Now()
	summary, err := o.generator.Generate(ctx, name, code)
	metrics.ObserveGenerateDuration(o.clock.Now().Sub(start))

	var saved munireg.Country
	if err == nil {
		saved, err = o.records.SaveSummary(ctx, code, name, summary, o.clock.Now())
	}

	entry := munireg.RunLogEntry{
		JobID:    jobID,
		Code:     code,
		Name:     name,
		Outcome:  munireg.OutcomeSuccess,
		Duration: o.clock.Now().Sub(start),
		Attempt:  attempt,
		At:       o.clock.Now(),
	}
	if err != nil {
		entry.Outcome = munireg.OutcomeFailed
		entry.ErrorText = err.Error()
		o.logger.Warn("country refresh failed",
			zap.String("job_id", jobID),
			zap.String("code", code),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	o.appendLog(ctx, entry)
	metrics.ObserveCountry(string(entry.Outcome))

	if err != nil {
		return false
	}
	o.afterSuccess(ctx, jobID, saved)
	return true
}

// afterSuccess publishes and archives the merged record. Both are
// best-effort; a failure here never counts against the country.
func (o *Orchestrator) afterSuccess(ctx context.Context, jobID string, rec munireg.Country) {
	payload, err := json.Marshal(rec)
	if err != nil {
		o.logger.Error("marshal merged record", zap.String("code", rec.Code), zap.Error(err))
		return
	}
	if o.publisher != nil && o.cfg.Topic != "" {
		event := map[string]any{
			"job_id":     jobID,
			"code":       rec.Code,
			"version":    rec.Version,
			"updated_at": rec.LastUpdated,
		}
		if _, err := o.publisher.Publish(ctx, o.cfg.Topic, event); err != nil {
			o.logger.Warn("publish record-updated event failed",
				zap.String("code", rec.Code), zap.Error(err))
		}
	}
	if o.blobs != nil && o.cfg.ArchivePrefix != "" {
		path := fmt.Sprintf("%s/%s/%s.json", o.cfg.ArchivePrefix, jobID, rec.Code)
		if _, err := o.blobs.PutObject(ctx, path, o.cfg.ArchiveContentType, bytes.NewReader(payload)); err != nil {
			o.logger.Warn("archive merged record failed",
				zap.String("code", rec.Code), zap.Error(err))
		}
	}
}

func (o *Orchestrator) appendLog(ctx context.Context, entry munireg.RunLogEntry) {
	if err := o.runLog.Append(ctx, entry); err != nil {
		o.logger.Error("append run log entry failed",
			zap.String("job_id", entry.JobID),
			zap.String("code", entry.Code),
			zap.Error(err),
		)
	}
}

// maybeCheckpoint persists counters every SaveEvery processed-or-failed
// countries. Counters are recomputed from run-log rows so a lost checkpoint
// never causes drift.
func (o *Orchestrator) maybeCheckpoint(ctx context.Context, job *munireg.Job, processed int) {
	if processed%o.cfg.SaveEvery != 0 {
		return
	}
	o.refreshCounters(ctx, job)
	if err := o.jobs.UpdateCounters(ctx, job.ID, job.Counters); err != nil {
		o.logger.Error("checkpoint job counters failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (o *Orchestrator) refreshCounters(ctx context.Context, job *munireg.Job) {
	counts, err := o.runLog.CountOutcomes(ctx, job.ID)
	if err != nil {
		o.logger.Error("count run log outcomes failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	considered := job.Counters.Considered
	job.Counters = counts
	job.Counters.Considered = considered
}

func (o *Orchestrator) complete(ctx context.Context, job munireg.Job) (munireg.Job, error) {
	o.refreshCounters(ctx, &job)
	now := o.clock.Now()
	if err := o.jobs.Finish(ctx, job.ID, munireg.JobStatusCompleted, "", job.Counters, now); err != nil {
		return job, fmt.Errorf("finalize job: %w", err)
	}
	job.Status = munireg.JobStatusCompleted
	job.Finished = &now
	o.logger.Info("refresh job completed",
		zap.String("job_id", job.ID),
		zap.Int("considered", job.Counters.Considered),
		zap.Int("updated", job.Counters.Updated),
		zap.Int("failed", job.Counters.Failed),
		zap.Int("skipped", job.Counters.Skipped),
	)
	return job, nil
}

// fail marks the job failed and re-raises the error to the caller.
func (o *Orchestrator) fail(ctx context.Context, job munireg.Job, cause error) (munireg.Job, error) {
	o.refreshCounters(ctx, &job)
	now := o.clock.Now()
	if err := o.jobs.Finish(ctx, job.ID, munireg.JobStatusFailed, cause.Error(), job.Counters, now); err != nil {
		o.logger.Error("persist failed job failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	job.Status = munireg.JobStatusFailed
	job.ErrorText = cause.Error()
	job.Finished = &now
	o.logger.Error("refresh job failed", zap.String("job_id", job.ID), zap.Error(cause))
	return job, cause
}

func partition(items []munireg.Country, size int) [][]munireg.Country {
	if len(items) == 0 {
		return nil
	}
	var out [][]munireg.Country
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
