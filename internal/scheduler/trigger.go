// Package scheduler fires automatic refresh runs on a fixed cycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/munireg/internal/munireg"
)

// Runner starts one refresh job. Satisfied by the orchestrator.
type Runner interface {
	Run(ctx context.Context, kind munireg.RunKind, actorID, target string) (munireg.Job, error)
}

// Config controls the trigger cadence. Interval, when non-zero, replaces the
// anchor/cycle arithmetic with a simple recurring timer.
type Config struct {
	Anchor        time.Time
	Cycle         time.Duration
	Interval      time.Duration
	Tolerance     time.Duration
	CheckInterval time.Duration
}

// Status is a point-in-time view of the trigger.
type Status struct {
	Enabled   bool       `json:"enabled"`
	NextRun   time.Time  `json:"next_run"`
	LastFired *time.Time `json:"last_fired,omitempty"`
	LastJobID string     `json:"last_job_id,omitempty"`
}

// Trigger periodically checks whether a scheduled run is due and starts one.
// A held running-job slot is not an error; the due tick is simply skipped and
// retried on the next check.
type Trigger struct {
	runner Runner
	clock  munireg.Clock
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	lastTick  time.Time
	lastFired *time.Time
	lastJobID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Trigger. It does nothing until Start is called.
func New(runner Runner, clock munireg.Clock, cfg Config, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = time.Hour
	}
	if cfg.Interval <= 0 && cfg.Cycle <= 0 {
		cfg.Cycle = 14 * 24 * time.Hour
	}
	return &Trigger{
		runner: runner,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Start launches the background check loop. Calling Start twice is a no-op.
func (t *Trigger) Start(ctx context.Context) {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	lastFired := t.lastFired
	t.mu.Unlock()

	go t.loop(ctx)
	t.logger.Info("schedule trigger started",
		zap.Time("next_run", t.nextTick(t.clock.Now(), lastFired)),
		zap.Duration("check_interval", t.cfg.CheckInterval),
	)
}

// Stop halts the loop and waits for it to exit.
func (t *Trigger) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Status reports the next due run and the last fired one.
func (t *Trigger) Status() Status {
	t.mu.Lock()
	lastFired, lastJobID := t.lastFired, t.lastJobID
	t.mu.Unlock()
	return Status{
		Enabled:   true,
		NextRun:   t.nextTick(t.clock.Now(), lastFired),
		LastFired: lastFired,
		LastJobID: lastJobID,
	}
}

func (t *Trigger) loop(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.cfg.CheckInterval)
	defer ticker.Stop()
	t.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Check(ctx)
		}
	}
}

// Check fires a scheduled run when the current time falls inside the
// tolerance window of a due tick. Exported so tests and the CLI can drive
// the trigger without the background loop.
func (t *Trigger) Check(ctx context.Context) {
	now := t.clock.Now()
	t.mu.Lock()
	lastFired := t.lastFired
	t.mu.Unlock()
	tick := t.nextTick(now, lastFired)
	if tick.After(now) || now.Sub(tick) > t.cfg.Tolerance {
		return
	}
	t.mu.Lock()
	if tick.Equal(t.lastTick) {
		t.mu.Unlock()
		return
	}
	t.lastTick = tick
	t.mu.Unlock()

	job, err := t.runner.Run(ctx, munireg.RunKindScheduled, "scheduler", "")
	if err != nil {
		if errors.Is(err, munireg.ErrRunActive) {
			t.logger.Info("scheduled run skipped, another job is active",
				zap.Time("tick", tick))
			// Allow a later check inside the same window to try again.
			t.mu.Lock()
			t.lastTick = time.Time{}
			t.mu.Unlock()
			return
		}
		t.logger.Error("scheduled run failed", zap.Time("tick", tick), zap.Error(err))
	}

	fired := now
	t.mu.Lock()
	t.lastFired = &fired
	t.lastJobID = job.ID
	t.mu.Unlock()
}

// nextTick computes the next due instant: the first anchor+n*cycle at or
// after now, except when now is still inside the tolerance window of the
// previous tick.
func (t *Trigger) nextTick(now time.Time, lastFired *time.Time) time.Time {
	if t.cfg.Interval > 0 {
		if lastFired == nil {
			return now
		}
		return lastFired.Add(t.cfg.Interval)
	}
	if !now.After(t.cfg.Anchor) {
		return t.cfg.Anchor
	}
	elapsed := now.Sub(t.cfg.Anchor)
	n := elapsed / t.cfg.Cycle
	tick := t.cfg.Anchor.Add(n * t.cfg.Cycle)
	if now.Sub(tick) <= t.cfg.Tolerance {
		return tick
	}
	return t.cfg.Anchor.Add((n + 1) * t.cfg.Cycle)
}

// ParseInterval reads simple recurring intervals of the form "14d", "12h" or
// "30m". Unknown input falls back to the given default.
func ParseInterval(s string, fallback time.Duration, logger *zap.Logger) time.Duration {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return fallback
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		if logger != nil {
			logger.Warn("invalid schedule interval, using fallback",
				zap.String("interval", s), zap.Duration("fallback", fallback))
		}
		return fallback
	}
	switch unit {
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	case 'h':
		return time.Duration(n) * time.Hour
	case 'm':
		return time.Duration(n) * time.Minute
	}
	if logger != nil {
		logger.Warn("invalid schedule interval unit, using fallback",
			zap.String("interval", s), zap.Duration("fallback", fallback))
	}
	return fallback
}

// FromSchedule converts loaded schedule settings into a trigger Config.
func FromSchedule(anchor time.Time, cycleDays int, interval string, tolerance, checkInterval time.Duration, logger *zap.Logger) (Config, error) {
	cfg := Config{
		Anchor:        anchor,
		Tolerance:     tolerance,
		CheckInterval: checkInterval,
	}
	if interval != "" {
		cfg.Interval = ParseInterval(interval, 14*24*time.Hour, logger)
		return cfg, nil
	}
	if cycleDays <= 0 {
		return Config{}, fmt.Errorf("schedule cycle must be positive, got %d days", cycleDays)
	}
	cfg.Cycle = time.Duration(cycleDays) * 24 * time.Hour
	return cfg, nil
}
