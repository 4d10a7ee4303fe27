// Package app initializes and holds long-lived application services, acting
// as the composition root for the refresh service.
package app

import (
	"context"
	"fmt"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/regwatch/munireg/internal/api"
	"github.com/regwatch/munireg/internal/clock/system"
	"github.com/regwatch/munireg/internal/config"
	"github.com/regwatch/munireg/internal/generator"
	"github.com/regwatch/munireg/internal/hash/sha256"
	"github.com/regwatch/munireg/internal/id/uuid"
	"github.com/regwatch/munireg/internal/logging"
	"github.com/regwatch/munireg/internal/munireg"
	"github.com/regwatch/munireg/internal/orchestrator"
	"github.com/regwatch/munireg/internal/pacing"
	pubmemory "github.com/regwatch/munireg/internal/publisher/memory"
	pubgcp "github.com/regwatch/munireg/internal/publisher/pubsub"
	"github.com/regwatch/munireg/internal/scheduler"
	"github.com/regwatch/munireg/internal/sources"
	"github.com/regwatch/munireg/internal/storage/gcs"
	"github.com/regwatch/munireg/internal/storage/local"
	"github.com/regwatch/munireg/internal/storage/memory"
	"github.com/regwatch/munireg/internal/storage/postgres"
)

// App holds the shared, long-lived services. Built once at startup and
// handed to the commands that need it.
type App struct {
	Cfg     config.Config
	Logger  *zap.Logger
	Records munireg.RecordStore
	Jobs    munireg.JobStore
	RunLog  munireg.RunLogStore
	Digests munireg.DigestStore
	Blobs   munireg.BlobStore

	Orchestrator *orchestrator.Orchestrator
	Trigger      *scheduler.Trigger
	Watcher      *sources.Watcher
	Server       *api.Server

	pool *pgxpool.Pool
}

// New builds the service graph from configuration. It fails fast when any
// hard dependency cannot be initialized.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	a := &App{Cfg: cfg, Logger: logger}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	blobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Blobs = blobs

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	clk := system.New()
	gen := generator.New(generator.Config{
		Endpoint:       cfg.Generator.Endpoint,
		APIKey:         cfg.Generator.APIKey,
		Model:          cfg.Generator.Model,
		Timeout:        cfg.GeneratorTimeout(),
		MaxRetries:     cfg.Generator.MaxRetries,
		BackoffInitial: time.Duration(cfg.Generator.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.Generator.BackoffMaxMs) * time.Millisecond,
	}, logger)

	a.Orchestrator = orchestrator.New(
		a.Records, a.Jobs, a.RunLog, gen, publisher, a.Blobs,
		buildPacer(cfg.Orchestrator), clk, uuid.NewUUIDGenerator(),
		orchestrator.Config{
			BatchSize:          cfg.Orchestrator.BatchSize,
			SkipWindow:         cfg.Orchestrator.SkipWindow,
			ErrorThreshold:     cfg.Orchestrator.ErrorThreshold,
			MaxRetries:         cfg.Orchestrator.MaxRetries,
			SaveEvery:          cfg.Orchestrator.SaveEvery,
			Topic:              cfg.PubSub.TopicName,
			ArchivePrefix:      cfg.Storage.Prefix,
			ArchiveContentType: cfg.Storage.ContentType,
		},
		logger,
	)

	if cfg.Schedule.Enabled {
		trigger, err := buildTrigger(cfg.Schedule, a.Orchestrator, clk, logger)
		if err != nil {
			return nil, err
		}
		a.Trigger = trigger
	}

	if len(cfg.Sources.Pages) > 0 {
		fetcher := sources.NewFetcher(sources.FetcherConfig{
			UserAgent: cfg.Sources.UserAgent,
			Timeout:   time.Duration(cfg.Sources.TimeoutSeconds) * time.Second,
		})
		a.Watcher = sources.NewWatcher(fetcher, sha256.New(), a.Digests, a.Blobs, clk, "sources", logger)
	}

	a.Server = api.NewServer(a.Records, a.Jobs, a.RunLog, a.Orchestrator, a.Trigger, api.Config{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
	}, logger)

	logger.Info("application services initialized",
		zap.Bool("postgres", a.pool != nil),
		zap.String("storage_provider", cfg.Storage.Provider),
		zap.Bool("schedule_enabled", cfg.Schedule.Enabled),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	if a.Cfg.DB.DSN == "" {
		a.Logger.Info("no database configured, using in-memory stores")
		a.Records = memory.NewRecordStore()
		a.Jobs = memory.NewJobStore()
		a.RunLog = memory.NewRunLogStore()
		a.Digests = memory.NewDigestStore()
		return nil
	}

	pool, err := postgres.Connect(ctx, postgres.PoolConfig{
		DSN:      a.Cfg.DB.DSN,
		MaxConns: a.Cfg.DB.MaxConns,
		MinConns: a.Cfg.DB.MinConns,
	})
	if err != nil {
		return err
	}
	a.pool = pool

	if a.Records, err = postgres.NewRecordStore(pool); err != nil {
		return err
	}
	if a.Jobs, err = postgres.NewJobStore(pool); err != nil {
		return err
	}
	if a.RunLog, err = postgres.NewRunLogStore(pool); err != nil {
		return err
	}
	if a.Digests, err = postgres.NewDigestStore(pool); err != nil {
		return err
	}
	return nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (munireg.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	case "noop":
		logger.Info("no archive storage configured, summaries are not archived")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (munireg.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("no pubsub configured, record-updated events stay in memory")
		return pubmemory.New(), nil
	}
	return pubgcp.NewFromProject(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
}

func buildPacer(cfg config.OrchestratorConfig) munireg.Pacer {
	switch cfg.PacingPolicy {
	case "token_bucket":
		return pacing.NewTokenBucket(cfg.DelayBetweenCalls, cfg.DelayBetweenBatches, cfg.RetryDelay, cfg.BatchSize)
	default:
		return pacing.NewFixed(cfg.DelayBetweenCalls, cfg.DelayBetweenBatches, cfg.RetryDelay, cfg.PacingJitter)
	}
}

func buildTrigger(cfg config.ScheduleConfig, runner scheduler.Runner, clk munireg.Clock, logger *zap.Logger) (*scheduler.Trigger, error) {
	var anchor time.Time
	if cfg.Interval == "" {
		parsed, err := cfg.AnchorTime()
		if err != nil {
			return nil, err
		}
		anchor = parsed
	}
	triggerCfg, err := scheduler.FromSchedule(
		anchor, cfg.CycleDays, cfg.Interval,
		cfg.Tolerance, cfg.CheckInterval, logger,
	)
	if err != nil {
		return nil, err
	}
	return scheduler.New(runner, clk, triggerCfg, logger), nil
}

// Close gracefully shuts down the shared services.
func (a *App) Close() {
	if a.Trigger != nil {
		a.Trigger.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
