// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/regwatch/munireg/internal/munireg"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Generator    GeneratorConfig    `mapstructure:"generator"`
	DB           DBConfig           `mapstructure:"db"`
	Storage      StorageConfig      `mapstructure:"storage"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	Sources      SourcesConfig      `mapstructure:"sources"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// OrchestratorConfig governs batch refresh behavior.
type OrchestratorConfig struct {
	BatchSize           int           `mapstructure:"batch_size"`
	SkipWindow          time.Duration `mapstructure:"skip_window"`
	DelayBetweenCalls   time.Duration `mapstructure:"delay_between_calls"`
	DelayBetweenBatches time.Duration `mapstructure:"delay_between_batches"`
	ErrorThreshold      int           `mapstructure:"error_threshold"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	SaveEvery           int           `mapstructure:"save_every"`
	PacingPolicy        string        `mapstructure:"pacing_policy"`
	PacingJitter        time.Duration `mapstructure:"pacing_jitter"`
}

// ScheduleConfig controls the automatic refresh trigger.
type ScheduleConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Anchor is the first-run timestamp (RFC 3339).
	Anchor string `mapstructure:"anchor"`
	// CycleDays is the fixed cycle length between automatic runs.
	CycleDays int `mapstructure:"cycle_days"`
	// Interval is the simple recurring mode ("<N>d", "<N>h", "<N>m"); when
	// set it overrides the anchor/cycle arithmetic.
	Interval      string        `mapstructure:"interval"`
	Tolerance     time.Duration `mapstructure:"tolerance"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// GeneratorConfig configures the web-grounded summary endpoint client.
type GeneratorConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	APIKey           string `mapstructure:"api_key"`
	Model            string `mapstructure:"model"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StorageConfig sets paths and providers for archive persistence.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SourcesConfig lists regulator pages watched for content changes.
type SourcesConfig struct {
	UserAgent      string           `mapstructure:"user_agent"`
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
	Pages          []munireg.Source `mapstructure:"pages"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MUNIREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("orchestrator.batch_size", 20)
	v.SetDefault("orchestrator.skip_window", "24h")
	v.SetDefault("orchestrator.delay_between_calls", "60s")
	v.SetDefault("orchestrator.delay_between_batches", "120s")
	v.SetDefault("orchestrator.error_threshold", 5)
	v.SetDefault("orchestrator.max_retries", 3)
	v.SetDefault("orchestrator.retry_delay", "30m")
	v.SetDefault("orchestrator.save_every", 5)
	v.SetDefault("orchestrator.pacing_policy", "fixed")
	v.SetDefault("orchestrator.pacing_jitter", "0s")
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cycle_days", 14)
	v.SetDefault("schedule.tolerance", "1h")
	v.SetDefault("schedule.check_interval", "1h")
	v.SetDefault("generator.model", "web-grounded-default")
	v.SetDefault("generator.timeout_seconds", 120)
	v.SetDefault("generator.max_retries", 2)
	v.SetDefault("generator.backoff_initial_ms", 500)
	v.SetDefault("generator.backoff_max_ms", 10000)
	v.SetDefault("storage.provider", "noop")
	v.SetDefault("storage.prefix", "summaries")
	v.SetDefault("storage.content_type", "application/json")
	v.SetDefault("sources.user_agent", "munireg-source-watch/1.0")
	v.SetDefault("sources.timeout_seconds", 20)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Orchestrator.BatchSize <= 0 {
		return fmt.Errorf("orchestrator.batch_size must be > 0")
	}
	if c.Orchestrator.MaxRetries < 1 {
		return fmt.Errorf("orchestrator.max_retries must be >= 1")
	}
	if c.Orchestrator.SaveEvery <= 0 {
		return fmt.Errorf("orchestrator.save_every must be > 0")
	}
	switch c.Orchestrator.PacingPolicy {
	case "fixed", "token_bucket":
	default:
		return fmt.Errorf("orchestrator.pacing_policy must be fixed or token_bucket")
	}
	if c.Schedule.Enabled && c.Schedule.Interval == "" {
		if _, err := c.Schedule.AnchorTime(); err != nil {
			return err
		}
		if c.Schedule.CycleDays <= 0 {
			return fmt.Errorf("schedule.cycle_days must be > 0")
		}
	}
	if c.Generator.TimeoutSeconds <= 0 {
		return fmt.Errorf("generator.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.Storage.Provider == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set when storage.provider is local")
	}
	return nil
}

// AnchorTime parses the configured schedule anchor.
func (s ScheduleConfig) AnchorTime() (time.Time, error) {
	if s.Anchor == "" {
		return time.Time{}, fmt.Errorf("schedule.anchor is required")
	}
	t, err := time.Parse(time.RFC3339, s.Anchor)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule.anchor: %w", err)
	}
	return t.UTC(), nil
}

// GeneratorTimeout converts the generator timeout config into a duration.
func (c Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}
