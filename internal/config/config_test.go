package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 20, cfg.Orchestrator.BatchSize)
	require.Equal(t, 24*time.Hour, cfg.Orchestrator.SkipWindow)
	require.Equal(t, 60*time.Second, cfg.Orchestrator.DelayBetweenCalls)
	require.Equal(t, 120*time.Second, cfg.Orchestrator.DelayBetweenBatches)
	require.Equal(t, 5, cfg.Orchestrator.ErrorThreshold)
	require.Equal(t, 3, cfg.Orchestrator.MaxRetries)
	require.Equal(t, 30*time.Minute, cfg.Orchestrator.RetryDelay)
	require.Equal(t, 5, cfg.Orchestrator.SaveEvery)
	require.Equal(t, "fixed", cfg.Orchestrator.PacingPolicy)
	require.Equal(t, time.Hour, cfg.Schedule.Tolerance)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
server:
  port: 9090
orchestrator:
  batch_size: 5
  skip_window: 240h
schedule:
  enabled: true
  anchor: "2025-01-06T03:00:00Z"
  cycle_days: 14
sources:
  pages:
    - code: FR
      url: https://regulator.example.fr/munitions
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 5, cfg.Orchestrator.BatchSize)
	require.Equal(t, 240*time.Hour, cfg.Orchestrator.SkipWindow)

	anchor, err := cfg.Schedule.AnchorTime()
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 6, 3, 0, 0, 0, time.UTC), anchor)

	require.Len(t, cfg.Sources.Pages, 1)
	require.Equal(t, "FR", cfg.Sources.Pages[0].Code)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Orchestrator.BatchSize = 0
	require.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Orchestrator.PacingPolicy = "adaptive"
	require.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Auth.Enabled = true
	require.Error(t, cfg.Validate())

	cfg, _ = Load("")
	cfg.Schedule.Enabled = true
	cfg.Schedule.Anchor = "not-a-time"
	require.Error(t, cfg.Validate())
}
