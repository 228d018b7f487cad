package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/internal/config"
	"github.com/clearsky-systems/clearsky/internal/device"
	"github.com/clearsky-systems/clearsky/internal/stage"
	"github.com/clearsky-systems/clearsky/internal/store/memory"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

func TestNewStoreMemory(t *testing.T) {
	st, err := newStore(&config.Config{Provider: "memory"})
	require.NoError(t, err)
	assert.NotNil(t, st)
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := newStore(&config.Config{Provider: "etcd"})
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestNewStoreMissingBackendConfig(t *testing.T) {
	_, err := newStore(&config.Config{Provider: "dynamodb"})
	assert.ErrorContains(t, err, "dynamodb config is required")

	_, err = newStore(&config.Config{Provider: "mongo"})
	assert.ErrorContains(t, err, "mongo config is required")
}

func TestInitScaffoldLoads(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "airproj")
	require.NoError(t, runInit(dir))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Provider)
	assert.Equal(t, "*/5 * * * *", cfg.Stages.Promote.Schedule)
	require.Len(t, cfg.Alerts, 1)
	assert.Equal(t, types.AlertConsole, cfg.Alerts[0].Type)

	reg := device.NewFileRegistry()
	require.NoError(t, reg.LoadDir(filepath.Join(dir, "devices")))
	dev, err := reg.GetDevice(context.Background(), "dev-001")
	require.NoError(t, err)
	assert.Equal(t, types.DeviceActive, dev.Status)
	assert.Contains(t, dev.SensorTypes, types.SensorPM25)
}

func TestStageJobsCoverPipeline(t *testing.T) {
	cfg := &config.Config{
		Stages: config.StagesConfig{
			Promote:       config.StageConfig{Schedule: "*/5 * * * *"},
			Verify:        config.StageConfig{Schedule: "*/10 * * * *", Limit: 50, MaxRetries: 3},
			DeriveDaily:   config.StageConfig{Schedule: "30 2 * * *", Limit: 500, MaxRetries: 3},
			DeriveMonthly: config.StageConfig{Schedule: "0 4 1 * *", MaxRetries: 3},
		},
		RetryPolicy: types.RetryPolicy{MaxAttempts: 3, BackoffSeconds: 5, BackoffMultiplier: 2.0},
	}
	deps := &stage.Deps{Store: memory.New()}

	jobs := stageJobs(cfg, deps)
	require.Len(t, jobs, 4)

	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Stage.Name())
	}
	assert.Equal(t, []string{"promote", "verify", "derive_daily", "derive_monthly"}, names)
}

func TestRetryPolicyStageOverride(t *testing.T) {
	cfg := &config.Config{RetryPolicy: types.RetryPolicy{MaxAttempts: 3, BackoffSeconds: 5, BackoffMultiplier: 2.0}}

	p := retryPolicy(cfg, config.StageConfig{MaxRetries: 5})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 5, p.BackoffSeconds)

	p = retryPolicy(cfg, config.StageConfig{})
	assert.Equal(t, 3, p.MaxAttempts)
}
