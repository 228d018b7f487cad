// Package commands implements the CLI subcommands for the clearsky binary.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearsky-systems/clearsky/internal/alert"
	"github.com/clearsky-systems/clearsky/internal/anchor"
	"github.com/clearsky-systems/clearsky/internal/config"
	"github.com/clearsky-systems/clearsky/internal/device"
	"github.com/clearsky-systems/clearsky/internal/narrative"
	"github.com/clearsky-systems/clearsky/internal/scheduler"
	"github.com/clearsky-systems/clearsky/internal/stage"
	"github.com/clearsky-systems/clearsky/internal/store"
	ddbstore "github.com/clearsky-systems/clearsky/internal/store/dynamodb"
	"github.com/clearsky-systems/clearsky/internal/store/memory"
	mongostore "github.com/clearsky-systems/clearsky/internal/store/mongo"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// newStore creates the configured storage backend.
func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Provider {
	case "memory":
		return memory.New(), nil
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		return ddbstore.New(cfg.DynamoDB)
	case "mongo":
		if cfg.Mongo == nil {
			return nil, fmt.Errorf("mongo config is required when provider is mongo")
		}
		return mongostore.New(cfg.Mongo), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// buildDeps wires the shared stage dependencies from configuration. The
// returned cleanup stops the store connection.
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stage.Deps, func(), error) {
	st, err := newStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating store: %w", err)
	}
	if err := st.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("connecting to store: %w", err)
	}
	cleanup := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = st.Stop(stopCtx)
	}

	registry := device.NewFileRegistry()
	if err := registry.LoadDir(cfg.DeviceDir); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("loading devices from %s: %w", cfg.DeviceDir, err)
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	pinner := anchor.NewHTTPPinner(cfg.Anchor.Endpoint, cfg.Anchor.APIKey)
	narrator := narrative.NewOpenAIClient(narrative.OpenAIConfig{
		BaseURL:     cfg.Narrative.Endpoint,
		APIKey:      cfg.Narrative.APIKey,
		Model:       cfg.Narrative.Model,
		Temperature: cfg.Narrative.Temperature,
		MaxTokens:   cfg.Narrative.MaxTokens,
		MaxRetries:  cfg.RetryPolicy.MaxAttempts,
	}, logger)

	deps := &stage.Deps{
		Store:    st,
		Registry: registry,
		Pinner:   pinner,
		Narrator: narrator,
		AlertFn:  dispatcher.AlertFunc(),
		Logger:   logger,
	}
	return deps, cleanup, nil
}

// stageJobs builds the scheduled pipeline stages in lifecycle order.
func stageJobs(cfg *config.Config, deps *stage.Deps) []scheduler.Job {
	s := cfg.Stages
	return []scheduler.Job{
		{Stage: stage.NewPromoter(deps, s.Promote.Limit), Schedule: s.Promote.Schedule},
		{Stage: stage.NewVerifier(deps, s.Verify.Limit, s.Verify.MaxRetries, s.Verify.Pacing()), Schedule: s.Verify.Schedule},
		{Stage: stage.NewDailyDeriver(deps, s.DeriveDaily.Limit, retryPolicy(cfg, s.DeriveDaily), s.DeriveDaily.Pacing()), Schedule: s.DeriveDaily.Schedule},
		{Stage: stage.NewMonthlyDeriver(deps, retryPolicy(cfg, s.DeriveMonthly)), Schedule: s.DeriveMonthly.Schedule},
	}
}

// retryPolicy derives the per-stage generation retry policy, keeping the
// global policy's backoff shape.
func retryPolicy(cfg *config.Config, sc config.StageConfig) types.RetryPolicy {
	p := cfg.RetryPolicy
	if sc.MaxRetries > 0 {
		p.MaxAttempts = sc.MaxRetries
	}
	return p
}
