package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clearsky-systems/clearsky/internal/config"
	"github.com/clearsky-systems/clearsky/internal/stage"
)

const runStageTimeout = 30 * time.Minute

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [stage-name]",
		Short: "Execute a single pipeline stage once",
		Long:  "Runs one stage (promote, verify, derive_daily, derive_monthly) under its coordination lock and exits.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(args[0])
		},
	}
}

func runStage(name string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	ctx, cancel := context.WithTimeout(context.Background(), runStageTimeout)
	defer cancel()

	deps, cleanup, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var target stage.Stage
	for _, job := range stageJobs(cfg, deps) {
		if job.Stage.Name() == name {
			target = job.Stage
			break
		}
	}
	if target == nil {
		return fmt.Errorf("unknown stage %q (expected promote, verify, derive_daily or derive_monthly)", name)
	}

	lockKey := "stage:" + target.Name()
	ok, err := deps.Store.AcquireLock(ctx, lockKey, cfg.LockTTL())
	if err != nil {
		return fmt.Errorf("acquiring stage lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("stage %s is already running elsewhere", name)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = deps.Store.ReleaseLock(releaseCtx, lockKey)
	}()

	color.Cyan("Running stage %s...", name)
	start := time.Now()
	if err := target.Run(ctx); err != nil {
		color.Red("Stage %s failed after %s: %v", name, time.Since(start).Round(time.Millisecond), err)
		return err
	}
	color.Green("Stage %s completed in %s", name, time.Since(start).Round(time.Millisecond))
	return nil
}
