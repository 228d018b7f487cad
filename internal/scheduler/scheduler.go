// Package scheduler runs pipeline stages on per-stage cron schedules.
// Every tick claims a store-level lock first, so concurrent scheduler
// instances never double-run a stage.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clearsky-systems/clearsky/internal/stage"
	"github.com/clearsky-systems/clearsky/internal/store"
)

const defaultLockTTL = 10 * time.Minute

// Job binds a stage to its cron schedule.
type Job struct {
	Stage    stage.Stage
	Schedule string
}

// Scheduler owns the cron runtime and stage coordination locks.
type Scheduler struct {
	store   store.Store
	jobs    []Job
	log     *slog.Logger
	lockTTL time.Duration

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the job schedules and builds a scheduler.
func New(st store.Store, jobs []Job, lockTTL time.Duration, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, j := range jobs {
		if _, err := parser.Parse(j.Schedule); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for stage %s: %w", j.Schedule, j.Stage.Name(), err)
		}
	}
	return &Scheduler{
		store:   st,
		jobs:    jobs,
		log:     log.With("component", "scheduler"),
		lockTTL: lockTTL,
	}, nil
}

// Start registers all jobs and begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()

	for _, job := range s.jobs {
		job := job
		_, err := s.cron.AddFunc(job.Schedule, func() {
			s.wg.Add(1)
			defer s.wg.Done()
			s.RunStage(ctx, job.Stage)
		})
		if err != nil {
			return fmt.Errorf("registering stage %s: %w", job.Stage.Name(), err)
		}
		s.log.Info("stage scheduled", "stage", job.Stage.Name(), "schedule", job.Schedule)
	}

	s.cron.Start()
	return nil
}

// RunStage executes one stage run under its coordination lock. A held lock
// means another instance is already running the stage; that is not an error.
func (s *Scheduler) RunStage(ctx context.Context, st stage.Stage) {
	if ctx.Err() != nil {
		return
	}
	key := "stage:" + st.Name()

	ok, err := s.store.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		s.log.Error("acquiring stage lock failed", "stage", st.Name(), "error", err)
		return
	}
	if !ok {
		s.log.Debug("stage lock held elsewhere, skipping tick", "stage", st.Name())
		return
	}
	defer func() {
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			s.log.Error("releasing stage lock failed", "stage", st.Name(), "error", err)
		}
	}()

	start := time.Now()
	if err := st.Run(ctx); err != nil {
		s.log.Error("stage run failed", "stage", st.Name(), "error", err)
		return
	}
	s.log.Debug("stage run complete", "stage", st.Name(), "duration", time.Since(start).String())
}

// Stop halts ticking and drains in-flight runs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}
