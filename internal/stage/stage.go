// Package stage implements the pipeline stages that move readings through
// their lifecycle: ingest, promote, verify, derive daily, derive monthly.
// Stages communicate only through status fields on stored documents; each
// stage consumes one status and writes the next.
package stage

import (
	"context"
	"log/slog"
	"time"

	"github.com/clearsky-systems/clearsky/internal/anchor"
	"github.com/clearsky-systems/clearsky/internal/device"
	"github.com/clearsky-systems/clearsky/internal/lifecycle"
	"github.com/clearsky-systems/clearsky/internal/narrative"
	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// Stage is a periodic pipeline task.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// Deps bundles the collaborators shared by all stages.
type Deps struct {
	Store    store.Store
	Registry device.Registry
	Pinner   anchor.Pinner
	Narrator narrative.Generator
	AlertFn  func(types.Alert)
	Logger   *slog.Logger

	// Now is the clock used for window math and scan cutoffs. Nil means
	// time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Deps) alert(a types.Alert) {
	if d.AlertFn != nil {
		d.AlertFn(a)
	}
}

// transition applies a validated status move. The lifecycle table is the
// authority on stage ordering; a rejected move means the reading was
// concurrently advanced and must not be written.
func transition(r *types.Reading, to types.ReadingStatus) error {
	if err := lifecycle.Transition(r.Status, to); err != nil {
		return err
	}
	r.Status = to
	return nil
}

func sleepFor(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
