package stage

import (
	"context"
	"errors"

	"github.com/clearsky-systems/clearsky/internal/metrics"
	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// Promoter closes expired batch windows: PENDING readings whose window has
// ended are flipped to PROCESSING so ingestion can no longer touch them.
type Promoter struct {
	deps  *Deps
	limit int
}

// NewPromoter creates the promotion stage. limit bounds records per run
// (<=0 means unbounded).
func NewPromoter(deps *Deps, limit int) *Promoter {
	return &Promoter{deps: deps, limit: limit}
}

// Name returns the stage identifier.
func (p *Promoter) Name() string { return "promote" }

// Run scans expired PENDING readings oldest-first and flips each to
// PROCESSING. The flip is a pure status change guarded by the document
// version, so a reading promoted by another instance is simply skipped.
func (p *Promoter) Run(ctx context.Context) error {
	now := p.deps.now()
	log := p.deps.logger().With("stage", p.Name())

	readings, err := p.deps.Store.ListReadingsByStatus(ctx, types.ReadingPending, now, p.limit)
	if err != nil {
		return err
	}

	var promoted int
	for i := range readings {
		r := readings[i]
		pickedAt := p.deps.now()
		if err := transition(&r, types.ReadingProcessing); err != nil {
			log.Error("promotion rejected", "reading_id", r.ID, "error", err)
			continue
		}
		r.Processing.PickedAt = &pickedAt
		r.UpdatedAt = pickedAt

		expected := r.Version
		r.Version++
		if err := p.deps.Store.UpdateReading(ctx, r, expected); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				// Another instance got there first.
				continue
			}
			log.Error("promotion failed", "reading_id", r.ID, "error", err)
			continue
		}
		metrics.BatchesPromoted.Add(1)
		promoted++
	}

	if promoted > 0 {
		log.Info("promoted expired batches", "count", promoted)
	}
	return nil
}
