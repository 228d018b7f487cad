package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clearsky-systems/clearsky/internal/canonical"
	"github.com/clearsky-systems/clearsky/internal/metrics"
	"github.com/clearsky-systems/clearsky/internal/narrative"
	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// DailyDeriver turns verified readings into daily narrative derivatives.
// It locks a bounded set of VERIFIED readings by flipping them to
// PROCESSING_AI, groups them by calendar day, and produces one DAILY
// derivative per complete group.
type DailyDeriver struct {
	deps   *Deps
	limit  int
	policy types.RetryPolicy
	pacing time.Duration
}

// NewDailyDeriver creates the daily derivative stage.
func NewDailyDeriver(deps *Deps, limit int, policy types.RetryPolicy, pacing time.Duration) *DailyDeriver {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &DailyDeriver{deps: deps, limit: limit, policy: policy, pacing: pacing}
}

// Name returns the stage identifier.
func (d *DailyDeriver) Name() string { return "derive_daily" }

// Run locks a batch of VERIFIED readings and derives one narrative per
// day-group. A failed group is reverted to VERIFIED and never blocks the
// other groups in the same run.
func (d *DailyDeriver) Run(ctx context.Context) error {
	log := d.deps.logger().With("stage", d.Name())

	candidates, err := d.deps.Store.ListReadingsByStatus(ctx, types.ReadingVerified, time.Time{}, d.limit)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	locked := d.lock(ctx, candidates)
	if len(locked) == 0 {
		return nil
	}

	groups := groupByDay(locked)
	days := make([]time.Time, 0, len(groups))
	for day := range groups {
		days = append(days, day)
	}
	sortTimes(days)

	for i, day := range days {
		if i > 0 {
			if err := sleepFor(ctx, d.pacing); err != nil {
				return err
			}
		}
		group := groups[day]
		if err := d.deriveGroup(ctx, day, group); err != nil {
			log.Error("day group failed, reverting to verified",
				"day", day.Format("2006-01-02"), "readings", len(group), "error", err)
			d.revert(ctx, group)
		}
	}
	return nil
}

// lock flips candidates to PROCESSING_AI under the optimistic version
// check. Readings claimed by another instance drop out of the run.
func (d *DailyDeriver) lock(ctx context.Context, candidates []types.Reading) []types.Reading {
	log := d.deps.logger().With("stage", d.Name())
	now := d.deps.now()

	locked := make([]types.Reading, 0, len(candidates))
	for i := range candidates {
		r := candidates[i]
		if err := transition(&r, types.ReadingProcessingAI); err != nil {
			log.Error("locking reading rejected", "reading_id", r.ID, "error", err)
			continue
		}
		r.UpdatedAt = now

		expected := r.Version
		r.Version++
		if err := d.deps.Store.UpdateReading(ctx, r, expected); err != nil {
			if !errors.Is(err, store.ErrVersionConflict) {
				log.Error("locking reading failed", "reading_id", r.ID, "error", err)
			}
			continue
		}
		locked = append(locked, r)
	}
	return locked
}

func (d *DailyDeriver) deriveGroup(ctx context.Context, day time.Time, group []types.Reading) error {
	agg := aggregateDay(day, group)

	res, err := generateNarrative(ctx, d.deps, d.policy, d.Name(), narrative.Request{
		System: dailySystemPrompt,
		User:   dailyUserPrompt(agg),
	})
	if err != nil {
		return err
	}

	// The text hash doubles as the Merkle root of a single-document batch.
	textHash := canonical.PlainHash(res.Text)

	deriv := types.Derivative{
		ID:            ulid.Make().String(),
		Type:          types.DerivativeDaily,
		DeviceID:      agg.DeviceID,
		OwnerID:       agg.OwnerID,
		PeriodStart:   day,
		PeriodEnd:     day.AddDate(0, 0, 1),
		ParentDataIDs: agg.ReadingIDs,
		Content:       res.Text,
		LLM: types.LLMMetadata{
			Provider:   "openai",
			Model:      res.Model,
			TokensUsed: res.TokensUsed,
			CostUSD:    res.CostUSD,
			LatencyMS:  res.LatencyMS,
		},
		CreatedAt: d.deps.now(),
	}

	metrics.PinsTotal.Add(1)
	pin, err := d.deps.Pinner.Pin(ctx, res.Text, "daily-"+day.Format("20060102"), map[string]string{
		"stage": d.Name(),
		"type":  string(types.DerivativeDaily),
	})
	if err != nil {
		metrics.PinsFailed.Add(1)
		return err
	}

	deriv.Proof = types.DerivativeProof{
		ContentHash: textHash,
		MerkleRoot:  textHash,
		StorageURI:  pin.URI,
		StorageID:   pin.ContentID,
		ProcessedAt: d.deps.now(),
	}

	if err := d.deps.Store.PutDerivative(ctx, deriv); err != nil {
		return fmt.Errorf("storing daily derivative: %w", err)
	}
	metrics.DerivativesCreated.Add(1)

	d.flip(ctx, group, deriv.ID)
	return nil
}

// flip advances the group to DERIVED_INDIVIDUAL and links the derivative.
func (d *DailyDeriver) flip(ctx context.Context, group []types.Reading, derivativeID string) {
	log := d.deps.logger().With("stage", d.Name())
	now := d.deps.now()

	for i := range group {
		r := group[i]
		if err := transition(&r, types.ReadingDerivedIndividual); err != nil {
			log.Error("flipping reading rejected", "reading_id", r.ID, "error", err)
			continue
		}
		r.Processing.DerivativeID = derivativeID
		r.UpdatedAt = now

		expected := r.Version
		r.Version++
		if err := d.deps.Store.UpdateReading(ctx, r, expected); err != nil {
			log.Error("flipping reading failed", "reading_id", r.ID, "error", err)
		}
	}
}

// revert is the compensation path: a failed group's readings return to
// VERIFIED so the next run can pick them up instead of sticking in
// PROCESSING_AI forever.
func (d *DailyDeriver) revert(ctx context.Context, group []types.Reading) {
	log := d.deps.logger().With("stage", d.Name())
	now := d.deps.now()

	for i := range group {
		r := group[i]
		if err := transition(&r, types.ReadingVerified); err != nil {
			log.Error("reverting reading rejected", "reading_id", r.ID, "error", err)
			continue
		}
		r.UpdatedAt = now

		expected := r.Version
		r.Version++
		if err := d.deps.Store.UpdateReading(ctx, r, expected); err != nil {
			log.Error("reverting reading failed", "reading_id", r.ID, "error", err)
			continue
		}
	}
	metrics.GroupsReverted.Add(1)

	if len(group) > 0 {
		d.deps.alert(types.Alert{
			Level:     types.AlertLevelWarning,
			DeviceID:  group[0].DeviceID,
			Stage:     d.Name(),
			Message:   fmt.Sprintf("daily derivation reverted %d readings to verified", len(group)),
			Timestamp: now,
		})
	}
}
