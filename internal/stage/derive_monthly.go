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

// MonthlyDeriver rolls the previous calendar month's daily derivatives up
// into one MONTHLY derivative and completes the source chain.
type MonthlyDeriver struct {
	deps   *Deps
	policy types.RetryPolicy
}

// NewMonthlyDeriver creates the monthly rollup stage.
func NewMonthlyDeriver(deps *Deps, policy types.RetryPolicy) *MonthlyDeriver {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &MonthlyDeriver{deps: deps, policy: policy}
}

// Name returns the stage identifier.
func (m *MonthlyDeriver) Name() string { return "derive_monthly" }

// Run aggregates the previous month. A month with no resolvable daily
// derivatives is a no-op, not an error.
func (m *MonthlyDeriver) Run(ctx context.Context) error {
	log := m.deps.logger().With("stage", m.Name())
	from, to := previousMonth(m.deps.now())

	readings, err := m.deps.Store.ListReadingsInRange(ctx, types.ReadingDerivedIndividual, from, to)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		return nil
	}

	dailies := m.resolveDailies(ctx, readings)
	if len(dailies) == 0 {
		log.Info("no daily derivatives resolved, skipping month", "month", from.Format("2006-01"))
		return nil
	}

	agg := m.buildAggregate(from, readings, dailies)

	res, err := generateNarrative(ctx, m.deps, m.policy, m.Name(), narrative.Request{
		System: monthlySystemPrompt,
		User:   monthlyUserPrompt(agg),
	})
	if err != nil {
		m.deps.alert(types.Alert{
			Level:     types.AlertLevelError,
			Stage:     m.Name(),
			Message:   fmt.Sprintf("monthly narrative generation failed for %s: %v", from.Format("2006-01"), err),
			Timestamp: m.deps.now(),
		})
		return err
	}

	textHash := canonical.PlainHash(res.Text)

	metrics.PinsTotal.Add(1)
	pin, err := m.deps.Pinner.Pin(ctx, res.Text, "monthly-"+from.Format("200601"), map[string]string{
		"stage": m.Name(),
		"type":  string(types.DerivativeMonthly),
	})
	if err != nil {
		metrics.PinsFailed.Add(1)
		return err
	}

	parentIDs := make([]string, 0, len(readings))
	for _, r := range readings {
		parentIDs = append(parentIDs, r.ID)
	}
	childIDs := make([]string, 0, len(dailies))
	for _, d := range dailies {
		childIDs = append(childIDs, d.ID)
	}

	deriv := types.Derivative{
		ID:                 ulid.Make().String(),
		Type:               types.DerivativeMonthly,
		DeviceID:           dailies[0].DeviceID,
		OwnerID:            dailies[0].OwnerID,
		PeriodStart:        from,
		PeriodEnd:          to,
		ParentDataIDs:      parentIDs,
		ChildDerivativeIDs: childIDs,
		Content:            res.Text,
		Proof: types.DerivativeProof{
			ContentHash: textHash,
			MerkleRoot:  textHash,
			StorageURI:  pin.URI,
			StorageID:   pin.ContentID,
			ProcessedAt: m.deps.now(),
		},
		LLM: types.LLMMetadata{
			Provider:   "openai",
			Model:      res.Model,
			TokensUsed: res.TokensUsed,
			CostUSD:    res.CostUSD,
			LatencyMS:  res.LatencyMS,
		},
		CreatedAt: m.deps.now(),
	}

	if err := m.deps.Store.PutDerivative(ctx, deriv); err != nil {
		return fmt.Errorf("storing monthly derivative: %w", err)
	}
	metrics.DerivativesCreated.Add(1)

	for _, daily := range dailies {
		if err := m.deps.Store.SetMetaParent(ctx, daily.ID, deriv.ID); err != nil {
			log.Error("linking meta parent failed", "derivative_id", daily.ID, "error", err)
		}
	}

	m.complete(ctx, readings)
	log.Info("monthly derivative created",
		"month", from.Format("2006-01"), "readings", len(readings), "dailies", len(dailies))
	return nil
}

// resolveDailies follows each reading's derivative link, deduplicating
// shared dailies. Broken links are logged and skipped.
func (m *MonthlyDeriver) resolveDailies(ctx context.Context, readings []types.Reading) []types.Derivative {
	log := m.deps.logger().With("stage", m.Name())

	seen := make(map[string]bool)
	var dailies []types.Derivative
	for _, r := range readings {
		id := r.Processing.DerivativeID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		d, err := m.deps.Store.GetDerivative(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.Error("resolving daily derivative failed", "derivative_id", id, "error", err)
			}
			continue
		}
		if d.Type != types.DerivativeDaily {
			continue
		}
		dailies = append(dailies, *d)
	}
	return dailies
}

func (m *MonthlyDeriver) buildAggregate(month time.Time, readings []types.Reading, dailies []types.Derivative) MonthlyAggregate {
	byID := make(map[string]types.Derivative, len(dailies))
	for _, d := range dailies {
		byID[d.ID] = d
	}

	groups := groupByDay(readings)
	var days []DaySummary
	for day, group := range groups {
		dayAgg := aggregateDay(day, group)
		summary := DaySummary{
			Day:      day,
			Averages: dayAgg.Averages,
			Peaks:    dayAgg.Peaks,
		}
		if d, ok := byID[group[0].Processing.DerivativeID]; ok {
			summary.DerivativeID = d.ID
			summary.Excerpt = excerpt(d.Content)
		}
		days = append(days, summary)
	}

	agg := aggregateMonth(month, days)
	if len(readings) > 0 {
		agg.Location = readings[0].Meta.Location
	}
	return agg
}

// complete flips the month's readings to their terminal COMPLETE state.
func (m *MonthlyDeriver) complete(ctx context.Context, readings []types.Reading) {
	log := m.deps.logger().With("stage", m.Name())
	now := m.deps.now()

	for i := range readings {
		r := readings[i]
		if err := transition(&r, types.ReadingComplete); err != nil {
			log.Error("completing reading rejected", "reading_id", r.ID, "error", err)
			continue
		}
		r.UpdatedAt = now

		expected := r.Version
		r.Version++
		if err := m.deps.Store.UpdateReading(ctx, r, expected); err != nil {
			log.Error("completing reading failed", "reading_id", r.ID, "error", err)
		}
	}
}
