package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clearsky-systems/clearsky/internal/canonical"
	"github.com/clearsky-systems/clearsky/internal/merkle"
	"github.com/clearsky-systems/clearsky/internal/metrics"
	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// proofPayload is the structured document pinned to content-addressed
// storage for every verified batch. Field order does not affect the
// content hash; hashing canonicalizes key order.
type proofPayload struct {
	ReadingID      string                           `json:"readingId"`
	DeviceID       string                           `json:"deviceId"`
	OwnerID        string                           `json:"ownerId"`
	Location       string                           `json:"location,omitempty"`
	WindowStart    time.Time                        `json:"windowStart"`
	WindowEnd      time.Time                        `json:"windowEnd"`
	HourIndex      int                              `json:"hourIndex"`
	IngestionCount int                              `json:"ingestionCount"`
	SensorStats    map[types.SensorType]SensorStats `json:"sensorStats"`
	MerkleRoot     string                           `json:"merkleRoot"`
	Algorithm      string                           `json:"algorithm"`
}

// Verifier anchors promoted batches: it builds the Merkle tree over a
// reading's sensor data, content-hashes a proof payload, and pins it.
type Verifier struct {
	deps        *Deps
	limit       int
	maxAttempts int
	pacing      time.Duration
}

// NewVerifier creates the verification stage. limit bounds records per run,
// maxAttempts bounds per-record retries (<=0 means 3), pacing is the fixed
// delay between successive pin calls.
func NewVerifier(deps *Deps, limit, maxAttempts int, pacing time.Duration) *Verifier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	return &Verifier{deps: deps, limit: limit, maxAttempts: maxAttempts, pacing: pacing}
}

// Name returns the stage identifier.
func (v *Verifier) Name() string { return "verify" }

// Run scans PROCESSING readings that still lack a Merkle root and have
// retry budget left, oldest window first. Per-record failures never abort
// the scan.
func (v *Verifier) Run(ctx context.Context) error {
	log := v.deps.logger().With("stage", v.Name())

	candidates, err := v.deps.Store.ListReadingsByStatus(ctx, types.ReadingProcessing, time.Time{}, 0)
	if err != nil {
		return err
	}

	var processed int
	for i := range candidates {
		r := candidates[i]
		if r.Processing.MerkleRoot != "" || r.Processing.RetryCount >= v.maxAttempts {
			continue
		}
		if v.limit > 0 && processed >= v.limit {
			break
		}
		if processed > 0 {
			if err := sleepFor(ctx, v.pacing); err != nil {
				return err
			}
		}
		processed++

		if err := v.verifyOne(ctx, r); err != nil {
			log.Error("verification failed", "reading_id", r.ID, "error", err)
		}
	}
	return nil
}

func (v *Verifier) verifyOne(ctx context.Context, r types.Reading) error {
	tree, payload, contentHash, err := v.buildProof(r)
	if err == nil {
		var res *anchorResult
		res, err = v.pin(ctx, r, payload)
		if err == nil {
			return v.markVerified(ctx, r, tree.Root, contentHash, res)
		}
	}
	return v.recordFailure(ctx, r, err)
}

type anchorResult struct {
	contentID string
	uri       string
}

func (v *Verifier) buildProof(r types.Reading) (*merkle.Tree, proofPayload, string, error) {
	tree, err := merkle.BuildTree(r.SensorData, r.Window.Start)
	if err != nil {
		// Empty sensor data on a promoted batch is an invariant violation,
		// never worth a retry.
		return nil, proofPayload{}, "", &types.ExternalError{
			Service:  "verify",
			Op:       "build_tree",
			Category: types.FailurePermanent,
			Err:      err,
		}
	}

	payload := proofPayload{
		ReadingID:      r.ID,
		DeviceID:       r.DeviceID,
		OwnerID:        r.OwnerID,
		Location:       r.Meta.Location,
		WindowStart:    r.Window.Start,
		WindowEnd:      r.Window.End,
		HourIndex:      r.Window.HourIndex,
		IngestionCount: r.Meta.IngestionCount,
		SensorStats:    statsBySensor(r.SensorData),
		MerkleRoot:     tree.Root,
		Algorithm:      "sha256",
	}

	contentHash, err := canonical.ContentHash(payload)
	if err != nil {
		return nil, proofPayload{}, "", &types.ExternalError{
			Service:  "verify",
			Op:       "content_hash",
			Category: types.FailurePermanent,
			Err:      err,
		}
	}
	return tree, payload, contentHash, nil
}

func (v *Verifier) pin(ctx context.Context, r types.Reading, payload proofPayload) (*anchorResult, error) {
	metrics.PinsTotal.Add(1)
	res, err := v.deps.Pinner.Pin(ctx, payload, "proof-"+r.ID, map[string]string{
		"stage":    v.Name(),
		"deviceId": r.DeviceID,
	})
	if err != nil {
		metrics.PinsFailed.Add(1)
		return nil, err
	}
	return &anchorResult{contentID: res.ContentID, uri: res.URI}, nil
}

func (v *Verifier) markVerified(ctx context.Context, r types.Reading, root, contentHash string, res *anchorResult) error {
	now := v.deps.now()
	if err := transition(&r, types.ReadingVerified); err != nil {
		return err
	}
	r.Processing.MerkleRoot = root
	r.Processing.ContentHash = contentHash
	r.Processing.StorageURI = res.uri
	r.Processing.StorageID = res.contentID
	r.Processing.VerifiedAt = &now
	r.Processing.Error = ""
	r.UpdatedAt = now

	expected := r.Version
	r.Version++
	if err := v.deps.Store.UpdateReading(ctx, r, expected); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil
		}
		return err
	}
	metrics.BatchesVerified.Add(1)
	return nil
}

// recordFailure increments the retry counter and marks the reading FAILED
// once the budget is exhausted or the failure is permanent.
func (v *Verifier) recordFailure(ctx context.Context, r types.Reading, cause error) error {
	now := v.deps.now()
	r.Processing.RetryCount++
	r.Processing.Error = cause.Error()
	r.UpdatedAt = now

	terminal := r.Processing.RetryCount >= v.maxAttempts || !IsRetryable(cause)
	if terminal {
		if err := transition(&r, types.ReadingFailed); err != nil {
			return err
		}
		r.Processing.FailedAt = &now
	} else {
		metrics.RetriesScheduled.Add(1)
	}

	expected := r.Version
	r.Version++
	if err := v.deps.Store.UpdateReading(ctx, r, expected); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Another instance already advanced the record.
			return cause
		}
		return err
	}

	if terminal {
		metrics.BatchesFailed.Add(1)
		v.deps.alert(types.Alert{
			Level:     types.AlertLevelError,
			ReadingID: r.ID,
			DeviceID:  r.DeviceID,
			Stage:     v.Name(),
			Message:   fmt.Sprintf("verification failed after %d attempts: %v", r.Processing.RetryCount, cause),
			Timestamp: now,
		})
	}
	return cause
}
