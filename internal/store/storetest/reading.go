package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

func newReading(deviceID string, start time.Time, status types.ReadingStatus) types.Reading {
	w := types.WindowFor(start)
	return types.Reading{
		ID:       types.ReadingIDFor(deviceID, w),
		DeviceID: deviceID,
		OwnerID:  "ct-owner",
		Window:   w,
		SensorData: map[types.SensorType][]float64{
			types.SensorPM10: {100},
		},
		Meta: types.ReadingMeta{
			IngestionCount:  1,
			LastIngestion:   start,
			DataPointsCount: map[types.SensorType]int{types.SensorPM10: 1},
		},
		Status:    status,
		Version:   1,
		CreatedAt: start,
		UpdatedAt: start,
	}
}

// TestReadingCreateGet verifies create, get, and not-found behavior.
func TestReadingCreateGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	r := newReading("ct-dev-cg", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), types.ReadingPending)
	require.NoError(t, s.CreateReading(ctx, r))

	got, err := s.GetReading(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, types.ReadingPending, got.Status)
	assert.Equal(t, []float64{100}, got.SensorData[types.SensorPM10])

	_, err = s.GetReading(ctx, "ct-nonexistent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestReadingDuplicateCreate verifies the duplicate-key creation race
// resolves to ErrReadingExists so ingestion can retry as an append.
func TestReadingDuplicateCreate(t *testing.T, s store.Store) {
	ctx := context.Background()

	r := newReading("ct-dev-dup", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), types.ReadingPending)
	require.NoError(t, s.CreateReading(ctx, r))
	assert.ErrorIs(t, s.CreateReading(ctx, r), store.ErrReadingExists)
}

// TestAppendSensorData verifies atomic append semantics and bookkeeping.
func TestAppendSensorData(t *testing.T, s store.Store) {
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)

	r := newReading("ct-dev-app", start, types.ReadingPending)
	require.NoError(t, s.CreateReading(ctx, r))

	got, err := s.AppendSensorData(ctx, r.ID, map[types.SensorType]float64{
		types.SensorPM10: 120,
		types.SensorPM25: 33,
	}, start.Add(10*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, []float64{100, 120}, got.SensorData[types.SensorPM10])
	assert.Equal(t, []float64{33}, got.SensorData[types.SensorPM25])
	assert.Equal(t, 2, got.Meta.IngestionCount)
	assert.Equal(t, 2, got.Meta.DataPointsCount[types.SensorPM10])
	assert.Equal(t, 1, got.Meta.DataPointsCount[types.SensorPM25])
	assert.Equal(t, 2, got.Version)

	_, err = s.AppendSensorData(ctx, "ct-nonexistent", map[types.SensorType]float64{types.SensorPM10: 1}, start)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestAppendRejectsClosedBatch verifies appends fail once the batch has
// left PENDING.
func TestAppendRejectsClosedBatch(t *testing.T, s store.Store) {
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r := newReading("ct-dev-closed", start, types.ReadingProcessing)
	require.NoError(t, s.CreateReading(ctx, r))

	_, err := s.AppendSensorData(ctx, r.ID, map[types.SensorType]float64{types.SensorPM10: 1}, start)
	assert.ErrorIs(t, err, store.ErrNotPending)
}

// TestUpdateReadingCAS verifies the optimistic version check.
func TestUpdateReadingCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)

	r := newReading("ct-dev-cas", start, types.ReadingPending)
	require.NoError(t, s.CreateReading(ctx, r))

	r.Status = types.ReadingProcessing
	r.Version = 2
	require.NoError(t, s.UpdateReading(ctx, r, 1))

	// Stale expected version loses.
	r.Status = types.ReadingVerified
	r.Version = 3
	assert.ErrorIs(t, s.UpdateReading(ctx, r, 1), store.ErrVersionConflict)

	got, err := s.GetReading(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReadingProcessing, got.Status)
	assert.Equal(t, 2, got.Version)
}

// TestListByStatusOrdering verifies window-end ascending order.
func TestListByStatusOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	for _, h := range []int{3, 1, 2} {
		r := newReading("ct-dev-ord", base.Add(time.Duration(h)*time.Hour), types.ReadingVerified)
		require.NoError(t, s.CreateReading(ctx, r))
	}

	got, err := s.ListReadingsByStatus(ctx, types.ReadingVerified, time.Time{}, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), 3)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Window.End.Before(got[i-1].Window.End), "order at %d", i)
	}
}

// TestListByStatusCutoffAndLimit verifies the cutoff bound and record cap.
func TestListByStatusCutoffAndLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	for h := 0; h < 4; h++ {
		r := newReading("ct-dev-cut", base.Add(time.Duration(h)*time.Hour), types.ReadingProcessing)
		require.NoError(t, s.CreateReading(ctx, r))
	}

	// Cutoff excludes windows ending at or after it.
	cutoff := base.Add(3 * time.Hour)
	got, err := s.ListReadingsByStatus(ctx, types.ReadingProcessing, cutoff, 0)
	require.NoError(t, err)
	for _, r := range got {
		assert.True(t, r.Window.End.Before(cutoff))
	}

	limited, err := s.ListReadingsByStatus(ctx, types.ReadingProcessing, time.Time{}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	// Oldest first under a limit: bounded backlog drains in order.
	assert.Equal(t, base.Add(time.Hour), limited[0].Window.End)
}

// TestListInRange verifies the [from, to) window-start filter.
func TestListInRange(t *testing.T, s store.Store) {
	ctx := context.Background()
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateReading(ctx, newReading("ct-dev-rng", jan, types.ReadingDerivedIndividual)))
	require.NoError(t, s.CreateReading(ctx, newReading("ct-dev-rng", feb, types.ReadingDerivedIndividual)))

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	got, err := s.ListReadingsInRange(ctx, types.ReadingDerivedIndividual, from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, jan, got[0].Window.Start)
}

// TestListByDevice verifies per-device listing, newest first.
func TestListByDevice(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

	for h := 0; h < 3; h++ {
		r := newReading("ct-dev-bydev", base.Add(time.Duration(h)*time.Hour), types.ReadingPending)
		require.NoError(t, s.CreateReading(ctx, r))
	}
	require.NoError(t, s.CreateReading(ctx, newReading("ct-dev-other", base, types.ReadingPending)))

	got, err := s.ListReadingsByDevice(ctx, "ct-dev-bydev", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base.Add(2*time.Hour), got[0].Window.Start)
	for _, r := range got {
		assert.Equal(t, "ct-dev-bydev", r.DeviceID)
	}
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
