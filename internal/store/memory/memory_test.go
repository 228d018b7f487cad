package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/internal/store/storetest"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

func TestMemoryStore_Conformance(t *testing.T) {
	storetest.RunAll(t, New())
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	w := types.WindowFor(start)

	r := types.Reading{
		ID:       types.ReadingIDFor("dev-conc", w),
		DeviceID: "dev-conc",
		Window:   w,
		SensorData: map[types.SensorType][]float64{
			types.SensorPM10: {1},
		},
		Meta: types.ReadingMeta{
			IngestionCount:  1,
			DataPointsCount: map[types.SensorType]int{types.SensorPM10: 1},
		},
		Status:  types.ReadingPending,
		Version: 1,
	}
	require.NoError(t, s.CreateReading(ctx, r))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			_, err := s.AppendSensorData(ctx, r.ID, map[types.SensorType]float64{types.SensorPM10: v}, start)
			assert.NoError(t, err)
		}(float64(i))
	}
	wg.Wait()

	got, err := s.GetReading(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, got.SensorData[types.SensorPM10], n+1)
	assert.Equal(t, n+1, got.Meta.IngestionCount)
	assert.Equal(t, n+1, got.Meta.DataPointsCount[types.SensorPM10])
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	w := types.WindowFor(start)

	r := types.Reading{
		ID:         types.ReadingIDFor("dev-copy", w),
		DeviceID:   "dev-copy",
		Window:     w,
		SensorData: map[types.SensorType][]float64{types.SensorPM10: {1}},
		Meta: types.ReadingMeta{
			DataPointsCount: map[types.SensorType]int{types.SensorPM10: 1},
		},
		Status:  types.ReadingPending,
		Version: 1,
	}
	require.NoError(t, s.CreateReading(ctx, r))

	got, err := s.GetReading(ctx, r.ID)
	require.NoError(t, err)
	got.SensorData[types.SensorPM10][0] = 999

	again, err := s.GetReading(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(1), again.SensorData[types.SensorPM10][0])
}
