package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

func readingAt(hour int, data map[types.SensorType][]float64) types.Reading {
	w := types.WindowFor(time.Date(2025, 1, 2, hour, 0, 0, 0, time.UTC))
	return types.Reading{
		ID:         types.ReadingIDFor("dev-001", w),
		DeviceID:   "dev-001",
		OwnerID:    "owner-1",
		Window:     w,
		SensorData: data,
		Meta:       types.ReadingMeta{Location: "Rotterdam North"},
	}
}

func TestComputeStats(t *testing.T) {
	s := computeStats([]float64{10, 30, 20})
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 10.0, s.Min)
	assert.Equal(t, 30.0, s.Max)
	assert.Equal(t, 20.0, s.Average)

	assert.Zero(t, computeStats(nil))
}

func TestAggregateDay(t *testing.T) {
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	readings := []types.Reading{
		readingAt(8, map[types.SensorType][]float64{types.SensorPM25: {10, 20}}),
		readingAt(9, map[types.SensorType][]float64{types.SensorPM25: {40}, types.SensorPM10: {70}}),
	}

	agg := aggregateDay(day, readings)

	assert.Equal(t, "dev-001", agg.DeviceID)
	assert.Equal(t, "Rotterdam North", agg.Location)
	assert.Equal(t, []string{"dev-001_20250102_H08", "dev-001_20250102_H09"}, agg.ReadingIDs)

	require.Len(t, agg.Hours, 2)
	assert.Equal(t, 8, agg.Hours[0].Hour)
	assert.Equal(t, 15.0, agg.Hours[0].Averages[types.SensorPM25])
	assert.Equal(t, 40.0, agg.Hours[1].Averages[types.SensorPM25])

	// Day average weights hours by sample count: (10+20+40)/3.
	assert.InDelta(t, 23.333, agg.Averages[types.SensorPM25], 0.001)
	assert.Equal(t, 40.0, agg.Peaks[types.SensorPM25])
	assert.Equal(t, 70.0, agg.Peaks[types.SensorPM10])
}

func TestGroupByDaySplitsOnUTCMidnight(t *testing.T) {
	late := readingAt(23, map[types.SensorType][]float64{types.SensorPM25: {1}})
	early := readingAt(0, map[types.SensorType][]float64{types.SensorPM25: {2}})
	early.Window = types.WindowFor(time.Date(2025, 1, 3, 0, 30, 0, 0, time.UTC))

	groups := groupByDay([]types.Reading{late, early})
	require.Len(t, groups, 2)
	assert.Len(t, groups[time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)], 1)
	assert.Len(t, groups[time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)], 1)
}

func TestAggregateMonthWorstAndBestDay(t *testing.T) {
	month := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	days := []DaySummary{
		{Day: month.AddDate(0, 0, 1), Averages: map[types.SensorType]float64{types.SensorAQI: 80}},
		{Day: month.AddDate(0, 0, 2), Averages: map[types.SensorType]float64{types.SensorAQI: 30}},
		{Day: month.AddDate(0, 0, 3), Averages: map[types.SensorType]float64{types.SensorAQI: 55}},
	}

	agg := aggregateMonth(month, days)
	assert.Equal(t, month.AddDate(0, 0, 1), agg.WorstDay)
	assert.Equal(t, month.AddDate(0, 0, 2), agg.BestDay)
}

func TestDayScoreFallbacks(t *testing.T) {
	assert.Equal(t, 80.0, dayScore(map[types.SensorType]float64{types.SensorAQI: 80, types.SensorPM25: 5}))
	assert.Equal(t, 5.0, dayScore(map[types.SensorType]float64{types.SensorPM25: 5, types.SensorNO2: 100}))
	assert.Equal(t, 15.0, dayScore(map[types.SensorType]float64{types.SensorNO2: 10, types.SensorSO2: 20}))
	assert.Zero(t, dayScore(nil))
}

func TestPreviousMonth(t *testing.T) {
	from, to := previousMonth(time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), to)

	// Year boundary.
	from, to = previousMonth(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short"))

	long := make([]rune, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := excerpt(string(long))
	assert.Len(t, []rune(got), excerptLen+3)
}

func TestDailyUserPromptContents(t *testing.T) {
	agg := aggregateDay(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), []types.Reading{
		readingAt(8, map[types.SensorType][]float64{types.SensorPM25: {10}}),
	})
	prompt := dailyUserPrompt(agg)
	assert.Contains(t, prompt, "Date: 2025-01-02")
	assert.Contains(t, prompt, "Location: Rotterdam North")
	assert.Contains(t, prompt, "08:00 PM2_5=10.0")
}
