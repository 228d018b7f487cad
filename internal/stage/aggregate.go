package stage

import (
	"sort"
	"time"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

// SensorStats summarizes one sensor's values over an aggregation unit.
type SensorStats struct {
	Count   int     `json:"count"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
}

func computeStats(values []float64) SensorStats {
	if len(values) == 0 {
		return SensorStats{}
	}
	s := SensorStats{Count: len(values), Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Average = sum / float64(len(values))
	return s
}

func statsBySensor(data map[types.SensorType][]float64) map[types.SensorType]SensorStats {
	out := make(map[types.SensorType]SensorStats, len(data))
	for sensor, values := range data {
		out[sensor] = computeStats(values)
	}
	return out
}

// HourlySummary is one hour's per-sensor averages within a day.
type HourlySummary struct {
	Hour     int
	Averages map[types.SensorType]float64
}

// DailyAggregate is the structured context for one day's narrative.
type DailyAggregate struct {
	Day        time.Time
	DeviceID   string
	OwnerID    string
	Location   string
	ReadingIDs []string
	Hours      []HourlySummary
	Averages   map[types.SensorType]float64
	Peaks      map[types.SensorType]float64
}

// dayOf returns the UTC midnight of the reading's window start.
func dayOf(r types.Reading) time.Time {
	s := r.Window.Start.UTC()
	return time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
}

// groupByDay partitions readings into calendar-day buckets, each sorted by
// window start.
func groupByDay(readings []types.Reading) map[time.Time][]types.Reading {
	groups := make(map[time.Time][]types.Reading)
	for _, r := range readings {
		day := dayOf(r)
		groups[day] = append(groups[day], r)
	}
	for day := range groups {
		g := groups[day]
		sort.Slice(g, func(i, j int) bool { return g[i].Window.Start.Before(g[j].Window.Start) })
	}
	return groups
}

// aggregateDay computes the hourly and whole-day statistics for one
// day-group. Location comes from the first reading, matching report naming.
func aggregateDay(day time.Time, readings []types.Reading) DailyAggregate {
	agg := DailyAggregate{
		Day:      day,
		Averages: make(map[types.SensorType]float64),
		Peaks:    make(map[types.SensorType]float64),
	}
	if len(readings) == 0 {
		return agg
	}
	agg.DeviceID = readings[0].DeviceID
	agg.OwnerID = readings[0].OwnerID
	agg.Location = readings[0].Meta.Location

	sums := make(map[types.SensorType]float64)
	counts := make(map[types.SensorType]int)

	for _, r := range readings {
		agg.ReadingIDs = append(agg.ReadingIDs, r.ID)

		hour := HourlySummary{
			Hour:     r.Window.HourIndex,
			Averages: make(map[types.SensorType]float64),
		}
		for sensor, values := range r.SensorData {
			st := computeStats(values)
			hour.Averages[sensor] = st.Average
			sums[sensor] += st.Average * float64(st.Count)
			counts[sensor] += st.Count
			if peak, ok := agg.Peaks[sensor]; !ok || st.Max > peak {
				agg.Peaks[sensor] = st.Max
			}
		}
		agg.Hours = append(agg.Hours, hour)
	}

	for sensor, sum := range sums {
		agg.Averages[sensor] = sum / float64(counts[sensor])
	}
	return agg
}

// DaySummary is one day's contribution to the monthly context.
type DaySummary struct {
	Day          time.Time
	DerivativeID string
	Averages     map[types.SensorType]float64
	Peaks        map[types.SensorType]float64
	Excerpt      string
}

// MonthlyAggregate is the structured context for the monthly rollup.
type MonthlyAggregate struct {
	Month    time.Time
	Location string
	Days     []DaySummary
	WorstDay time.Time
	BestDay  time.Time
}

const excerptLen = 200

// excerpt returns the leading portion of a narrative for the monthly
// prompt context.
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	return string(runes[:excerptLen]) + "..."
}

// dayScore ranks a day's air quality for worst/best selection. AQI wins
// when reported, then PM2.5, then the mean of all sensor averages.
func dayScore(averages map[types.SensorType]float64) float64 {
	if v, ok := averages[types.SensorAQI]; ok {
		return v
	}
	if v, ok := averages[types.SensorPM25]; ok {
		return v
	}
	var sum float64
	for _, v := range averages {
		sum += v
	}
	if len(averages) == 0 {
		return 0
	}
	return sum / float64(len(averages))
}

// aggregateMonth assembles the monthly context from per-day summaries.
func aggregateMonth(month time.Time, days []DaySummary) MonthlyAggregate {
	sort.Slice(days, func(i, j int) bool { return days[i].Day.Before(days[j].Day) })
	agg := MonthlyAggregate{Month: month, Days: days}
	if len(days) == 0 {
		return agg
	}

	worst, best := days[0], days[0]
	for _, d := range days[1:] {
		if dayScore(d.Averages) > dayScore(worst.Averages) {
			worst = d
		}
		if dayScore(d.Averages) < dayScore(best.Averages) {
			best = d
		}
	}
	agg.WorstDay = worst.Day
	agg.BestDay = best.Day
	return agg
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}

// previousMonth returns the first instants of the previous and current
// month relative to now, forming the half-open scan range [from, to).
func previousMonth(now time.Time) (from, to time.Time) {
	now = now.UTC()
	to = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from = to.AddDate(0, -1, 0)
	return from, to
}
