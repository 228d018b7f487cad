package stage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

const dailySystemPrompt = `You are an air-quality analyst. Write a concise daily report from the
provided hourly sensor statistics. Note trends across the day, flag hours
with elevated pollutant levels, and close with a one-sentence overall
assessment. Plain prose, no markdown, no bullet lists.`

const monthlySystemPrompt = `You are an air-quality analyst. Write a monthly summary report from the
provided per-day statistics and daily report excerpts. Compare the best and
worst days, describe the month's overall trend, and close with a
one-sentence outlook. Plain prose, no markdown, no bullet lists.`

func sortedSensors(m map[types.SensorType]float64) []types.SensorType {
	out := make([]types.SensorType, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func formatSensorLine(m map[types.SensorType]float64) string {
	parts := make([]string, 0, len(m))
	for _, s := range sortedSensors(m) {
		parts = append(parts, fmt.Sprintf("%s=%.1f", s, m[s]))
	}
	return strings.Join(parts, " ")
}

// dailyUserPrompt renders the day's structured context for the generator.
func dailyUserPrompt(agg DailyAggregate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", agg.Day.Format("2006-01-02"))
	if agg.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", agg.Location)
	}
	fmt.Fprintf(&b, "Hours reported: %d\n", len(agg.Hours))
	fmt.Fprintf(&b, "Daily averages: %s\n", formatSensorLine(agg.Averages))
	fmt.Fprintf(&b, "Daily peaks: %s\n", formatSensorLine(agg.Peaks))
	b.WriteString("Hourly averages:\n")
	for _, h := range agg.Hours {
		fmt.Fprintf(&b, "  %02d:00 %s\n", h.Hour, formatSensorLine(h.Averages))
	}
	return b.String()
}

// monthlyUserPrompt renders the month's structured context for the generator.
func monthlyUserPrompt(agg MonthlyAggregate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Month: %s\n", agg.Month.Format("2006-01"))
	if agg.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", agg.Location)
	}
	fmt.Fprintf(&b, "Days reported: %d\n", len(agg.Days))
	fmt.Fprintf(&b, "Worst day: %s\n", agg.WorstDay.Format("2006-01-02"))
	fmt.Fprintf(&b, "Best day: %s\n", agg.BestDay.Format("2006-01-02"))
	b.WriteString("Daily summaries:\n")
	for _, d := range agg.Days {
		fmt.Fprintf(&b, "  %s avg[%s] peak[%s]\n", d.Day.Format("2006-01-02"),
			formatSensorLine(d.Averages), formatSensorLine(d.Peaks))
		if d.Excerpt != "" {
			fmt.Fprintf(&b, "    report: %s\n", d.Excerpt)
		}
	}
	return b.String()
}
