// Package stats computes averages, percentiles, distributions, health scores
// and letter grades over monitor buffers. Everything here is a pure function
// of buffer contents plus thresholds: recomputing over the same inputs yields
// the same result.
package stats

import (
	"math"
	"sort"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// Threshold holds the two boundaries a metric is scored against
type Threshold struct {
	Good             float64 `json:"good" yaml:"good"`
	NeedsImprovement float64 `json:"needs_improvement" yaml:"needs_improvement"`
}

// ThresholdTable maps metric names onto their scoring thresholds
type ThresholdTable map[string]Threshold

// Score boundaries per metric sample
const (
	scoreGood             = 100
	scoreNeedsImprovement = 70
	scorePoor             = 40
)

// Percentile returns the p-th percentile of values using the
// ceil(p/100 x n) - 1 index over the ascending-sorted input, clamped at 0.
// The percentile of an empty slice is 0 by convention.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ScoreValue scores one metric sample against its thresholds: 100 when at or
// below good, 70 when at or below needs-improvement, 40 otherwise.
func ScoreValue(value float64, t Threshold) float64 {
	switch {
	case value <= t.Good:
		return scoreGood
	case value <= t.NeedsImprovement:
		return scoreNeedsImprovement
	default:
		return scorePoor
	}
}

// OverallScore is the arithmetic mean of the given per-metric scores.
// Metrics with zero samples never appear in the input, so only what was
// observed is scored; an empty input scores 0.
func OverallScore(perMetric map[string]float64) float64 {
	if len(perMetric) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range perMetric {
		sum += s
	}
	return sum / float64(len(perMetric))
}

// VitalsScores computes the per-metric score over a vitals buffer. The
// current value of each metric is its most recent sample; metrics without
// samples are excluded rather than defaulted.
func VitalsScores(measurements []types.VitalMeasurement, table ThresholdTable) map[string]float64 {
	latest := make(map[string]float64)
	for _, m := range measurements {
		latest[string(m.Metric)] = m.Value
	}

	scores := make(map[string]float64, len(latest))
	for metric, value := range latest {
		t, ok := table[metric]
		if !ok {
			continue
		}
		scores[metric] = ScoreValue(value, t)
	}
	return scores
}

// CurrentVitals returns the current value per vital metric, which is the most
// recent sample in the buffer for that metric
func CurrentVitals(measurements []types.VitalMeasurement) map[string]float64 {
	current := make(map[string]float64)
	for _, m := range measurements {
		current[string(m.Metric)] = m.Value
	}
	return current
}

// Mean returns the arithmetic mean of values, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
