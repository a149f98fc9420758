package telemetry

import (
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// RecordVitalEntry converts a raw timing entry into a vital measurement and
// stores it. Malformed or unrecognized entries are logged and skipped; the
// entry stream keeps flowing.
func (c *Collector) RecordVitalEntry(raw map[string]any) {
	var entry rawVitalEntry
	if err := decodeEntry(raw, &entry); err != nil {
		c.log.Warn("skipping malformed vital entry", "error", err)
		return
	}

	metric, ok := normalizeMetricName(entry.Metric)
	if !ok {
		c.log.Warn("skipping vital entry with unknown metric", "metric", entry.Metric)
		return
	}

	// Layout shift ignores shifts caused by recent user input so
	// intentional moves are not penalized.
	if metric == types.MetricLayoutShift && entry.HadRecentInput {
		return
	}

	c.RecordVital(metric, entry.Value, entry.EntryIDs)
}

// RecordVital stores a measurement for the given metric. Cumulative metrics
// accumulate across samples: the stored value is the running total and delta
// carries this sample's contribution. Point metrics store the sample value
// with delta relative to the previous sample.
func (c *Collector) RecordVital(metric types.VitalMetric, value float64, entryIDs []string) {
	if !metric.Valid() {
		c.log.Warn("dropping vital with invalid metric", "metric", string(metric))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	m := types.VitalMeasurement{
		Observation: types.NewObservation(types.SourceVitals),
		Metric:      metric,
		EntryIDs:    entryIDs,
	}

	if metric.Cumulative() {
		c.cumulative[metric] += value
		m.Value = c.cumulative[metric]
		m.Delta = value
	} else {
		m.Value = value
		m.Delta = value - c.lastVitalValueLocked(metric)
	}

	c.vitals.Push(m)
	snapshot := c.vitals.All()
	c.mu.Unlock()

	c.vitalsBus.Publish(snapshot)
}

// lastVitalValueLocked returns the most recent stored value for the metric.
// Caller holds c.mu.
func (c *Collector) lastVitalValueLocked(metric types.VitalMetric) float64 {
	all := c.vitals.All()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Metric == metric {
			return all[i].Value
		}
	}
	return 0
}
