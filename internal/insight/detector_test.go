package insight

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

func errorAt(msg, userID string, ts time.Time) types.ErrorRecord {
	rec := types.ErrorRecord{
		Observation: types.NewObservation(types.SourceError),
		Message:     msg,
		Normalized:  NormalizeErrorMessage(msg),
		Severity:    types.SeverityMedium,
		Kind:        types.ErrorKindException,
		UserID:      userID,
	}
	rec.Timestamp = ts
	return rec
}

func queryAt(signature string, duration time.Duration, ts time.Time) types.QueryRecord {
	rec := types.QueryRecord{
		Observation: types.NewObservation(types.SourceQuery),
		Signature:   signature,
		Operation:   types.OpRead,
		Table:       "users",
		Duration:    duration,
		Success:     true,
	}
	rec.Timestamp = ts
	return rec
}

func TestNormalizeErrorMessage(t *testing.T) {
	assert.Equal(t, "user <n> not found", NormalizeErrorMessage("user 4821 not found"))
	assert.Equal(t, "session <id> expired", NormalizeErrorMessage("session 9f8b2c1d-aaaa-bbbb-cccc-0123456789ab expired"))
	assert.Equal(t, "bad pointer <hex>", NormalizeErrorMessage("bad pointer 0xdeadbeef"))
	assert.Equal(t, "plain message", NormalizeErrorMessage("plain message"))
}

func TestErrorPatternsSameNormalizedMessage(t *testing.T) {
	d := NewDetector(Config{})
	now := time.Now()

	var records []types.ErrorRecord
	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("user %d not found", 1000+i)
		records = append(records, errorAt(msg, "", now.Add(time.Duration(i)*time.Second)))
	}

	patterns := d.ErrorPatterns(records, now)
	require.Len(t, patterns, 1)
	assert.Equal(t, "user <n> not found", patterns[0].Key)
	assert.Equal(t, 5, patterns[0].Count)
}

func TestErrorPatternsBelowClusterMinimum(t *testing.T) {
	d := NewDetector(Config{})
	now := time.Now()

	records := []types.ErrorRecord{
		errorAt("one-off failure", "", now),
		errorAt("different failure", "", now),
	}
	assert.Empty(t, d.ErrorPatterns(records, now))
}

func TestErrorPatternSeverityEscalatesWithUsers(t *testing.T) {
	d := NewDetector(Config{})
	now := time.Now()

	var records []types.ErrorRecord
	for i := 0; i < 3; i++ {
		records = append(records, errorAt("save failed", fmt.Sprintf("user-%d", i), now))
	}

	patterns := d.ErrorPatterns(records, now)
	require.Len(t, patterns, 1)
	assert.Equal(t, types.SeverityHigh, patterns[0].Severity)
	assert.Len(t, patterns[0].AffectedUsers, 3)
}

func TestBudgetViolationCriticalQuery(t *testing.T) {
	d := NewDetector(Config{
		Budgets: []types.Budget{{Metric: "query-latency", Ceiling: 500}},
	})

	snap := Snapshot{
		Queries: []types.QueryRecord{queryAt("SELECT * FROM users", 1600*time.Millisecond, time.Now())},
	}

	violations := d.BudgetViolations(snap)
	require.Len(t, violations, 1)
	assert.Equal(t, "query-latency", violations[0].Metric)
	assert.Equal(t, types.ImpactCritical, violations[0].Impact)
	assert.InDelta(t, 1600, violations[0].Observed, 0.01)
	assert.InDelta(t, 1100, violations[0].Excess, 0.01)
}

func TestBudgetViolationImpactTiers(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name     string
		duration time.Duration
		impact   types.ViolationImpact
	}{
		{"just over", 600 * time.Millisecond, types.ImpactMinor},
		{"major", 800 * time.Millisecond, types.ImpactMajor},
		{"critical", 1100 * time.Millisecond, types.ImpactCritical},
	}

	d := NewDetector(Config{
		Budgets: []types.Budget{{Metric: "query-latency", Ceiling: 500}},
	})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := Snapshot{Queries: []types.QueryRecord{queryAt("q", tc.duration, now)}}
			violations := d.BudgetViolations(snap)
			require.Len(t, violations, 1)
			assert.Equal(t, tc.impact, violations[0].Impact)
		})
	}
}

func TestBudgetWithinCeilingProducesNothing(t *testing.T) {
	d := NewDetector(Config{
		Budgets: []types.Budget{{Metric: "query-latency", Ceiling: 500}},
	})
	snap := Snapshot{Queries: []types.QueryRecord{queryAt("q", 400*time.Millisecond, time.Now())}}
	assert.Empty(t, d.BudgetViolations(snap))
}

func TestDetectEmptySnapshot(t *testing.T) {
	d := NewDetector(Config{})
	insights := d.Detect(Snapshot{}, time.Now())
	assert.NotNil(t, insights)
	assert.Empty(t, insights)
}

func TestDetectSlowVital(t *testing.T) {
	d := NewDetector(Config{})
	now := time.Now()

	m := types.VitalMeasurement{
		Observation: types.NewObservation(types.SourceVitals),
		Metric:      types.MetricLargestPaint,
		Value:       6000, // target is 2500
	}

	insights := d.Detect(Snapshot{Vitals: []types.VitalMeasurement{m}}, now)
	require.Len(t, insights, 1)
	assert.Equal(t, types.InsightSlowObservation, insights[0].Type)
	assert.Equal(t, types.SeverityHigh, insights[0].Severity)
	assert.Contains(t, insights[0].ObservationIDs, m.ID)
}

func TestDetectVitalWithinTargetIsQuiet(t *testing.T) {
	d := NewDetector(Config{})
	m := types.VitalMeasurement{
		Observation: types.NewObservation(types.SourceVitals),
		Metric:      types.MetricLargestPaint,
		Value:       2000,
	}
	assert.Empty(t, d.Detect(Snapshot{Vitals: []types.VitalMeasurement{m}}, time.Now()))
}

func TestDetectNPlusOne(t *testing.T) {
	d := NewDetector(Config{})
	now := time.Now()

	var queries []types.QueryRecord
	for i := 0; i < 6; i++ {
		queries = append(queries, queryAt("SELECT * FROM posts WHERE author_id = ?",
			5*time.Millisecond, now.Add(time.Duration(i)*200*time.Millisecond)))
	}

	insights := d.Detect(Snapshot{Queries: queries}, now)
	require.Len(t, insights, 1)
	assert.Equal(t, types.InsightNPlusOne, insights[0].Type)
	assert.Equal(t, types.SeverityHigh, insights[0].Severity)
	assert.Len(t, insights[0].ObservationIDs, 6)
}

func TestDetectNPlusOneOutsideWindow(t *testing.T) {
	d := NewDetector(Config{NPlusOneWindow: time.Second})
	now := time.Now()

	// Six repetitions, but spread a minute apart.
	var queries []types.QueryRecord
	for i := 0; i < 6; i++ {
		queries = append(queries, queryAt("SELECT 1", time.Millisecond,
			now.Add(time.Duration(i)*time.Minute)))
	}
	assert.Empty(t, d.Detect(Snapshot{Queries: queries}, now))
}

func TestDetectSortsBySeverity(t *testing.T) {
	d := NewDetector(Config{
		Budgets: []types.Budget{{Metric: "query-latency", Ceiling: 100}},
	})
	now := time.Now()

	// A critical budget breach plus a medium slow vital.
	snap := Snapshot{
		Vitals: []types.VitalMeasurement{{
			Observation: types.NewObservation(types.SourceVitals),
			Metric:      types.MetricFirstPaint,
			Value:       2500, // 1.4x over the 1800 target
		}},
		Queries: []types.QueryRecord{queryAt("q", 5*time.Second, now)},
	}

	insights := d.Detect(snap, now)
	require.GreaterOrEqual(t, len(insights), 2)
	for i := 1; i < len(insights); i++ {
		assert.GreaterOrEqual(t, insights[i-1].Severity.Rank(), insights[i].Severity.Rank())
	}
	assert.Equal(t, types.SeverityCritical, insights[0].Severity)
}

func TestDetectSlowAPICallsClusterPerEndpoint(t *testing.T) {
	d := NewDetector(Config{})
	now := time.Now()

	mk := func(endpoint string, latency time.Duration) types.APICallRecord {
		rec := types.APICallRecord{
			Observation: types.NewObservation(types.SourceAPI),
			Endpoint:    endpoint,
			Method:      "GET",
			Latency:     latency,
			Status:      200,
		}
		rec.Timestamp = now
		return rec
	}

	snap := Snapshot{APICalls: []types.APICallRecord{
		mk("/api/users", 900*time.Millisecond),
		mk("/api/users", 1200*time.Millisecond),
		mk("/api/fast", 100*time.Millisecond),
	}}

	insights := d.Detect(snap, now)
	require.Len(t, insights, 1)
	assert.Equal(t, types.InsightSlowObservation, insights[0].Type)
	assert.Len(t, insights[0].ObservationIDs, 2)
	assert.Contains(t, insights[0].Message, "/api/users")
}
