package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(DefaultConfig(), nil)
}

func TestRecordVitalEntry(t *testing.T) {
	c := newTestCollector(t)

	c.RecordVitalEntry(map[string]any{"metric": "LCP", "value": 2100.0})

	vitals := c.Vitals()
	require.Len(t, vitals, 1)
	assert.Equal(t, types.MetricLargestPaint, vitals[0].Metric)
	assert.InDelta(t, 2100, vitals[0].Value, 0.01)
	assert.NotEmpty(t, vitals[0].ID)
	assert.Equal(t, types.SourceVitals, vitals[0].Source)
}

func TestRecordVitalEntryUnknownMetricSkipped(t *testing.T) {
	c := newTestCollector(t)
	c.RecordVitalEntry(map[string]any{"metric": "made-up-metric", "value": 1.0})
	assert.Empty(t, c.Vitals())
}

func TestLayoutShiftAccumulates(t *testing.T) {
	c := newTestCollector(t)

	c.RecordVitalEntry(map[string]any{"metric": "CLS", "value": 0.05})
	c.RecordVitalEntry(map[string]any{"metric": "CLS", "value": 0.03})

	vitals := c.Vitals()
	require.Len(t, vitals, 2)
	assert.InDelta(t, 0.05, vitals[0].Value, 0.0001)
	assert.InDelta(t, 0.08, vitals[1].Value, 0.0001)
	assert.InDelta(t, 0.03, vitals[1].Delta, 0.0001)
}

func TestLayoutShiftIgnoresRecentInput(t *testing.T) {
	c := newTestCollector(t)

	c.RecordVitalEntry(map[string]any{"metric": "CLS", "value": 0.05})
	c.RecordVitalEntry(map[string]any{"metric": "CLS", "value": 0.4, "hadRecentInput": true})

	vitals := c.Vitals()
	require.Len(t, vitals, 1)
	assert.InDelta(t, 0.05, vitals[0].Value, 0.0001)
}

func TestTrackAPICall(t *testing.T) {
	c := newTestCollector(t)

	c.TrackAPICall("/api/users", "get", 250*time.Millisecond, 200, 1024)

	calls := c.APICalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/users", calls[0].Endpoint)
	assert.Equal(t, "GET", calls[0].Method)
	assert.Equal(t, 250*time.Millisecond, calls[0].Latency)
	assert.Equal(t, 200, calls[0].Status)
}

func TestObserveResourceEntry(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveResourceEntry(map[string]any{
		"name":            "https://app.example.com/api/appointments?page=2",
		"requestStart":    100.0,
		"responseEnd":     350.0,
		"transferSize":    int64(2048),
		"encodedBodySize": int64(1900),
	})

	calls := c.APICalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/appointments", calls[0].Endpoint)
	assert.Equal(t, 250*time.Millisecond, calls[0].Latency)
	assert.False(t, calls[0].CacheHit)
}

func TestObserveResourceEntryCacheHitInference(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveResourceEntry(map[string]any{
		"name":            "/api/profile",
		"requestStart":    10.0,
		"responseEnd":     12.0,
		"transferSize":    int64(0),
		"encodedBodySize": int64(512),
	})

	calls := c.APICalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].CacheHit)
}

func TestObserveResourceEntryIgnoresNonAPIPaths(t *testing.T) {
	c := newTestCollector(t)
	c.ObserveResourceEntry(map[string]any{
		"name":         "https://cdn.example.com/assets/logo.png",
		"requestStart": 0.0,
		"responseEnd":  50.0,
	})
	assert.Empty(t, c.APICalls())
}

func TestMeasurePassesResultThrough(t *testing.T) {
	c := newTestCollector(t)

	rows, err := Measure(c, context.Background(), "SELECT  *  FROM users", types.OpRead, "users",
		func(ctx context.Context) ([]string, error) {
			return []string{"alice", "bob"}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, rows)

	queries := c.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT * FROM users", queries[0].Signature)
	assert.True(t, queries[0].Success)
}

func TestMeasureReturnsOriginalError(t *testing.T) {
	c := newTestCollector(t)
	boom := errors.New("relation does not exist")

	_, err := Measure(c, context.Background(), "SELECT 1", types.OpRead, "users",
		func(ctx context.Context) (int, error) {
			return 0, boom
		})
	assert.Same(t, boom, err)

	queries := c.Queries()
	require.Len(t, queries, 1)
	assert.False(t, queries[0].Success)
	assert.Equal(t, "relation does not exist", queries[0].Error)
}

func TestFailedQueryCountsTowardTotals(t *testing.T) {
	c := newTestCollector(t)

	timer := c.StartQuery("INSERT INTO notes", types.OpInsert, "notes")
	timer.Done(0, errors.New("constraint violation"))

	stats := c.QueryStats(time.Now())
	assert.Equal(t, 1, stats.TotalQueries)
	assert.Equal(t, 1, stats.FailedQueries)
}

func TestQueryContextAttachedAndCleared(t *testing.T) {
	c := newTestCollector(t)

	c.SetQueryContext(types.QueryContext{UserID: "user-1", Endpoint: "/api/notes"})
	c.StartQuery("SELECT 1", types.OpRead, "notes").Done(1, nil)
	c.ClearQueryContext()
	c.StartQuery("SELECT 2", types.OpRead, "notes").Done(1, nil)

	queries := c.Queries()
	require.Len(t, queries, 2)
	assert.Equal(t, "user-1", queries[0].Context.UserID)
	assert.Empty(t, queries[1].Context.UserID)
}

func TestQueryContextCapturedAtStart(t *testing.T) {
	c := newTestCollector(t)

	// A second request clearing or swapping the shared context while this
	// operation is in flight must not change its attribution.
	c.SetQueryContext(types.QueryContext{UserID: "user-1", SessionID: "sess-1"})
	timer := c.StartQuery("SELECT * FROM appointments", types.OpRead, "appointments")
	c.ClearQueryContext()
	c.SetQueryContext(types.QueryContext{UserID: "user-2"})
	timer.Done(3, nil)

	queries := c.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "user-1", queries[0].Context.UserID)
	assert.Equal(t, "sess-1", queries[0].Context.SessionID)
}

func TestDoneIsIdempotent(t *testing.T) {
	c := newTestCollector(t)

	timer := c.StartQuery("SELECT 1", types.OpRead, "users")
	timer.Done(1, nil)
	timer.Done(1, nil)

	assert.Len(t, c.Queries(), 1)
}

func TestCaptureErrorDefaultsSeverity(t *testing.T) {
	c := newTestCollector(t)

	c.CaptureError(ErrorEvent{Message: "fetch failed", Kind: types.ErrorKindRejection})
	c.CaptureError(ErrorEvent{Message: "validation failed"})

	errs := c.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, types.SeverityHigh, errs[0].Severity)
	assert.Equal(t, types.ErrorKindExplicit, errs[1].Kind)
	assert.Equal(t, types.SeverityMedium, errs[1].Severity)
}

func TestCaptureErrorNormalizesMessage(t *testing.T) {
	c := newTestCollector(t)
	c.CaptureError(ErrorEvent{Message: "user 42 not found"})

	errs := c.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "user <n> not found", errs[0].Normalized)
}

func TestRecordErrorEntry(t *testing.T) {
	c := newTestCollector(t)

	c.RecordErrorEntry(map[string]any{
		"message":   "timeout after 3000 ms",
		"kind":      "unhandledrejection",
		"userId":    "user-9",
		"sessionId": "sess-1",
	})

	errs := c.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, types.ErrorKindRejection, errs[0].Kind)
	assert.Equal(t, types.SeverityHigh, errs[0].Severity)
	assert.Equal(t, "user-9", errs[0].UserID)
}

func TestSubscribeReplaysAndPushes(t *testing.T) {
	c := newTestCollector(t)
	c.TrackAPICall("/api/users", "GET", 100*time.Millisecond, 200, 0)

	var snapshots [][]types.APICallRecord
	unsubscribe := c.SubscribeAPICalls(func(calls []types.APICallRecord) {
		snapshots = append(snapshots, calls)
	})

	// Replay on subscribe, then one push per track.
	require.Len(t, snapshots, 1)
	c.TrackAPICall("/api/users", "GET", 200*time.Millisecond, 200, 0)
	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[1], 2)

	unsubscribe()
	c.TrackAPICall("/api/users", "GET", 300*time.Millisecond, 200, 0)
	assert.Len(t, snapshots, 2)
}

func TestConcurrentPushesWithSubscriber(t *testing.T) {
	c := newTestCollector(t)

	var deliveries atomic.Int64
	c.SubscribeAPICalls(func([]types.APICallRecord) {
		deliveries.Add(1)
	})

	// Beacon handlers run on concurrent goroutines, so pushes from several
	// requests at once must be safe alongside snapshot fanout.
	const goroutines = 8
	const perGoroutine = 10

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				c.TrackAPICall("/api/users", "GET", 50*time.Millisecond, 200, 0)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, c.APICalls(), goroutines*perGoroutine)
	assert.Positive(t, deliveries.Load())
}

func TestOverallScoreAndGrade(t *testing.T) {
	c := newTestCollector(t)

	// Both sampled metrics within their good thresholds.
	c.RecordVital(types.MetricFirstPaint, 1000, nil)
	c.RecordVital(types.MetricLargestPaint, 2000, nil)

	score, grade := c.OverallScore()
	assert.InDelta(t, 100, score, 0.01)
	assert.Equal(t, types.GradeA, grade)
}

func TestInsightsOnEmptyCollector(t *testing.T) {
	c := newTestCollector(t)
	assert.Empty(t, c.Insights(time.Now()))
}

func TestCleanupIsIdempotent(t *testing.T) {
	c := newTestCollector(t)
	c.TrackAPICall("/api/users", "GET", 100*time.Millisecond, 200, 0)

	c.Cleanup()
	c.Cleanup()

	assert.True(t, c.Closed())
	assert.Empty(t, c.APICalls())

	// Observations after cleanup are dropped.
	c.TrackAPICall("/api/users", "GET", 100*time.Millisecond, 200, 0)
	c.RecordVital(types.MetricFirstPaint, 1000, nil)
	c.CaptureError(ErrorEvent{Message: "late"})
	assert.Empty(t, c.APICalls())
	assert.Empty(t, c.Vitals())
	assert.Empty(t, c.Errors())
}

func TestCleanupDropsSubscribers(t *testing.T) {
	c := newTestCollector(t)
	c.TrackAPICall("/api/users", "GET", 100*time.Millisecond, 200, 0)

	calls := 0
	unsubscribe := c.SubscribeAPICalls(func([]types.APICallRecord) { calls++ })
	require.Equal(t, 1, calls, "replay on subscribe")

	c.Cleanup()

	// No replay state survives cleanup and the old callback is detached.
	replayed := false
	c.SubscribeAPICalls(func([]types.APICallRecord) { replayed = true })
	assert.False(t, replayed)
	assert.Equal(t, 1, calls)
	assert.NotPanics(t, func() { unsubscribe() })
}

func TestBufferCapacityEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APICapacity = 3
	c := NewCollector(cfg, nil)

	for i := 0; i < 4; i++ {
		c.TrackAPICall("/api/users", "GET", time.Duration(i)*time.Millisecond, 200, 0)
	}

	calls := c.APICalls()
	require.Len(t, calls, 3)
	assert.Equal(t, 1*time.Millisecond, calls[0].Latency)
	assert.Equal(t, 3*time.Millisecond, calls[2].Latency)
}
