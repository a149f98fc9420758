package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

func apiCall(endpoint string, latency time.Duration, status int) types.APICallRecord {
	return types.APICallRecord{
		Observation: types.NewObservation(types.SourceAPI),
		Endpoint:    endpoint,
		Method:      "GET",
		Latency:     latency,
		Status:      status,
	}
}

func TestSummarizeAPICallsEmpty(t *testing.T) {
	summary := SummarizeAPICalls(nil)

	assert.Equal(t, 0, summary.TotalRequests)
	assert.Equal(t, 0.0, summary.AverageResponseTime)
	assert.Empty(t, summary.SlowestEndpoints)
	assert.Nil(t, summary.CacheHitRate)
}

func TestSummarizeAPICallsEndToEnd(t *testing.T) {
	// Three calls to /api/users with latencies 100, 200 and 900 ms.
	records := []types.APICallRecord{
		apiCall("/api/users", 100*time.Millisecond, 200),
		apiCall("/api/users", 200*time.Millisecond, 200),
		apiCall("/api/users", 900*time.Millisecond, 200),
	}

	summary := SummarizeAPICalls(records)

	assert.Equal(t, 3, summary.TotalRequests)
	assert.Equal(t, 400.0, summary.AverageResponseTime)
	assert.Equal(t, 0.0, summary.ErrorRate)

	require.Len(t, summary.SlowestEndpoints, 1)
	slowest := summary.SlowestEndpoints[0]
	assert.Equal(t, "/api/users", slowest.Endpoint)
	assert.Equal(t, 900.0, slowest.SlowestTime)
	assert.Equal(t, 3, slowest.Requests)
	assert.InDelta(t, 400.0, slowest.AverageTime, 1e-9)
}

func TestSummarizeAPICallsErrorRate(t *testing.T) {
	records := []types.APICallRecord{
		apiCall("/api/appointments", 50*time.Millisecond, 200),
		apiCall("/api/appointments", 60*time.Millisecond, 500),
		apiCall("/api/billing", 70*time.Millisecond, 404),
		apiCall("/api/billing", 80*time.Millisecond, 201),
	}

	summary := SummarizeAPICalls(records)
	assert.Equal(t, 0.5, summary.ErrorRate)
	assert.Equal(t, 1, summary.SlowestEndpoints[0].ErrorCount)
}

func TestSummarizeAPICallsCacheHitRate(t *testing.T) {
	hit := apiCall("/api/wellness", 5*time.Millisecond, 200)
	hit.CacheHit = true
	records := []types.APICallRecord{
		hit,
		apiCall("/api/wellness", 120*time.Millisecond, 200),
	}

	summary := SummarizeAPICalls(records)
	require.NotNil(t, summary.CacheHitRate)
	assert.Equal(t, 0.5, *summary.CacheHitRate)
}

func TestSlowestEndpointsBounded(t *testing.T) {
	var records []types.APICallRecord
	endpoints := []string{"/api/a", "/api/b", "/api/c", "/api/d", "/api/e", "/api/f", "/api/g"}
	for i, ep := range endpoints {
		records = append(records, apiCall(ep, time.Duration(i+1)*100*time.Millisecond, 200))
	}

	summary := SummarizeAPICalls(records)
	require.Len(t, summary.SlowestEndpoints, maxSlowestEndpoints)
	// Sorted by descending slowest time.
	assert.Equal(t, "/api/g", summary.SlowestEndpoints[0].Endpoint)
	assert.Equal(t, "/api/c", summary.SlowestEndpoints[maxSlowestEndpoints-1].Endpoint)
}
