package stats

import (
	"sort"
	"time"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// EndpointStat aggregates API call measurements for one normalized endpoint
type EndpointStat struct {
	Endpoint    string    `json:"endpoint"`
	Requests    int       `json:"requests"`
	AverageTime float64   `json:"average_time_ms"`
	SlowestTime float64   `json:"slowest_time_ms"`
	ErrorCount  int       `json:"error_count"`
	LastSeen    time.Time `json:"last_seen"`
}

// APISummary is the derived view of an API call buffer
type APISummary struct {
	TotalRequests       int            `json:"total_requests"`
	AverageResponseTime float64        `json:"average_response_time_ms"`
	P95ResponseTime     float64        `json:"p95_response_time_ms"`
	ErrorRate           float64        `json:"error_rate"`
	CacheHitRate        *float64       `json:"cache_hit_rate,omitempty"`
	SlowestEndpoints    []EndpointStat `json:"slowest_endpoints"`
}

// maxSlowestEndpoints bounds the slowest-endpoint list in a summary
const maxSlowestEndpoints = 5

// SummarizeAPICalls computes the API performance summary over a buffer
// snapshot. An empty buffer yields a zero summary, never an error.
func SummarizeAPICalls(records []types.APICallRecord) APISummary {
	summary := APISummary{SlowestEndpoints: []EndpointStat{}}
	if len(records) == 0 {
		return summary
	}

	latencies := make([]float64, 0, len(records))
	byEndpoint := make(map[string]*EndpointStat)
	errors := 0
	cacheHits := 0

	for i := range records {
		r := &records[i]
		ms := float64(r.Latency) / float64(time.Millisecond)
		latencies = append(latencies, ms)

		if r.Status >= 400 {
			errors++
		}
		if r.CacheHit {
			cacheHits++
		}

		es, ok := byEndpoint[r.Endpoint]
		if !ok {
			es = &EndpointStat{Endpoint: r.Endpoint}
			byEndpoint[r.Endpoint] = es
		}
		es.Requests++
		// Running mean avoids a second pass per endpoint.
		es.AverageTime += (ms - es.AverageTime) / float64(es.Requests)
		if ms > es.SlowestTime {
			es.SlowestTime = ms
		}
		if r.Status >= 400 {
			es.ErrorCount++
		}
		if r.Timestamp.After(es.LastSeen) {
			es.LastSeen = r.Timestamp
		}
	}

	summary.TotalRequests = len(records)
	summary.AverageResponseTime = Mean(latencies)
	summary.P95ResponseTime = Percentile(latencies, 95)
	summary.ErrorRate = float64(errors) / float64(len(records))

	rate := float64(cacheHits) / float64(len(records))
	summary.CacheHitRate = &rate

	endpoints := make([]EndpointStat, 0, len(byEndpoint))
	for _, es := range byEndpoint {
		endpoints = append(endpoints, *es)
	}
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].SlowestTime != endpoints[j].SlowestTime {
			return endpoints[i].SlowestTime > endpoints[j].SlowestTime
		}
		return endpoints[i].Endpoint < endpoints[j].Endpoint
	})
	if len(endpoints) > maxSlowestEndpoints {
		endpoints = endpoints[:maxSlowestEndpoints]
	}
	summary.SlowestEndpoints = endpoints

	return summary
}
