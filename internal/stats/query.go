package stats

import (
	"sort"
	"time"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// TableStat aggregates query measurements for one target table
type TableStat struct {
	Table           string  `json:"table"`
	Queries         int     `json:"queries"`
	AverageDuration float64 `json:"average_duration_ms"`
}

// TrendBucket is one windowed trend point: queries grouped by truncated hour
type TrendBucket struct {
	Hour            time.Time `json:"hour"`
	Queries         int       `json:"queries"`
	AverageDuration float64   `json:"average_duration_ms"`
}

// QueryStats is the derived view of a query buffer
type QueryStats struct {
	TotalQueries    int                          `json:"total_queries"`
	FailedQueries   int                          `json:"failed_queries"`
	AverageDuration float64                      `json:"average_duration_ms"`
	P95Duration     float64                      `json:"p95_duration_ms"`
	ByOperation     map[types.QueryOperation]int `json:"by_operation"`
	ByTable         []TableStat                  `json:"by_table"`
	CacheHitRatio   *float64                     `json:"cache_hit_ratio,omitempty"`
	HourlyTrend     []TrendBucket                `json:"hourly_trend"`
}

// trendWindow is how far back the hourly trend buckets reach
const trendWindow = 24 * time.Hour

// SummarizeQueries computes database-style statistics over a query buffer
// snapshot. Failed queries are counted in every total and flagged separately.
func SummarizeQueries(records []types.QueryRecord, now time.Time) QueryStats {
	qs := QueryStats{
		ByOperation: make(map[types.QueryOperation]int),
		ByTable:     []TableStat{},
		HourlyTrend: []TrendBucket{},
	}
	// Distribution is keyed by the fixed operation-kind enumeration so
	// zero-count kinds still appear.
	for _, op := range types.QueryOperations() {
		qs.ByOperation[op] = 0
	}
	if len(records) == 0 {
		return qs
	}

	durations := make([]float64, 0, len(records))
	byTable := make(map[string]*TableStat)
	trend := make(map[time.Time]*TrendBucket)
	cacheHits := 0
	cutoff := now.Add(-trendWindow)

	for i := range records {
		r := &records[i]
		ms := float64(r.Duration) / float64(time.Millisecond)
		durations = append(durations, ms)

		if !r.Success {
			qs.FailedQueries++
		}
		if r.Cached {
			cacheHits++
		}
		qs.ByOperation[r.Operation]++

		ts, ok := byTable[r.Table]
		if !ok {
			ts = &TableStat{Table: r.Table}
			byTable[r.Table] = ts
		}
		ts.Queries++
		ts.AverageDuration += (ms - ts.AverageDuration) / float64(ts.Queries)

		if r.Timestamp.After(cutoff) {
			hour := r.Timestamp.Truncate(time.Hour)
			tb, ok := trend[hour]
			if !ok {
				tb = &TrendBucket{Hour: hour}
				trend[hour] = tb
			}
			tb.Queries++
			tb.AverageDuration += (ms - tb.AverageDuration) / float64(tb.Queries)
		}
	}

	qs.TotalQueries = len(records)
	qs.AverageDuration = Mean(durations)
	qs.P95Duration = Percentile(durations, 95)

	ratio := float64(cacheHits) / float64(len(records))
	qs.CacheHitRatio = &ratio

	for _, ts := range byTable {
		qs.ByTable = append(qs.ByTable, *ts)
	}
	sort.Slice(qs.ByTable, func(i, j int) bool {
		if qs.ByTable[i].Queries != qs.ByTable[j].Queries {
			return qs.ByTable[i].Queries > qs.ByTable[j].Queries
		}
		return qs.ByTable[i].Table < qs.ByTable[j].Table
	})

	for _, tb := range trend {
		qs.HourlyTrend = append(qs.HourlyTrend, *tb)
	}
	sort.Slice(qs.HourlyTrend, func(i, j int) bool {
		return qs.HourlyTrend[i].Hour.Before(qs.HourlyTrend[j].Hour)
	})

	return qs
}
