// Package insight provides rule-based analysis over monitor buffers: slow
// observation detection, repeated-error clustering, N+1 query detection, and
// performance budget checks. Detection runs on demand and is deterministic:
// the same buffer contents and configuration always yield the same findings.
package insight

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/Damatnic/astral-core-v7-sub003/internal/stats"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// Config holds the detector's rule thresholds
type Config struct {
	// Thresholds scores vitals and API latency; slow-observation detection
	// compares against each metric's Good boundary.
	Thresholds stats.ThresholdTable
	// SlowQueryThreshold flags individual queries over this duration
	SlowQueryThreshold time.Duration
	// Budgets are the configured ceilings checked on every detection run
	Budgets []types.Budget
	// ErrorClusterMin is the count at which repeated errors become a pattern
	ErrorClusterMin int
	// NPlusOneWindow is the sliding span within which identical query
	// signatures are counted
	NPlusOneWindow time.Duration
	// NPlusOneMin is the repetition count that flags a probable N+1 pattern
	NPlusOneMin int
}

// DefaultConfig returns the documented rule defaults
func DefaultConfig() Config {
	return Config{
		Thresholds:         DefaultThresholds(),
		SlowQueryThreshold: 1000 * time.Millisecond,
		ErrorClusterMin:    2,
		NPlusOneWindow:     10 * time.Second,
		NPlusOneMin:        5,
	}
}

// DefaultThresholds returns the scoring table used when no configuration
// overrides it. Values follow common web-performance guidance.
func DefaultThresholds() stats.ThresholdTable {
	return stats.ThresholdTable{
		string(types.MetricFirstPaint):          {Good: 1800, NeedsImprovement: 3000},
		string(types.MetricLargestPaint):        {Good: 2500, NeedsImprovement: 4000},
		string(types.MetricInputDelay):          {Good: 100, NeedsImprovement: 300},
		string(types.MetricLayoutShift):         {Good: 0.1, NeedsImprovement: 0.25},
		string(types.MetricByteToFirstResponse): {Good: 800, NeedsImprovement: 1800},
		string(types.MetricInteractionLatency):  {Good: 200, NeedsImprovement: 500},
		"api-latency":                           {Good: 500, NeedsImprovement: 1000},
	}
}

// Snapshot is the buffer state a detection run analyzes
type Snapshot struct {
	Vitals   []types.VitalMeasurement
	APICalls []types.APICallRecord
	Queries  []types.QueryRecord
	Errors   []types.ErrorRecord
}

// Detector runs the rules against a snapshot
type Detector struct {
	cfg Config
}

// NewDetector creates a detector, filling unset config fields with defaults
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Thresholds == nil {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = def.SlowQueryThreshold
	}
	if cfg.ErrorClusterMin <= 0 {
		cfg.ErrorClusterMin = def.ErrorClusterMin
	}
	if cfg.NPlusOneWindow <= 0 {
		cfg.NPlusOneWindow = def.NPlusOneWindow
	}
	if cfg.NPlusOneMin <= 0 {
		cfg.NPlusOneMin = def.NPlusOneMin
	}
	return &Detector{cfg: cfg}
}

// Detect runs every rule over the snapshot and returns the combined findings
// sorted by descending severity, then descending impact. Empty buffers yield
// an empty slice, never an error.
func (d *Detector) Detect(snap Snapshot, now time.Time) []types.Insight {
	insights := []types.Insight{}

	insights = append(insights, d.slowVitals(snap.Vitals, now)...)
	insights = append(insights, d.slowAPICalls(snap.APICalls, now)...)
	insights = append(insights, d.slowQueries(snap.Queries, now)...)
	insights = append(insights, d.errorClusterInsights(snap.Errors, now)...)
	insights = append(insights, d.nPlusOne(snap.Queries, now)...)
	insights = append(insights, d.budgetInsights(snap, now)...)

	sort.SliceStable(insights, func(i, j int) bool {
		if insights[i].Severity.Rank() != insights[j].Severity.Rank() {
			return insights[i].Severity.Rank() > insights[j].Severity.Rank()
		}
		return insights[i].Impact > insights[j].Impact
	})
	return insights
}

// severityForRatio maps how far over threshold an observation is onto a
// severity: more than 3x is critical, more than 2x high, over 1x medium.
func severityForRatio(ratio float64) types.Severity {
	switch {
	case ratio > 3:
		return types.SeverityCritical
	case ratio > 2:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}

// impactForRatio converts an over-threshold ratio into a bounded 0-100 score
func impactForRatio(ratio float64) float64 {
	impact := ratio * 25
	if impact > 100 {
		impact = 100
	}
	return impact
}

func (d *Detector) slowVitals(ms []types.VitalMeasurement, now time.Time) []types.Insight {
	var out []types.Insight
	// Only the current value per metric is judged; historical samples that
	// have since recovered are not re-reported.
	current := make(map[types.VitalMetric]types.VitalMeasurement)
	for _, m := range ms {
		current[m.Metric] = m
	}

	metrics := make([]string, 0, len(current))
	for metric := range current {
		metrics = append(metrics, string(metric))
	}
	sort.Strings(metrics)

	for _, name := range metrics {
		m := current[types.VitalMetric(name)]
		th, ok := d.cfg.Thresholds[name]
		if !ok || th.Good <= 0 || m.Value <= th.Good {
			continue
		}
		ratio := m.Value / th.Good
		out = append(out, types.Insight{
			ID:       fmt.Sprintf("slow_observation:vital:%s", name),
			Type:     types.InsightSlowObservation,
			Severity: severityForRatio(ratio),
			Message: fmt.Sprintf("%s is %.0f%% over its target (%.1f vs %.1f)",
				name, (ratio-1)*100, m.Value, th.Good),
			Recommendation: recommendationForVital(types.VitalMetric(name)),
			Impact:         impactForRatio(ratio),
			ObservationIDs: []string{m.ID},
			DetectedAt:     now,
		})
	}
	return out
}

func (d *Detector) slowAPICalls(records []types.APICallRecord, now time.Time) []types.Insight {
	th, ok := d.cfg.Thresholds["api-latency"]
	if !ok || th.Good <= 0 {
		return nil
	}

	// Cluster slow calls per endpoint so one chatty endpoint produces one
	// finding, not one per request.
	type cluster struct {
		ids      []string
		worst    float64
		count    int
		endpoint string
	}
	clusters := make(map[string]*cluster)
	for i := range records {
		r := &records[i]
		ms := float64(r.Latency) / float64(time.Millisecond)
		if ms <= th.Good {
			continue
		}
		c, ok := clusters[r.Endpoint]
		if !ok {
			c = &cluster{endpoint: r.Endpoint}
			clusters[r.Endpoint] = c
		}
		c.count++
		c.ids = append(c.ids, r.ID)
		if ms > c.worst {
			c.worst = ms
		}
	}

	endpoints := make([]string, 0, len(clusters))
	for ep := range clusters {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	var out []types.Insight
	for _, ep := range endpoints {
		c := clusters[ep]
		ratio := c.worst / th.Good
		out = append(out, types.Insight{
			ID:       fmt.Sprintf("slow_observation:api:%s", ep),
			Type:     types.InsightSlowObservation,
			Severity: severityForRatio(ratio),
			Message: fmt.Sprintf("%d slow call(s) to %s, worst %.0fms against a %.0fms target",
				c.count, ep, c.worst, th.Good),
			Recommendation: "Check server-side handling for this endpoint; consider caching or pagination.",
			Impact:         impactForRatio(ratio),
			ObservationIDs: c.ids,
			DetectedAt:     now,
		})
	}
	return out
}

func (d *Detector) slowQueries(records []types.QueryRecord, now time.Time) []types.Insight {
	threshold := float64(d.cfg.SlowQueryThreshold) / float64(time.Millisecond)

	type cluster struct {
		ids   []string
		worst float64
		count int
	}
	clusters := make(map[string]*cluster)
	for i := range records {
		r := &records[i]
		ms := float64(r.Duration) / float64(time.Millisecond)
		if ms <= threshold {
			continue
		}
		c, ok := clusters[r.Signature]
		if !ok {
			c = &cluster{}
			clusters[r.Signature] = c
		}
		c.count++
		c.ids = append(c.ids, r.ID)
		if ms > c.worst {
			c.worst = ms
		}
	}

	signatures := make([]string, 0, len(clusters))
	for sig := range clusters {
		signatures = append(signatures, sig)
	}
	sort.Strings(signatures)

	var out []types.Insight
	for _, sig := range signatures {
		c := clusters[sig]
		ratio := c.worst / threshold
		out = append(out, types.Insight{
			ID:       fmt.Sprintf("slow_observation:query:%s", sig),
			Type:     types.InsightSlowObservation,
			Severity: severityForRatio(ratio),
			Message: fmt.Sprintf("slow query %q ran %d time(s), worst %.0fms",
				sig, c.count, c.worst),
			Recommendation: "Add or adjust indexes for this query, or reduce the selected column set.",
			Impact:         impactForRatio(ratio),
			ObservationIDs: c.ids,
			DetectedAt:     now,
		})
	}
	return out
}

// ErrorPatterns clusters the buffered errors by normalized message. A cluster
// becomes a pattern once its count reaches the configured minimum.
func (d *Detector) ErrorPatterns(records []types.ErrorRecord, now time.Time) []types.Pattern {
	type cluster struct {
		count     int
		firstSeen time.Time
		lastSeen  time.Time
		users     map[string]struct{}
	}
	clusters := make(map[string]*cluster)

	for i := range records {
		r := &records[i]
		key := r.Normalized
		if key == "" {
			key = NormalizeErrorMessage(r.Message)
		}
		c, ok := clusters[key]
		if !ok {
			c = &cluster{firstSeen: r.Timestamp, lastSeen: r.Timestamp, users: make(map[string]struct{})}
			clusters[key] = c
		}
		c.count++
		if r.Timestamp.Before(c.firstSeen) {
			c.firstSeen = r.Timestamp
		}
		if r.Timestamp.After(c.lastSeen) {
			c.lastSeen = r.Timestamp
		}
		if r.UserID != "" {
			c.users[r.UserID] = struct{}{}
		}
	}

	keys := make([]string, 0, len(clusters))
	for key := range clusters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var patterns []types.Pattern
	for _, key := range keys {
		c := clusters[key]
		if c.count < d.cfg.ErrorClusterMin {
			continue
		}
		users := make([]string, 0, len(c.users))
		for u := range c.users {
			users = append(users, u)
		}
		sort.Strings(users)
		patterns = append(patterns, types.Pattern{
			Key:           key,
			Count:         c.count,
			FirstSeen:     c.firstSeen,
			LastSeen:      c.lastSeen,
			AffectedUsers: users,
			Severity:      errorPatternSeverity(c.count, len(c.users), c.firstSeen, now),
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Severity.Rank() != patterns[j].Severity.Rank() {
			return patterns[i].Severity.Rank() > patterns[j].Severity.Rank()
		}
		return patterns[i].Count > patterns[j].Count
	})
	return patterns
}

// errorPatternSeverity raises severity with frequency per day and with the
// number of distinct affected users
func errorPatternSeverity(count, userCount int, firstSeen time.Time, now time.Time) types.Severity {
	days := now.Sub(firstSeen).Hours() / 24
	if days < 1 {
		days = 1
	}
	perDay := float64(count) / days

	switch {
	case perDay >= 20 || userCount >= 10:
		return types.SeverityCritical
	case perDay >= 5 || userCount >= 3:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}

func (d *Detector) errorClusterInsights(records []types.ErrorRecord, now time.Time) []types.Insight {
	var out []types.Insight
	for _, p := range d.ErrorPatterns(records, now) {
		impact := float64(p.Count) * 10
		if len(p.AffectedUsers) > 1 {
			impact += float64(len(p.AffectedUsers)) * 5
		}
		if impact > 100 {
			impact = 100
		}
		out = append(out, types.Insight{
			ID:       fmt.Sprintf("repeated_error:%s", p.Key),
			Type:     types.InsightRepeatedError,
			Severity: p.Severity,
			Message: fmt.Sprintf("error %q occurred %d time(s) affecting %d user(s)",
				p.Key, p.Count, len(p.AffectedUsers)),
			Recommendation: "Group these occurrences under one fix; the normalized message points at a single root cause.",
			Impact:         impact,
			DetectedAt:     now,
		})
	}
	return out
}

// nPlusOne flags a high repetition count of the same query signature within a
// short sliding window, distinct from a single slow query
func (d *Detector) nPlusOne(records []types.QueryRecord, now time.Time) []types.Insight {
	bySignature := make(map[string][]types.QueryRecord)
	for _, r := range records {
		bySignature[r.Signature] = append(bySignature[r.Signature], r)
	}

	signatures := make([]string, 0, len(bySignature))
	for sig := range bySignature {
		signatures = append(signatures, sig)
	}
	sort.Strings(signatures)

	var out []types.Insight
	for _, sig := range signatures {
		group := bySignature[sig]
		if len(group) < d.cfg.NPlusOneMin {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})

		// Slide a window over the sorted timestamps looking for the
		// densest burst of this signature.
		best := 0
		bestStart := 0
		left := 0
		for right := range group {
			for group[right].Timestamp.Sub(group[left].Timestamp) > d.cfg.NPlusOneWindow {
				left++
			}
			if n := right - left + 1; n > best {
				best = n
				bestStart = left
			}
		}
		if best < d.cfg.NPlusOneMin {
			continue
		}

		ids := make([]string, 0, best)
		for _, r := range group[bestStart : bestStart+best] {
			ids = append(ids, r.ID)
		}
		impact := float64(best) * 8
		if impact > 100 {
			impact = 100
		}
		out = append(out, types.Insight{
			ID:       fmt.Sprintf("n_plus_one:%s", sig),
			Type:     types.InsightNPlusOne,
			Severity: types.SeverityHigh,
			Message: fmt.Sprintf("query %q executed %d times within %s, probable N+1 pattern",
				sig, best, d.cfg.NPlusOneWindow),
			Recommendation: "Batch these lookups into a single query or preload the relation.",
			Impact:         impact,
			ObservationIDs: ids,
			DetectedAt:     now,
		})
	}
	return out
}

// BudgetViolations compares each configured budget against the current value
// of its metric. Vitals and query-latency budgets check the latest sample;
// api-latency checks the current average.
func (d *Detector) BudgetViolations(snap Snapshot) []types.BudgetViolation {
	var out []types.BudgetViolation
	for _, b := range d.cfg.Budgets {
		observed, ok := d.currentValue(b.Metric, snap)
		if !ok || observed <= b.Ceiling {
			continue
		}
		out = append(out, types.BudgetViolation{
			Metric:   b.Metric,
			Ceiling:  b.Ceiling,
			Observed: observed,
			Excess:   observed - b.Ceiling,
			Impact:   types.ClassifyViolation(observed, b.Ceiling),
		})
	}
	return out
}

// currentValue resolves a budget metric name onto the snapshot
func (d *Detector) currentValue(metric string, snap Snapshot) (float64, bool) {
	switch metric {
	case "api-latency":
		if len(snap.APICalls) == 0 {
			return 0, false
		}
		return stats.SummarizeAPICalls(snap.APICalls).AverageResponseTime, true
	case "query-latency":
		if len(snap.Queries) == 0 {
			return 0, false
		}
		last := snap.Queries[len(snap.Queries)-1]
		return float64(last.Duration) / float64(time.Millisecond), true
	default:
		// Vitals budgets check the metric's most recent sample.
		for i := len(snap.Vitals) - 1; i >= 0; i-- {
			if string(snap.Vitals[i].Metric) == metric {
				return snap.Vitals[i].Value, true
			}
		}
		return 0, false
	}
}

func (d *Detector) budgetInsights(snap Snapshot, now time.Time) []types.Insight {
	var out []types.Insight
	for _, v := range d.BudgetViolations(snap) {
		var severity types.Severity
		switch v.Impact {
		case types.ImpactCritical:
			severity = types.SeverityCritical
		case types.ImpactMajor:
			severity = types.SeverityHigh
		default:
			severity = types.SeverityMedium
		}
		out = append(out, types.Insight{
			ID:       fmt.Sprintf("budget_violation:%s", v.Metric),
			Type:     types.InsightBudgetViolation,
			Severity: severity,
			Message: fmt.Sprintf("%s budget exceeded: %.1f observed against a ceiling of %.1f",
				v.Metric, v.Observed, v.Ceiling),
			Recommendation: "Revisit recent changes affecting this metric or adjust the budget if the ceiling is stale.",
			Impact:         impactForRatio(v.Observed / v.Ceiling),
			DetectedAt:     now,
		})
	}
	return out
}

var (
	uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	hexPattern  = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	numPattern  = regexp.MustCompile(`\d+`)
)

// NormalizeErrorMessage strips dynamic tokens (identifiers, numbers) from an
// error message so repeated occurrences of the same underlying failure share
// one pattern key
func NormalizeErrorMessage(msg string) string {
	msg = uuidPattern.ReplaceAllString(msg, "<id>")
	msg = hexPattern.ReplaceAllString(msg, "<hex>")
	msg = numPattern.ReplaceAllString(msg, "<n>")
	return msg
}

// recommendationForVital maps each watched timing category onto advice
func recommendationForVital(m types.VitalMetric) string {
	switch m {
	case types.MetricFirstPaint, types.MetricLargestPaint:
		return "Reduce render-blocking resources and compress above-the-fold images."
	case types.MetricInputDelay, types.MetricInteractionLatency:
		return "Break up long main-thread tasks and defer non-critical scripts."
	case types.MetricLayoutShift:
		return "Reserve space for late-loading content and set explicit media dimensions."
	case types.MetricByteToFirstResponse:
		return "Investigate server response time and enable early hints or CDN caching."
	default:
		return "Profile this metric's contributing resources."
	}
}
