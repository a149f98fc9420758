// Package types provides core data structures and type definitions
// for the telemetry engine: observations, insights, patterns, budgets,
// and exported reports.
package types

import (
	"time"

	"github.com/google/uuid"
)

// ObservationSource identifies which instrumentation adapter produced an observation
type ObservationSource string

const (
	// SourceVitals represents rendering/interactivity/stability timing metrics
	SourceVitals ObservationSource = "vitals"
	// SourceAPI represents outbound API call measurements
	SourceAPI ObservationSource = "api"
	// SourceQuery represents data-access query measurements
	SourceQuery ObservationSource = "query"
	// SourceError represents captured runtime errors
	SourceError ObservationSource = "error"
)

// Valid returns true if the observation source is one of the known adapters
func (s ObservationSource) Valid() bool {
	switch s {
	case SourceVitals, SourceAPI, SourceQuery, SourceError:
		return true
	}
	return false
}

// Observation is the common header shared by every recorded measurement.
// Observations are immutable once recorded.
type Observation struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Source    ObservationSource `json:"source"`
}

// NewObservation creates an observation header for the given source
func NewObservation(source ObservationSource) Observation {
	return Observation{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Source:    source,
	}
}

// VitalMetric enumerates the fixed set of watched timing categories
type VitalMetric string

const (
	// MetricFirstPaint is the time to first paint
	MetricFirstPaint VitalMetric = "first-paint"
	// MetricLargestPaint is the largest contentful paint time
	MetricLargestPaint VitalMetric = "largest-paint"
	// MetricInputDelay is the first input delay
	MetricInputDelay VitalMetric = "input-delay"
	// MetricLayoutShift is the cumulative layout shift score
	MetricLayoutShift VitalMetric = "layout-shift"
	// MetricByteToFirstResponse is the time to first response byte
	MetricByteToFirstResponse VitalMetric = "byte-to-first-response"
	// MetricInteractionLatency is the interaction-to-next-paint latency
	MetricInteractionLatency VitalMetric = "interaction-latency"
)

// Valid returns true if the metric name is part of the watched set
func (m VitalMetric) Valid() bool {
	switch m {
	case MetricFirstPaint, MetricLargestPaint, MetricInputDelay,
		MetricLayoutShift, MetricByteToFirstResponse, MetricInteractionLatency:
		return true
	}
	return false
}

// Cumulative returns true for metrics whose value accumulates across entries
// rather than being replaced by the latest sample
func (m VitalMetric) Cumulative() bool {
	return m == MetricLayoutShift
}

// VitalMeasurement records one rendering/interactivity timing sample
type VitalMeasurement struct {
	Observation
	Metric      VitalMetric `json:"metric"`
	Value       float64     `json:"value"`
	Delta       float64     `json:"delta"`
	// EntryIDs are opaque references to the originating raw entries;
	// they are never reprocessed.
	EntryIDs []string `json:"entry_ids,omitempty"`
}

// APICallRecord records one outbound API request measurement
type APICallRecord struct {
	Observation
	Endpoint string        `json:"endpoint"`
	Method   string        `json:"method"`
	Latency  time.Duration `json:"latency"`
	Status   int           `json:"status"`
	Size     int64         `json:"size"`
	CacheHit bool          `json:"cache_hit"`
}

// QueryOperation classifies a data-access operation
type QueryOperation string

const (
	// OpRead represents a select/find operation
	OpRead QueryOperation = "read"
	// OpInsert represents a create operation
	OpInsert QueryOperation = "insert"
	// OpUpdate represents an update operation
	OpUpdate QueryOperation = "update"
	// OpDelete represents a delete operation
	OpDelete QueryOperation = "delete"
	// OpUpsert represents an insert-or-update operation
	OpUpsert QueryOperation = "upsert"
)

// QueryOperations lists every operation kind in a fixed order, used when
// building per-operation distributions so zero-count kinds still appear.
func QueryOperations() []QueryOperation {
	return []QueryOperation{OpRead, OpInsert, OpUpdate, OpDelete, OpUpsert}
}

// Valid returns true if the operation kind is known
func (op QueryOperation) Valid() bool {
	switch op {
	case OpRead, OpInsert, OpUpdate, OpDelete, OpUpsert:
		return true
	}
	return false
}

// QueryContext carries request-scoped attribution attached to query records.
// It is set by the HTTP-handling collaborator, never inferred.
type QueryContext struct {
	UserID    string `json:"user_id,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// QueryRecord records one data-access operation measurement
type QueryRecord struct {
	Observation
	Signature string         `json:"signature"`
	Operation QueryOperation `json:"operation"`
	Table     string         `json:"table"`
	Duration  time.Duration  `json:"duration"`
	RowCount  int64          `json:"row_count"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Cached    bool           `json:"cached"`
	Context   QueryContext   `json:"context"`
}

// Severity grades how serious an error, insight, or violation is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns a sortable weight for the severity, higher is worse
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the severity is one of the known grades
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ErrorKind classifies a captured error by its origin
type ErrorKind string

const (
	// ErrorKindException represents an uncaught synchronous exception
	ErrorKindException ErrorKind = "exception"
	// ErrorKindRejection represents an unhandled asynchronous rejection
	ErrorKindRejection ErrorKind = "rejection"
	// ErrorKindExplicit represents an error reported through the capture API
	ErrorKindExplicit ErrorKind = "explicit"
)

// Valid reports whether the kind is one of the known classifications
func (k ErrorKind) Valid() bool {
	switch k {
	case ErrorKindException, ErrorKindRejection, ErrorKindExplicit:
		return true
	}
	return false
}

// ErrorRecord records one captured runtime error
type ErrorRecord struct {
	Observation
	Message string `json:"message"`
	// Normalized is the message with dynamic tokens stripped, used for clustering
	Normalized string    `json:"normalized"`
	Stack      string    `json:"stack,omitempty"`
	Severity   Severity  `json:"severity"`
	Kind       ErrorKind `json:"kind"`
	URL        string    `json:"url,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	// Snapshot optionally captures surrounding performance state
	Snapshot map[string]float64 `json:"snapshot,omitempty"`
}

// InsightType groups insights by the rule that produced them
type InsightType string

const (
	// InsightSlowObservation flags records far over their metric threshold
	InsightSlowObservation InsightType = "slow_observation"
	// InsightRepeatedError flags clusters of the same normalized error
	InsightRepeatedError InsightType = "repeated_error"
	// InsightNPlusOne flags probable N+1 query patterns
	InsightNPlusOne InsightType = "n_plus_one"
	// InsightBudgetViolation flags configured budget breaches
	InsightBudgetViolation InsightType = "budget_violation"
)

// Insight is a derived, human-readable finding with severity and recommendation
type Insight struct {
	ID             string      `json:"id"`
	Type           InsightType `json:"type"`
	Severity       Severity    `json:"severity"`
	Message        string      `json:"message"`
	Recommendation string      `json:"recommendation"`
	// Impact scores how much this finding affects users, 0-100
	Impact float64 `json:"impact"`
	// ObservationIDs reference the contributing observations
	ObservationIDs []string  `json:"observation_ids,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Pattern is a cluster of similar observations with aggregate counts
type Pattern struct {
	Key           string    `json:"key"`
	Count         int       `json:"count"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	AffectedUsers []string  `json:"affected_users,omitempty"`
	Severity      Severity  `json:"severity"`
}

// Budget is a configured ceiling for a named metric
type Budget struct {
	Metric  string  `json:"metric"`
	Ceiling float64 `json:"ceiling"`
}

// ViolationImpact classifies how far over budget an observed value is
type ViolationImpact string

const (
	ImpactMinor    ViolationImpact = "minor"
	ImpactMajor    ViolationImpact = "major"
	ImpactCritical ViolationImpact = "critical"
)

// ClassifyViolation maps an observed/ceiling ratio onto an impact class:
// more than 2x over budget is critical, more than 1.5x is major, the rest minor.
func ClassifyViolation(observed, ceiling float64) ViolationImpact {
	switch {
	case observed > ceiling*2:
		return ImpactCritical
	case observed > ceiling*1.5:
		return ImpactMajor
	default:
		return ImpactMinor
	}
}

// BudgetViolation records an observed breach of a configured budget
type BudgetViolation struct {
	Metric   string          `json:"metric"`
	Ceiling  float64         `json:"ceiling"`
	Observed float64         `json:"observed"`
	Excess   float64         `json:"excess"`
	Impact   ViolationImpact `json:"impact"`
}

// Grade is the letter grade derived from an overall score
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeForScore maps an overall 0-100 score onto a letter grade.
// Boundaries are inclusive at the lower bound.
func GradeForScore(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// ReportVersion identifies the snapshot schema shipped to collaborators
const ReportVersion = "1.0"

// Report is an immutable snapshot of a monitor set: bounded observations,
// freshly recomputed statistics and insights, and budget results.
type Report struct {
	Version    string    `json:"version"`
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Score      float64   `json:"score"`
	Grade      Grade     `json:"grade"`
	URL        string    `json:"url,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`

	Vitals  []VitalMeasurement `json:"vitals"`
	APICall []APICallRecord    `json:"api_calls"`
	Queries []QueryRecord      `json:"queries"`
	Errors  []ErrorRecord      `json:"errors"`

	Insights   []Insight         `json:"insights"`
	Patterns   []Pattern         `json:"patterns"`
	Violations []BudgetViolation `json:"budget_violations"`
	// BudgetsPassed is true when no configured budget was breached
	BudgetsPassed bool `json:"budgets_passed"`
}
