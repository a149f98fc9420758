// Package telemetry is the heart of the performance engine. A Collector owns
// one bounded buffer per instrumentation source (vitals, API calls, queries,
// errors), converts raw entries into typed observations at the adapter
// boundary, publishes snapshots to subscribers on every push, and exposes the
// derived statistics and insights the dashboard and exporter consume.
//
// A Collector is an explicit dependency handed to every consumer. Tests and
// embedders construct isolated instances; there is no package-level state.
package telemetry

import (
	"sync"
	"time"

	"github.com/Damatnic/astral-core-v7-sub003/internal/buffer"
	"github.com/Damatnic/astral-core-v7-sub003/internal/bus"
	"github.com/Damatnic/astral-core-v7-sub003/internal/insight"
	"github.com/Damatnic/astral-core-v7-sub003/internal/logging"
	"github.com/Damatnic/astral-core-v7-sub003/internal/stats"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// Config sizes the collector's buffers and tunes scoring and detection
type Config struct {
	VitalsCapacity int
	APICapacity    int
	QueryCapacity  int
	ErrorCapacity  int

	Thresholds stats.ThresholdTable
	Detector   insight.Config

	// APIPathPrefix filters which resource timing entries count as API
	// calls on the passive observation path
	APIPathPrefix string
}

// DefaultConfig returns the documented capacity and rule defaults
func DefaultConfig() Config {
	return Config{
		VitalsCapacity: 50,
		APICapacity:    100,
		QueryCapacity:  200,
		ErrorCapacity:  50,
		Thresholds:     insight.DefaultThresholds(),
		Detector:       insight.DefaultConfig(),
		APIPathPrefix:  "/api/",
	}
}

// Collector aggregates the four monitors behind one injected instance.
// All buffer access goes through the collector's mutex; the underlying
// stores are unsynchronized by design.
type Collector struct {
	mu  sync.Mutex
	cfg Config
	log logging.Logger

	vitals  *buffer.Store[types.VitalMeasurement]
	api     *buffer.Store[types.APICallRecord]
	queries *buffer.Store[types.QueryRecord]
	errors  *buffer.Store[types.ErrorRecord]

	vitalsBus *bus.Bus[[]types.VitalMeasurement]
	apiBus    *bus.Bus[[]types.APICallRecord]
	queryBus  *bus.Bus[[]types.QueryRecord]
	errorBus  *bus.Bus[[]types.ErrorRecord]

	detector *insight.Detector

	// cumulative holds running totals for metrics that accumulate across
	// entries, such as layout shift
	cumulative map[types.VitalMetric]float64

	queryCtx types.QueryContext

	closed bool
}

// NewCollector constructs a collector. A nil logger disables logging.
func NewCollector(cfg Config, log logging.Logger) *Collector {
	def := DefaultConfig()
	if cfg.VitalsCapacity <= 0 {
		cfg.VitalsCapacity = def.VitalsCapacity
	}
	if cfg.APICapacity <= 0 {
		cfg.APICapacity = def.APICapacity
	}
	if cfg.QueryCapacity <= 0 {
		cfg.QueryCapacity = def.QueryCapacity
	}
	if cfg.ErrorCapacity <= 0 {
		cfg.ErrorCapacity = def.ErrorCapacity
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.APIPathPrefix == "" {
		cfg.APIPathPrefix = def.APIPathPrefix
	}
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	log = log.WithComponent("telemetry")

	return &Collector{
		cfg:        cfg,
		log:        log,
		vitals:     buffer.NewStore[types.VitalMeasurement](cfg.VitalsCapacity),
		api:        buffer.NewStore[types.APICallRecord](cfg.APICapacity),
		queries:    buffer.NewStore[types.QueryRecord](cfg.QueryCapacity),
		errors:     buffer.NewStore[types.ErrorRecord](cfg.ErrorCapacity),
		vitalsBus:  bus.New[[]types.VitalMeasurement](log),
		apiBus:     bus.New[[]types.APICallRecord](log),
		queryBus:   bus.New[[]types.QueryRecord](log),
		errorBus:   bus.New[[]types.ErrorRecord](log),
		detector:   insight.NewDetector(cfg.Detector),
		cumulative: make(map[types.VitalMetric]float64),
	}
}

// Snapshot returns a copy of every buffer's current contents
func (c *Collector) Snapshot() insight.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return insight.Snapshot{
		Vitals:   c.vitals.All(),
		APICalls: c.api.All(),
		Queries:  c.queries.All(),
		Errors:   c.errors.All(),
	}
}

// Vitals returns the buffered vital measurements in insertion order
func (c *Collector) Vitals() []types.VitalMeasurement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vitals.All()
}

// APICalls returns the buffered API call records in insertion order
func (c *Collector) APICalls() []types.APICallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.api.All()
}

// Queries returns the buffered query records in insertion order
func (c *Collector) Queries() []types.QueryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries.All()
}

// Errors returns the buffered error records in insertion order
func (c *Collector) Errors() []types.ErrorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors.All()
}

// VitalsScores returns the per-metric scores for the current vitals
func (c *Collector) VitalsScores() map[string]float64 {
	return stats.VitalsScores(c.Vitals(), c.cfg.Thresholds)
}

// OverallScore returns the mean score across sampled metrics and its grade
func (c *Collector) OverallScore() (float64, types.Grade) {
	score := stats.OverallScore(c.VitalsScores())
	return score, types.GradeForScore(score)
}

// APISummary returns the aggregate view over buffered API calls
func (c *Collector) APISummary() stats.APISummary {
	return stats.SummarizeAPICalls(c.APICalls())
}

// QueryStats returns the aggregate view over buffered queries
func (c *Collector) QueryStats(now time.Time) stats.QueryStats {
	return stats.SummarizeQueries(c.Queries(), now)
}

// Insights runs the detector over the current buffers
func (c *Collector) Insights(now time.Time) []types.Insight {
	return c.detector.Detect(c.Snapshot(), now)
}

// ErrorPatterns clusters the buffered errors
func (c *Collector) ErrorPatterns(now time.Time) []types.Pattern {
	return c.detector.ErrorPatterns(c.Errors(), now)
}

// BudgetViolations checks the configured budgets against current values
func (c *Collector) BudgetViolations() []types.BudgetViolation {
	return c.detector.BudgetViolations(c.Snapshot())
}

// SubscribeVitals registers for vitals snapshots. If measurements already
// exist the callback fires immediately with the current snapshot.
func (c *Collector) SubscribeVitals(fn func([]types.VitalMeasurement)) bus.Unsubscribe {
	return c.vitalsBus.Subscribe(fn)
}

// SubscribeAPICalls registers for API call snapshots
func (c *Collector) SubscribeAPICalls(fn func([]types.APICallRecord)) bus.Unsubscribe {
	return c.apiBus.Subscribe(fn)
}

// SubscribeQueries registers for query snapshots
func (c *Collector) SubscribeQueries(fn func([]types.QueryRecord)) bus.Unsubscribe {
	return c.queryBus.Subscribe(fn)
}

// SubscribeErrors registers for error snapshots
func (c *Collector) SubscribeErrors(fn func([]types.ErrorRecord)) bus.Unsubscribe {
	return c.errorBus.Subscribe(fn)
}

// Cleanup empties every buffer, drops all subscribers, and stops the
// collector from accepting further observations. Safe to call twice.
func (c *Collector) Cleanup() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.vitals.Clear()
	c.api.Clear()
	c.queries.Clear()
	c.errors.Clear()
	c.queryCtx = types.QueryContext{}
	c.cumulative = make(map[types.VitalMetric]float64)
	c.mu.Unlock()

	c.vitalsBus.Reset()
	c.apiBus.Reset()
	c.queryBus.Reset()
	c.errorBus.Reset()

	c.log.Info("telemetry collector cleaned up")
}

// Closed reports whether Cleanup has run
func (c *Collector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
