// Package export builds versioned performance report snapshots and delivers
// them: as JSON for download, as rendered HTML, or shipped to a collaborator
// analytics endpoint. Delivery is fire-and-forget; a failed send is logged
// and never surfaces to the producing code path.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Damatnic/astral-core-v7-sub003/internal/logging"
	"github.com/Damatnic/astral-core-v7-sub003/internal/stats"
	"github.com/Damatnic/astral-core-v7-sub003/internal/telemetry"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// Payload is the wire form of a report: the versioned snapshot plus the
// recomputed aggregate statistics
type Payload struct {
	types.Report
	VitalScores map[string]float64 `json:"vital_scores"`
	APIStats    stats.APISummary   `json:"api_stats"`
	QueryStats  stats.QueryStats   `json:"query_stats"`
}

// Exporter serializes and ships report payloads
type Exporter struct {
	endpoint string
	client   *http.Client
	log      logging.Logger
}

// NewExporter creates an exporter posting to the given endpoint. A nil
// logger disables logging.
func NewExporter(endpoint string, timeout time.Duration, log logging.Logger) *Exporter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	return &Exporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.WithComponent("export"),
	}
}

// Build assembles an immutable snapshot from the collector's current state.
// Statistics and insights are recomputed fresh; nothing is read from caches.
func Build(c *telemetry.Collector, now time.Time) Payload {
	snap := c.Snapshot()
	scores := c.VitalsScores()
	score, grade := c.OverallScore()
	violations := c.BudgetViolations()

	return Payload{
		Report: types.Report{
			Version:       types.ReportVersion,
			ID:            uuid.New().String(),
			Timestamp:     now,
			Score:         score,
			Grade:         grade,
			Vitals:        snap.Vitals,
			APICall:       snap.APICalls,
			Queries:       snap.Queries,
			Errors:        snap.Errors,
			Insights:      c.Insights(now),
			Patterns:      c.ErrorPatterns(now),
			Violations:    violations,
			BudgetsPassed: len(violations) == 0,
		},
		VitalScores: scores,
		APIStats:    c.APISummary(),
		QueryStats:  c.QueryStats(now),
	}
}

// JSON serializes the payload for download
func JSON(p Payload) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing report: %w", err)
	}
	return data, nil
}

// Send posts the payload to the configured endpoint. Network failures and
// non-2xx responses are logged and reported through the return value; Send
// never panics and never retries.
func (e *Exporter) Send(ctx context.Context, p Payload) bool {
	data, err := json.Marshal(p)
	if err != nil {
		e.log.Error("serializing report for export", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		e.log.Error("building export request", "error", err, "endpoint", e.endpoint)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warn("report export failed", "error", err, "endpoint", e.endpoint)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.log.Warn("report export rejected", "status", resp.StatusCode, "endpoint", e.endpoint)
		return false
	}

	e.log.Debug("report exported", "report_id", p.ID, "endpoint", e.endpoint)
	return true
}

// SendAsync ships the payload without blocking the caller. The outcome is
// only ever logged.
func (e *Exporter) SendAsync(p Payload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
		defer cancel()
		e.Send(ctx, p)
	}()
}
