package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Damatnic/astral-core-v7-sub003/internal/telemetry"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

func seededCollector(t *testing.T) *telemetry.Collector {
	t.Helper()
	c := telemetry.NewCollector(telemetry.DefaultConfig(), nil)
	c.RecordVital(types.MetricLargestPaint, 2000, nil)
	c.TrackAPICall("/api/users", "GET", 150*time.Millisecond, 200, 512)
	c.StartQuery("SELECT * FROM users", types.OpRead, "users").Done(3, nil)
	c.CaptureError(telemetry.ErrorEvent{Message: "save failed"})
	return c
}

func TestBuildSnapshotsEverything(t *testing.T) {
	c := seededCollector(t)
	now := time.Now()

	p := Build(c, now)

	assert.Equal(t, types.ReportVersion, p.Version)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, now, p.Timestamp)
	assert.Len(t, p.Vitals, 1)
	assert.Len(t, p.APICall, 1)
	assert.Len(t, p.Queries, 1)
	assert.Len(t, p.Errors, 1)
	assert.True(t, p.BudgetsPassed)
	assert.Equal(t, 1, p.APIStats.TotalRequests)
	assert.Equal(t, 1, p.QueryStats.TotalQueries)
	assert.Equal(t, types.GradeA, p.Grade)
}

func TestBuildReportsBudgetFailure(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Detector.Budgets = []types.Budget{{Metric: "query-latency", Ceiling: 10}}
	c := telemetry.NewCollector(cfg, nil)
	c.StartQuery("SELECT pg_sleep(1)", types.OpRead, "users").Done(0, nil)

	p := Build(c, time.Now())
	assert.False(t, p.BudgetsPassed)
	assert.NotEmpty(t, p.Violations)
}

func TestJSONRoundTrip(t *testing.T) {
	p := Build(seededCollector(t), time.Now())

	data, err := JSON(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, types.ReportVersion, decoded["version"])
	assert.Contains(t, decoded, "vital_scores")
	assert.Contains(t, decoded, "api_stats")
}

func TestSendPostsJSON(t *testing.T) {
	var received Payload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e := NewExporter(srv.URL, 5*time.Second, nil)
	p := Build(seededCollector(t), time.Now())

	ok := e.Send(context.Background(), p)
	assert.True(t, ok)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, p.ID, received.ID)
}

func TestSendNon2xxIsLoggedNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewExporter(srv.URL, 5*time.Second, nil)
	ok := e.Send(context.Background(), Build(seededCollector(t), time.Now()))
	assert.False(t, ok)
}

func TestSendNetworkFailure(t *testing.T) {
	e := NewExporter("http://127.0.0.1:1/unreachable", time.Second, nil)
	ok := e.Send(context.Background(), Build(seededCollector(t), time.Now()))
	assert.False(t, ok)
}

func TestSendAsyncDoesNotBlock(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(done)
	}))
	defer srv.Close()

	e := NewExporter(srv.URL, 5*time.Second, nil)
	e.SendAsync(Build(seededCollector(t), time.Now()))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("async export never reached the endpoint")
	}
}

func TestMarkdownRendersSections(t *testing.T) {
	p := Build(seededCollector(t), time.Now())

	md := Markdown(p)
	assert.Contains(t, md, "# Performance Report")
	assert.Contains(t, md, "## Vitals")
	assert.Contains(t, md, "## API Calls")
	assert.Contains(t, md, "## Queries")
	assert.Contains(t, md, "All performance budgets passed.")
}

func TestHTMLRendersDocument(t *testing.T) {
	p := Build(seededCollector(t), time.Now())

	out, err := HTML(p)
	require.NoError(t, err)

	doc := string(out)
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, "<h1")
	assert.Contains(t, doc, "Performance Report")
}
