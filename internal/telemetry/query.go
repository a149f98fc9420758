package telemetry

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeSignature collapses whitespace so the same logical query always
// produces the same signature regardless of formatting
func NormalizeSignature(query string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(query, " "))
}

// SetQueryContext attaches request-scoped identity to every query started
// until ClearQueryContext runs. The HTTP layer sets it at the start of a unit
// of work and clears it at the end.
func (c *Collector) SetQueryContext(ctx types.QueryContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryCtx = ctx
}

// ClearQueryContext resets the request-scoped context
func (c *Collector) ClearQueryContext() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryCtx = types.QueryContext{}
}

// QueryTimer is the before half of the data-access hook. StartQuery stamps
// the start time; Done measures elapsed wall clock and records the outcome.
type QueryTimer struct {
	c         *Collector
	signature string
	operation types.QueryOperation
	table     string
	queryCtx  types.QueryContext
	started   time.Time
	cached    bool
	finished  bool
}

// StartQuery begins measuring one data-access operation. The request context
// in effect at this moment travels with the timer, so a concurrent request
// swapping or clearing the collector's context cannot change this
// operation's attribution.
func (c *Collector) StartQuery(signature string, op types.QueryOperation, table string) *QueryTimer {
	c.mu.Lock()
	qctx := c.queryCtx
	c.mu.Unlock()

	return &QueryTimer{
		c:         c,
		signature: NormalizeSignature(signature),
		operation: op,
		table:     table,
		queryCtx:  qctx,
		started:   time.Now(),
	}
}

// MarkCached flags the operation as served from cache
func (t *QueryTimer) MarkCached() {
	t.cached = true
}

// Done records the finished operation. Failed operations are recorded with
// the error message and count toward totals like successful ones. Calling
// Done twice records nothing the second time.
func (t *QueryTimer) Done(rowCount int64, err error) {
	if t.finished {
		return
	}
	t.finished = true

	rec := types.QueryRecord{
		Observation: types.NewObservation(types.SourceQuery),
		Signature:   t.signature,
		Operation:   t.operation,
		Table:       t.table,
		Context:     t.queryCtx,
		Duration:    time.Since(t.started),
		RowCount:    rowCount,
		Success:     err == nil,
		Cached:      t.cached,
	}
	if err != nil {
		rec.Error = err.Error()
	}

	t.c.pushQuery(rec)
}

func (c *Collector) pushQuery(rec types.QueryRecord) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queries.Push(rec)
	snapshot := c.queries.All()
	c.mu.Unlock()

	c.queryBus.Publish(snapshot)
}

// Measure wraps a data-access operation, recording its duration and outcome
// while passing the result and any error through unchanged. The wrapped
// function's semantics are fully preserved; measurement is invisible to the
// caller.
func Measure[T any](c *Collector, ctx context.Context, signature string, op types.QueryOperation, table string, fn func(context.Context) (T, error)) (T, error) {
	timer := c.StartQuery(signature, op, table)
	result, err := fn(ctx)
	timer.Done(rowsOf(result), err)
	return result, err
}

// RowCounter lets measured results report how many rows they carry
type RowCounter interface {
	RowCount() int64
}

func rowsOf(v any) int64 {
	if r, ok := v.(RowCounter); ok {
		return r.RowCount()
	}
	return 0
}
