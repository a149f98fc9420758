package telemetry

import (
	"net/url"
	"strings"
	"time"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// ObserveResourceEntry is the passive API observation path. It accepts a raw
// resource timing entry, keeps only entries whose path looks like an API
// call, derives latency from the timing bounds, and infers cache hits when
// bytes were decoded without any transfer. Call sites that know real status
// and latency should use TrackAPICall instead; a given call must flow through
// exactly one of the two paths.
func (c *Collector) ObserveResourceEntry(raw map[string]any) {
	var entry rawResourceEntry
	if err := decodeEntry(raw, &entry); err != nil {
		c.log.Warn("skipping malformed resource entry", "error", err)
		return
	}

	endpoint, ok := c.apiPath(entry.Name)
	if !ok {
		return
	}

	latency := entry.ResponseEnd - entry.RequestStart
	if latency < 0 {
		c.log.Warn("skipping resource entry with inverted timing", "endpoint", endpoint)
		return
	}

	method := strings.ToUpper(strings.TrimSpace(entry.Method))
	if method == "" {
		method = "GET"
	}

	rec := types.APICallRecord{
		Observation: types.NewObservation(types.SourceAPI),
		Endpoint:    endpoint,
		Method:      method,
		Latency:     time.Duration(latency * float64(time.Millisecond)),
		Size:        entry.TransferSize,
		// Zero transfer with a non-empty decoded body means the
		// response came from cache.
		CacheHit: entry.TransferSize == 0 && entry.EncodedBodySize > 0,
	}

	c.pushAPICall(rec)
}

// TrackAPICall is the explicit instrumentation path for callers that know the
// real status and latency of a finished call
func (c *Collector) TrackAPICall(endpoint, method string, latency time.Duration, status int, size int64) {
	rec := types.APICallRecord{
		Observation: types.NewObservation(types.SourceAPI),
		Endpoint:    normalizeEndpoint(endpoint),
		Method:      strings.ToUpper(strings.TrimSpace(method)),
		Latency:     latency,
		Status:      status,
		Size:        size,
	}
	c.pushAPICall(rec)
}

func (c *Collector) pushAPICall(rec types.APICallRecord) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.api.Push(rec)
	snapshot := c.api.All()
	c.mu.Unlock()

	c.apiBus.Publish(snapshot)
}

// apiPath extracts the request path from a resource URL and reports whether
// it falls under the configured API prefix
func (c *Collector) apiPath(resource string) (string, bool) {
	path := resource
	if u, err := url.Parse(resource); err == nil && u.Path != "" {
		path = u.Path
	}
	if !strings.HasPrefix(path, c.cfg.APIPathPrefix) {
		return "", false
	}
	return normalizeEndpoint(path), true
}

// normalizeEndpoint strips query strings and trailing slashes so the same
// logical endpoint aggregates under one key
func normalizeEndpoint(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	if len(endpoint) > 1 {
		endpoint = strings.TrimRight(endpoint, "/")
	}
	return endpoint
}
