package telemetry

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// Raw entries arrive from the browser beacon as loosely-shaped JSON objects.
// They are decoded into typed forms here, at the adapter boundary; nothing
// past this file ever touches a raw map.

// rawVitalEntry is the wire shape of a timing entry delivered by the beacon
type rawVitalEntry struct {
	Metric         string   `mapstructure:"metric"`
	Value          float64  `mapstructure:"value"`
	HadRecentInput bool     `mapstructure:"hadRecentInput"`
	EntryIDs       []string `mapstructure:"entryIds"`
}

// rawResourceEntry is the wire shape of a resource timing entry
type rawResourceEntry struct {
	Name            string  `mapstructure:"name"`
	Method          string  `mapstructure:"method"`
	RequestStart    float64 `mapstructure:"requestStart"`
	ResponseEnd     float64 `mapstructure:"responseEnd"`
	TransferSize    int64   `mapstructure:"transferSize"`
	EncodedBodySize int64   `mapstructure:"encodedBodySize"`
}

// rawErrorEntry is the wire shape of an error report
type rawErrorEntry struct {
	Message   string             `mapstructure:"message"`
	Stack     string             `mapstructure:"stack"`
	Kind      string             `mapstructure:"kind"`
	Severity  string             `mapstructure:"severity"`
	URL       string             `mapstructure:"url"`
	SessionID string             `mapstructure:"sessionId"`
	UserID    string             `mapstructure:"userId"`
	Snapshot  map[string]float64 `mapstructure:"snapshot"`
}

func decodeEntry(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("building entry decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decoding entry: %w", err)
	}
	return nil
}

// normalizeMetricName maps the names browsers and beacon libraries use onto
// the fixed metric enumeration. Returns false for names outside the watched
// set.
func normalizeMetricName(name string) (types.VitalMetric, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fcp", "first-contentful-paint", "first-paint":
		return types.MetricFirstPaint, true
	case "lcp", "largest-contentful-paint", "largest-paint":
		return types.MetricLargestPaint, true
	case "fid", "first-input-delay", "input-delay":
		return types.MetricInputDelay, true
	case "cls", "cumulative-layout-shift", "layout-shift":
		return types.MetricLayoutShift, true
	case "ttfb", "time-to-first-byte", "byte-to-first-response":
		return types.MetricByteToFirstResponse, true
	case "inp", "interaction-to-next-paint", "interaction-latency":
		return types.MetricInteractionLatency, true
	default:
		return "", false
	}
}

// normalizeErrorKind maps wire kind strings onto the error classification
func normalizeErrorKind(kind string) types.ErrorKind {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "rejection", "unhandledrejection", "unhandled-rejection":
		return types.ErrorKindRejection
	case "exception", "uncaught", "error":
		return types.ErrorKindException
	default:
		return types.ErrorKindExplicit
	}
}

// normalizeSeverity parses a wire severity, falling back to the given default
func normalizeSeverity(s string, fallback types.Severity) types.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return types.SeverityLow
	case "medium":
		return types.SeverityMedium
	case "high":
		return types.SeverityHigh
	case "critical":
		return types.SeverityCritical
	default:
		return fallback
	}
}
