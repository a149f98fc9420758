package telemetry

import (
	"github.com/Damatnic/astral-core-v7-sub003/internal/insight"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// ErrorEvent is the explicit error capture input
type ErrorEvent struct {
	Message   string
	Stack     string
	Kind      types.ErrorKind
	Severity  types.Severity
	URL       string
	SessionID string
	UserID    string
	Snapshot  map[string]float64
}

// CaptureError records an error reported explicitly by application code.
// Severity defaults by kind when unset: exceptions and rejections are high,
// explicit reports are medium.
func (c *Collector) CaptureError(ev ErrorEvent) {
	if ev.Message == "" {
		c.log.Warn("dropping error capture with empty message")
		return
	}
	if !ev.Kind.Valid() {
		ev.Kind = types.ErrorKindExplicit
	}
	if !ev.Severity.Valid() {
		ev.Severity = defaultSeverityFor(ev.Kind)
	}

	rec := types.ErrorRecord{
		Observation: types.NewObservation(types.SourceError),
		Message:     ev.Message,
		Normalized:  insight.NormalizeErrorMessage(ev.Message),
		Stack:       ev.Stack,
		Severity:    ev.Severity,
		Kind:        ev.Kind,
		URL:         ev.URL,
		SessionID:   ev.SessionID,
		UserID:      ev.UserID,
		Snapshot:    ev.Snapshot,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.errors.Push(rec)
	snapshot := c.errors.All()
	c.mu.Unlock()

	c.errorBus.Publish(snapshot)
}

// RecordErrorEntry converts a raw error report from the beacon into an
// ErrorRecord. Malformed entries are logged and skipped.
func (c *Collector) RecordErrorEntry(raw map[string]any) {
	var entry rawErrorEntry
	if err := decodeEntry(raw, &entry); err != nil {
		c.log.Warn("skipping malformed error entry", "error", err)
		return
	}

	kind := normalizeErrorKind(entry.Kind)
	c.CaptureError(ErrorEvent{
		Message:   entry.Message,
		Stack:     entry.Stack,
		Kind:      kind,
		Severity:  normalizeSeverity(entry.Severity, defaultSeverityFor(kind)),
		URL:       entry.URL,
		SessionID: entry.SessionID,
		UserID:    entry.UserID,
		Snapshot:  entry.Snapshot,
	})
}

// defaultSeverityFor maps an error kind onto its default severity.
// Uncaught exceptions and unhandled rejections are high by default;
// deliberate captures default to medium.
func defaultSeverityFor(kind types.ErrorKind) types.Severity {
	switch kind {
	case types.ErrorKindException, types.ErrorKindRejection:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}
