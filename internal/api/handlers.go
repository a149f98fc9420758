package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Damatnic/astral-core-v7-sub003/internal/datastore"
	"github.com/Damatnic/astral-core-v7-sub003/internal/export"
	"github.com/Damatnic/astral-core-v7-sub003/internal/telemetry"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// beaconBatch is the envelope browsers POST: a list of raw entries of one
// kind. Entries are decoded individually; one malformed entry never rejects
// the batch.
type beaconBatch struct {
	Entries []map[string]any `json:"entries"`
}

func (r *Router) decodeBatch(w http.ResponseWriter, req *http.Request) (beaconBatch, bool) {
	var batch beaconBatch
	if err := json.NewDecoder(req.Body).Decode(&batch); err != nil {
		r.writeError(w, http.StatusBadRequest, "invalid beacon payload")
		return batch, false
	}
	return batch, true
}

func (r *Router) handleVitalsBeacon(w http.ResponseWriter, req *http.Request) {
	batch, ok := r.decodeBatch(w, req)
	if !ok {
		return
	}
	for _, entry := range batch.Entries {
		r.collector.RecordVitalEntry(entry)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (r *Router) handleResourceBeacon(w http.ResponseWriter, req *http.Request) {
	batch, ok := r.decodeBatch(w, req)
	if !ok {
		return
	}
	for _, entry := range batch.Entries {
		r.collector.ObserveResourceEntry(entry)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (r *Router) handleErrorBeacon(w http.ResponseWriter, req *http.Request) {
	batch, ok := r.decodeBatch(w, req)
	if !ok {
		return
	}
	for _, entry := range batch.Entries {
		r.collector.RecordErrorEntry(entry)
	}
	w.WriteHeader(http.StatusAccepted)
}

// apiCallBeacon is the explicit tracking form for clients that measured a
// call themselves
type apiCallBeacon struct {
	Endpoint  string  `json:"endpoint"`
	Method    string  `json:"method"`
	LatencyMs float64 `json:"latency_ms"`
	Status    int     `json:"status"`
	Size      int64   `json:"size"`
}

func (r *Router) handleAPICallBeacon(w http.ResponseWriter, req *http.Request) {
	var calls []apiCallBeacon
	if err := json.NewDecoder(req.Body).Decode(&calls); err != nil {
		r.writeError(w, http.StatusBadRequest, "invalid api call payload")
		return
	}
	for _, call := range calls {
		if call.Endpoint == "" {
			continue
		}
		r.collector.TrackAPICall(call.Endpoint, call.Method,
			time.Duration(call.LatencyMs*float64(time.Millisecond)), call.Status, call.Size)
	}
	w.WriteHeader(http.StatusAccepted)
}

// dashboardResponse is what the dashboard polls once per render
type dashboardResponse struct {
	Score       float64                  `json:"score"`
	Grade       types.Grade              `json:"grade"`
	VitalScores map[string]float64       `json:"vital_scores"`
	Vitals      []types.VitalMeasurement `json:"vitals"`
	APICalls    []types.APICallRecord    `json:"api_calls"`
	Queries     []types.QueryRecord      `json:"queries"`
	Errors      []types.ErrorRecord      `json:"errors"`
	Insights    []types.Insight          `json:"insights"`
	Violations  []types.BudgetViolation  `json:"budget_violations"`
}

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	now := time.Now()
	snap := r.collector.Snapshot()
	score, grade := r.collector.OverallScore()

	r.writeJSON(w, http.StatusOK, dashboardResponse{
		Score:       score,
		Grade:       grade,
		VitalScores: r.collector.VitalsScores(),
		Vitals:      snap.Vitals,
		APICalls:    snap.APICalls,
		Queries:     snap.Queries,
		Errors:      snap.Errors,
		Insights:    r.collector.Insights(now),
		Violations:  r.collector.BudgetViolations(),
	})
}

func (r *Router) handleInsights(w http.ResponseWriter, req *http.Request) {
	now := time.Now()
	r.writeJSON(w, http.StatusOK, map[string]any{
		"insights": r.collector.Insights(now),
		"patterns": r.collector.ErrorPatterns(now),
	})
}

func (r *Router) handleReportJSON(w http.ResponseWriter, req *http.Request) {
	payload := export.Build(r.collector, time.Now())
	data, err := export.JSON(payload)
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, "building report")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=performance-report.json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (r *Router) handleReportHTML(w http.ResponseWriter, req *http.Request) {
	payload := export.Build(r.collector, time.Now())
	doc, err := export.HTML(payload)
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, "rendering report")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// handleReportExport ships a fresh report to the configured analytics
// endpoint without waiting for the delivery
func (r *Router) handleReportExport(w http.ResponseWriter, req *http.Request) {
	payload := export.Build(r.collector, time.Now())
	r.exporter.SendAsync(payload)
	r.writeJSON(w, http.StatusAccepted, map[string]string{"report_id": payload.ID})
}

// queryContext attaches request identity to every query recorded during this
// request and clears it afterward
func (r *Router) queryContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.collector.SetQueryContext(types.QueryContext{
			UserID:    req.Header.Get("X-User-ID"),
			SessionID: req.Header.Get("X-Session-ID"),
			Endpoint:  req.URL.Path,
		})
		defer r.collector.ClearQueryContext()
		next.ServeHTTP(w, req)
	})
}

type createAppointmentRequest struct {
	ClientName  string    `json:"client_name"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (r *Router) handleCreateAppointment(w http.ResponseWriter, req *http.Request) {
	var body createAppointmentRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeError(w, http.StatusBadRequest, "invalid appointment payload")
		return
	}
	if body.ClientName == "" {
		r.writeError(w, http.StatusBadRequest, "client_name is required")
		return
	}

	appt := &datastore.Appointment{
		ID:          uuid.New().String(),
		ClientName:  body.ClientName,
		ScheduledAt: body.ScheduledAt,
	}
	if err := r.store.CreateAppointment(req.Context(), appt); err != nil {
		r.captureHandlerError(req, err)
		r.writeError(w, http.StatusInternalServerError, "creating appointment")
		return
	}
	r.writeJSON(w, http.StatusCreated, appt)
}

func (r *Router) handleListAppointments(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	appts, err := r.store.ListAppointments(req.Context(), limit)
	if err != nil {
		r.captureHandlerError(req, err)
		r.writeError(w, http.StatusInternalServerError, "listing appointments")
		return
	}
	if appts == nil {
		appts = []datastore.Appointment{}
	}
	r.writeJSON(w, http.StatusOK, appts)
}

func (r *Router) handleUpdateAppointmentStatus(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Status == "" {
		r.writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	id := chi.URLParam(req, "id")
	if err := r.store.UpdateAppointmentStatus(req.Context(), id, body.Status); err != nil {
		r.captureHandlerError(req, err)
		r.writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleDeleteAppointment(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if err := r.store.DeleteAppointment(req.Context(), id); err != nil {
		r.captureHandlerError(req, err)
		r.writeError(w, http.StatusInternalServerError, "deleting appointment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// captureHandlerError feeds handler failures into the error monitor so the
// engine observes its own faults the way it observes the client's
func (r *Router) captureHandlerError(req *http.Request, err error) {
	r.collector.CaptureError(telemetry.ErrorEvent{
		Message:   err.Error(),
		Kind:      types.ErrorKindExplicit,
		URL:       req.URL.Path,
		SessionID: req.Header.Get("X-Session-ID"),
		UserID:    req.Header.Get("X-User-ID"),
	})
}

func (r *Router) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		r.log.Error("encoding response", "error", err)
	}
}

func (r *Router) writeError(w http.ResponseWriter, status int, msg string) {
	r.writeJSON(w, status, map[string]string{"error": msg})
}
