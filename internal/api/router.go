// Package api provides the HTTP surface of the telemetry engine: beacon
// ingestion, the dashboard snapshot, report download and export, context
// setters for the query monitor, and the demo appointment routes the query
// instrumentation exercises.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Damatnic/astral-core-v7-sub003/internal/datastore"
	"github.com/Damatnic/astral-core-v7-sub003/internal/export"
	"github.com/Damatnic/astral-core-v7-sub003/internal/logging"
	"github.com/Damatnic/astral-core-v7-sub003/internal/telemetry"
	"github.com/Damatnic/astral-core-v7-sub003/internal/websocket"
)

// Router wires the engine's HTTP routes
type Router struct {
	mux       *chi.Mux
	collector *telemetry.Collector
	exporter  *export.Exporter
	store     *datastore.Store
	wsServer  *websocket.Server
	log       logging.Logger
}

// Options carries the router's collaborators. Store and WSServer are
// optional; their routes are only mounted when present.
type Options struct {
	Collector *telemetry.Collector
	Exporter  *export.Exporter
	Store     *datastore.Store
	WSServer  *websocket.Server
	Logger    logging.Logger
}

// NewRouter builds the router with middleware and routes
func NewRouter(opts Options) *Router {
	log := opts.Logger
	if log == nil {
		log = logging.NewNoOpLogger()
	}

	r := &Router{
		mux:       chi.NewRouter(),
		collector: opts.Collector,
		exporter:  opts.Exporter,
		store:     opts.Store,
		wsServer:  opts.WSServer,
		log:       log.WithComponent("api"),
	}

	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.mux
}

func (r *Router) setupMiddleware() {
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(chimiddleware.RequestID)
	r.mux.Use(chimiddleware.Timeout(30 * time.Second))
	r.mux.Use(r.requestLogger)
	r.mux.Use(chimiddleware.RequestSize(1 * 1024 * 1024))
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
}

func (r *Router) setupRoutes() {
	r.mux.Route("/v1", func(v1 chi.Router) {
		// Beacon ingestion.
		v1.Post("/beacon/vitals", r.handleVitalsBeacon)
		v1.Post("/beacon/resources", r.handleResourceBeacon)
		v1.Post("/beacon/errors", r.handleErrorBeacon)
		v1.Post("/beacon/api-calls", r.handleAPICallBeacon)

		// Dashboard consumption.
		v1.Get("/dashboard", r.handleDashboard)
		v1.Get("/insights", r.handleInsights)

		// Report download and export.
		v1.Get("/report", r.handleReportJSON)
		v1.Get("/report/html", r.handleReportHTML)
		v1.Post("/report/export", r.handleReportExport)

		if r.store != nil {
			v1.Route("/appointments", func(a chi.Router) {
				a.Use(r.queryContext)
				a.Post("/", r.handleCreateAppointment)
				a.Get("/", r.handleListAppointments)
				a.Patch("/{id}/status", r.handleUpdateAppointmentStatus)
				a.Delete("/{id}", r.handleDeleteAppointment)
			})
		}
	})

	if r.wsServer != nil {
		r.mux.Get("/ws", r.wsServer.HandleConnection)
	}
}

// requestLogger feeds request telemetry into both the structured log and the
// collector's explicit API tracking path
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		elapsed := time.Since(start)
		r.log.Debug("request handled",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}
