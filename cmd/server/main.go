// server runs the performance telemetry engine: it ingests browser beacons,
// serves the dashboard snapshot and live websocket stream, instruments the
// demo appointment datastore, and ships reports to the analytics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Damatnic/astral-core-v7-sub003/internal/api"
	"github.com/Damatnic/astral-core-v7-sub003/internal/config"
	"github.com/Damatnic/astral-core-v7-sub003/internal/datastore"
	"github.com/Damatnic/astral-core-v7-sub003/internal/export"
	"github.com/Damatnic/astral-core-v7-sub003/internal/logging"
	"github.com/Damatnic/astral-core-v7-sub003/internal/telemetry"
	"github.com/Damatnic/astral-core-v7-sub003/internal/websocket"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

func main() {
	addr := flag.String("addr", "", "listen address, overrides configuration")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLoggerWithFormat(logging.ParseLogLevel(cfg.Logging.Level), cfg.Logging.JSON)

	collector := telemetry.NewCollector(telemetry.Config{
		VitalsCapacity: cfg.Buffers.Vitals,
		APICapacity:    cfg.Buffers.API,
		QueryCapacity:  cfg.Buffers.Queries,
		ErrorCapacity:  cfg.Buffers.Errors,
		Thresholds:     cfg.Scoring.Thresholds,
		Detector:       cfg.DetectorConfig(),
	}, logger)
	defer collector.Cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The datastore is optional; the engine keeps ingesting beacons even
	// when its own storage is unavailable.
	var store *datastore.Store
	store, err = datastore.Open(ctx, datastore.Options{
		Driver:        cfg.Datastore.Driver,
		DSN:           cfg.Datastore.DSN,
		CacheAddr:     cfg.Redis.Addr,
		CachePassword: cfg.Redis.Password,
		CacheDB:       cfg.Redis.DB,
		CacheTTL:      time.Duration(cfg.Redis.TTLSeconds) * time.Second,
	}, collector, logger)
	if err != nil {
		logger.Warn("datastore unavailable, appointment routes disabled", "error", err)
		store = nil
	} else {
		defer func() { _ = store.Close() }()
	}

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)
	bridgeCollectorToHub(collector, hub)

	exporter := export.NewExporter(cfg.Export.Endpoint, cfg.ExportTimeout(), logger)

	router := api.NewRouter(api.Options{
		Collector: collector,
		Exporter:  exporter,
		Store:     store,
		WSServer:  websocket.NewServer(hub, logger),
		Logger:    logger,
	})

	listen := cfg.Server.Addr()
	if *addr != "" {
		listen = *addr
	}

	srv := &http.Server{
		Addr:         listen,
		Handler:      router.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("telemetry server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}
}

// bridgeCollectorToHub forwards every monitor snapshot to the dashboard hub
func bridgeCollectorToHub(collector *telemetry.Collector, hub *websocket.Hub) {
	collector.SubscribeVitals(func(vitals []types.VitalMeasurement) {
		hub.Broadcast(websocket.SnapshotUpdate(types.SourceVitals, vitals))
	})
	collector.SubscribeAPICalls(func(calls []types.APICallRecord) {
		hub.Broadcast(websocket.SnapshotUpdate(types.SourceAPI, calls))
	})
	collector.SubscribeQueries(func(queries []types.QueryRecord) {
		hub.Broadcast(websocket.SnapshotUpdate(types.SourceQuery, queries))
	})
	collector.SubscribeErrors(func(errs []types.ErrorRecord) {
		hub.Broadcast(websocket.SnapshotUpdate(types.SourceError, errs))
	})
}
