package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nholik/mesh-sentinel/internal/healthcheck"
	"github.com/nholik/mesh-sentinel/internal/metrics"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Ports selects the listeners to start. A zero port disables its listener;
// equal ports share one listener.
type Ports struct {
	Health  int
	Metrics int
}

// Start launches health and metrics HTTP servers as configured. Servers shut
// down when ctx is canceled.
func Start(ctx context.Context, logger zerolog.Logger, ports Ports, pollInterval time.Duration, tracker *healthcheck.Tracker, metricsCollector *metrics.Metrics) {
	for _, l := range listeners(ports, pollInterval, tracker, metricsCollector) {
		startServer(ctx, logger, l.handler, l.port, l.label)
	}
}

type listener struct {
	port    int
	label   string
	handler http.Handler
}

func listeners(ports Ports, pollInterval time.Duration, tracker *healthcheck.Tracker, metricsCollector *metrics.Metrics) []listener {
	if ports.Health > 0 && ports.Health == ports.Metrics {
		mux := http.NewServeMux()
		registerHealthRoutes(mux, tracker, pollInterval)
		registerMetricsRoute(mux, metricsCollector)
		return []listener{{port: ports.Health, label: "health/metrics", handler: mux}}
	}

	var out []listener
	if ports.Health > 0 {
		mux := http.NewServeMux()
		registerHealthRoutes(mux, tracker, pollInterval)
		out = append(out, listener{port: ports.Health, label: "health", handler: mux})
	}
	if ports.Metrics > 0 && metricsCollector != nil {
		mux := http.NewServeMux()
		registerMetricsRoute(mux, metricsCollector)
		out = append(out, listener{port: ports.Metrics, label: "metrics", handler: mux})
	}
	return out
}

func registerHealthRoutes(mux *http.ServeMux, tracker *healthcheck.Tracker, pollInterval time.Duration) {
	mux.HandleFunc("GET /healthz", healthcheck.HealthHandler(tracker, pollInterval))
	mux.HandleFunc("GET /readyz", healthcheck.ReadyHandler(tracker))
}

func registerMetricsRoute(mux *http.ServeMux, metricsCollector *metrics.Metrics) {
	if metricsCollector == nil {
		return
	}
	mux.Handle("GET /metrics", metricsCollector.Handler())
}

func startServer(ctx context.Context, logger zerolog.Logger, handler http.Handler, port int, label string) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("server", label).Int("port", port).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server shutdown failed")
		}
	}()
}
