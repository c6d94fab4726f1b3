package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for mesh-sentinel.
type Metrics struct {
	registry               *prometheus.Registry
	runDurationSeconds     *prometheus.HistogramVec
	healthEventsTotal      *prometheus.CounterVec
	queryErrorsTotal       *prometheus.CounterVec
	sinkErrorsTotal        *prometheus.CounterVec
	lastSuccessfulRunGauge *prometheus.GaugeVec
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mesh_sentinel_run_duration_seconds",
			Help:    "Duration of health traversal runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		healthEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_sentinel_health_events_total",
			Help: "Total health events published by target, kind and status.",
		}, []string{"target", "kind", "status"}),
		queryErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_sentinel_query_errors_total",
			Help: "Total failed collaborator queries by target and collaborator.",
		}, []string{"target", "collaborator"}),
		sinkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_sentinel_sink_errors_total",
			Help: "Total event sink delivery errors by target.",
		}, []string{"target"}),
		lastSuccessfulRunGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mesh_sentinel_last_successful_run_timestamp",
			Help: "Unix timestamp of the last run that finished without branch failures.",
		}, []string{"target"}),
	}

	registry.MustRegister(
		m.runDurationSeconds,
		m.healthEventsTotal,
		m.queryErrorsTotal,
		m.sinkErrorsTotal,
		m.lastSuccessfulRunGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRunDuration records the duration of a completed run.
func (m *Metrics) ObserveRunDuration(target string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDurationSeconds.WithLabelValues(target).Observe(duration.Seconds())
}

// IncHealthEvents counts a published health event.
func (m *Metrics) IncHealthEvents(target, kind string, healthy bool) {
	if m == nil {
		return
	}
	status := "unhealthy"
	if healthy {
		status = "healthy"
	}
	m.healthEventsTotal.WithLabelValues(target, kind, status).Inc()
}

// IncQueryErrors counts a failed metrics or inventory query.
func (m *Metrics) IncQueryErrors(target, collaborator string) {
	if m == nil {
		return
	}
	m.queryErrorsTotal.WithLabelValues(target, collaborator).Inc()
}

// IncSinkErrors counts a failed sink delivery.
func (m *Metrics) IncSinkErrors(target string) {
	if m == nil {
		return
	}
	m.sinkErrorsTotal.WithLabelValues(target).Inc()
}

// SetLastSuccessfulRunTimestamp sets the last successful run time.
func (m *Metrics) SetLastSuccessfulRunTimestamp(target string, t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulRunGauge.WithLabelValues(target).Set(float64(t.Unix()))
}
