// Package metrics exposes refresh outcomes to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"purpleair_status/models"
	"purpleair_status/status"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	sensors         *prometheus.GaugeVec
	refreshDuration prometheus.Histogram
	refreshErrors   prometheus.Counter
	fetchFailures   *prometheus.CounterVec
	lastRefresh     prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sensors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "purpleair_sensors",
			Help: "Sensors per health category in the current result set.",
		}, []string{"category"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "purpleair_refresh_duration_seconds",
			Help:    "Histogram of complete refresh durations.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		refreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "purpleair_refresh_errors_total",
			Help: "Refreshes that produced no result set.",
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purpleair_fetch_failures_total",
			Help: "Per-sensor fetch failures by reason.",
		}, []string{"reason"}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "purpleair_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful refresh.",
		}),
	}

	m.registry.MustRegister(
		m.sensors,
		m.refreshDuration,
		m.refreshErrors,
		m.fetchFailures,
		m.lastRefresh,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, kind := range []status.Kind{status.Offline, status.LowConfidence, status.Online, status.FetchError} {
		m.sensors.WithLabelValues(string(kind)).Set(0)
	}

	return m
}

// Name identifies the collector set in logs
func (m *Metrics) Name() string { return "metrics" }

// Consume records a successful refresh
func (m *Metrics) Consume(_ context.Context, snapshot *models.Snapshot) error {
	if m == nil {
		return nil
	}
	for kind, n := range snapshot.Counts() {
		m.sensors.WithLabelValues(string(kind)).Set(float64(n))
	}
	for _, r := range snapshot.Readings {
		if r.FailureReason != "" {
			m.fetchFailures.WithLabelValues(string(r.FailureReason)).Inc()
		}
	}
	m.refreshDuration.Observe(snapshot.Duration.Seconds())
	m.lastRefresh.Set(float64(snapshot.FetchedAt.Unix()))
	return nil
}

// RefreshFailed records a refresh that was abandoned
func (m *Metrics) RefreshFailed(duration time.Duration) {
	if m == nil {
		return
	}
	m.refreshErrors.Inc()
	m.refreshDuration.Observe(duration.Seconds())
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
