package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SignalPrometheusMetrics holds Prometheus metrics for SIGHUP-triggered
// repository reloads.
type SignalPrometheusMetrics struct {
	reloadTotal    *prometheus.CounterVec
	reloadDuration *prometheus.HistogramVec

	lastSuccessTimestamp *prometheus.GaugeVec
	lastFailureTimestamp *prometheus.GaugeVec
}

// NewSignalPrometheusMetrics creates Prometheus metrics for the signal
// handler, registered against reg (nil leaves the metrics unregistered;
// tests pass a fresh prometheus.NewRegistry() per case to avoid duplicate
// registration across test cases).
func NewSignalPrometheusMetrics(reg prometheus.Registerer) *SignalPrometheusMetrics {
	namespace := "rhema"
	subsystem := "reload"

	return &SignalPrometheusMetrics{
		reloadTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "total",
				Help:      "Total number of repository reload attempts",
			},
			[]string{"source", "status"},
		),
		reloadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "Duration of repository reload operations in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"source"},
		),
		lastSuccessTimestamp: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix timestamp of the last successful repository reload",
			},
			[]string{"source"},
		),
		lastFailureTimestamp: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_failure_timestamp_seconds",
				Help:      "Unix timestamp of the last failed repository reload",
			},
			[]string{"source"},
		),
	}
}

func (m *SignalPrometheusMetrics) RecordReloadAttempt(source, status string) {
	m.reloadTotal.WithLabelValues(source, status).Inc()
}

func (m *SignalPrometheusMetrics) RecordReloadDuration(source string, duration float64) {
	m.reloadDuration.WithLabelValues(source).Observe(duration)
}

func (m *SignalPrometheusMetrics) RecordSuccessTimestamp(source string, timestamp float64) {
	m.lastSuccessTimestamp.WithLabelValues(source).Set(timestamp)
}

func (m *SignalPrometheusMetrics) RecordFailureTimestamp(source string, timestamp float64) {
	m.lastFailureTimestamp.WithLabelValues(source).Set(timestamp)
}
