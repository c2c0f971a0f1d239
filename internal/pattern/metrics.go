package pattern

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// runtimeMetrics mirrors the shape of the teacher's ParallelPublishMetrics
// (duration histogram, per-result counters, a gauge for in-flight work) but
// adds the two aggregate gauges spec.md §4.I asks for explicitly: success
// rate and average execution time across every pattern ever run.
type runtimeMetrics struct {
	duration  *prometheus.HistogramVec
	total     *prometheus.CounterVec
	running   prometheus.Gauge
	successRate prometheus.Gauge
	avgDuration prometheus.Gauge

	mu              sync.Mutex
	completed       int64
	failed          int64
	cancelled       int64
	cumulativeTime  time.Duration
}

func newRuntimeMetrics(reg prometheus.Registerer) *runtimeMetrics {
	return &runtimeMetrics{
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rhema", Subsystem: "pattern", Name: "execution_duration_seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"pattern_id", "state"}),
		total: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "pattern", Name: "executions_total",
		}, []string{"pattern_id", "state"}),
		running: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "rhema", Subsystem: "pattern", Name: "running",
			Help: "Patterns currently in the Running state.",
		}),
		successRate: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "rhema", Subsystem: "pattern", Name: "success_rate",
			Help: "Fraction of finished pattern executions (all time) that ended Completed.",
		}),
		avgDuration: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "rhema", Subsystem: "pattern", Name: "average_execution_seconds",
			Help: "Average wall-clock duration (all time) across every finished pattern execution.",
		}),
	}
}

func (m *runtimeMetrics) startRunning() {
	m.running.Inc()
}

func (m *runtimeMetrics) finish(patternID string, state State, d time.Duration) {
	m.running.Dec()
	m.duration.WithLabelValues(patternID, string(state)).Observe(d.Seconds())
	m.total.WithLabelValues(patternID, string(state)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch state {
	case StateCompleted:
		m.completed++
	case StateFailed:
		m.failed++
	case StateCancelled:
		m.cancelled++
	}
	m.cumulativeTime += d

	finished := m.completed + m.failed + m.cancelled
	if finished > 0 {
		m.successRate.Set(float64(m.completed) / float64(finished))
		m.avgDuration.Set(m.cumulativeTime.Seconds() / float64(finished))
	}
}

// Stats is the aggregate view Runtime.Stats exposes: counts per terminal
// state plus the two derived gauges (success rate, average duration).
type Stats struct {
	Completed       int64         `json:"completed"`
	Failed          int64         `json:"failed"`
	Cancelled       int64         `json:"cancelled"`
	Running         int64         `json:"running"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
}

func (m *runtimeMetrics) stats(running int64) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	finished := m.completed + m.failed + m.cancelled
	var rate float64
	var avg time.Duration
	if finished > 0 {
		rate = float64(m.completed) / float64(finished)
		avg = m.cumulativeTime / time.Duration(finished)
	}
	return Stats{
		Completed:       m.completed,
		Failed:          m.failed,
		Cancelled:       m.cancelled,
		Running:         running,
		SuccessRate:     rate,
		AverageDuration: avg,
	}
}
