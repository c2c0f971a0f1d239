package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rhema-dev/rhema/internal/apierrors"
)

// Stats is the pipeline's own aggregate view, exposed through /stats and
// /performance independent of any single endpoint.
type Stats struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	SlowRequests    int64   `json:"slow_requests"`
	ThroughputPerSec float64 `json:"throughput_per_sec"`
}

// pipelineMetrics records step 6 of the pipeline: start/end timestamps,
// request/response sizes, error category, latency histograms, a
// slow-request counter, and a proper sliding-window throughput figure.
//
// The throughput figure replaces the naive `requests * 100` the original
// computed with no time window (flagged as an open question); this counts
// requests into one-second buckets over a trailing window and reports a
// true requests-per-second rate.
type pipelineMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	reqSize  *prometheus.HistogramVec
	respSize *prometheus.HistogramVec
	slow     *prometheus.CounterVec

	slowThreshold time.Duration

	totalRequests int64
	totalErrors   int64
	totalSlow     int64

	window *slidingWindow
}

func newPipelineMetrics(reg prometheus.Registerer, slowThreshold time.Duration) *pipelineMetrics {
	return &pipelineMetrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "pipeline", Name: "requests_total",
		}, []string{"transport", "endpoint"}),
		errors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "pipeline", Name: "errors_total",
		}, []string{"transport", "endpoint", "code"}),
		latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rhema", Subsystem: "pipeline", Name: "request_duration_seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport", "endpoint"}),
		reqSize: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rhema", Subsystem: "pipeline", Name: "request_size_bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"transport", "endpoint"}),
		respSize: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rhema", Subsystem: "pipeline", Name: "response_size_bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"transport", "endpoint"}),
		slow: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "rhema", Subsystem: "pipeline", Name: "slow_requests_total",
		}, []string{"transport", "endpoint"}),
		slowThreshold: slowThreshold,
		window:        newSlidingWindow(60 * time.Second),
	}
}

func (m *pipelineMetrics) record(transport TransportKind, endpoint string, start time.Time, reqSize int64, resp *Response, err error) {
	duration := time.Since(start)
	t, e := string(transport), endpoint

	atomic.AddInt64(&m.totalRequests, 1)
	m.requests.WithLabelValues(t, e).Inc()
	m.latency.WithLabelValues(t, e).Observe(duration.Seconds())
	m.reqSize.WithLabelValues(t, e).Observe(float64(reqSize))
	m.window.add(time.Now())

	if resp != nil {
		m.respSize.WithLabelValues(t, e).Observe(float64(len(resp.Body)))
	}
	if err != nil {
		atomic.AddInt64(&m.totalErrors, 1)
		m.errors.WithLabelValues(t, e, errorCode(err)).Inc()
	}
	if duration >= m.slowThreshold {
		atomic.AddInt64(&m.totalSlow, 1)
		m.slow.WithLabelValues(t, e).Inc()
	}
}

func (m *pipelineMetrics) stats() Stats {
	return Stats{
		TotalRequests:    atomic.LoadInt64(&m.totalRequests),
		TotalErrors:      atomic.LoadInt64(&m.totalErrors),
		SlowRequests:     atomic.LoadInt64(&m.totalSlow),
		ThroughputPerSec: m.window.rate(time.Now()),
	}
}

func errorCode(err error) string {
	if ae, ok := err.(*apierrors.APIError); ok {
		return string(ae.Code)
	}
	return string(apierrors.CodeInternal)
}

// slidingWindow counts events into one-second buckets over a trailing
// duration, giving a true requests-per-second throughput figure instead of
// a raw cumulative counter with no notion of elapsed time.
type slidingWindow struct {
	mu      sync.Mutex
	buckets map[int64]int64
	span    time.Duration
}

func newSlidingWindow(span time.Duration) *slidingWindow {
	return &slidingWindow{buckets: make(map[int64]int64), span: span}
}

func (w *slidingWindow) add(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buckets[t.Unix()]++
	w.evict(t)
}

func (w *slidingWindow) rate(now time.Time) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)
	var total int64
	for _, n := range w.buckets {
		total += n
	}
	seconds := w.span.Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(total) / seconds
}

func (w *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.span).Unix()
	for sec := range w.buckets {
		if sec < cutoff {
			delete(w.buckets, sec)
		}
	}
}
