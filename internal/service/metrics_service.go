package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-exam-engine/internal/models"
)

// MetricsService owns the Prometheus registry and keeps running totals for snapshots.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	resultsEntered  prometheus.Counter
	ingestDuration  prometheus.Histogram
	reportCards     *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	notifications   *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	resultCount          uint64
	reportCardCount      uint64
	gradedCount          uint64
	notifySent           uint64
	notifyFailed         uint64
}

// NewMetricsService registers the engine's collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_cache_get_seconds",
			Help:    "Latency of analytics cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_cache_set_seconds",
			Help:    "Latency of analytics cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_cache_lookups_total",
			Help: "Analytics cache lookups by outcome",
		}, []string{"outcome"}),
		resultsEntered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_results_entered_total",
			Help: "Result rows written by ingestion and attempt grading",
		}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exam_results_batch_seconds",
			Help:    "Duration of result batches including ranking",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		reportCards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_cards_generated_total",
			Help: "Report cards written by generation runs",
		}, []string{"status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "online_attempt_transitions_total",
			Help: "Online exam attempt transitions by target status",
		}, []string{"status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by sink and outcome",
		}, []string{"sink", "outcome"}),
	}
	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheLookups,
		m.resultsEntered, m.ingestDuration, m.reportCards, m.attempts, m.notifications,
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite records a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveResultBatch records a committed result batch.
func (m *MetricsService) ObserveResultBatch(rows int, duration time.Duration) {
	if m == nil {
		return
	}
	m.resultsEntered.Add(float64(rows))
	m.ingestDuration.Observe(duration.Seconds())
	atomic.AddUint64(&m.resultCount, uint64(rows))
}

// ObserveReportCards counts cards written with the given status.
func (m *MetricsService) ObserveReportCards(status models.ReportCardStatus, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reportCards.WithLabelValues(string(status)).Add(float64(count))
	atomic.AddUint64(&m.reportCardCount, uint64(count))
}

// ObserveAttemptTransition counts an attempt reaching status.
func (m *MetricsService) ObserveAttemptTransition(status models.AttemptStatus) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(status)).Inc()
	if status == models.AttemptGraded {
		atomic.AddUint64(&m.gradedCount, 1)
	}
}

// ObserveNotification counts a sink delivery.
func (m *MetricsService) ObserveNotification(sink string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.notifications.WithLabelValues(sink, "failed").Inc()
		atomic.AddUint64(&m.notifyFailed, 1)
		return
	}
	m.notifications.WithLabelValues(sink, "sent").Inc()
	atomic.AddUint64(&m.notifySent, 1)
}

// Snapshot returns the running totals.
func (m *MetricsService) Snapshot() models.AnalyticsSystemMetrics {
	if m == nil {
		return models.AnalyticsSystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var ratio float64
	if lookups := hits + misses; lookups > 0 {
		ratio = float64(hits) / float64(lookups)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	return models.AnalyticsSystemMetrics{
		CacheHitRatio:            ratio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		ResultsEntered:           atomic.LoadUint64(&m.resultCount),
		ReportCardsGenerated:     atomic.LoadUint64(&m.reportCardCount),
		AttemptsGraded:           atomic.LoadUint64(&m.gradedCount),
		NotificationsSent:        atomic.LoadUint64(&m.notifySent),
		NotificationsFailed:      atomic.LoadUint64(&m.notifyFailed),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
