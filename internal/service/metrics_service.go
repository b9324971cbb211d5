package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicpulse/civicpulse-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// civic-reporting workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	reportsTotal    *prometheus.CounterVec
	pointsAwarded   prometheus.Counter
	validations     prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	snapshotsSent   *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService(subscriberGauge func() float64) *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	reportsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reports_submitted_total",
		Help: "Total reports accepted, labelled by mode",
	}, []string{"mode"})

	pointsAwarded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "points_awarded_total",
		Help: "Total gamification points granted",
	})

	validations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "report_validations_total",
		Help: "Total accepted furniture confirmations",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	snapshotsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_snapshots_sent_total",
		Help: "Full-state snapshots pushed to stream subscribers",
	}, []string{"topic"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, reportsTotal, pointsAwarded, validations, cacheHits, cacheMisses, snapshotsSent, goroutines)

	if subscriberGauge != nil {
		streamSubscribers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stream_subscribers",
			Help: "Currently connected stream subscribers",
		}, subscriberGauge)
		registry.MustRegister(streamSubscribers)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		reportsTotal:    reportsTotal,
		pointsAwarded:   pointsAwarded,
		validations:     validations,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		snapshotsSent:   snapshotsSent,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordReportSubmitted counts an accepted submission and its point award.
func (m *MetricsService) RecordReportSubmitted(mode string, points int) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(mode).Inc()
	m.pointsAwarded.Add(float64(points))
}

// RecordValidation counts an accepted furniture confirmation.
func (m *MetricsService) RecordValidation() {
	if m == nil {
		return
	}
	m.validations.Inc()
	m.pointsAwarded.Add(float64(models.PointsValidation))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordSnapshotSent counts one snapshot delivery on a stream topic.
func (m *MetricsService) RecordSnapshotSent(topic string) {
	if m == nil {
		return
	}
	m.snapshotsSent.WithLabelValues(topic).Inc()
}
