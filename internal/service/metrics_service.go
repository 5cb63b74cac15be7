package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-presensi-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the scan and
// closeout paths.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	scanTotal        *prometheus.CounterVec
	lockContention   *prometheus.CounterVec
	closeoutDuration prometheus.Observer
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
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

	scanTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_scans_total",
		Help: "Attendance scans by source, resulting status and duplicate flag",
	}, []string{"source", "status", "duplicate"})

	lockContention := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_lock_contention_total",
		Help: "Lock acquisitions rejected because a peer held the lease",
	}, []string{"scope"})

	closeoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_closeout_duration_seconds",
		Help:    "Duration of session closeout runs",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, scanTotal, lockContention, closeoutDuration, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		scanTotal:        scanTotal,
		lockContention:   lockContention,
		closeoutDuration: closeoutDuration,
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

// ObserveScan counts one scan outcome.
func (m *MetricsService) ObserveScan(source models.AttendanceSource, status models.AttendanceStatus, duplicate bool) {
	if m == nil {
		return
	}
	m.scanTotal.WithLabelValues(string(source), string(status), fmt.Sprintf("%t", duplicate)).Inc()
}

// ObserveLockContention counts a rejected lock acquisition.
func (m *MetricsService) ObserveLockContention(scope string) {
	if m == nil {
		return
	}
	m.lockContention.WithLabelValues(scope).Inc()
}

// ObserveCloseoutDuration records how long a closeout run took.
func (m *MetricsService) ObserveCloseoutDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.closeoutDuration.Observe(d.Seconds())
}
