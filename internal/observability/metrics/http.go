package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	jobsCreatedTotal *prometheus.CounterVec
	jobFiles         *prometheus.HistogramVec
	uploadBytes      *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csvmerge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csvmerge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "csvmerge",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	jobsCreatedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csvmerge",
			Subsystem: "jobs",
			Name:      "created_total",
			Help:      "Total merge jobs accepted for processing.",
		},
		[]string{"service"},
	)
	jobFiles := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csvmerge",
			Subsystem: "jobs",
			Name:      "files_per_job",
			Help:      "Distribution of input files per accepted job.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 50},
		},
		[]string{"service"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csvmerge",
			Subsystem: "jobs",
			Name:      "upload_bytes",
			Help:      "Distribution of total uploaded bytes per accepted job.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		jobsCreatedTotal,
		jobFiles,
		uploadBytes,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		jobsCreatedTotal: jobsCreatedTotal,
		jobFiles:         jobFiles,
		uploadBytes:      uploadBytes,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/merge-jobs/") && strings.HasSuffix(path, "/download"):
		return "/v1/merge-jobs/{job_id}/download"
	case strings.HasPrefix(path, "/v1/merge-jobs/"):
		return "/v1/merge-jobs/{job_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordJobCreated(service string, files int, totalBytes int64) {
	m.jobsCreatedTotal.WithLabelValues(service).Inc()
	m.jobFiles.WithLabelValues(service).Observe(float64(files))
	m.uploadBytes.WithLabelValues(service).Observe(float64(totalBytes))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
