package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsInFlight  prometheus.Gauge
	filesTotal    *prometheus.CounterVec
	encodingTotal *prometheus.CounterVec
	delimTotal    *prometheus.CounterVec
	queueLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csvmerge",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total merged jobs by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csvmerge",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Merge job duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "csvmerge",
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of in-flight merge jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	filesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csvmerge",
			Subsystem: "worker",
			Name:      "files_total",
			Help:      "Total processed input files by per-file outcome.",
		},
		[]string{"service", "status"},
	)
	encodingTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csvmerge",
			Subsystem: "worker",
			Name:      "resolved_encodings_total",
			Help:      "Total successfully processed files by resolved encoding.",
		},
		[]string{"service", "encoding"},
	)
	delimTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csvmerge",
			Subsystem: "worker",
			Name:      "detected_delimiters_total",
			Help:      "Total successfully processed files by detected delimiter.",
		},
		[]string{"service", "delimiter"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csvmerge",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job creation and merge start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(jobsTotal, jobDuration, jobsInFlight, filesTotal, encodingTotal, delimTotal, queueLag)

	return &WorkerMetrics{
		registry:      registry,
		jobsTotal:     jobsTotal,
		jobDuration:   jobDuration,
		jobsInFlight:  jobsInFlight,
		filesTotal:    filesTotal,
		encodingTotal: encodingTotal,
		delimTotal:    delimTotal,
		queueLag:      queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.jobsInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(service string, duration time.Duration, err error) {
	m.jobsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.jobsTotal.WithLabelValues(service, status).Inc()
	m.jobDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

// RecordFileReports feeds per-file outcomes into the counters, including
// which encodings and delimiters the pipeline actually resolved.
func (m *WorkerMetrics) RecordFileReports(service string, reports []domain.FileReport) {
	for _, report := range reports {
		m.filesTotal.WithLabelValues(service, string(report.Status)).Inc()
		if report.Status == domain.FileStatusFailed {
			continue
		}
		if report.Encoding != "" {
			m.encodingTotal.WithLabelValues(service, report.Encoding).Inc()
		}
		if report.Delimiter != "" {
			m.delimTotal.WithLabelValues(service, delimiterLabel(report.Delimiter)).Inc()
		}
	}
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func delimiterLabel(d string) string {
	switch d {
	case ",":
		return "comma"
	case "\t":
		return "tab"
	case ";":
		return "semicolon"
	case "|":
		return "pipe"
	default:
		return "other"
	}
}
