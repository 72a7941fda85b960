// Package metrics exposes ingestion counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the ingestion pipeline reports to. Nil-safe via Nop.
type Recorder interface {
	JobFinished(status string, elapsed time.Duration)
	FileClassified(status string)
	FilesReaped(n int64)
	LockContended()
}

// Metrics holds the ingestion collectors registered on one registry.
type Metrics struct {
	registry       *prometheus.Registry
	jobsTotal      *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	filesTotal     *prometheus.CounterVec
	filesReaped    prometheus.Counter
	lockContention prometheus.Counter
}

var _ Recorder = (*Metrics)(nil)

// New creates a registry with the ingestion collectors plus Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "jobs_total",
			Help:      "Ingestion jobs finished, by terminal status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ingest",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of ingestion jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "files_classified_total",
			Help:      "Crawled files by classification status.",
		}, []string{"status"}),
		filesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "files_reaped_total",
			Help:      "Stale file records deleted after a crawl.",
		}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "lock_contention_total",
			Help:      "Ingestion triggers rejected because the data source was locked.",
		}),
	}

	m.registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.filesTotal,
		m.filesReaped,
		m.lockContention,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) JobFinished(status string, elapsed time.Duration) {
	m.jobsTotal.WithLabelValues(status).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) FileClassified(status string) {
	m.filesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) FilesReaped(n int64) {
	if n > 0 {
		m.filesReaped.Add(float64(n))
	}
}

func (m *Metrics) LockContended() {
	m.lockContention.Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) JobFinished(string, time.Duration) {}
func (Nop) FileClassified(string)             {}
func (Nop) FilesReaped(int64)                 {}
func (Nop) LockContended()                    {}
