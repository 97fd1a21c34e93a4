// Package metrics provides Prometheus metrics for pdfinsight
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfinsight"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Pipeline metrics
	AsksTotal        *prometheus.CounterVec
	AskDuration      *prometheus.HistogramVec
	IngestsTotal     *prometheus.CounterVec
	IngestDuration   prometheus.Histogram
	IngestedChunks   prometheus.Counter
	DocumentsIndexed prometheus.Gauge

	startTime time.Time
}

// New creates the metrics on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	m := &Metrics{registry: reg, startTime: time.Now()}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.HTTPRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	m.AsksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asks_total",
			Help:      "Total number of questions answered, by outcome and answering model",
		},
		[]string{"outcome", "model"},
	)

	m.AskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ask_duration_seconds",
			Help:      "End-to-end duration of ask requests in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"outcome"},
	)

	m.IngestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingests_total",
			Help:      "Total number of PDF ingestions, by outcome",
		},
		[]string{"outcome"},
	)

	m.IngestDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of PDF ingestion in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	m.IngestedChunks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Total number of chunks indexed",
		},
	)

	m.DocumentsIndexed = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "documents_indexed",
			Help:      "Number of documents with a manifest",
		},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAsk records one ask request.
func (m *Metrics) ObserveAsk(outcome, model string, d time.Duration) {
	if m == nil {
		return
	}
	m.AsksTotal.WithLabelValues(outcome, model).Inc()
	m.AskDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveIngest records one ingestion.
func (m *Metrics) ObserveIngest(outcome string, chunks int, d time.Duration) {
	if m == nil {
		return
	}
	m.IngestsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.IngestedChunks.Add(float64(chunks))
		m.IngestDuration.Observe(d.Seconds())
	}
}

// SetDocuments updates the indexed document gauge.
func (m *Metrics) SetDocuments(n int) {
	if m == nil {
		return
	}
	m.DocumentsIndexed.Set(float64(n))
}

// Middleware records request count, latency, and in-flight requests,
// labelled by the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
