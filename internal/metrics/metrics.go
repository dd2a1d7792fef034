package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
// All methods are nil-receiver safe so callers can run without metrics wired.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	modeTransitions     *prometheus.CounterVec
	guardRejections     prometheus.Counter
	cameraFlights       *prometheus.CounterVec
	dataFetches         *prometheus.CounterVec
	dataFetchDuration   prometheus.Histogram
	ingestRunsTotal     prometheus.Counter
	ingestRunDuration   prometheus.Histogram
}

// New creates a fresh Metrics registry with HTTP, viewer and ingest metrics
// registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by core-go",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wayfinder",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by core-go",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	modeTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "view_mode_transitions_total",
		Help:      "Count of committed view mode transitions",
	}, []string{"from", "to"})

	guardRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "view_mode_guard_rejections_total",
		Help:      "Count of floor-plan mode requests reverted for missing building context",
	})

	cameraFlights := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "camera_flights_total",
		Help:      "Count of camera flight animations started",
	}, []string{"reason"})

	dataFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "map_data_fetches_total",
		Help:      "Count of upstream map data fetches by outcome",
	}, []string{"kind", "outcome"})

	dataFetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wayfinder",
		Name:      "map_data_fetch_duration_seconds",
		Help:      "Duration of upstream map data fetches",
		Buckets:   prometheus.DefBuckets,
	})

	ingestRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "ingest_runs_total",
		Help:      "Total number of venue ingest jobs processed",
	})

	ingestRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wayfinder",
		Name:      "ingest_run_duration_seconds",
		Help:      "Duration of venue ingest jobs from claim to finish",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		modeTransitions,
		guardRejections,
		cameraFlights,
		dataFetches,
		dataFetchDuration,
		ingestRunsTotal,
		ingestRunDuration,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		modeTransitions:     modeTransitions,
		guardRejections:     guardRejections,
		cameraFlights:       cameraFlights,
		dataFetches:         dataFetches,
		dataFetchDuration:   dataFetchDuration,
		ingestRunsTotal:     ingestRunsTotal,
		ingestRunDuration:   ingestRunDuration,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncModeTransition records a committed view mode transition.
func (m *Metrics) IncModeTransition(from, to string) {
	if m == nil {
		return
	}
	m.modeTransitions.With(prometheus.Labels{"from": from, "to": to}).Inc()
}

// IncGuardRejection records a reverted floor-plan mode request.
func (m *Metrics) IncGuardRejection() {
	if m == nil {
		return
	}
	m.guardRejections.Inc()
}

// IncCameraFlight records a started camera flight.
func (m *Metrics) IncCameraFlight(reason string) {
	if m == nil {
		return
	}
	m.cameraFlights.With(prometheus.Labels{"reason": reason}).Inc()
}

// ObserveDataFetch records one upstream map data fetch.
func (m *Metrics) ObserveDataFetch(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dataFetches.With(prometheus.Labels{"kind": kind, "outcome": outcome}).Inc()
	m.dataFetchDuration.Observe(duration.Seconds())
}

// IncIngestRun increments the ingest job counter.
func (m *Metrics) IncIngestRun() {
	if m == nil {
		return
	}
	m.ingestRunsTotal.Inc()
}

// ObserveIngestRunDuration observes an ingest job duration.
func (m *Metrics) ObserveIngestRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.ingestRunDuration.Observe(duration.Seconds())
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
