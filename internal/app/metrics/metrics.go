package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "curation",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curation",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "curation",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	queriesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "curation",
			Subsystem: "analytics",
			Name:      "queries_recorded_total",
			Help:      "Total number of search queries captured.",
		},
	)

	bulkItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curation",
			Subsystem: "publications",
			Name:      "bulk_items_total",
			Help:      "Total number of items processed by bulk operations.",
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		queriesRecorded,
		bulkItems,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordQueryCaptured counts a captured search query.
func RecordQueryCaptured() {
	queriesRecorded.Inc()
}

// RecordBulkItems counts processed bulk entries per operation.
func RecordBulkItems(operation string, succeeded, failed int) {
	if operation == "" {
		operation = "unknown"
	}
	bulkItems.WithLabelValues(operation, "succeeded").Add(float64(succeeded))
	bulkItems.WithLabelValues(operation, "failed").Add(float64(failed))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/api"
	}
	resource := parts[1]
	if len(parts) == 2 {
		return "/api/" + resource
	}
	last := parts[len(parts)-1]
	if len(parts) == 3 {
		// Literal collection routes keep their name; anything else is an ID.
		switch last {
		case "current", "lookup", "visible", "recent", "search",
			"bulk-create", "bulk-update", "bulk-delete":
			return "/api/" + resource + "/" + last
		}
		return "/api/" + resource + "/:id"
	}
	// Collapse the ID but keep named sub-resources.
	switch last {
	case "stats", "publications", "set_current", "add_source", "remove_source":
		return "/api/" + resource + "/:id/" + last
	}
	return "/api/" + resource + "/:id"
}
