package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP requests and for
// extraction runs.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	itemsTotal      *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	tokenRefreshes  prometheus.Counter
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalyst_etl",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalyst_etl",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	itemsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalyst_etl",
		Subsystem: "extract",
		Name:      "items_total",
		Help:      "Items processed per resource, by outcome.",
	}, []string{"resource", "outcome"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalyst_etl",
		Subsystem: "extract",
		Name:      "run_duration_seconds",
		Help:      "Duration of per-resource extraction runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"resource"})

	tokenRefreshes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalyst_etl",
		Subsystem: "auth",
		Name:      "token_refreshes_total",
		Help:      "Total number of OAuth token refreshes.",
	})

	collectors := []prometheus.Collector{
		requestDuration, requestTotal, itemsTotal, runDuration, tokenRefreshes,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	collector := &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		itemsTotal:      itemsTotal,
		runDuration:     runDuration,
		tokenRefreshes:  tokenRefreshes,
	}

	return collector, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// AddItems records n items of a given outcome for a resource.
func (c *Collector) AddItems(resource, outcome string, n int) {
	if n <= 0 {
		return
	}
	c.itemsTotal.WithLabelValues(resource, outcome).Add(float64(n))
}

// ObserveRunDuration records how long one resource's extraction run took.
func (c *Collector) ObserveRunDuration(resource string, seconds float64) {
	c.runDuration.WithLabelValues(resource).Observe(seconds)
}

// IncTokenRefresh counts one OAuth token refresh.
func (c *Collector) IncTokenRefresh() {
	c.tokenRefreshes.Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
