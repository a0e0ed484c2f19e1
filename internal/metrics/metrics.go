// Package metrics exposes Prometheus collectors for cascade fetches,
// submissions and the websocket bridge.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tonimelisma/appdist/internal/backend"
)

const defaultNamespace = "appdist"

// Fetch outcomes.
const (
	outcomeIssued   = "issued"
	outcomeAccepted = "accepted"
	outcomeStale    = "stale"
	outcomeFailed   = "failed"
)

// Collector owns a private registry. It implements cascade.Observer.
type Collector struct {
	registry *prometheus.Registry

	fetches      *prometheus.CounterVec
	fetchErrors  *prometheus.CounterVec
	submissions  *prometheus.CounterVec
	sessions     prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector. An empty namespace uses "appdist".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "fetches_total",
			Help:      "Cascade slot fetches by slot and outcome.",
		}, []string{"slot", "outcome"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "fetch_errors_total",
			Help:      "Failed cascade fetches by slot and error class.",
		}, []string{"slot", "class"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "submissions_total",
			Help:      "Form submissions by kind and status.",
		}, []string{"kind", "status"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "sessions_active",
			Help:      "Open websocket form sessions.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the bridge.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of bridge HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method"}),
	}

	c.registry.MustRegister(
		c.fetches,
		c.fetchErrors,
		c.submissions,
		c.sessions,
		c.httpRequests,
		c.httpDuration,
		prometheus.NewGoCollector(),
	)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// FetchIssued implements cascade.Observer.
func (c *Collector) FetchIssued(slot string) {
	c.fetches.WithLabelValues(slot, outcomeIssued).Inc()
}

// FetchAccepted implements cascade.Observer.
func (c *Collector) FetchAccepted(slot string) {
	c.fetches.WithLabelValues(slot, outcomeAccepted).Inc()
}

// FetchStale implements cascade.Observer.
func (c *Collector) FetchStale(slot string) {
	c.fetches.WithLabelValues(slot, outcomeStale).Inc()
}

// FetchFailed implements cascade.Observer.
func (c *Collector) FetchFailed(slot string, err error) {
	c.fetches.WithLabelValues(slot, outcomeFailed).Inc()
	c.fetchErrors.WithLabelValues(slot, errorClass(err)).Inc()
}

// RecordSubmission counts one submission outcome.
func (c *Collector) RecordSubmission(kind, status string) {
	c.submissions.WithLabelValues(kind, status).Inc()
}

// SessionOpened and SessionClosed track live bridge sessions.
func (c *Collector) SessionOpened() { c.sessions.Inc() }

// SessionClosed decrements the live session gauge.
func (c *Collector) SessionClosed() { c.sessions.Dec() }

// InstrumentHandler wraps next with request counting and timing.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		c.httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// errorClass buckets an error by backend status class.
func errorClass(err error) string {
	var be *backend.Error

	switch {
	case err == nil:
		return "none"
	case errors.As(err, &be):
		return strconv.Itoa(be.StatusCode/100) + "xx"
	default:
		return "transport"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes websocket upgrades through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols

	return http.NewResponseController(r.ResponseWriter).Hijack()
}
