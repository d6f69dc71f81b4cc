package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	flogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flog_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	flogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flog_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	flogFactsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flog_facts_stored_total",
		Help: "Total facts appended to the log.",
	})

	flogFactsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flog_facts_dropped_total",
		Help: "Total facts dropped because the log was disabled.",
	})

	flogProofsIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flog_proofs_issued_total",
		Help: "Total commitments and extension proofs issued, by kind.",
	}, []string{"kind"})

	flogProofsUnavailableTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flog_proofs_unavailable_total",
		Help: "Total proof requests answered with unavailable.",
	})

	flogHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flog_health_checks_total",
		Help: "Total self-check probes by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request
// metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		flogRequestsTotal.WithLabelValues(method, path, status).Inc()
		flogRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordFactStored records a successful fact append.
func RecordFactStored() { flogFactsStoredTotal.Inc() }

// RecordFactDropped records a fact dropped by the disabled gate.
func RecordFactDropped() { flogFactsDroppedTotal.Inc() }

// RecordProofIssued records an issued commitment or extension proof.
func RecordProofIssued(kind string) { flogProofsIssuedTotal.WithLabelValues(kind).Inc() }

// RecordProofUnavailable records a proof request answered "unavailable".
func RecordProofUnavailable() { flogProofsUnavailableTotal.Inc() }

// RecordHealthCheck records a self-check probe result.
func RecordHealthCheck(success bool) {
	if success {
		flogHealthChecksTotal.WithLabelValues("success").Inc()
	} else {
		flogHealthChecksTotal.WithLabelValues("failure").Inc()
	}
}
