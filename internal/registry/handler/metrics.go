package handler

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	starRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "star_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	starRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "star_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	starBlocksAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "star_blocks_appended_total",
		Help: "Total blocks appended to the ledger, genesis included.",
	})

	starProofFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "star_proof_failures_total",
		Help: "Total rejected ownership proofs by reason.",
	}, []string{"reason"})

	starChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "star_chain_height",
		Help: "Height of the latest block.",
	})

	starChainFaults = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "star_chain_faults",
		Help: "Integrity faults found by the most recent audit.",
	})

	starAuditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "star_audits_total",
		Help: "Total chain audits by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		starRequestsTotal.WithLabelValues(method, path, status).Inc()
		starRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

var (
	heightMu   sync.Mutex
	highHeight = -1
)

// observeHeight moves the height gauge forward only. Append hooks run outside
// the ledger lock, so heights can arrive out of order.
func observeHeight(height int) {
	heightMu.Lock()
	defer heightMu.Unlock()
	if height > highHeight {
		highHeight = height
		starChainHeight.Set(float64(height))
	}
}

// RecordBlockAppend records an appended block. Suitable as a ledger append hook.
func RecordBlockAppend(height int) {
	starBlocksAppendedTotal.Inc()
	observeHeight(height)
}

// RecordProofFailure records a rejected ownership proof.
func RecordProofFailure(reason string) {
	starProofFailuresTotal.WithLabelValues(reason).Inc()
}

// SetChainFaults sets the fault gauge to the result of the latest audit.
func SetChainFaults(n int) {
	starChainFaults.Set(float64(n))
}

// RecordAudit records the outcome of a periodic chain audit.
func RecordAudit(height, faults int) {
	observeHeight(height)
	SetChainFaults(faults)
	if faults == 0 {
		starAuditsTotal.WithLabelValues("intact").Inc()
	} else {
		starAuditsTotal.WithLabelValues("faulty").Inc()
	}
}
