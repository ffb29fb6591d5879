package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry behavior.
var (
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anisync_retries_total",
		Help: "Total number of retry attempts",
	})

	backoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anisync_retry_backoff_seconds",
		Help:    "Backoff duration before each retry",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	exhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anisync_retry_exhausted_total",
		Help: "Total number of operations that exhausted all retries",
	})
)
