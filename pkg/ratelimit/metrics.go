package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for slot dispatching, labeled by limiter name.
var (
	dispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anisync_ratelimit_dispatched_total",
		Help: "Total slots dispatched by limiter",
	}, []string{"limiter"})

	queueFullTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anisync_ratelimit_queue_full_total",
		Help: "Total slot requests rejected because the queue was full",
	}, []string{"limiter"})

	clearedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anisync_ratelimit_cleared_total",
		Help: "Total pending waiters rejected by Clear or Reset",
	}, []string{"limiter"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "anisync_ratelimit_queue_depth",
		Help: "Current number of pending waiters by limiter",
	}, []string{"limiter"})

	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anisync_ratelimit_wait_seconds",
		Help:    "Time callers spent waiting for a slot",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"limiter"})
)
