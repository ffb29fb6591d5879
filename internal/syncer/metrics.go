package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for sync runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anisync_runs_total",
		Help: "Total sync runs by outcome",
	}, []string{"outcome"}) // "success", "failure"

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anisync_run_duration_seconds",
		Help:    "Sync run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anisync_pages_processed_total",
		Help: "Total catalog pages merged into storage",
	})
)
