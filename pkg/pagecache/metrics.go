package pagecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for page cache operations, labeled by store backend.
var (
	hitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anisync_pagecache_hits_total",
		Help: "Total page cache hits",
	}, []string{"store"}) // "memory", "redis"

	missesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anisync_pagecache_misses_total",
		Help: "Total page cache misses",
	}, []string{"store"})

	entriesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "anisync_pagecache_entries",
		Help: "Current number of cached pages",
	}, []string{"store"})

	cleanupRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anisync_pagecache_cleanup_removed_total",
		Help: "Total expired entries removed by cleanup passes",
	}, []string{"store"})
)
