package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for storage writes.
var (
	recordsUpsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anisync_store_records_upserted_total",
		Help: "Total catalog records upserted",
	})

	recordsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anisync_store_records_failed_total",
		Help: "Total catalog records that failed to upsert",
	})
)
