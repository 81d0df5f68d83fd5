package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection pool metrics
	PoolCreatedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tycoon_pool_created_connections",
		Help: "Connections currently counted against the pool ceiling",
	})
	PoolAvailableConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tycoon_pool_available_connections",
		Help: "Connections currently idle in the pool",
	})
	PoolAcquireWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tycoon_pool_acquire_wait_seconds",
		Help:    "Time spent acquiring a connection from the pool",
		Buckets: prometheus.DefBuckets,
	})
	PoolAcquireErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tycoon_pool_acquire_errors_total",
		Help: "Failed connection acquisitions by reason",
	}, []string{"reason"})
	PoolDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tycoon_pool_discarded_total",
		Help: "Connections closed by the pool by reason",
	}, []string{"reason"})
	PoolCreateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tycoon_pool_create_errors_total",
		Help: "Failed attempts to open a new connection",
	})

	// Aggregate store metrics
	StoreSaveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tycoon_store_save_duration_seconds",
		Help:    "Latency of player aggregate save transactions",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5, 10, 30},
	})
	StoreSaveFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tycoon_store_save_failures_total",
		Help: "Failed player aggregate saves by kind",
	}, []string{"kind"})
	StoreSlowSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tycoon_store_slow_saves_total",
		Help: "Saves that exceeded the slow save threshold",
	})
	WriterRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tycoon_writer_retries_total",
		Help: "Save retries scheduled by class",
	}, []string{"class"})
	WriterExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tycoon_writer_exhausted_total",
		Help: "Saves that failed after the last attempt",
	})

	// Ranking metrics
	RankingPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tycoon_ranking_published_total",
		Help: "Leaderboard entries handed to the ranking sink",
	})
	RankingPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tycoon_ranking_publish_errors_total",
		Help: "Leaderboard entries the ranking sink failed to accept",
	})
	RankerMessagesConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tycoon_ranker_messages_consumed_total",
		Help: "The total number of ranking events consumed from Kafka",
	})
	RankerBatchWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tycoon_ranker_batch_writes_total",
		Help: "The total number of ranking batch writes",
	})
	RankerWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tycoon_ranker_write_errors_total",
		Help: "The total number of errors occurred during ranking batch writes",
	})
	RankerUpsertLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tycoon_ranker_upsert_latency_seconds",
		Help:    "Latency of ranking batch upserts",
		Buckets: prometheus.DefBuckets,
	})
)

// ObservePool copies a pool status snapshot into the pool gauges.
func ObservePool(created, available int) {
	PoolCreatedConnections.Set(float64(created))
	PoolAvailableConnections.Set(float64(available))
}
