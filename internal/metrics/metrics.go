// Package metrics declares the Prometheus collectors shared by the indexing
// pipeline. Collectors register with the default registry on import and are
// served by the serve command when a metrics address is configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hybridindex"

// Embedder
var (
	// ProviderCalls counts provider calls.
	// Labels: tier, outcome (success, failure, quota)
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedder",
		Name:      "provider_calls_total",
		Help:      "Embedding provider calls by tier and outcome",
	}, []string{"tier", "outcome"})

	// ProviderLatency measures provider call latency.
	// Labels: tier
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "embedder",
		Name:      "provider_latency_seconds",
		Help:      "Embedding provider call latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"tier"})

	// QuotaRejections counts calls refused before reaching the provider.
	// Labels: tier
	QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedder",
		Name:      "quota_rejections_total",
		Help:      "Embedding requests rejected by tier quota",
	}, []string{"tier"})

	// TiersExhausted counts items for which every tier failed.
	TiersExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedder",
		Name:      "all_tiers_exhausted_total",
		Help:      "Embedding items that failed on every tier",
	})

	// TierHealth is 0 for HEALTHY, 1 for DEGRADED and 2 for UNAVAILABLE.
	// Labels: tier
	TierHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "embedder",
		Name:      "tier_health",
		Help:      "Embedding tier health state (0 healthy, 1 degraded, 2 unavailable)",
	}, []string{"tier"})
)

// Cache
var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Embedding cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Embedding cache misses",
	})

	CacheCorrupt = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "corrupt_total",
		Help:      "Embedding cache entries discarded as corrupt",
	})

	// CacheEvictions counts removed entries.
	// Labels: reason (ttl, size)
	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Embedding cache evictions by reason",
	}, []string{"reason"})

	CacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "bytes",
		Help:      "Compressed bytes held by the embedding cache",
	})
)

// Connections
var (
	// StoreUp is 1 while a store is reachable.
	// Labels: store (vector, graph)
	StoreUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "connections",
		Name:      "store_up",
		Help:      "Whether a downstream store is reachable",
	}, []string{"store"})

	// StoreReconnects counts reconnect attempts.
	// Labels: store, outcome (success, failure)
	StoreReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connections",
		Name:      "reconnects_total",
		Help:      "Store reconnect attempts by outcome",
	}, []string{"store", "outcome"})
)

// Indexer
var (
	// ChunksIndexed counts chunk outcomes.
	// Labels: status (COMPLETE, PARTIAL_VECTOR_ONLY, FAILED)
	ChunksIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "chunks_total",
		Help:      "Indexed chunks by final status",
	}, []string{"status"})

	FileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "file_duration_seconds",
		Help:      "Time to index one file",
		Buckets:   prometheus.DefBuckets,
	})

	Superseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "superseded_total",
		Help:      "Indexing requests overtaken by a newer request for the same file",
	})

	ParseDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "parse_degraded_total",
		Help:      "Files chunked by the generic splitter after a structural parse failure",
	})

	Reconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "reconciled_total",
		Help:      "Graph replays of partial records by outcome",
	}, []string{"outcome"})
)
