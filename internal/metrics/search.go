package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quarry",
			Name:      "search_requests_total",
			Help:      "Total number of hybrid search requests",
		},
		[]string{"status"}, // "ok" / "empty"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quarry",
			Name:      "search_duration_seconds",
			Help:      "Hybrid search duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"stage"}, // "expand" / "fanout" / "rerank" / "total"
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quarry",
			Name:      "result_cache_total",
			Help:      "Result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	RerankCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quarry",
			Name:      "rerank_cache_total",
			Help:      "Rerank score cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	RerankTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quarry",
			Name:      "rerank_total",
			Help:      "Rerank invocations by outcome",
		},
		[]string{"outcome"}, // "success" / "cached" / "skipped" / "disabled" / "failed"
	)

	LexicalRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quarry",
			Name:      "lexical_rebuilds_total",
			Help:      "Lexical index rebuilds by trigger",
		},
		[]string{"trigger"}, // "initial" / "dirty" / "forced" / "drift"
	)

	CacheInvalidationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quarry",
			Name:      "cache_invalidations_total",
			Help:      "Scope-targeted result cache purges",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers retrieval metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(ResultCacheTotal)
	prometheus.MustRegister(RerankCacheTotal)
	prometheus.MustRegister(RerankTotal)
	prometheus.MustRegister(LexicalRebuildsTotal)
	prometheus.MustRegister(CacheInvalidationsTotal)
	searchMetricsRegistered = true
}
