package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(embeddingCacheTotal) }

var embeddingCacheTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_embedding_cache_total",
		Help: "Embedding cache lookups by outcome.",
	},
	[]string{"outcome"}, // 'hit', 'miss', 'error'
)

func IncEmbeddingCache(outcome string) {
	embeddingCacheTotal.WithLabelValues(norm(outcome)).Inc()
}
