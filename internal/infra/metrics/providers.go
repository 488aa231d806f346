package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(providerCostMicro, providerCallLatencyMs) }

var providerCostMicro = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_provider_cost_micro",
		Help: "Total micro-units spent per provider service/operation.",
	},
	[]string{"service", "operation"},
)

var providerCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pipeline_provider_call_latency_ms",
		Help:    "Provider call latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 15000},
	},
	[]string{"service", "operation", "success"},
)

func ObserveProviderCall(service, operation string, costMicros int64, latencyMs int, success bool) {
	providerCostMicro.WithLabelValues(norm(service), norm(operation)).Add(float64(costMicros))
	providerCallLatencyMs.WithLabelValues(norm(service), norm(operation), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
