package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(queueDepth, ledgerWriteFailures, statusSyncFailures) }

var queueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pipeline_queue_depth",
		Help: "Jobs per type and state, sampled by the janitor.",
	},
	[]string{"type", "state"},
)

var ledgerWriteFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pipeline_ledger_write_failures_total",
		Help: "Best-effort cost ledger writes that failed (logged, not propagated).",
	},
)

var statusSyncFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pipeline_status_sync_failures_total",
		Help: "Best-effort media status mirror writes that failed.",
	},
)

func SetQueueDepth(jobType, state string, n int) {
	queueDepth.WithLabelValues(norm(jobType), norm(state)).Set(float64(n))
}

func IncLedgerWriteFailure() { ledgerWriteFailures.Inc() }
func IncStatusSyncFailure()  { statusSyncFailures.Inc() }
