package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, jobDurationMs, jobRetriesTotal, jobsStalledTotal) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_jobs_processed_total",
		Help: "Total number of jobs processed, labeled by type and terminal status.",
	},
	[]string{"type", "status"}, // 'completed', 'failed'
)

var jobDurationMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pipeline_job_duration_ms",
		Help:    "End-to-end job execution duration in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000, 300000},
	},
	[]string{"type"},
)

var jobRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_job_retries_total",
		Help: "Total number of retry requeues, labeled by type.",
	},
	[]string{"type"},
)

var jobsStalledTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_jobs_stalled_total",
		Help: "Jobs requeued by stall recovery after lease expiry.",
	},
	[]string{"type"},
)

func IncJob(jobType, status string) {
	jobsProcessedTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func ObserveJobDuration(jobType string, ms float64) {
	jobDurationMs.WithLabelValues(norm(jobType)).Observe(ms)
}

func IncJobRetry(jobType string) {
	jobRetriesTotal.WithLabelValues(norm(jobType)).Inc()
}

func AddStalled(jobType string, n int) {
	jobsStalledTotal.WithLabelValues(norm(jobType)).Add(float64(n))
}
