package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initBatchMetrics() {
	r.BatchJobsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridflow_batch_jobs_total",
			Help: "Total scenario jobs completed by task kind and terminal status",
		},
		[]string{"task_kind", "status"},
	)

	r.BatchJobDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridflow_batch_job_duration_seconds",
			Help:    "Scenario job wall-clock duration by task kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_kind"},
	)

	r.BatchQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "gridflow_batch_queue_depth",
			Help: "Jobs queued but not yet started in the worker pool fan-out",
		},
	)
}
