package metrics

import (
	"time"
)

// RecordSolve records one solve invocation (powerflow, opf, contingency,
// or stateestimate) identified by stage (e.g. "pf-ac", "opf-dcopf").
func (r *Registry) RecordSolve(stage, status string, duration time.Duration, iterations int) {
	r.SolveTotal.WithLabelValues(stage, status).Inc()
	r.SolveDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if iterations > 0 {
		r.SolveIterations.WithLabelValues(stage).Observe(float64(iterations))
	}
	if status != "ok" {
		r.SolveFailuresTotal.WithLabelValues(stage, status).Inc()
	}
}

// RecordBatchJob records one scenario job's terminal outcome within a
// batch run.
func (r *Registry) RecordBatchJob(taskKind, status string, duration time.Duration) {
	r.BatchJobsTotal.WithLabelValues(taskKind, status).Inc()
	r.BatchJobDuration.WithLabelValues(taskKind).Observe(duration.Seconds())
}

// SetBatchQueueDepth reports the current number of queued-but-unstarted
// jobs in a batch's worker pool fan-out.
func (r *Registry) SetBatchQueueDepth(depth int) {
	r.BatchQueueDepth.Set(float64(depth))
}
