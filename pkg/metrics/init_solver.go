package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSolverMetrics() {
	r.SolveTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridflow_solve_total",
			Help: "Total solve invocations by stage and terminal status",
		},
		[]string{"stage", "status"},
	)

	r.SolveDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridflow_solve_duration_seconds",
			Help:    "Solve wall-clock duration by stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	r.SolveIterations = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridflow_solve_iterations",
			Help:    "Iteration count to convergence (or abort) by stage",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"stage"},
	)

	r.SolveFailuresTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridflow_solve_failures_total",
			Help: "Solve invocations that did not terminate with status=ok",
		},
		[]string{"stage", "status"},
	)
}
