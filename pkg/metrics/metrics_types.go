package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the solver and batch subsystems.
type Registry struct {
	// Solver metrics (powerflow, opf, contingency, stateestimate)
	SolveTotal          *prometheus.CounterVec
	SolveDuration       *prometheus.HistogramVec
	SolveIterations     *prometheus.HistogramVec
	SolveFailuresTotal  *prometheus.CounterVec

	// Batch metrics (pkg/batch)
	BatchJobsTotal     *prometheus.CounterVec
	BatchJobDuration   *prometheus.HistogramVec
	BatchQueueDepth    prometheus.Gauge

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initSolverMetrics()
	r.initBatchMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
