// Package opf defines the shared OPFSolution contract and error taxonomy of
// spec.md §4.4, common to the four-tier solver hierarchy in its ed, dcopf,
// socp and acnlp subpackages. Each tier populates a different subset of
// Solution's fields (spec.md §4.4: "variable completeness of fields") —
// absent fields are left at their zero value rather than modeled as a
// generic Optional[T], matching the teacher's own plain-struct result types
// (pkg/query/result.go) where callers check a Populated flag instead of
// unwrapping a box type.
package opf

import (
	"time"

	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/metrics"
)

// GenDispatch is one generator's dispatched output.
type GenDispatch struct {
	PMW       float64
	QMVAr     float64
	QPopulated bool
}

// BusResult is one bus's solved state.
type BusResult struct {
	VM           float64
	VA           float64
	LMP          float64
	VPopulated   bool
	LMPPopulated bool
}

// BranchResult is one branch's solved flow.
type BranchResult struct {
	PFromMW      float64
	QFromMVAr    float64
	Binding      bool
	QPopulated   bool
}

// Solution is the common OPFSolution contract of spec.md §4.4. Tier names
// the solver tier that produced it (opf-ed, opf-dc, opf-socp, opf-ac-nlp);
// pkg/resultio partitions rows by its own Stage values, not by Tier.
type Solution struct {
	Tier       string
	Objective  float64
	LossesMW   float64
	Gens       []GenDispatch
	Buses      []BusResult
	Branches   []BranchResult
	Iterations int
}

// ErrorKind tags an OPF failure with one of spec.md §4.4's named kinds.
type ErrorKind int

const (
	Infeasible ErrorKind = iota
	Unbounded
	NumericFailure
	SolverBackendError
	NotConverged
)

func (k ErrorKind) String() string {
	switch k {
	case Infeasible:
		return "Infeasible"
	case Unbounded:
		return "Unbounded"
	case NumericFailure:
		return "NumericFailure"
	case SolverBackendError:
		return "SolverBackendError"
	case NotConverged:
		return "NotConverged"
	default:
		return "Unknown"
	}
}

// SolveError reports a failed OPF solve with diagnostic context.
type SolveError struct {
	Kind    ErrorKind
	Reason  string
	Details string
}

func (e *SolveError) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Options controls tolerance, iteration cap, warm-start and backend
// selection across all four tiers; each tier consults the subset it uses.
type Options struct {
	Tolerance    float64
	MaxIter      int
	WarmStart    WarmStart
	Backend      string // read by AC-NLP only: "penalty" selects the penalty backend

	// Logger receives solve start/end, iteration counts and failures at
	// Info/Warn/Error, injected by the caller rather than taken from a
	// package-level global. Nil defaults to a no-op logger.
	Logger logging.Logger
	// Metrics, if set, records solve counts/durations/iterations under
	// the tier name passed to Solve. Nil skips metric recording.
	Metrics *metrics.Registry
}

// LoggerOrNop returns opts.Logger, or a no-op logger if unset.
func (o Options) LoggerOrNop() logging.Logger {
	if o.Logger == nil {
		return logging.NewNopLogger()
	}
	return o.Logger
}

// WarmStart names the initial-guess strategy accepted by AC-NLP (spec.md
// §4.4.4): flat start, seeded from a DC-OPF solve, or seeded from SOCP.
type WarmStart int

const (
	WarmStartFlat WarmStart = iota
	WarmStartFromDC
	WarmStartFromSOCP
)

// DefaultOptions returns conservative tolerance/iteration defaults shared
// across tiers; individual solvers override MaxIter where their algorithm's
// convergence profile differs.
func DefaultOptions() Options {
	return Options{Tolerance: 1e-6, MaxIter: 100}
}

// ObserveSolve logs the solve's completion or failure and (when opts.Metrics is set) records
// the solve's duration, iteration count and terminal status under tier.
// Every tier's Solve calls this once on return via defer, the same
// single-exit-point logging shape the teacher's storage layer uses around
// its own operations.
func ObserveSolve(opts Options, tier string, start time.Time, iterations int, err error) {
	logger := opts.LoggerOrNop()
	elapsed := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
	}

	fields := []logging.Field{
		logging.Component("opf"),
		logging.Operation(tier),
		logging.Iterations(iterations),
		logging.Latency(elapsed),
	}
	if err != nil {
		logger.Warn("opf solve failed", append(fields, logging.Error(err))...)
	} else {
		logger.Info("opf solve completed", fields...)
	}

	if opts.Metrics != nil {
		opts.Metrics.RecordSolve(tier, status, elapsed, iterations)
	}
}
