// Package stateestimate implements spec.md §4.5's weighted-least-squares
// state estimator: given a redundant set of flow, injection and voltage
// magnitude measurements, solve for the bus voltage state (theta, V) that
// minimizes the weighted sum of squared measurement residuals via the
// Gauss-Newton normal equations, then iteratively strip the
// largest-normalized-residual measurement when it looks like bad data.
//
// The measurement-to-state Jacobian is built by central differences rather
// than hand-derived analytic partials, the same choice pkg/opf/socp and
// pkg/opf/acnlp's penalty backend make for their own nonlinear objectives
// (see DESIGN.md) — deriving and sign-checking partials for three
// measurement types (flow, injection, voltage) without a compiler to check
// against was judged a worse risk than the added compute cost of finite
// differences at the grid sizes this engine targets.
package stateestimate

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/metrics"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/sparse"
)

// MeasurementKind tags what physical quantity a Measurement reports.
type MeasurementKind int

const (
	InjectionP MeasurementKind = iota
	InjectionQ
	FlowP
	FlowQ
	VoltageMagnitude
)

// Measurement is one redundant telemetry reading in per-unit.
type Measurement struct {
	Kind MeasurementKind

	// BusExternalID is consulted for InjectionP/InjectionQ/VoltageMagnitude.
	BusExternalID int64

	// BranchExternalID is consulted for FlowP/FlowQ; the reading is always
	// the branch's from-end flow.
	BranchExternalID int64

	ValuePU float64
	SigmaPU float64 // measurement standard deviation in per unit; weight = 1/Sigma^2
}

// ErrorKind tags a failed estimate with one of spec.md §4.5's named kinds.
type ErrorKind int

const (
	SystemNotObservable ErrorKind = iota
	NormalEquationsSingular
	RemovalBudgetExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case SystemNotObservable:
		return "SystemNotObservable"
	case NormalEquationsSingular:
		return "NormalEquationsSingular"
	case RemovalBudgetExhausted:
		return "RemovalBudgetExhausted"
	default:
		return "Unknown"
	}
}

// EstimateError reports a failed state estimate with diagnostic context.
type EstimateError struct {
	Kind   ErrorKind
	Reason string
}

func (e *EstimateError) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

// Options controls the Gauss-Newton iteration and bad-data removal budget.
type Options struct {
	Tolerance        float64
	MaxIter          int
	MaxRemovals      int
	BadDataThreshold float64 // normalized-residual threshold above which a measurement is suspect

	// Logger receives solve start/end, iteration counts and bad-data
	// removals, injected by the caller (never a package-level global).
	// Nil defaults to a no-op logger.
	Logger logging.Logger
	// Metrics, if set, records solve telemetry under the "se-wls" stage.
	Metrics *metrics.Registry
}

// DefaultOptions returns spec.md §4.5's defaults: a 3-sigma bad-data test,
// up to 2 measurement removals per solve.
func DefaultOptions() Options {
	return Options{Tolerance: 1e-6, MaxIter: 30, MaxRemovals: 2, BadDataThreshold: 3.0}
}

func (o Options) loggerOrNop() logging.Logger {
	if o.Logger == nil {
		return logging.NewNopLogger()
	}
	return o.Logger
}

// Result is the solved bus voltage state plus bad-data bookkeeping.
type Result struct {
	VM                  []float64
	VA                  []float64
	Iterations          int
	RemovedMeasurements []int // indices into the Measurement slice passed to Solve
}

// Solve implements spec.md §4.5: iterative Gauss-Newton WLS with bad-data
// detection and removal, capped at Options.MaxRemovals. Logs solve start/
// end and records solver telemetry through opts.Logger/opts.Metrics.
func Solve(nm *network.Model, adm *admittance.AdmittanceAssembly, measurements []Measurement, opts Options) (result *Result, err error) {
	start := time.Now()
	logger := opts.loggerOrNop()
	logger.Info("stateestimate solve starting", logging.Component("stateestimate"), logging.Operation("se-wls"),
		logging.Count(len(measurements)))
	defer func() {
		elapsed := time.Since(start)
		iterations := 0
		if result != nil {
			iterations = result.Iterations
		}
		status := "ok"
		if err != nil {
			status = "error"
			logger.Warn("stateestimate solve failed", logging.Component("stateestimate"), logging.Operation("se-wls"),
				logging.Latency(elapsed), logging.Error(err))
		} else {
			logger.Info("stateestimate solve completed", logging.Component("stateestimate"), logging.Operation("se-wls"),
				logging.Latency(elapsed), logging.Iterations(iterations), logging.Int("removed", len(result.RemovedMeasurements)))
		}
		if opts.Metrics != nil {
			opts.Metrics.RecordSolve("se-wls", status, elapsed, iterations)
		}
	}()
	result, err = solveWLS(nm, adm, measurements, opts)
	return result, err
}

func solveWLS(nm *network.Model, adm *admittance.AdmittanceAssembly, measurements []Measurement, opts Options) (*Result, error) {
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 30
	}
	if opts.BadDataThreshold <= 0 {
		opts.BadDataThreshold = 3.0
	}

	n := nm.NumBuses()
	slack := adm.SlackIndex()
	lay := seLayout{n: n, slack: slack}

	active := make([]bool, len(measurements))
	for i := range active {
		active[i] = true
	}
	removed := make([]int, 0)

	for {
		activeMeas, activeIdx := filterActive(measurements, active)
		if len(activeMeas) < lay.size() {
			return nil, &EstimateError{Kind: SystemNotObservable, Reason: "fewer active measurements than state variables"}
		}

		x, iters, err := gaussNewtonSolve(nm, adm, lay, activeMeas, opts)
		if err != nil {
			return nil, err
		}

		residuals := measurementResiduals(nm, adm, lay, activeMeas, x)
		worst, worstVal := worstNormalizedResidual(activeMeas, residuals)

		if worstVal <= opts.BadDataThreshold {
			vm, va := lay.unpack(x)
			return &Result{VM: vm, VA: va, Iterations: iters, RemovedMeasurements: removed}, nil
		}

		if len(removed) >= opts.MaxRemovals {
			return nil, &EstimateError{Kind: RemovalBudgetExhausted, Reason: "largest normalized residual still exceeds threshold after exhausting removal budget"}
		}

		removed = append(removed, activeIdx[worst])
		active[activeIdx[worst]] = false
	}
}

func filterActive(measurements []Measurement, active []bool) ([]Measurement, []int) {
	out := make([]Measurement, 0, len(measurements))
	idx := make([]int, 0, len(measurements))
	for i, m := range measurements {
		if active[i] {
			out = append(out, m)
			idx = append(idx, i)
		}
	}
	return out, idx
}

// seLayout indexes the flat state vector [theta(non-slack buses), vm(all
// buses)], the same shape pkg/powerflow's Newton solve uses minus the
// PV/PQ voltage-freedom split — state estimation floats every bus's
// voltage magnitude.
type seLayout struct {
	n     int
	slack int
}

func (l seLayout) size() int { return 2*l.n - 1 }

func (l seLayout) thetaIdx(bus int) int {
	if bus == l.slack {
		return -1
	}
	if bus < l.slack {
		return bus
	}
	return bus - 1
}

func (l seLayout) vmIdx(bus int) int { return (l.n - 1) + bus }

func (l seLayout) flatStart() []float64 {
	x := make([]float64, l.size())
	for bus := 0; bus < l.n; bus++ {
		x[l.vmIdx(bus)] = 1.0
	}
	return x
}

func (l seLayout) unpack(x []float64) (vm, va []float64) {
	vm = make([]float64, l.n)
	va = make([]float64, l.n)
	for bus := 0; bus < l.n; bus++ {
		vm[bus] = x[l.vmIdx(bus)]
		if ti := l.thetaIdx(bus); ti >= 0 {
			va[bus] = x[ti]
		}
	}
	return vm, va
}

func (l seLayout) unpackThetaVM(x []float64) (theta, vm []float64) {
	theta = make([]float64, l.n)
	vm = make([]float64, l.n)
	for bus := 0; bus < l.n; bus++ {
		vm[bus] = x[l.vmIdx(bus)]
		if ti := l.thetaIdx(bus); ti >= 0 {
			theta[bus] = x[ti]
		}
	}
	return theta, vm
}

func gaussNewtonSolve(nm *network.Model, adm *admittance.AdmittanceAssembly, lay seLayout, meas []Measurement, opts Options) ([]float64, int, error) {
	x := lay.flatStart()
	weights := make([]float64, len(meas))
	for i, m := range meas {
		sigma := m.SigmaPU
		if sigma <= 0 {
			sigma = 0.01
		}
		weights[i] = 1 / (sigma * sigma)
	}

	hFunc := func(x []float64) []float64 { return predict(nm, adm, lay, meas, x) }

	for iter := 0; iter < opts.MaxIter; iter++ {
		h := hFunc(x)
		jac := numericJacobian(hFunc, x, 1e-6)

		dim := lay.size()
		b := sparse.NewBuilder(dim)
		rhs := make([]float64, dim)
		for i, m := range meas {
			w := weights[i]
			resid := m.ValuePU - h[i]
			for a := 0; a < dim; a++ {
				hia := jac[i][a]
				if hia == 0 {
					continue
				}
				rhs[a] += w * hia * resid
				for c := 0; c < dim; c++ {
					hic := jac[i][c]
					if hic == 0 {
						continue
					}
					b.Add(a, c, w*hia*hic)
				}
			}
		}

		normalMatrix := b.Build()
		dx, err := normalMatrix.Solve(rhs)
		if err != nil {
			return nil, iter, &EstimateError{Kind: NormalEquationsSingular, Reason: "normal equations (H^T W H) singular"}
		}

		maxStep := 0.0
		for i := range x {
			x[i] += dx[i]
			if math.Abs(dx[i]) > maxStep {
				maxStep = math.Abs(dx[i])
			}
		}
		if maxStep < opts.Tolerance {
			return x, iter + 1, nil
		}
	}

	return x, opts.MaxIter, nil
}

func measurementResiduals(nm *network.Model, adm *admittance.AdmittanceAssembly, lay seLayout, meas []Measurement, x []float64) []float64 {
	h := predict(nm, adm, lay, meas, x)
	out := make([]float64, len(meas))
	for i, m := range meas {
		out[i] = m.ValuePU - h[i]
	}
	return out
}

func worstNormalizedResidual(meas []Measurement, residuals []float64) (int, float64) {
	worst := -1
	worstVal := 0.0
	for i, m := range meas {
		sigma := m.SigmaPU
		if sigma <= 0 {
			sigma = 0.01
		}
		nr := math.Abs(residuals[i]) / sigma
		if nr > worstVal {
			worstVal = nr
			worst = i
		}
	}
	return worst, worstVal
}

// predict computes h(x), the predicted value of every measurement given
// the candidate state x.
func predict(nm *network.Model, adm *admittance.AdmittanceAssembly, lay seLayout, meas []Measurement, x []float64) []float64 {
	theta, vm := lay.unpackThetaVM(x)
	p, q := calcPQ(adm, theta, vm)

	out := make([]float64, len(meas))
	for i, m := range meas {
		switch m.Kind {
		case VoltageMagnitude:
			bus, _ := nm.BusIndex(m.BusExternalID)
			out[i] = vm[bus]
		case InjectionP:
			bus, _ := nm.BusIndex(m.BusExternalID)
			out[i] = p[bus]
		case InjectionQ:
			bus, _ := nm.BusIndex(m.BusExternalID)
			out[i] = q[bus]
		case FlowP, FlowQ:
			bi, _ := nm.BranchIndex(m.BranchExternalID)
			pFrom, qFrom := branchFlow(nm, bi, theta, vm)
			if m.Kind == FlowP {
				out[i] = pFrom
			} else {
				out[i] = qFrom
			}
		}
	}
	return out
}

func calcPQ(adm *admittance.AdmittanceAssembly, theta, vm []float64) (p, q []float64) {
	n := adm.N()
	p = make([]float64, n)
	q = make([]float64, n)
	y := adm.Y()
	for i := 0; i < n; i++ {
		vi := vm[i]
		var pi, qi float64
		y.Row(i, func(j int, yij complex128) {
			vj := vm[j]
			dt := theta[i] - theta[j]
			g, b := real(yij), imag(yij)
			pi += vi * vj * (g*math.Cos(dt) + b*math.Sin(dt))
			qi += vi * vj * (g*math.Sin(dt) - b*math.Cos(dt))
		})
		p[i] = pi
		q[i] = qi
	}
	return p, q
}

// branchFlow returns the from-end P/Q flow in per unit, the same pi-model
// current/power formula used throughout this engine (pkg/powerflow/ac.go's
// buildACSolution, pkg/opf/acnlp's buildNLSolution).
func branchFlow(nm *network.Model, branchIdx int, theta, vm []float64) (p, q float64) {
	br := nm.Branch(branchIdx)
	vi := cmplx.Rect(vm[br.FromBus], theta[br.FromBus])
	vj := cmplx.Rect(vm[br.ToBus], theta[br.ToBus])
	z := complex(br.R, br.X)
	tapMag := br.TapRatio
	if tapMag == 0 {
		tapMag = 1.0
	}
	tap := cmplx.Rect(tapMag, br.PhaseShift)
	y := 1 / z
	bc := complex(0, br.B/2)

	iFrom := (vi/tap - vj) * y / cmplx.Conj(tap)
	iFrom += vi * bc / (tap * cmplx.Conj(tap))
	sFrom := vi * cmplx.Conj(iFrom)
	return real(sFrom), imag(sFrom)
}

func numericJacobian(hFunc func([]float64) []float64, x []float64, h float64) [][]float64 {
	base := hFunc(x)
	m := len(base)
	dim := len(x)
	jac := make([][]float64, m)
	for i := range jac {
		jac[i] = make([]float64, dim)
	}

	for j := 0; j < dim; j++ {
		xp := append([]float64(nil), x...)
		xp[j] += h
		hp := hFunc(xp)

		xm := append([]float64(nil), x...)
		xm[j] -= h
		hm := hFunc(xm)

		for i := 0; i < m; i++ {
			jac[i][j] = (hp[i] - hm[i]) / (2 * h)
		}
	}
	return jac
}
