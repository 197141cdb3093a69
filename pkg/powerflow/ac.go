package powerflow

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

// ACOptions controls the Newton-Raphson inner loop and the Q-limit outer
// loop, defaults per spec.md §4.3.2.
type ACOptions struct {
	Tolerance        float64 // default 1e-6 per unit
	MaxInnerIter     int     // default 20
	MaxOuterIter     int     // default 10

	// Logger receives solve start/end, iteration counts and failures,
	// injected by the caller (never a package-level global). Nil defaults
	// to a no-op logger.
	Logger logging.Logger
	// Metrics, if set, records solve duration/iteration/status telemetry
	// under the "pf-ac" stage name.
	Metrics *metrics.Registry
}

// DefaultACOptions returns spec.md §4.3.2's defaults.
func DefaultACOptions() ACOptions {
	return ACOptions{Tolerance: 1e-6, MaxInnerIter: 20, MaxOuterIter: 10}
}

func (o ACOptions) loggerOrNop() logging.Logger {
	if o.Logger == nil {
		return logging.NewNopLogger()
	}
	return o.Logger
}

type busState struct {
	vm, va  float64
	typ     network.BusType // mutable copy: PV buses may switch to PQ
	pSpecPU float64
	qSpecPU float64
}

// SolveAC implements spec.md §4.3.2: Newton-Raphson with a PV->PQ Q-limit
// outer loop. Initial guess is a flat start (V=1, theta=0) except PV buses,
// which start at their generator voltage setpoint.
func SolveAC(nm *network.Model, adm *admittance.AdmittanceAssembly, opts ACOptions) (sol *Solution, err error) {
	start := time.Now()
	logger := opts.loggerOrNop()
	logger.Info("powerflow solve starting", logging.Component("powerflow"), logging.Operation("pf-ac"))
	defer func() {
		elapsed := time.Since(start)
		iterations := 0
		if sol != nil {
			iterations = sol.Iterations
		}
		status := "ok"
		if err != nil {
			status = "error"
			logger.Warn("powerflow solve failed", logging.Component("powerflow"), logging.Operation("pf-ac"),
				logging.Latency(elapsed), logging.Iterations(iterations), logging.Error(err))
		} else {
			logger.Info("powerflow solve completed", logging.Component("powerflow"), logging.Operation("pf-ac"),
				logging.Latency(elapsed), logging.Iterations(iterations))
		}
		if opts.Metrics != nil {
			opts.Metrics.RecordSolve("pf-ac", status, elapsed, iterations)
		}
	}()
	sol, err = solveAC(nm, adm, opts)
	return sol, err
}

func solveAC(nm *network.Model, adm *admittance.AdmittanceAssembly, opts ACOptions) (*Solution, error) {
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}
	if opts.MaxInnerIter <= 0 {
		opts.MaxInnerIter = 20
	}
	if opts.MaxOuterIter <= 0 {
		opts.MaxOuterIter = 10
	}

	baseMVA := nm.Params().BaseMVA
	states := initBusStates(nm, baseMVA)

	totalIter := 0
	var lastMismatch float64
	var converged bool

	for outer := 0; outer < opts.MaxOuterIter; outer++ {
		iters, mismatch, conv, err := newtonInner(nm, adm, states, opts)
		totalIter += iters
		lastMismatch = mismatch
		if err != nil {
			return nil, err
		}
		if !conv {
			converged = false
			break
		}
		converged = true

		switched := enforceQLimits(nm, adm, states, baseMVA)
		if !switched {
			break
		}
		if outer == opts.MaxOuterIter-1 {
			return nil, &SolveError{Kind: Divergence, Iterations: totalIter, Mismatch: mismatch,
				Context: "Q-limit outer loop did not reach a stable PV/PQ classification within the cap"}
		}
	}

	if !converged {
		return nil, &SolveError{Kind: Divergence, Iterations: totalIter, Mismatch: lastMismatch,
			Context: "Newton-Raphson did not converge within the iteration cap"}
	}

	return buildACSolution(nm, adm, states, totalIter, lastMismatch, baseMVA), nil
}

func initBusStates(nm *network.Model, baseMVA float64) []*busState {
	n := nm.NumBuses()
	states := make([]*busState, n)
	for i := 0; i < n; i++ {
		b := nm.Bus(i)
		st := &busState{vm: 1.0, va: 0, typ: b.Type}
		p, q := nm.NetInjection(i)
		st.pSpecPU = p / baseMVA
		st.qSpecPU = q / baseMVA
		states[i] = st
	}
	for gi := 0; gi < nm.NumGens(); gi++ {
		g := nm.Gen(gi)
		if g.InService && nm.Bus(g.HostBus).Type == network.PV && g.VSetpoint > 0 {
			states[g.HostBus].vm = g.VSetpoint
		}
	}
	return states
}

// newtonInner runs the Newton-Raphson inner loop for the current bus-type
// classification (after any Q-limit switching), returning iteration count,
// final max mismatch, and whether it converged.
func newtonInner(nm *network.Model, adm *admittance.AdmittanceAssembly, states []*busState, opts ACOptions) (int, float64, bool, error) {
	n := nm.NumBuses()
	slack := adm.SlackIndex()

	// free-variable index maps: theta free for all non-slack buses, V free
	// for PQ buses only.
	thetaIdx := make([]int, n)
	vIdx := make([]int, n)
	nTheta, nV := 0, 0
	for i := 0; i < n; i++ {
		if i == slack {
			thetaIdx[i] = -1
		} else {
			thetaIdx[i] = nTheta
			nTheta++
		}
		if states[i].typ == network.PQ {
			vIdx[i] = nV
			nV++
		} else {
			vIdx[i] = -1
		}
	}
	dim := nTheta + nV
	if dim == 0 {
		return 0, 0, true, nil
	}

	var lastMismatch float64
	var prevNorm float64
	growCount := 0

	for iter := 0; iter < opts.MaxInnerIter; iter++ {
		pCalc, qCalc := calcPQ(adm, states)

		mismatch := make([]float64, dim)
		maxMis := 0.0
		for i := 0; i < n; i++ {
			if thetaIdx[i] >= 0 {
				m := states[i].pSpecPU - pCalc[i]
				mismatch[thetaIdx[i]] = m
				if math.Abs(m) > maxMis {
					maxMis = math.Abs(m)
				}
			}
			if vIdx[i] >= 0 {
				m := states[i].qSpecPU - qCalc[i]
				mismatch[nTheta+vIdx[i]] = m
				if math.Abs(m) > maxMis {
					maxMis = math.Abs(m)
				}
			}
		}
		lastMismatch = maxMis

		if maxMis <= opts.Tolerance {
			return iter, maxMis, true, nil
		}

		norm := vecNorm(mismatch)
		if iter > 0 && norm > prevNorm {
			growCount++
			if growCount >= 2 {
				return iter, maxMis, false, nil
			}
		} else {
			growCount = 0
		}
		prevNorm = norm

		jac := buildJacobian(adm, states, thetaIdx, vIdx, nTheta, dim)
		dx, err := jac.Solve(mismatch)
		if err != nil {
			return iter, maxMis, false, &SolveError{Kind: SingularJacobian, Iterations: iter, Mismatch: maxMis,
				Context: "Jacobian is singular"}
		}

		for i := 0; i < n; i++ {
			if thetaIdx[i] >= 0 {
				states[i].va += dx[thetaIdx[i]]
			}
			if vIdx[i] >= 0 {
				states[i].vm += dx[nTheta+vIdx[i]]
			}
		}
	}

	return opts.MaxInnerIter, lastMismatch, false, nil
}

func vecNorm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// calcPQ computes P_i, Q_i in per unit for every bus from the current
// voltage state, per spec.md §4.3.2's power-balance expressions.
func calcPQ(adm *admittance.AdmittanceAssembly, states []*busState) (p, q []float64) {
	n := adm.N()
	p = make([]float64, n)
	q = make([]float64, n)
	y := adm.Y()

	for i := 0; i < n; i++ {
		vi := states[i].vm
		var pi, qi float64
		y.Row(i, func(j int, yij complex128) {
			vj := states[j].vm
			theta := states[i].va - states[j].va
			g, b := real(yij), imag(yij)
			pi += vi * vj * (g*math.Cos(theta) + b*math.Sin(theta))
			qi += vi * vj * (g*math.Sin(theta) - b*math.Cos(theta))
		})
		p[i] = pi
		q[i] = qi
	}
	return p, q
}

// buildJacobian assembles [dP/dtheta, dP/dV; dQ/dtheta, dQ/dV] restricted to
// free variables, via direct analytic partials of the polar power-flow
// equations.
func buildJacobian(adm *admittance.AdmittanceAssembly, states []*busState, thetaIdx, vIdx []int, nTheta, dim int) *sparse.Matrix {
	n := adm.N()
	y := adm.Y()
	b := sparse.NewBuilder(dim)

	g := make([][]float64, n)
	bsus := make([][]float64, n)
	for i := range g {
		g[i] = make([]float64, n)
		bsus[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		y.Row(i, func(j int, yij complex128) {
			g[i][j] = real(yij)
			bsus[i][j] = imag(yij)
		})
	}

	for i := 0; i < n; i++ {
		ri := thetaIdx[i]
		rv := vIdx[i]
		if ri < 0 && rv < 0 {
			continue
		}
		vi := states[i].vm

		for j := 0; j < n; j++ {
			if g[i][j] == 0 && bsus[i][j] == 0 && i != j {
				continue
			}
			vj := states[j].vm
			theta := states[i].va - states[j].va
			cosT, sinT := math.Cos(theta), math.Sin(theta)

			cj := thetaIdx[j]
			cvj := vIdx[j]

			if i == j {
				// diagonal partials, summed over all neighbors k
				var dPdTheta, dPdV, dQdTheta, dQdV float64
				y.Row(i, func(k int, yik complex128) {
					if k == i {
						return
					}
					vk := states[k].vm
					thk := states[i].va - states[k].va
					gk, bk := real(yik), imag(yik)
					dPdTheta += vi * vk * (-gk*math.Sin(thk) + bk*math.Cos(thk))
					dQdTheta += vi * vk * (gk*math.Cos(thk) + bk*math.Sin(thk))
				})
				dPdV = 2*vi*g[i][i] + sumOffDiagPV(y, states, i)
				dQdV = -2*vi*bsus[i][i] + sumOffDiagQV(y, states, i)

				if ri >= 0 {
					b.Add(ri, ri, dPdTheta)
					if rv >= 0 {
						b.Add(ri, nTheta+rv, dPdV)
					}
				}
				if rv >= 0 {
					if ri >= 0 {
						b.Add(nTheta+rv, ri, dQdTheta)
					}
					b.Add(nTheta+rv, nTheta+rv, dQdV)
				}
				continue
			}

			dPdThetaJ := vi * vj * (g[i][j]*sinT - bsus[i][j]*cosT)
			dPdVJ := vi * (g[i][j]*cosT + bsus[i][j]*sinT)
			dQdThetaJ := vi * vj * (-g[i][j]*cosT - bsus[i][j]*sinT)
			dQdVJ := vi * (g[i][j]*sinT - bsus[i][j]*cosT)

			if ri >= 0 && cj >= 0 {
				b.Add(ri, cj, dPdThetaJ)
			}
			if ri >= 0 && cvj >= 0 {
				b.Add(ri, nTheta+cvj, dPdVJ)
			}
			if rv >= 0 && cj >= 0 {
				b.Add(nTheta+rv, cj, dQdThetaJ)
			}
			if rv >= 0 && cvj >= 0 {
				b.Add(nTheta+rv, nTheta+cvj, dQdVJ)
			}
		}
	}

	return b.Build()
}

func sumOffDiagPV(y *sparse.ComplexMatrix, states []*busState, i int) float64 {
	var sum float64
	y.Row(i, func(j int, yij complex128) {
		if j == i {
			return
		}
		vj := states[j].vm
		theta := states[i].va - states[j].va
		g, bb := real(yij), imag(yij)
		sum += vj * (g*math.Cos(theta) + bb*math.Sin(theta))
	})
	return sum
}

func sumOffDiagQV(y *sparse.ComplexMatrix, states []*busState, i int) float64 {
	var sum float64
	y.Row(i, func(j int, yij complex128) {
		if j == i {
			return
		}
		vj := states[j].vm
		theta := states[i].va - states[j].va
		g, bb := real(yij), imag(yij)
		sum += vj * (g*math.Sin(theta) - bb*math.Cos(theta))
	})
	return sum
}

// enforceQLimits implements spec.md §4.3.2's outer loop step 2: for each PV
// bus, compute the reactive output required to hold V, and if it exceeds a
// generator's limit, clamp and switch the bus to PQ. Reports whether any
// bus switched.
func enforceQLimits(nm *network.Model, adm *admittance.AdmittanceAssembly, states []*busState, baseMVA float64) bool {
	_, qInjected := calcPQ(adm, states)
	switched := false
	for i, st := range states {
		if st.typ != network.PV {
			continue
		}
		// bus net reactive injection = generator Q - load Q, so generator Q
		// required to hold V is the bus injection plus the load it serves.
		qReqMVAr := qInjected[i]*baseMVA + loadQAt(nm, i)

		qMax, qMin, ok := genLimitsAt(nm, i)
		if !ok {
			continue
		}
		if qReqMVAr > qMax {
			states[i].qSpecPU = (qMax - loadQAt(nm, i)) / baseMVA
			states[i].typ = network.PQ
			switched = true
		} else if qReqMVAr < qMin {
			states[i].qSpecPU = (qMin - loadQAt(nm, i)) / baseMVA
			states[i].typ = network.PQ
			switched = true
		}
	}
	return switched
}


func genLimitsAt(nm *network.Model, busIdx int) (qMax, qMin float64, ok bool) {
	for gi := 0; gi < nm.NumGens(); gi++ {
		g := nm.Gen(gi)
		if g.InService && g.HostBus == busIdx {
			return g.QMax, g.QMin, true
		}
	}
	return 0, 0, false
}

func loadQAt(nm *network.Model, busIdx int) float64 {
	var q float64
	for li := 0; li < nm.NumLoads(); li++ {
		l := nm.Load(li)
		if l.InService && l.HostBus == busIdx {
			q += l.QMVAr
		}
	}
	return q
}

func buildACSolution(nm *network.Model, adm *admittance.AdmittanceAssembly, states []*busState, iterations int, mismatch, baseMVA float64) *Solution {
	n := nm.NumBuses()
	p, q := calcPQ(adm, states)

	sol := &Solution{
		Converged:   true,
		Iterations:  iterations,
		MaxMismatch: mismatch,
		Buses:       make([]BusResult, n),
		Branches:    make([]BranchResult, nm.NumBranches()),
		Gens:        make([]GenResult, nm.NumGens()),
	}
	for i := 0; i < n; i++ {
		sol.Buses[i] = BusResult{VM: states[i].vm, VA: states[i].va}
	}

	var totalPMW, totalLoadMW, totalQMVAr, totalLoadQ float64
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService {
			continue
		}
		vi := cmplx.Rect(states[br.FromBus].vm, states[br.FromBus].va)
		vj := cmplx.Rect(states[br.ToBus].vm, states[br.ToBus].va)
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

		pFromMW := real(sFrom) * baseMVA
		qFromMVAr := imag(sFrom) * baseMVA
		sol.Branches[bi] = BranchResult{
			PFromMW:   pFromMW,
			QFromMVAr: qFromMVAr,
			SFromMVA:  cmplx.Abs(sFrom) * baseMVA,
		}
	}

	for gi := 0; gi < nm.NumGens(); gi++ {
		g := nm.Gen(gi)
		if !g.InService {
			continue
		}
		busP := p[g.HostBus] * baseMVA
		busQ := q[g.HostBus] * baseMVA
		loadP, loadQ := loadAt(nm, g.HostBus)
		sol.Gens[gi] = GenResult{PMW: busP + loadP, QMVAr: busQ + loadQ}
		totalPMW += sol.Gens[gi].PMW
		totalQMVAr += sol.Gens[gi].QMVAr
	}
	for li := 0; li < nm.NumLoads(); li++ {
		l := nm.Load(li)
		if l.InService {
			totalLoadMW += l.PMW
			totalLoadQ += l.QMVAr
		}
	}
	sol.LossesMW = totalPMW - totalLoadMW
	sol.LossesMVAr = totalQMVAr - totalLoadQ

	return sol
}

func loadAt(nm *network.Model, busIdx int) (p, q float64) {
	for li := 0; li < nm.NumLoads(); li++ {
		l := nm.Load(li)
		if l.InService && l.HostBus == busIdx {
			p += l.PMW
			q += l.QMVAr
		}
	}
	return p, q
}
