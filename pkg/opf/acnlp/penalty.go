package acnlp

import (
	"math"
	"math/cmplx"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/opf"
	"github.com/dd0wney/gridflow/pkg/opf/internal/lbfgs"
)

// nlLayout indexes the flat variable vector [theta(n), vm(n), pg(g), qg(g)]
// used by the penalty backend.
type nlLayout struct{ n, g int }

func (l nlLayout) thetaAt(i int) int { return i }
func (l nlLayout) vmAt(i int) int    { return l.n + i }
func (l nlLayout) pgAt(k int) int    { return 2*l.n + k }
func (l nlLayout) qgAt(k int) int    { return 2*l.n + l.g + k }
func (l nlLayout) size() int         { return 2*l.n + 2*l.g }

// penaltySolve implements spec.md §4.4.4 backend 2: minimize cost +
// mu*||equality violations||^2 with box bounds folded in as squared-hinge
// penalties, solved by L-BFGS at escalating mu (pkg/opf/internal/lbfgs), per
// the teacher-absent NLP library gap documented in DESIGN.md.
func penaltySolve(nm *network.Model, adm *admittance.AdmittanceAssembly, gens []genVar, theta, vm, pg, qg []float64, slack int, baseMVA float64, opts opf.Options) (*opf.Solution, error) {
	n := nm.NumBuses()
	lay := nlLayout{n: n, g: len(gens)}
	loadP, loadQ := busLoads(nm, n, baseMVA)
	slackVM := vm[slack]

	x0 := make([]float64, lay.size())
	for i := 0; i < n; i++ {
		x0[lay.thetaAt(i)] = theta[i]
		x0[lay.vmAt(i)] = vm[i]
	}
	for k := range gens {
		x0[lay.pgAt(k)] = pg[k]
		x0[lay.qgAt(k)] = qg[k]
	}

	stageOpts := lbfgs.DefaultOptions()
	mu := 10.0
	var result lbfgs.Result
	for stage := 0; stage < 8; stage++ {
		curMu := mu
		val := func(x []float64) float64 {
			return nlObjective(x, lay, adm, gens, loadP, loadQ, slack, slackVM, baseMVA, curMu)
		}
		gradFn := func(x []float64) (float64, []float64) {
			v := val(x)
			return v, lbfgs.CentralDifferenceGradient(val, x, 1e-6)
		}
		result = lbfgs.Minimize(gradFn, x0, stageOpts)
		x0 = result.X
		mu *= 6
	}

	outTheta := make([]float64, n)
	outVM := make([]float64, n)
	for i := 0; i < n; i++ {
		outTheta[i] = result.X[lay.thetaAt(i)]
		outVM[i] = result.X[lay.vmAt(i)]
	}
	outPg := make([]float64, len(gens))
	outQg := make([]float64, len(gens))
	for k := range gens {
		outPg[k] = result.X[lay.pgAt(k)]
		outQg[k] = result.X[lay.qgAt(k)]
	}

	if !result.Converged {
		residual := nlObjective(result.X, lay, adm, gens, loadP, loadQ, slack, slackVM, 1, 1)
		if residual > 1e-2 {
			return nil, &opf.SolveError{Kind: opf.NotConverged, Reason: "penalty relaxation failed to reach a feasible point", Details: "exhausted escalating-penalty stages"}
		}
	}

	return buildNLSolution(nm, adm, gens, outTheta, outVM, outPg, outQg, baseMVA, "opf-ac-nlp", result.Iterations), nil
}

func nlObjective(x []float64, lay nlLayout, adm *admittance.AdmittanceAssembly, gens []genVar, loadP, loadQ []float64, slack int, slackVM, baseMVA, mu float64) float64 {
	n := lay.n
	theta := make([]float64, n)
	vm := make([]float64, n)
	for i := 0; i < n; i++ {
		theta[i] = x[lay.thetaAt(i)]
		vm[i] = x[lay.vmAt(i)]
	}

	var cost float64
	netP := append([]float64(nil), loadP...)
	netQ := append([]float64(nil), loadQ...)
	for i := range netP {
		netP[i] = -netP[i]
		netQ[i] = -netQ[i]
	}
	for k, g := range gens {
		pg := x[lay.pgAt(k)]
		qg := x[lay.qgAt(k)]
		cost += g.cost.Evaluate(pg * baseMVA)
		netP[g.hostBus] += pg
		netQ[g.hostBus] += qg
	}

	pCalc, qCalc := calcPQAt(adm, theta, vm)

	var penalty float64
	penalty += sq(theta[slack])
	penalty += sq(vm[slack] - slackVM)
	for i := 0; i < n; i++ {
		penalty += sq(netP[i]-pCalc[i]) + sq(netQ[i]-qCalc[i])
	}

	for k, g := range gens {
		pg := x[lay.pgAt(k)]
		qg := x[lay.qgAt(k)]
		penalty += sq(hinge(g.pMin - pg)) + sq(hinge(pg - g.pMax))
		penalty += sq(hinge(g.qMin - qg)) + sq(hinge(qg - g.qMax))
	}

	return cost + mu*penalty
}

func calcPQAt(adm *admittance.AdmittanceAssembly, theta, vm []float64) (p, q []float64) {
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

func buildNLSolution(nm *network.Model, adm *admittance.AdmittanceAssembly, gens []genVar, theta, vm, pg, qg []float64, baseMVA float64, tier string, iterations int) *opf.Solution {
	n := nm.NumBuses()
	sol := &opf.Solution{
		Tier:       tier,
		Gens:       make([]opf.GenDispatch, nm.NumGens()),
		Buses:      make([]opf.BusResult, n),
		Branches:   make([]opf.BranchResult, nm.NumBranches()),
		Iterations: iterations,
	}

	for i := 0; i < n; i++ {
		sol.Buses[i] = opf.BusResult{VM: vm[i], VA: theta[i], VPopulated: true}
	}

	var objective float64
	for k, g := range gens {
		p := pg[k] * baseMVA
		q := qg[k] * baseMVA
		sol.Gens[g.idx] = opf.GenDispatch{PMW: p, QMVAr: q, QPopulated: true}
		objective += g.cost.Evaluate(p)
	}
	sol.Objective = objective

	var totalGenP, totalLoadP float64
	for _, g := range sol.Gens {
		totalGenP += g.PMW
	}
	for li := 0; li < nm.NumLoads(); li++ {
		l := nm.Load(li)
		if l.InService {
			totalLoadP += l.PMW
		}
	}
	sol.LossesMW = totalGenP - totalLoadP

	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService {
			continue
		}
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

		pFromMW := real(sFrom) * baseMVA
		qFromMVAr := imag(sFrom) * baseMVA
		sMVA := cmplx.Abs(sFrom) * baseMVA
		binding := br.LimitMVA > 0 && sMVA >= br.LimitMVA*(1-1e-3)
		sol.Branches[bi] = opf.BranchResult{PFromMW: pFromMW, QFromMVAr: qFromMVAr, QPopulated: true, Binding: binding}
	}

	return sol
}
