// Package socp implements Tier 3 of spec.md §4.4.3: a second-order-cone
// relaxation of full AC-OPF in the Baran-Wu/Farivar-Low branch-flow form.
// No SOCP/conic solver exists anywhere in the example pack's dependency
// graph, so the conic program is solved by an escalating-penalty L-BFGS
// minimization (pkg/opf/internal/lbfgs) rather than a true primal-dual
// interior-point method — the same numerical technique spec.md §4.4.4
// describes for one of the two Tier 4 backends, generalized down one tier
// since both problems are convex-or-relaxed nonlinear programs of
// comparable size.
package socp

import (
	"math"
	"time"

	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/opf"
	"github.com/dd0wney/gridflow/pkg/opf/internal/lbfgs"
)

type branchVar struct {
	idx       int
	from, to  int
	r, x      float64
	limitPU   float64 // 0 means unlimited
}

type genVar struct {
	idx     int
	hostBus int
	pMin    float64
	pMax    float64
	qMin    float64
	qMax    float64
	cost    network.CostModel
}

// layout tracks where each logical quantity lives in the flat variable
// vector handed to lbfgs.
type layout struct {
	n, m, g int // buses, in-service branches, in-service gens
}

func (l layout) wAt(i int) int  { return i }
func (l layout) lAt(i int) int  { return l.n + i }
func (l layout) pAt(i int) int  { return l.n + l.m + i }
func (l layout) qAt(i int) int  { return l.n + 2*l.m + i }
func (l layout) pgAt(i int) int { return l.n + 3*l.m + i }
func (l layout) qgAt(i int) int { return l.n + 3*l.m + l.g + i }
func (l layout) size() int      { return l.n + 3*l.m + 2*l.g }

// Solve implements spec.md §4.4.3.
func Solve(nm *network.Model, opts opf.Options) (sol *opf.Solution, err error) {
	start := time.Now()
	opts.LoggerOrNop().Info("opf solve starting", logging.Component("opf"), logging.Operation("opf-socp"))
	defer func() {
		iterations := 0
		if sol != nil {
			iterations = sol.Iterations
		}
		opf.ObserveSolve(opts, "opf-socp", start, iterations, err)
	}()
	sol, err = solveSOCP(nm, opts)
	return sol, err
}

func solveSOCP(nm *network.Model, opts opf.Options) (*opf.Solution, error) {
	n := nm.NumBuses()
	baseMVA := nm.Params().BaseMVA
	slack := nm.SlackBus(allBuses(n))
	if slack < 0 {
		return nil, &opf.SolveError{Kind: opf.NumericFailure, Reason: "no slack bus"}
	}

	var branches []branchVar
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService {
			continue
		}
		limitPU := 0.0
		if br.LimitMVA > 0 {
			limitPU = br.LimitMVA / baseMVA
		}
		branches = append(branches, branchVar{idx: bi, from: br.FromBus, to: br.ToBus, r: br.R, x: br.X, limitPU: limitPU})
	}

	var gens []genVar
	for gi := 0; gi < nm.NumGens(); gi++ {
		g := nm.Gen(gi)
		if !g.InService {
			continue
		}
		gens = append(gens, genVar{idx: gi, hostBus: g.HostBus, pMin: g.PMin / baseMVA, pMax: g.PMax / baseMVA, qMin: g.QMin / baseMVA, qMax: g.QMax / baseMVA, cost: g.Cost})
	}

	slackV := 1.0
	for _, g := range gens {
		if g.hostBus == slack {
			if gv := nm.Gen(g.idx); gv.VSetpoint > 0 {
				slackV = gv.VSetpoint
			}
			break
		}
	}

	lay := layout{n: n, m: len(branches), g: len(gens)}
	loadP, loadQ := busLoads(nm, n, baseMVA)

	x0 := initialGuess(lay, n, branches, gens, slackV)

	var result lbfgs.Result
	stageOpts := lbfgs.DefaultOptions()
	mu := 10.0
	for stage := 0; stage < 7; stage++ {
		curMu := mu
		val := func(x []float64) float64 {
			return objective(x, lay, branches, gens, loadP, loadQ, slack, slackV, baseMVA, curMu)
		}
		gradFn := func(x []float64) (float64, []float64) {
			v := val(x)
			return v, lbfgs.CentralDifferenceGradient(val, x, 1e-6)
		}
		result = lbfgs.Minimize(gradFn, x0, stageOpts)
		x0 = result.X
		mu *= 8
	}

	if !result.Converged && !feasibleEnough(result.X, lay, branches, gens, loadP, loadQ, slack, slackV) {
		return nil, &opf.SolveError{Kind: opf.NotConverged, Reason: "penalty relaxation failed to reach a feasible point", Details: "exhausted escalating-penalty stages"}
	}

	return buildSolution(nm, result.X, lay, branches, gens, slack, baseMVA)
}

func allBuses(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func busLoads(nm *network.Model, n int, baseMVA float64) (p, q []float64) {
	p = make([]float64, n)
	q = make([]float64, n)
	for li := 0; li < nm.NumLoads(); li++ {
		l := nm.Load(li)
		if !l.InService {
			continue
		}
		p[l.HostBus] += l.PMW / baseMVA
		q[l.HostBus] += l.QMVAr / baseMVA
	}
	return p, q
}

func initialGuess(lay layout, n int, branches []branchVar, gens []genVar, slackV float64) []float64 {
	x := make([]float64, lay.size())
	for i := 0; i < n; i++ {
		x[lay.wAt(i)] = slackV * slackV
	}
	for _, g := range gens {
		mid := (g.pMin + g.pMax) / 2
		x[lay.pgAt(indexOfGen(gens, g.idx))] = mid
	}
	return x
}

func indexOfGen(gens []genVar, idx int) int {
	for k, g := range gens {
		if g.idx == idx {
			return k
		}
	}
	return -1
}

// objective returns cost + mu*(sum of squared equality residuals and
// squared one-sided inequality violations).
func objective(x []float64, lay layout, branches []branchVar, gens []genVar, loadP, loadQ []float64, slack int, slackV, baseMVA, mu float64) float64 {
	var cost float64
	for k, g := range gens {
		cost += g.cost.Evaluate(x[lay.pgAt(k)] * baseMVA)
	}

	var penalty float64

	// slack voltage fixed
	penalty += sq(x[lay.wAt(slack)] - slackV*slackV)

	netP := make([]float64, lay.n)
	netQ := make([]float64, lay.n)
	for k, g := range gens {
		netP[g.hostBus] += x[lay.pgAt(k)]
		netQ[g.hostBus] += x[lay.qgAt(k)]
	}
	for i := 0; i < lay.n; i++ {
		netP[i] -= loadP[i]
		netQ[i] -= loadQ[i]
	}

	for bi, br := range branches {
		wFrom := x[lay.wAt(br.from)]
		wTo := x[lay.wAt(br.to)]
		p := x[lay.pAt(bi)]
		q := x[lay.qAt(bi)]
		l := x[lay.lAt(bi)]

		// branch voltage-drop equation
		resid := wTo - wFrom + 2*(br.r*p+br.x*q) - (br.r*br.r+br.x*br.x)*l
		penalty += sq(resid)

		// conic relaxation: p^2+q^2 <= w_from * l  (one-sided hinge)
		penalty += hinge(p*p+q*q-wFrom*l) * hinge(p*p+q*q-wFrom*l)

		// thermal limit
		if br.limitPU > 0 {
			penalty += hinge(p*p+q*q-br.limitPU*br.limitPU) * hinge(p*p+q*q-br.limitPU*br.limitPU)
		}

		// bookkeeping: sending bus loses p,q; receiving bus gains p-r*l, q-x*l
		netP[br.from] -= p
		netQ[br.from] -= q
		netP[br.to] += p - br.r*l
		netQ[br.to] += q - br.x*l

		// l must be nonnegative
		penalty += hinge(-l) * hinge(-l)
	}

	for i := 0; i < lay.n; i++ {
		penalty += sq(netP[i]) + sq(netQ[i])
	}

	for k, g := range gens {
		pg := x[lay.pgAt(k)]
		qg := x[lay.qgAt(k)]
		penalty += hinge(g.pMin-pg)*hinge(g.pMin-pg) + hinge(pg-g.pMax)*hinge(pg-g.pMax)
		penalty += hinge(g.qMin-qg)*hinge(g.qMin-qg) + hinge(qg-g.qMax)*hinge(qg-g.qMax)
	}

	return cost + mu*penalty
}

func hinge(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func sq(v float64) float64 { return v * v }

// feasibleEnough does a coarse post-hoc check that the strongest-penalized
// residuals are small, used only to decide whether to report NotConverged
// when the L-BFGS inner solves didn't hit their gradient-norm tolerance.
func feasibleEnough(x []float64, lay layout, branches []branchVar, gens []genVar, loadP, loadQ []float64, slack int, slackV float64) bool {
	v := objective(x, lay, branches, gens, loadP, loadQ, slack, slackV, 1, 1)
	return v < 1e-2
}

func buildSolution(nm *network.Model, x []float64, lay layout, branches []branchVar, gens []genVar, slack int, baseMVA float64) (*opf.Solution, error) {
	sol := &opf.Solution{
		Tier:     "opf-socp",
		Gens:     make([]opf.GenDispatch, nm.NumGens()),
		Buses:    make([]opf.BusResult, nm.NumBuses()),
		Branches: make([]opf.BranchResult, nm.NumBranches()),
	}

	for i := 0; i < nm.NumBuses(); i++ {
		w := x[lay.wAt(i)]
		if w < 0 {
			w = 0
		}
		sol.Buses[i] = opf.BusResult{VM: math.Sqrt(w), VPopulated: true}
	}

	for k, g := range gens {
		pg := x[lay.pgAt(k)] * float64(baseMVA)
		qg := x[lay.qgAt(k)] * float64(baseMVA)
		sol.Gens[g.idx] = opf.GenDispatch{PMW: pg, QMVAr: qg, QPopulated: true}
	}

	var objCost float64
	for k, g := range gens {
		objCost += g.cost.Evaluate(x[lay.pgAt(k)] * float64(baseMVA))
	}
	sol.Objective = objCost

	for bi, br := range branches {
		p := x[lay.pAt(bi)] * float64(baseMVA)
		q := x[lay.qAt(bi)] * float64(baseMVA)
		binding := br.limitPU > 0 && (p*p+q*q) >= (br.limitPU*br.limitPU*float64(baseMVA)*float64(baseMVA))*(1-1e-3)
		sol.Branches[br.idx] = opf.BranchResult{PFromMW: p, QFromMVAr: q, QPopulated: true, Binding: binding}
	}

	return sol, nil
}
