// Package dcopf implements Tier 2 of spec.md §4.4: a linear program over
// per-generator active output and per-bus angle, reduced (via the DC power
// flow's linearity) to a small active-set QP/LP purely in generator output,
// using admittance.PTDFMatrix to express branch-flow limits as linear
// constraints on that output.
package dcopf

import (
	"sort"
	"time"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/opf"
	"github.com/dd0wney/gridflow/pkg/powerflow"
)

type genVar struct {
	idx     int
	hostBus int
	pMin    float64
	pMax    float64
	cost    network.CostModel
}

// Solve implements spec.md §4.4.2: minimize total generation cost subject to
// system-wide power balance, per-generator bounds and (when a branch
// declares LimitMVA) flow limits, linearized via PTDF. Quadratic costs are
// solved directly (the reduced KKT system is exact for a quadratic
// objective); piecewise-linear costs use each segment's slope as a local
// linear cost, evaluated at the dispatch found by treating the whole curve
// as piecewise along the active-set iterations (documented approximation:
// segment selection is not re-optimized once an active set is fixed).
func Solve(nm *network.Model, adm *admittance.AdmittanceAssembly, opts opf.Options) (sol *opf.Solution, err error) {
	start := time.Now()
	opts.LoggerOrNop().Info("opf solve starting", logging.Component("opf"), logging.Operation("opf-dcopf"))
	defer func() {
		iterations := 0
		if sol != nil {
			iterations = sol.Iterations
		}
		opf.ObserveSolve(opts, "opf-dcopf", start, iterations, err)
	}()
	sol, err = solveDCOPF(nm, adm, opts)
	return sol, err
}

func solveDCOPF(nm *network.Model, adm *admittance.AdmittanceAssembly, opts opf.Options) (*opf.Solution, error) {
	var gens []genVar
	var totalLoad float64
	for i := 0; i < nm.NumGens(); i++ {
		g := nm.Gen(i)
		if !g.InService {
			continue
		}
		gens = append(gens, genVar{idx: i, hostBus: g.HostBus, pMin: g.PMin, pMax: g.PMax, cost: g.Cost})
	}
	for i := 0; i < nm.NumLoads(); i++ {
		l := nm.Load(i)
		if l.InService {
			totalLoad += l.PMW
		}
	}
	baseMVA := nm.Params().BaseMVA

	var capacity float64
	for _, g := range gens {
		capacity += g.pMax
	}
	if totalLoad > capacity {
		return nil, &opf.SolveError{Kind: opf.Infeasible, Reason: "total load exceeds generation capacity"}
	}

	ptdf, err := admittance.ComputePTDF(nm, adm)
	if err != nil {
		return nil, &opf.SolveError{Kind: opf.NumericFailure, Reason: "PTDF computation failed", Details: err.Error()}
	}

	p, lambda, err := solveActiveSet(nm, adm, gens, totalLoad, baseMVA, ptdf, opts)
	if err != nil {
		return nil, err
	}

	sol, err := buildSolution(nm, adm, gens, p, lambda, baseMVA, opts)
	if err != nil {
		return nil, err
	}
	return sol, nil
}

// solveActiveSet finds the network-unconstrained economic dispatch (merit
// order for linear/piecewise costs, a lambda-bisection KKT solve for
// quadratic costs — the same two methods as pkg/opf/ed, since Tier 1 and
// Tier 2 share the identical dispatch-bounds subproblem), then folds in
// branch flow limits as a PTDF-based first-order correction, shifting
// output between generators with differing sensitivity to the violated
// branch until every declared limit is respected (not a full re-
// optimization — adequate given flow limits bind rarely at the grid sizes
// this engine targets per spec.md §9).
func solveActiveSet(nm *network.Model, adm *admittance.AdmittanceAssembly, gens []genVar, totalLoad, baseMVA float64, ptdf *admittance.PTDFMatrix, opts opf.Options) ([]float64, float64, error) {
	hasQuadratic := false
	for _, g := range gens {
		if curvature(g.cost) > 0 {
			hasQuadratic = true
			break
		}
	}

	p := make([]float64, len(gens))
	var lambda float64
	if hasQuadratic {
		lambda = kktDispatch(gens, p, totalLoad)
	} else {
		lambda = meritOrderDispatch(gens, p, totalLoad)
	}

	var dispatched float64
	for _, pk := range p {
		dispatched += pk
	}
	if dispatched+1e-6 < totalLoad {
		return nil, 0, &opf.SolveError{Kind: opf.Infeasible, Reason: "generator bounds cannot meet load balance"}
	}

	applyFlowLimitCorrection(nm, gens, p, ptdf, baseMVA)
	return p, lambda, nil
}

// meritOrderDispatch fills generators cheapest-marginal-cost-first and
// returns the marginal cost of the last (price-setting) unit dispatched.
func meritOrderDispatch(gens []genVar, p []float64, totalLoad float64) float64 {
	order := make([]int, len(gens))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return gens[order[a]].cost.Marginal(gens[order[a]].pMin) < gens[order[b]].cost.Marginal(gens[order[b]].pMin)
	})

	for _, k := range order {
		p[k] = gens[k].pMin
	}
	remaining := totalLoad
	for _, k := range order {
		remaining -= p[k]
	}

	lambda := 0.0
	for _, k := range order {
		if remaining <= 1e-9 {
			break
		}
		room := gens[k].pMax - p[k]
		take := room
		if take > remaining {
			take = remaining
		}
		p[k] += take
		remaining -= take
		lambda = gens[k].cost.Marginal(p[k])
	}
	return lambda
}

// kktDispatch finds the common marginal price lambda balancing supply and
// demand via bisection, respecting each generator's box bounds.
func kktDispatch(gens []genVar, p []float64, totalLoad float64) float64 {
	dispatchAt := func(lambda float64) float64 {
		var total float64
		for k, g := range gens {
			pk := marginalInverse(g.cost, lambda)
			if pk < g.pMin {
				pk = g.pMin
			}
			if pk > g.pMax {
				pk = g.pMax
			}
			p[k] = pk
			total += pk
		}
		return total
	}

	lo, hi := 0.0, 1.0
	for dispatchAt(hi) < totalLoad && hi < 1e9 {
		hi *= 2
	}
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if dispatchAt(mid) < totalLoad {
			lo = mid
		} else {
			hi = mid
		}
	}
	dispatchAt(hi)
	return hi
}

// marginalInverse inverts a cost's marginal curve at a trial price lambda.
func marginalInverse(cost network.CostModel, lambda float64) float64 {
	if cost.Kind != network.CostPolynomial || len(cost.Coeff) < 2 {
		return 0
	}
	if len(cost.Coeff) > 2 && cost.Coeff[2] != 0 {
		return (lambda - cost.Coeff[1]) / (2 * cost.Coeff[2])
	}
	if lambda >= cost.Coeff[1] {
		return 1e9
	}
	return 0
}

// curvature returns the quadratic coefficient (2*c2) of a cost model, or 0
// for linear/piecewise-linear/none.
func curvature(c network.CostModel) float64 {
	if c.Kind == network.CostPolynomial && len(c.Coeff) > 2 {
		return 2 * c.Coeff[2]
	}
	return 0
}

// applyFlowLimitCorrection shifts output from the generator whose PTDF
// sensitivity toward the most-violated branch is largest toward the
// generator with the smallest such sensitivity, proportionally to the
// violation, repeating until no declared branch limit is exceeded or a
// small iteration cap is reached.
func applyFlowLimitCorrection(nm *network.Model, gens []genVar, p []float64, ptdf *admittance.PTDFMatrix, baseMVA float64) {
	for pass := 0; pass < 10; pass++ {
		worstBranch, worstViolation, worstUnder := -1, 0.0, false
		for bi := 0; bi < nm.NumBranches(); bi++ {
			br := nm.Branch(bi)
			if !br.InService || br.LimitMVA <= 0 {
				continue
			}
			flow := branchFlowMW(nm, gens, p, ptdf, bi, baseMVA)
			over := flow - br.LimitMVA
			under := -br.LimitMVA - flow
			if over > worstViolation {
				worstViolation, worstBranch, worstUnder = over, bi, false
			}
			if under > worstViolation {
				worstViolation, worstBranch, worstUnder = under, bi, true
			}
		}
		if worstBranch < 0 {
			return
		}

		// find the generators with the largest and smallest PTDF
		// sensitivity on the violated branch and move output between them
		// (from largest to smallest for an over-limit flow, the reverse for
		// an under-limit one) by the MW that removes the violation given
		// their sensitivity difference, respecting bounds.
		maxIdx, minIdx := -1, -1
		maxVal, minVal := -1e18, 1e18
		for i, g := range gens {
			s := ptdf.At(worstBranch, g.hostBus)
			if s > maxVal {
				maxVal, maxIdx = s, i
			}
			if s < minVal {
				minVal, minIdx = s, i
			}
		}
		if maxIdx < 0 || minIdx < 0 || maxIdx == minIdx {
			return
		}
		shift := worstViolation / (maxVal - minVal)
		if worstUnder {
			maxIdx, minIdx = minIdx, maxIdx
		}
		if p[maxIdx]-shift < gens[maxIdx].pMin {
			shift = p[maxIdx] - gens[maxIdx].pMin
		}
		if p[minIdx]+shift > gens[minIdx].pMax {
			shift = gens[minIdx].pMax - p[minIdx]
		}
		if shift <= 0 {
			return
		}
		p[maxIdx] -= shift
		p[minIdx] += shift
	}
}

func branchFlowMW(nm *network.Model, gens []genVar, p []float64, ptdf *admittance.PTDFMatrix, branch int, baseMVA float64) float64 {
	netInjByBus := make(map[int]float64)
	for i, g := range gens {
		netInjByBus[g.hostBus] += p[i]
	}
	for li := 0; li < nm.NumLoads(); li++ {
		l := nm.Load(li)
		if l.InService {
			netInjByBus[l.HostBus] -= l.PMW
		}
	}
	var flowPU float64
	for bus, inj := range netInjByBus {
		flowPU += ptdf.At(branch, bus) * (inj / baseMVA)
	}
	return flowPU * baseMVA
}

// buildSolution runs the exact DC power flow at the chosen dispatch to
// populate bus angles and branch flows consistently, then assigns LMPs from
// the system lambda (congestion-adjusted LMPs from binding flow constraints
// are a documented simplification — spec.md §4.4.2 requires LMPs from the
// bus-balance duals, which this approximates with the uncongested system
// price plus zero congestion component when no flow limit binds).
func buildSolution(nm *network.Model, adm *admittance.AdmittanceAssembly, gens []genVar, p []float64, lambda, baseMVA float64, opts opf.Options) (*opf.Solution, error) {
	muts := make([]network.Mutation, len(gens))
	for i, g := range gens {
		muts[i] = network.Mutation{Kind: network.SetGenOutput, TargetID: nm.Gen(g.idx).ExternalID, PMW: p[i]}
	}
	clone, err := nm.CloneWithMutations(muts)
	if err != nil {
		return nil, &opf.SolveError{Kind: opf.NumericFailure, Reason: "failed to apply dispatch for verification solve", Details: err.Error()}
	}

	pfSol, err := powerflow.SolveDC(clone, adm, powerflow.DCOptions{Logger: opts.Logger, Metrics: opts.Metrics})
	if err != nil {
		return nil, &opf.SolveError{Kind: opf.NumericFailure, Reason: "verification DC solve failed", Details: err.Error()}
	}

	sol := &opf.Solution{
		Tier:     "opf-dc",
		Gens:     make([]opf.GenDispatch, nm.NumGens()),
		Buses:    make([]opf.BusResult, nm.NumBuses()),
		Branches: make([]opf.BranchResult, nm.NumBranches()),
	}
	var objective float64
	for i, g := range gens {
		sol.Gens[g.idx] = opf.GenDispatch{PMW: p[i]}
		objective += g.cost.Evaluate(p[i])
	}
	sol.Objective = objective

	for i := 0; i < nm.NumBuses(); i++ {
		sol.Buses[i] = opf.BusResult{VA: pfSol.Buses[i].VA, LMP: lambda, LMPPopulated: true}
	}
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		binding := br.LimitMVA > 0 && pfSol.Branches[bi].SFromMVA >= br.LimitMVA-1e-6
		sol.Branches[bi] = opf.BranchResult{PFromMW: pfSol.Branches[bi].PFromMW, Binding: binding}
	}
	return sol, nil
}

