// Package ed implements Tier 1 of spec.md §4.4: economic dispatch. Ignores
// the network entirely — chooses per-generator active output minimizing
// total cost subject to box bounds and system-wide balance.
package ed

import (
	"sort"
	"time"

	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/opf"
)

type genInfo struct {
	idx  int
	pMin float64
	pMax float64
	cost network.CostModel
}

// Solve implements spec.md §4.4.1: merit-order dispatch for piecewise-linear
// and linear costs, KKT-derived common marginal price for quadratic costs.
// Logs solve start/end and records solver telemetry through opts.Logger/
// opts.Metrics before returning.
func Solve(nm *network.Model, opts opf.Options) (sol *opf.Solution, err error) {
	start := time.Now()
	opts.LoggerOrNop().Info("opf solve starting", logging.Component("opf"), logging.Operation("opf-ed"))
	defer func() {
		iterations := 0
		if sol != nil {
			iterations = sol.Iterations
		}
		opf.ObserveSolve(opts, "opf-ed", start, iterations, err)
	}()
	sol, err = solveED(nm, opts)
	return sol, err
}

func solveED(nm *network.Model, opts opf.Options) (*opf.Solution, error) {
	var gens []genInfo
	var totalLoad float64
	for i := 0; i < nm.NumGens(); i++ {
		g := nm.Gen(i)
		if !g.InService {
			continue
		}
		gens = append(gens, genInfo{idx: i, pMin: g.PMin, pMax: g.PMax, cost: g.Cost})
	}
	for i := 0; i < nm.NumLoads(); i++ {
		l := nm.Load(i)
		if l.InService {
			totalLoad += l.PMW
		}
	}

	var capacity float64
	for _, g := range gens {
		capacity += g.pMax
	}
	if totalLoad > capacity {
		return nil, &opf.SolveError{Kind: opf.Infeasible, Reason: "total load exceeds generation capacity"}
	}

	hasQuadratic := false
	for _, g := range gens {
		if g.cost.Kind == network.CostPolynomial && len(g.cost.Coeff) > 2 && g.cost.Coeff[2] != 0 {
			hasQuadratic = true
		}
	}

	p := make([]float64, len(gens))
	if hasQuadratic {
		kktDispatch(gens, p, totalLoad)
	} else {
		meritOrderDispatch(gens, p, totalLoad)
	}

	sol := &opf.Solution{
		Tier: "opf-ed",
		Gens: make([]opf.GenDispatch, nm.NumGens()),
	}
	var objective float64
	for k, g := range gens {
		sol.Gens[g.idx] = opf.GenDispatch{PMW: p[k]}
		objective += g.cost.Evaluate(p[k])
	}
	sol.Objective = objective
	return sol, nil
}

// meritOrderDispatch fills generators cheapest-marginal-cost-first, per
// spec.md §4.4.1, for linear and piecewise-linear costs.
func meritOrderDispatch(gens []genInfo, p []float64, totalLoad float64) {
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

	for _, k := range order {
		if remaining <= 0 {
			break
		}
		room := gens[k].pMax - p[k]
		take := room
		if take > remaining {
			take = remaining
		}
		p[k] += take
		remaining -= take
	}
}

// kktDispatch finds the common marginal price lambda balancing supply and
// demand via bisection, respecting each generator's box bounds — the
// lambda-iteration method for quadratic (and mixed) cost curves.
func kktDispatch(gens []genInfo, p []float64, totalLoad float64) {
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
}

// marginalInverse inverts a cost's marginal curve at a trial price lambda.
// Quadratic costs invert c1 + 2*c2*p = lambda directly; linear costs are a
// step function of lambda versus the constant marginal cost, clamped by the
// caller's box bounds.
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
