package powerflow

import (
	"errors"
	"math"
	"time"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/metrics"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/sparse"
)

// DCOptions carries the injected logger/metrics registry for SolveDC. DC
// power flow has no tolerance or iteration cap to tune (spec.md §4.3.1: "no
// iteration"), so this exists only to give SolveDC the same
// injected-observability shape as SolveAC's ACOptions.
type DCOptions struct {
	Logger  logging.Logger
	Metrics *metrics.Registry
}

func (o DCOptions) loggerOrNop() logging.Logger {
	if o.Logger == nil {
		return logging.NewNopLogger()
	}
	return o.Logger
}

// SolveDC implements spec.md §4.3.1: solve B''*theta_reduced = P_reduced with
// the slack angle fixed at zero, then derive branch flows as
// (theta_from - theta_to - phase_shift) / x. No iteration.
func SolveDC(nm *network.Model, adm *admittance.AdmittanceAssembly, opts DCOptions) (sol *Solution, err error) {
	start := time.Now()
	logger := opts.loggerOrNop()
	logger.Info("powerflow solve starting", logging.Component("powerflow"), logging.Operation("pf-dc"))
	defer func() {
		elapsed := time.Since(start)
		status := "ok"
		if err != nil {
			status = "error"
			logger.Warn("powerflow solve failed", logging.Component("powerflow"), logging.Operation("pf-dc"),
				logging.Latency(elapsed), logging.Error(err))
		} else {
			logger.Info("powerflow solve completed", logging.Component("powerflow"), logging.Operation("pf-dc"),
				logging.Latency(elapsed), logging.Iterations(0))
		}
		if opts.Metrics != nil {
			opts.Metrics.RecordSolve("pf-dc", status, elapsed, 0)
		}
	}()
	sol, err = solveDC(nm, adm)
	return sol, err
}

func solveDC(nm *network.Model, adm *admittance.AdmittanceAssembly) (*Solution, error) {
	n := nm.NumBuses()
	baseMVA := nm.Params().BaseMVA

	p := make([]float64, n)
	for i := 0; i < n; i++ {
		pMW, _ := nm.NetInjection(i)
		p[i] = pMW / baseMVA
	}

	slack := adm.SlackIndex()
	reduced := make([]int, 0, n-1)
	reducedIdx := make(map[int]int, n-1)
	for i := 0; i < n; i++ {
		if i == slack {
			continue
		}
		reducedIdx[i] = len(reduced)
		reduced = append(reduced, i)
	}

	pReduced := make([]float64, len(reduced))
	for ri, i := range reduced {
		pReduced[ri] = p[i]
	}

	thetaReduced, err := adm.BDoublePrime().Solve(pReduced)
	if err != nil {
		if errors.Is(err, sparse.ErrSingular) {
			return nil, &SolveError{Kind: SingularJacobian, Context: "B'' is singular"}
		}
		return nil, err
	}

	theta := make([]float64, n)
	theta[slack] = 0
	for ri, i := range reduced {
		theta[i] = thetaReduced[ri]
	}

	sol := &Solution{
		Converged:  true,
		Iterations: 0,
		Buses:      make([]BusResult, n),
		Branches:   make([]BranchResult, nm.NumBranches()),
		Gens:       make([]GenResult, nm.NumGens()),
	}
	for i := 0; i < n; i++ {
		sol.Buses[i] = BusResult{VM: 1.0, VA: theta[i]}
	}

	var totalLossMW float64
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService || br.X == 0 {
			continue
		}
		flowPU := (theta[br.FromBus] - theta[br.ToBus] - br.PhaseShift) / br.X
		flowMW := flowPU * baseMVA
		sol.Branches[bi] = BranchResult{PFromMW: flowMW, SFromMVA: math.Abs(flowMW)}
	}

	// The slack bus absorbs the lossless DC imbalance: the first in-service
	// generator at the slack bus is reported at its setpoint plus whatever
	// net injection the buses leave unbalanced.
	slackBalanceMW := 0.0
	for i := 0; i < n; i++ {
		slackBalanceMW -= p[i] * baseMVA
	}
	for gi := 0; gi < nm.NumGens(); gi++ {
		g := nm.Gen(gi)
		pMW := g.P
		if g.InService && g.HostBus == slack && slackBalanceMW != 0 {
			pMW += slackBalanceMW
			slackBalanceMW = 0
		}
		sol.Gens[gi] = GenResult{PMW: pMW}
	}

	sol.LossesMW = totalLossMW // DC model is lossless by construction
	sol.MaxMismatch = 0
	return sol, nil
}
