// Package contingency implements spec.md §4.6's N-1/N-2 screening: for each
// named contingency, clone the base NetworkModel with the outaged branches
// and/or generators taken out of service, rebuild the admittance assembly,
// solve power flow, and report whether the post-contingency system
// converges and which branches exceed their thermal limit. Screening fans
// every contingency out over the same pkg/batch.WorkerPool BatchRunner
// uses, per SPEC_FULL.md §7 — not a second pool implementation.
package contingency

import (
	"fmt"
	"time"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/batch"
	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/metrics"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/powerflow"
)

// Contingency names the branches and generators taken out of service for
// one screening case. N-1 contingencies name one entity; N-2 name two.
type Contingency struct {
	ID               string
	OutageBranchIDs  []int64
	OutageGenIDs     []int64
}

// Method selects which power-flow solver screens each contingency.
type Method int

const (
	MethodDC Method = iota
	MethodAC
)

// BranchLoading is one branch's post-contingency loading.
type BranchLoading struct {
	BranchExternalID int64
	FlowMVA          float64
	LimitMVA         float64
	PercentLoading   float64
	Violated         bool
}

// Result is one contingency's screening outcome.
type Result struct {
	ContingencyID string
	Converged     bool
	Islanded      bool
	MaxLoadingPct float64
	Violations    []BranchLoading
	Err           error
}

// Options controls the screening solver and worker count.
type Options struct {
	Method      Method
	Workers     int
	ACOptions   powerflow.ACOptions

	// Logger receives screening start/end and per-contingency failures,
	// injected by the caller (never a package-level global). Nil defaults
	// to a no-op logger.
	Logger logging.Logger
	// Metrics, if set, records each contingency's solve telemetry and the
	// worker pool's queue depth.
	Metrics *metrics.Registry
}

// DefaultOptions screens with the DC solver (spec.md §4.6's default, since
// N-1 screening runs every contingency and DC is the cheap first pass) over
// four workers. ScreenNMinus1 treats Workers<=0 as a single worker.
func DefaultOptions() Options {
	return Options{Method: MethodDC, Workers: 4, ACOptions: powerflow.DefaultACOptions()}
}

func (o Options) loggerOrNop() logging.Logger {
	if o.Logger == nil {
		return logging.NewNopLogger()
	}
	return o.Logger
}

// ScreenNMinus1 runs every contingency against base and returns one Result
// per contingency, in the same order as contingencies. A contingency whose
// mutation set or solve fails populates Result.Err rather than aborting the
// whole screening run.
func ScreenNMinus1(base *network.Model, contingencies []Contingency, opts Options) (results []Result, err error) {
	start := time.Now()
	logger := opts.loggerOrNop()
	logger.Info("contingency screening starting", logging.Component("contingency"), logging.Count(len(contingencies)))
	defer func() {
		elapsed := time.Since(start)
		if err != nil {
			logger.Warn("contingency screening failed", logging.Component("contingency"), logging.Latency(elapsed), logging.Error(err))
			return
		}
		var violated int
		for _, r := range results {
			if len(r.Violations) > 0 {
				violated++
			}
		}
		logger.Info("contingency screening completed", logging.Component("contingency"), logging.Latency(elapsed),
			logging.Count(len(results)), logging.Int("violated", violated))
	}()

	jobs := make([]batch.Job, len(contingencies))
	for i, c := range contingencies {
		c := c
		jobs[i] = batch.Job{
			ID:  c.ID,
			Run: func() (any, error) { return screenOne(base, c, opts) },
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if opts.Metrics != nil {
		opts.Metrics.SetBatchQueueDepth(len(jobs))
	}
	jobResults, err := batch.RunAll(workers, jobs)
	if opts.Metrics != nil {
		opts.Metrics.SetBatchQueueDepth(0)
	}
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Result, len(jobResults))
	for _, jr := range jobResults {
		if jr.Err != nil {
			byID[jr.ID] = Result{ContingencyID: jr.ID, Err: jr.Err}
			continue
		}
		res, _ := jr.Value.(Result)
		byID[jr.ID] = res
	}

	out := make([]Result, len(contingencies))
	for i, c := range contingencies {
		out[i] = byID[c.ID]
	}
	return out, nil
}

// screenOne builds the outaged clone, solves power flow, and classifies
// branch loadings. It never returns an error itself — solve/build failures
// are folded into Result.Err so ScreenNMinus1 can report a per-contingency
// outcome instead of failing the whole batch.
func screenOne(base *network.Model, c Contingency, opts Options) (Result, error) {
	muts := make([]network.Mutation, 0, len(c.OutageBranchIDs)+len(c.OutageGenIDs))
	for _, id := range c.OutageBranchIDs {
		muts = append(muts, network.Mutation{Kind: network.SetBranchStatus, ExternalID: id, InService: false})
	}
	for _, id := range c.OutageGenIDs {
		muts = append(muts, network.Mutation{Kind: network.SetGenStatus, ExternalID: id, InService: false})
	}

	clone, err := base.CloneWithMutations(muts)
	if err != nil {
		return Result{ContingencyID: c.ID, Err: fmt.Errorf("applying contingency %s: %w", c.ID, err)}, nil
	}

	adm, err := admittance.Build(clone)
	if err != nil {
		return Result{ContingencyID: c.ID, Islanded: true, Converged: false, Err: err}, nil
	}

	var branches []contingencyBranchFlow
	var converged bool

	switch opts.Method {
	case MethodAC:
		sol, err := powerflow.SolveAC(clone, adm, opts.ACOptions)
		if err != nil {
			return Result{ContingencyID: c.ID, Converged: false, Err: err}, nil
		}
		converged = sol.Converged
		branches = branchFlowsFromAC(clone, sol)
	default:
		sol, err := powerflow.SolveDC(clone, adm, powerflow.DCOptions{Logger: opts.Logger, Metrics: opts.Metrics})
		if err != nil {
			return Result{ContingencyID: c.ID, Converged: false, Err: err}, nil
		}
		converged = sol.Converged
		branches = branchFlowsFromDC(clone, sol)
	}

	res := Result{ContingencyID: c.ID, Converged: converged}
	var maxPct float64
	for _, bf := range branches {
		loading := BranchLoading{BranchExternalID: bf.externalID, FlowMVA: bf.flowMVA, LimitMVA: bf.limitMVA}
		if bf.limitMVA > 0 {
			loading.PercentLoading = 100 * bf.flowMVA / bf.limitMVA
			loading.Violated = bf.flowMVA > bf.limitMVA
		}
		if loading.PercentLoading > maxPct {
			maxPct = loading.PercentLoading
		}
		if loading.Violated {
			res.Violations = append(res.Violations, loading)
		}
	}
	res.MaxLoadingPct = maxPct
	return res, nil
}

type contingencyBranchFlow struct {
	externalID int64
	flowMVA    float64
	limitMVA   float64
}

func branchFlowsFromDC(nm *network.Model, sol *powerflow.Solution) []contingencyBranchFlow {
	out := make([]contingencyBranchFlow, 0, nm.NumBranches())
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService {
			continue
		}
		flow := sol.Branches[bi].PFromMW
		if flow < 0 {
			flow = -flow
		}
		out = append(out, contingencyBranchFlow{externalID: br.ExternalID, flowMVA: flow, limitMVA: br.LimitMVA})
	}
	return out
}

func branchFlowsFromAC(nm *network.Model, sol *powerflow.Solution) []contingencyBranchFlow {
	out := make([]contingencyBranchFlow, 0, nm.NumBranches())
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService {
			continue
		}
		out = append(out, contingencyBranchFlow{externalID: br.ExternalID, flowMVA: sol.Branches[bi].SFromMVA, limitMVA: br.LimitMVA})
	}
	return out
}
