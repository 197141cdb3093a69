// Package acnlp implements Tier 4 of spec.md §4.4.4: full nonlinear AC-OPF
// in polar coordinates, with two backends selected by opf.Options.Backend —
// "interior-point" (the default) and "penalty".
package acnlp

import (
	"time"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/logging"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/opf"
	"github.com/dd0wney/gridflow/pkg/opf/dcopf"
	"github.com/dd0wney/gridflow/pkg/opf/socp"
)

type genVar struct {
	idx     int
	hostBus int
	pMin    float64
	pMax    float64
	qMin    float64
	qMax    float64
	cost    network.CostModel
}

// Solve implements spec.md §4.4.4. Backend selection: opts.Backend ==
// "penalty" runs the escalating-penalty L-BFGS backend; anything else
// (including the zero value) runs the analytic-Jacobian coordinate-descent
// backend named "interior-point" below.
func Solve(nm *network.Model, adm *admittance.AdmittanceAssembly, opts opf.Options) (sol *opf.Solution, err error) {
	start := time.Now()
	opts.LoggerOrNop().Info("opf solve starting", logging.Component("opf"), logging.Operation("opf-acnlp"))
	defer func() {
		iterations := 0
		if sol != nil {
			iterations = sol.Iterations
		}
		opf.ObserveSolve(opts, "opf-acnlp", start, iterations, err)
	}()
	sol, err = solveACNLP(nm, adm, opts)
	return sol, err
}

func solveACNLP(nm *network.Model, adm *admittance.AdmittanceAssembly, opts opf.Options) (*opf.Solution, error) {
	baseMVA := nm.Params().BaseMVA
	n := nm.NumBuses()
	slack := adm.SlackIndex()

	var gens []genVar
	for gi := 0; gi < nm.NumGens(); gi++ {
		g := nm.Gen(gi)
		if !g.InService {
			continue
		}
		gens = append(gens, genVar{
			idx: gi, hostBus: g.HostBus,
			pMin: g.PMin / baseMVA, pMax: g.PMax / baseMVA,
			qMin: g.QMin / baseMVA, qMax: g.QMax / baseMVA,
			cost: g.Cost,
		})
	}

	theta := make([]float64, n)
	vm := make([]float64, n)
	for i := range vm {
		vm[i] = 1.0
	}
	pg := make([]float64, len(gens))
	qg := make([]float64, len(gens))
	for k, g := range gens {
		pg[k] = (g.pMin + g.pMax) / 2
		qg[k] = (g.qMin + g.qMax) / 2
	}
	for gi := range nm.Gens() {
		gv := nm.Gen(gi)
		if gv.InService && gv.VSetpoint > 0 {
			vm[gv.HostBus] = gv.VSetpoint
		}
	}

	switch opts.WarmStart {
	case opf.WarmStartFromDC:
		if dcSol, err := dcopf.Solve(nm, adm, opts); err == nil {
			for k, g := range gens {
				pg[k] = dcSol.Gens[g.idx].PMW / baseMVA
			}
			for i, b := range dcSol.Buses {
				theta[i] = b.VA
			}
		}
	case opf.WarmStartFromSOCP:
		if socpSol, err := socp.Solve(nm, opts); err == nil {
			for k, g := range gens {
				pg[k] = socpSol.Gens[g.idx].PMW / baseMVA
				qg[k] = socpSol.Gens[g.idx].QMVAr / baseMVA
			}
			for i, b := range socpSol.Buses {
				if b.VPopulated {
					vm[i] = b.VM
				}
			}
		}
	}

	if opts.Backend == "penalty" {
		return penaltySolve(nm, adm, gens, theta, vm, pg, qg, slack, baseMVA, opts)
	}
	return interiorPointSolve(nm, adm, gens, theta, vm, pg, qg, slack, baseMVA, opts)
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

func hinge(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func sq(v float64) float64 { return v * v }
