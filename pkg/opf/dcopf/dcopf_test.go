package dcopf_test

import (
	"math"
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/opf"
	"github.com/dd0wney/gridflow/pkg/opf/dcopf"
)

func TestSolveRespectsBindingFlowLimit(t *testing.T) {
	m := testfixtures.DCOPFTriangle()
	adm, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected admittance build error: %v", err)
	}

	sol, err := dcopf.Solve(m, adm, opf.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected solve error: %v", err)
	}

	var totalGen float64
	for _, g := range sol.Gens {
		totalGen += g.PMW
	}
	if math.Abs(totalGen-100) > 1e-3 {
		t.Fatalf("expected total dispatch to match 100 MW load, got %v", totalGen)
	}

	// branch 3 (1-3 direct) is limited to 30 MVA; the unconstrained economic
	// dispatch (all 100 MW from the cheap bus-1 generator) would overload it,
	// so the solver must back off bus-1 output in favor of the expensive
	// bus-2 generator.
	branch3 := sol.Branches[2]
	if branch3.PFromMW > 30+1e-3 {
		t.Fatalf("expected branch 3 flow within 30 MW limit, got %v", branch3.PFromMW)
	}
	if !branch3.Binding {
		t.Fatalf("expected branch 3 to be reported as binding")
	}

	if sol.Gens[1].PMW <= 0 {
		t.Fatalf("expected expensive generator to be dispatched to relieve congestion, got %v", sol.Gens[1].PMW)
	}

	// congestion forces use of the expensive generator, so total cost must
	// exceed the uncongested optimum of 100 MW entirely from the cheap
	// generator (100 MW * $10/MWh = $1000).
	if sol.Objective <= 1000+1e-6 {
		t.Fatalf("expected congestion to raise cost above the uncongested optimum, got objective %v", sol.Objective)
	}
}

func TestSolveUncongestedMatchesCheapestGenerator(t *testing.T) {
	m := testfixtures.MeritOrderTwoGen()
	adm, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected admittance build error: %v", err)
	}

	sol, err := dcopf.Solve(m, adm, opf.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected solve error: %v", err)
	}

	var totalGen float64
	for _, g := range sol.Gens {
		totalGen += g.PMW
	}
	if math.Abs(totalGen-150) > 1e-3 {
		t.Fatalf("expected total dispatch to match 150 MW load, got %v", totalGen)
	}
}
