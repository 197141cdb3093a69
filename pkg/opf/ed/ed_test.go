package ed_test

import (
	"errors"
	"math"
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/opf"
	"github.com/dd0wney/gridflow/pkg/opf/ed"
)

func TestSolveMeritOrderFillsCheapestFirst(t *testing.T) {
	m := testfixtures.MeritOrderTwoGen()
	sol, err := ed.Solve(m, opf.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// load is 150 MW; gen 0 ($20/MWh) has p_max=100, gen 1 ($25/MWh) p_max=100.
	// cheapest-first: gen 0 fills to 100, gen 1 takes the remaining 50.
	if math.Abs(sol.Gens[0].PMW-100) > 1e-6 {
		t.Fatalf("expected gen 0 dispatched to 100 MW, got %v", sol.Gens[0].PMW)
	}
	if math.Abs(sol.Gens[1].PMW-50) > 1e-6 {
		t.Fatalf("expected gen 1 dispatched to 50 MW, got %v", sol.Gens[1].PMW)
	}
	wantObjective := 100*20.0 + 50*25.0
	if math.Abs(sol.Objective-wantObjective) > 1e-6 {
		t.Fatalf("expected objective %v, got %v", wantObjective, sol.Objective)
	}
}

func TestSolveInfeasibleWhenLoadExceedsCapacity(t *testing.T) {
	m := testfixtures.MeritOrderTwoGen()
	clone, err := m.CloneWithMutations([]network.Mutation{
		{Kind: network.ScaleLoad, Factor: 3.0},
	})
	if err != nil {
		t.Fatalf("unexpected clone error: %v", err)
	}
	_, err = ed.Solve(clone, opf.DefaultOptions())
	var solveErr *opf.SolveError
	if !errors.As(err, &solveErr) || solveErr.Kind != opf.Infeasible {
		t.Fatalf("expected Infeasible, got %v", err)
	}
}
