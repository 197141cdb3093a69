package powerflow_test

import (
	"errors"
	"math"
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/powerflow"
)

func TestSolveDCThreeBusRingBalances(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	adm, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected admittance error: %v", err)
	}
	sol, err := powerflow.SolveDC(m, adm, powerflow.DCOptions{})
	if err != nil {
		t.Fatalf("unexpected solve error: %v", err)
	}
	if !sol.Converged || sol.Iterations != 0 {
		t.Fatalf("DC solve should report converged with zero iterations, got %+v", sol)
	}

	var totalGen float64
	for _, g := range sol.Gens {
		totalGen += g.PMW
	}
	if math.Abs(totalGen-100) > 1e-6 {
		t.Fatalf("expected total generation 100 MW (two 50 MW loads, lossless), got %v", totalGen)
	}
}

func TestSolveACTwoBusQLimitClampsReactive(t *testing.T) {
	m := testfixtures.TwoBusQLimit()
	adm, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected admittance error: %v", err)
	}
	sol, err := powerflow.SolveAC(m, adm, powerflow.DefaultACOptions())
	if err != nil {
		t.Fatalf("unexpected solve error: %v", err)
	}
	if !sol.Converged {
		t.Fatal("expected AC solve to converge")
	}
	if sol.MaxMismatch > powerflow.DefaultACOptions().Tolerance {
		t.Fatalf("mismatch %v exceeds tolerance", sol.MaxMismatch)
	}
	// generator q_max is 10 MVAr; the fixture's 50 MVAr load cannot be held
	// at the V setpoint without clamping, so Q must sit at the limit.
	q := sol.Gens[0].QMVAr
	if q > 10.0+1e-3 {
		t.Fatalf("expected generator Q clamped at q_max=10, got %v", q)
	}
}

func TestSolveACThreeBusRingMatchesDCTopologyLosslessly(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	adm, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected admittance error: %v", err)
	}
	sol, err := powerflow.SolveAC(m, adm, powerflow.DefaultACOptions())
	if err != nil {
		t.Fatalf("unexpected solve error: %v", err)
	}
	if math.Abs(sol.LossesMW) > 1e-3 {
		t.Fatalf("expected near-zero losses for r=0 network, got %v", sol.LossesMW)
	}
}

func TestAdmittanceBuildRejectsBusUnreachableFromSlack(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	clone, err := m.CloneWithMutations([]network.Mutation{
		{Kind: network.SetBranchStatus, ExternalID: 1, InService: false},
		{Kind: network.SetBranchStatus, ExternalID: 3, InService: false},
	})
	if err != nil {
		t.Fatalf("unexpected clone error: %v", err)
	}
	// branches 1 (1-2) and 3 (1-3) are now out of service, isolating bus 1
	// (the only slack) from buses 2 and 3, which still share branch 2 (2-3).
	_, err = admittance.Build(clone)
	var modelErr *network.ModelError
	if !errors.As(err, &modelErr) || modelErr.Kind != network.SingularAdmittance {
		t.Fatalf("expected SingularAdmittance for an island unreachable from its slack, got %v", err)
	}
}
