package admittance_test

import (
	"errors"
	"math"
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/gridvalidation"
	"github.com/dd0wney/gridflow/pkg/network"
)

func TestBuildThreeBusRingYIsHermitian(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	a, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.IsHermitianExcludingPhaseShifters(m, 1e-9) {
		t.Fatal("expected Y to be Hermitian for a network with no phase shifters")
	}
}

func TestBuildComputesDiagonalFromSeriesAdmittance(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	a, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Two branches of x=0.1 touch bus 0 (internal index for external ID 1):
	// y = 1/(j*0.1) = -j*10 each, so Y[0,0] should be -j*10 + -j*10 = -j*20
	// (r=0 branches, no charging).
	y00 := a.Y().At(0, 0)
	if math.Abs(real(y00)) > 1e-9 || math.Abs(imag(y00)+20) > 1e-6 {
		t.Fatalf("unexpected Y[0,0] = %v", y00)
	}
}

func TestBDoublePrimeExcludesSlackRowAndCol(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	a, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.BDoublePrime().N() != a.N()-1 {
		t.Fatalf("expected B'' dimension %d, got %d", a.N()-1, a.BDoublePrime().N())
	}
}

func TestBuildRejectsShortCircuitBranch(t *testing.T) {
	_, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, R: 0, X: 0, TapRatio: 1, InService: true},
		},
	})
	if err != nil {
		// model construction doesn't itself reject zero-impedance branches;
		// admittance assembly does.
		t.Fatalf("unexpected model construction error: %v", err)
	}
	m, _ := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, R: 0, X: 0, TapRatio: 1, InService: true},
		},
	})
	_, err = admittance.Build(m)
	var modelErr *network.ModelError
	if !errors.As(err, &modelErr) || modelErr.Kind != network.SingularAdmittance {
		t.Fatalf("expected SingularAdmittance, got %v", err)
	}
}

func TestBuildAllowsPhaseShifterWithNegativeReactance(t *testing.T) {
	m, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, R: 0, X: -0.1, TapRatio: 1, PhaseShift: 0.1, InService: true, IsPhaseShifter: true},
		},
	})
	if err != nil {
		t.Fatalf("unexpected model construction error: %v", err)
	}
	if _, err := admittance.Build(m); err != nil {
		t.Fatalf("unexpected error building admittance for phase-shifter branch: %v", err)
	}
}

func TestBuildRejectsZeroImpedanceEvenWhenFlaggedShifter(t *testing.T) {
	m, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, R: 0, X: 0, TapRatio: 1, InService: true, IsPhaseShifter: true},
		},
	})
	if err != nil {
		t.Fatalf("unexpected model construction error: %v", err)
	}
	_, err = admittance.Build(m)
	var modelErr *network.ModelError
	if !errors.As(err, &modelErr) || modelErr.Kind != network.SingularAdmittance {
		t.Fatalf("expected SingularAdmittance even for a phase-shifter-tagged branch, got %v", err)
	}
}
