package stateestimate_test

import (
	"math"
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/powerflow"
	"github.com/dd0wney/gridflow/pkg/stateestimate"
)

// buildMeasurements reports every bus's voltage magnitude and every
// branch's from-end P and Q flow as a noiseless measurement set: 10
// measurements for the 7 state variables of a 4-bus system, redundant
// enough that a single bad measurement leaves a residual to detect.
func buildMeasurements(sol *powerflow.Solution, nm interface {
	NumBuses() int
	NumBranches() int
}, busExtID func(int) int64, branchExtID func(int) int64) []stateestimate.Measurement {
	var meas []stateestimate.Measurement
	for bi := 0; bi < nm.NumBuses(); bi++ {
		meas = append(meas, stateestimate.Measurement{
			Kind: stateestimate.VoltageMagnitude, BusExternalID: busExtID(bi),
			ValuePU: sol.Buses[bi].VM, SigmaPU: 0.005,
		})
	}
	for bi := 0; bi < nm.NumBranches(); bi++ {
		meas = append(meas, stateestimate.Measurement{
			Kind: stateestimate.FlowP, BranchExternalID: branchExtID(bi),
			ValuePU: sol.Branches[bi].PFromMW / 100, SigmaPU: 0.01,
		})
	}
	for bi := 0; bi < nm.NumBranches(); bi++ {
		meas = append(meas, stateestimate.Measurement{
			Kind: stateestimate.FlowQ, BranchExternalID: branchExtID(bi),
			ValuePU: sol.Branches[bi].QFromMVAr / 100, SigmaPU: 0.01,
		})
	}
	return meas
}

func TestSolveRecoversKnownOperatingPoint(t *testing.T) {
	nm := testfixtures.FourBusRadial()
	adm, err := admittance.Build(nm)
	if err != nil {
		t.Fatalf("unexpected admittance error: %v", err)
	}
	sol, err := powerflow.SolveAC(nm, adm, powerflow.DefaultACOptions())
	if err != nil {
		t.Fatalf("unexpected power flow error: %v", err)
	}

	busExt := func(i int) int64 { return nm.Bus(i).ExternalID }
	branchExt := func(i int) int64 { return nm.Branch(i).ExternalID }
	meas := buildMeasurements(sol, nm, busExt, branchExt)

	result, err := stateestimate.Solve(nm, adm, meas, stateestimate.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected estimate error: %v", err)
	}

	for i := 0; i < nm.NumBuses(); i++ {
		if math.Abs(result.VM[i]-sol.Buses[i].VM) > 1e-3 {
			t.Errorf("bus %d: VM got %v want %v", i, result.VM[i], sol.Buses[i].VM)
		}
		if math.Abs(result.VA[i]-sol.Buses[i].VA) > 1e-3 {
			t.Errorf("bus %d: VA got %v want %v", i, result.VA[i], sol.Buses[i].VA)
		}
	}
	if len(result.RemovedMeasurements) != 0 {
		t.Errorf("expected no measurements removed from a clean measurement set, got %v", result.RemovedMeasurements)
	}
}

func TestSolveRejectsUnobservableSystem(t *testing.T) {
	nm := testfixtures.FourBusRadial()
	adm, err := admittance.Build(nm)
	if err != nil {
		t.Fatalf("unexpected admittance error: %v", err)
	}

	meas := []stateestimate.Measurement{
		{Kind: stateestimate.VoltageMagnitude, BusExternalID: 1, ValuePU: 1.0, SigmaPU: 0.01},
	}

	_, err = stateestimate.Solve(nm, adm, meas, stateestimate.DefaultOptions())
	if err == nil {
		t.Fatal("expected an error for a grossly underdetermined measurement set")
	}
	estErr, ok := err.(*stateestimate.EstimateError)
	if !ok {
		t.Fatalf("expected *EstimateError, got %T", err)
	}
	if estErr.Kind != stateestimate.SystemNotObservable {
		t.Fatalf("expected SystemNotObservable, got %v", estErr.Kind)
	}
}

func TestSolveRemovesBadDataMeasurement(t *testing.T) {
	nm := testfixtures.FourBusRadial()
	adm, err := admittance.Build(nm)
	if err != nil {
		t.Fatalf("unexpected admittance error: %v", err)
	}
	sol, err := powerflow.SolveAC(nm, adm, powerflow.DefaultACOptions())
	if err != nil {
		t.Fatalf("unexpected power flow error: %v", err)
	}

	busExt := func(i int) int64 { return nm.Bus(i).ExternalID }
	branchExt := func(i int) int64 { return nm.Branch(i).ExternalID }
	meas := buildMeasurements(sol, nm, busExt, branchExt)

	// Corrupt one voltage magnitude measurement far outside its stated
	// sigma so the normalized-residual test flags it.
	meas[1].ValuePU += 0.2

	result, err := stateestimate.Solve(nm, adm, meas, stateestimate.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected estimate error: %v", err)
	}
	if len(result.RemovedMeasurements) == 0 {
		t.Fatal("expected the corrupted measurement to be flagged and removed")
	}
}
