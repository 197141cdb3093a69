package contingency_test

import (
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/contingency"
)

func TestScreenNMinus1FlagsOverloadedBranch(t *testing.T) {
	base := testfixtures.DCOPFTriangle()

	contingencies := []contingency.Contingency{
		{ID: "outage-branch-2", OutageBranchIDs: []int64{2}},
		{ID: "no-op", OutageBranchIDs: nil},
	}

	results, err := contingency.ScreenNMinus1(base, contingencies, contingency.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	byID := map[string]contingency.Result{}
	for _, r := range results {
		byID[r.ContingencyID] = r
	}

	outage := byID["outage-branch-2"]
	if outage.Err != nil {
		t.Fatalf("unexpected per-contingency error: %v", outage.Err)
	}
	if !outage.Converged {
		t.Fatal("expected DC screen to converge with branch 2 out")
	}
	// With branch 2 (2-3) out, bus 3's 100 MW load flows entirely over
	// branch 3 (1-3), whose limit is 30 MVA.
	flagged := false
	for _, v := range outage.Violations {
		if v.BranchExternalID == 3 && v.Violated {
			flagged = true
		}
	}
	if !flagged {
		t.Fatalf("expected branch 3 flagged overloaded with branch 2 out, got %+v", outage.Violations)
	}

	noop := byID["no-op"]
	if noop.Err != nil {
		t.Fatalf("unexpected per-contingency error: %v", noop.Err)
	}
	if !noop.Converged {
		t.Fatal("expected baseline no-op contingency to converge")
	}
}

func TestScreenNMinus1ReportsIslandingAsError(t *testing.T) {
	base := testfixtures.ThreeBusRing()

	contingencies := []contingency.Contingency{
		{ID: "isolate-bus-2", OutageBranchIDs: []int64{1, 2}},
	}

	results, err := contingency.ScreenNMinus1(base, contingencies, contingency.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("expected outaging both branches into bus 2 to fail (bus 2 left with no in-service branch at all)")
	}
}

func TestPTDFMatchesAdmittanceComputation(t *testing.T) {
	m := testfixtures.DCOPFTriangle()
	adm, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected admittance error: %v", err)
	}

	want, err := admittance.ComputePTDF(m, adm)
	if err != nil {
		t.Fatalf("unexpected PTDF error: %v", err)
	}
	got, err := contingency.PTDF(m, adm)
	if err != nil {
		t.Fatalf("unexpected PTDF error: %v", err)
	}

	for bi := 0; bi < m.NumBranches(); bi++ {
		for bus := 0; bus < m.NumBuses(); bus++ {
			if want.At(bi, bus) != got.At(bi, bus) {
				t.Fatalf("branch %d bus %d: want %v got %v", bi, bus, want.At(bi, bus), got.At(bi, bus))
			}
		}
	}
}
