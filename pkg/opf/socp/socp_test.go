package socp_test

import (
	"math"
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/opf"
	"github.com/dd0wney/gridflow/pkg/opf/socp"
)

func TestSolveMeritOrderTwoGenBalancesLoad(t *testing.T) {
	m := testfixtures.MeritOrderTwoGen()
	sol, err := socp.Solve(m, opf.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var totalGen float64
	for _, g := range sol.Gens {
		totalGen += g.PMW
	}
	if math.Abs(totalGen-150) > 1.0 {
		t.Fatalf("expected total dispatch near 150 MW, got %v", totalGen)
	}
}

func TestSolveThreeBusRingProducesVoltageMagnitudes(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	sol, err := socp.Solve(m, opf.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, b := range sol.Buses {
		if !b.VPopulated {
			t.Fatalf("expected bus %d voltage magnitude populated", i)
		}
		if b.VM <= 0 || b.VM > 2 {
			t.Fatalf("bus %d voltage magnitude out of plausible range: %v", i, b.VM)
		}
	}
}
