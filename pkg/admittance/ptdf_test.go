package admittance_test

import (
	"math"
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/admittance"
)

func TestComputePTDFMatchesDirectSolveDelta(t *testing.T) {
	m := testfixtures.DCOPFTriangle()
	adm, err := admittance.Build(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ptdf, err := admittance.ComputePTDF(m, adm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// bus internal index 2 (external ID 3, the load bus) is non-slack;
	// PTDF entries for branches touching it must be nonzero for a network
	// where that bus has in-service connections.
	found := false
	for bi := 0; bi < m.NumBranches(); bi++ {
		if math.Abs(ptdf.At(bi, 2)) > 1e-9 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected at least one nonzero PTDF entry for bus 2")
	}
}
