package network_test

import (
	"errors"
	"testing"

	"github.com/dd0wney/gridflow/internal/testfixtures"
	"github.com/dd0wney/gridflow/pkg/gridvalidation"
	"github.com/dd0wney/gridflow/pkg/network"
)

func TestNewRejectsUnknownBranchReference(t *testing.T) {
	_, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 99, X: 0.1, TapRatio: 1, InService: true},
		},
	})
	var modelErr *network.ModelError
	if !errors.As(err, &modelErr) || modelErr.Kind != network.UnknownReference {
		t.Fatalf("expected UnknownReference, got %v", err)
	}
}

func TestNewRejectsDuplicateBusID(t *testing.T) {
	_, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
	})
	var modelErr *network.ModelError
	if !errors.As(err, &modelErr) || modelErr.Kind != network.DuplicateId {
		t.Fatalf("expected DuplicateId, got %v", err)
	}
}

func TestNewRejectsMissingSlack(t *testing.T) {
	_, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
	})
	var modelErr *network.ModelError
	if !errors.As(err, &modelErr) || modelErr.Kind != network.NoSlack {
		t.Fatalf("expected NoSlack, got %v", err)
	}
}

func TestNewRejectsPVBusWithoutGenerator(t *testing.T) {
	_, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pv"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, X: 0.1, TapRatio: 1, InService: true},
		},
	})
	if err == nil {
		t.Fatal("expected error for PV bus without generator")
	}
}

func TestSyncCondenserNotRejectedForZeroPMax(t *testing.T) {
	_, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, X: 0.1, TapRatio: 1, InService: true},
		},
		Generators: []gridvalidation.GeneratorRecord{
			{ExternalID: 1, HostBus: 2, PMin: 0, PMax: 0, QMin: -10, QMax: 10, InService: true},
		},
	})
	if err != nil {
		t.Fatalf("sync condenser (p_max<=0, q_max>q_min) should be accepted, got %v", err)
	}
}

func TestIslandsSingleConnectedNetwork(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	islands := m.Islands()
	if len(islands) != 1 || len(islands[0]) != 3 {
		t.Fatalf("expected one island of 3 buses, got %v", islands)
	}
}

func TestIslandsSplitsOnOutOfServiceBranches(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	for i := 0; i < m.NumBranches(); i++ {
		_ = i
	}
	muts := []network.Mutation{
		{Kind: network.SetBranchStatus, ExternalID: 1, InService: false},
		{Kind: network.SetBranchStatus, ExternalID: 2, InService: false},
	}
	clone, err := m.CloneWithMutations(muts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	islands := clone.Islands()
	if len(islands) != 2 {
		t.Fatalf("expected two islands after isolating bus 2 via branches 1 and 2, got %d", len(islands))
	}
}

func TestCloneWithMutationsDoesNotTouchOriginal(t *testing.T) {
	m := testfixtures.ThreeBusRing()
	clone, err := m.CloneWithMutations([]network.Mutation{
		{Kind: network.ScaleLoad, Factor: 2.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Load(0).PMW != 50 {
		t.Fatalf("original model mutated: load 0 = %v", m.Load(0).PMW)
	}
	if clone.Load(0).PMW != 100 {
		t.Fatalf("clone load not scaled: got %v", clone.Load(0).PMW)
	}
}

func TestCostModelPolynomialEvaluateAndMarginal(t *testing.T) {
	c := network.CostModel{Kind: network.CostPolynomial, Coeff: []float64{0, 20, 0.01}}
	if got := c.Evaluate(100); got != 20*100+0.01*100*100 {
		t.Fatalf("unexpected evaluate: %v", got)
	}
	if got := c.Marginal(100); got != 20+2*0.01*100 {
		t.Fatalf("unexpected marginal: %v", got)
	}
}

func TestCostModelPiecewiseLinearRejectsNonMonotone(t *testing.T) {
	c := network.CostModel{Kind: network.CostPiecewiseLinear, Curve: []network.Breakpoint{
		{MW: 50, DollarsPerHr: 100},
		{MW: 10, DollarsPerHr: 200},
	}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for non-monotone breakpoints")
	}
}
