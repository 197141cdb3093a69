// Package testfixtures builds the small networks named in spec.md §8's
// concrete end-to-end scenarios, shared across pkg/network, pkg/admittance,
// pkg/powerflow, pkg/opf, pkg/contingency and pkg/stateestimate tests so
// each package's tests assert against the same known-good systems instead
// of redefining them.
package testfixtures

import (
	"github.com/dd0wney/gridflow/pkg/gridvalidation"
	"github.com/dd0wney/gridflow/pkg/network"
)

// ThreeBusRing builds spec.md §8 scenario 1: a lossless three-bus ring,
// bus 1 slack, buses 2 and 3 PQ with 50 MW loads each, a generator at bus 1
// with p in [0, 200], all three branches x=0.1, r=0.
func ThreeBusRing() *network.Model {
	m, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100, BaseHz: 60},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pq"},
			{ExternalID: 3, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, X: 0.1, TapRatio: 1, InService: true},
			{ExternalID: 2, FromBus: 2, ToBus: 3, X: 0.1, TapRatio: 1, InService: true},
			{ExternalID: 3, FromBus: 1, ToBus: 3, X: 0.1, TapRatio: 1, InService: true},
		},
		Generators: []gridvalidation.GeneratorRecord{
			{ExternalID: 1, HostBus: 1, PMin: 0, PMax: 200, QMin: -100, QMax: 100, VSetpoint: 1.0, InService: true},
		},
		Loads: []gridvalidation.LoadRecord{
			{ExternalID: 1, HostBus: 2, PMW: 50, InService: true},
			{ExternalID: 2, HostBus: 3, PMW: 50, InService: true},
		},
	})
	if err != nil {
		panic(err) // fixture construction is a test-setup invariant, not a runtime path
	}
	return m
}

// TwoBusQLimit builds spec.md §8 scenario 2: bus 1 slack at V=1, bus 2 PV
// with V-setpoint 1.05 and a generator whose q_max=10 MVAr will be clamped
// by the Q-limit outer loop; load at bus 2 is (40 MW, 50 MVAr); branch
// r=0.01, x=0.1.
func TwoBusQLimit() *network.Model {
	m, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100, BaseHz: 60},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pv"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, R: 0.01, X: 0.1, TapRatio: 1, InService: true},
		},
		Generators: []gridvalidation.GeneratorRecord{
			{ExternalID: 1, HostBus: 2, PMin: 0, PMax: 100, QMin: -10, QMax: 10, VSetpoint: 1.05, InService: true},
		},
		Loads: []gridvalidation.LoadRecord{
			{ExternalID: 1, HostBus: 2, PMW: 40, QMVAr: 50, InService: true},
		},
	})
	if err != nil {
		panic(err)
	}
	return m
}

// MeritOrderTwoGen builds spec.md §8 scenario 3: two generators at one bus,
// linear costs $20/MWh and $25/MWh, p_max=100 each, load=150 MW.
func MeritOrderTwoGen() *network.Model {
	m, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100, BaseHz: 60},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
		},
		Generators: []gridvalidation.GeneratorRecord{
			{ExternalID: 1, HostBus: 1, PMin: 0, PMax: 100, QMin: -50, QMax: 50, VSetpoint: 1.0, InService: true},
			{ExternalID: 2, HostBus: 1, PMin: 0, PMax: 100, QMin: -50, QMax: 50, VSetpoint: 1.0, InService: true},
		},
		Loads: []gridvalidation.LoadRecord{
			{ExternalID: 1, HostBus: 1, PMW: 150, InService: true},
		},
		Costs: map[int64]network.CostModel{
			1: {Kind: network.CostPolynomial, Coeff: []float64{0, 20}},
			2: {Kind: network.CostPolynomial, Coeff: []float64{0, 25}},
		},
	})
	if err != nil {
		panic(err)
	}
	return m
}

// DCOPFTriangle builds spec.md §8 scenario 4: a three-bus triangle with
// identical branch impedances, a cheap generator at bus 1 ($10/MWh,
// p_max=200), an expensive generator at bus 2 ($50/MWh, p_max=200), load
// 100 MW at bus 3, and a 30 MW flow limit on branch 1-3.
func DCOPFTriangle() *network.Model {
	m, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100, BaseHz: 60},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pv"},
			{ExternalID: 3, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, X: 0.1, TapRatio: 1, InService: true},
			{ExternalID: 2, FromBus: 2, ToBus: 3, X: 0.1, TapRatio: 1, InService: true},
			{ExternalID: 3, FromBus: 1, ToBus: 3, X: 0.1, TapRatio: 1, InService: true, LimitMVA: 30},
		},
		Generators: []gridvalidation.GeneratorRecord{
			{ExternalID: 1, HostBus: 1, PMin: 0, PMax: 200, QMin: -100, QMax: 100, VSetpoint: 1.0, InService: true},
			{ExternalID: 2, HostBus: 2, PMin: 0, PMax: 200, QMin: -100, QMax: 100, VSetpoint: 1.0, InService: true},
		},
		Loads: []gridvalidation.LoadRecord{
			{ExternalID: 1, HostBus: 3, PMW: 100, InService: true},
		},
		Costs: map[int64]network.CostModel{
			1: {Kind: network.CostPolynomial, Coeff: []float64{0, 10}},
			2: {Kind: network.CostPolynomial, Coeff: []float64{0, 50}},
		},
	})
	if err != nil {
		panic(err)
	}
	return m
}

// FourBusRadial builds spec.md §8 scenario 5: a four-bus radial network
// used as the WLS state-estimation truth model.
func FourBusRadial() *network.Model {
	m, err := network.New(network.Records{
		Params: network.SystemParams{BaseMVA: 100, BaseHz: 60},
		Buses: []gridvalidation.BusRecord{
			{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"},
			{ExternalID: 2, VMin: 0.9, VMax: 1.1, Type: "pq"},
			{ExternalID: 3, VMin: 0.9, VMax: 1.1, Type: "pq"},
			{ExternalID: 4, VMin: 0.9, VMax: 1.1, Type: "pq"},
		},
		Branches: []gridvalidation.BranchRecord{
			{ExternalID: 1, FromBus: 1, ToBus: 2, X: 0.1, TapRatio: 1, InService: true},
			{ExternalID: 2, FromBus: 2, ToBus: 3, X: 0.1, TapRatio: 1, InService: true},
			{ExternalID: 3, FromBus: 3, ToBus: 4, X: 0.1, TapRatio: 1, InService: true},
		},
		Generators: []gridvalidation.GeneratorRecord{
			{ExternalID: 1, HostBus: 1, PMin: 0, PMax: 300, QMin: -100, QMax: 100, VSetpoint: 1.0, InService: true},
		},
		Loads: []gridvalidation.LoadRecord{
			{ExternalID: 1, HostBus: 2, PMW: 30, InService: true},
			{ExternalID: 2, HostBus: 3, PMW: 40, InService: true},
			{ExternalID: 3, HostBus: 4, PMW: 20, InService: true},
		},
	})
	if err != nil {
		panic(err)
	}
	return m
}
