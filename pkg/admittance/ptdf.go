package admittance

import (
	"github.com/dd0wney/gridflow/pkg/network"
)

// PTDFMatrix holds power-transfer-distribution-factor sensitivities: the
// change in a branch's active flow (per unit) per unit change of net
// injection at a bus, holding the slack bus as the compensating reference.
// Supplements spec.md's GLOSSARY, which defines PTDF but assigns it no
// operation; SPEC_FULL.md §9 assigns it to contingency screening and DC-OPF
// flow-limit constraints, both of which are linear in bus injection under
// the DC approximation.
type PTDFMatrix struct {
	numBranches int
	numBuses    int
	factor      [][]float64 // [branch][bus]
}

// At returns the PTDF factor for a branch and bus.
func (p *PTDFMatrix) At(branch, bus int) float64 { return p.factor[branch][bus] }

// ComputePTDF derives the full branch-by-bus PTDF matrix from B''
// (spec.md §4.2/§4.3.1's DC susceptance matrix), by solving B''*theta = e_k
// for a unit injection at each non-slack bus k in turn and reading off the
// resulting per-branch flow sensitivity (theta_from - theta_to)/x.
func ComputePTDF(nm *network.Model, adm *AdmittanceAssembly) (*PTDFMatrix, error) {
	n := nm.NumBuses()
	slack := adm.SlackIndex()
	bpp := adm.BDoublePrime()

	reduced := make([]int, 0, n-1)
	reducedIdx := make(map[int]int, n-1)
	for i := 0; i < n; i++ {
		if i == slack {
			continue
		}
		reducedIdx[i] = len(reduced)
		reduced = append(reduced, i)
	}

	p := &PTDFMatrix{
		numBranches: nm.NumBranches(),
		numBuses:    n,
		factor:      make([][]float64, nm.NumBranches()),
	}
	for i := range p.factor {
		p.factor[i] = make([]float64, n)
	}

	for _, bus := range reduced {
		rhs := make([]float64, len(reduced))
		rhs[reducedIdx[bus]] = 1.0
		thetaReduced, err := bpp.Solve(rhs)
		if err != nil {
			return nil, err
		}
		theta := make([]float64, n)
		for ri, idx := range reduced {
			theta[idx] = thetaReduced[ri]
		}

		for bi := 0; bi < nm.NumBranches(); bi++ {
			br := nm.Branch(bi)
			if !br.InService || br.X == 0 {
				continue
			}
			p.factor[bi][bus] = (theta[br.FromBus] - theta[br.ToBus]) / br.X
		}
	}
	return p, nil
}
