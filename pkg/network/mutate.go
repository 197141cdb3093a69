package network

// MutationKind discriminates the scenario-mutation union of spec.md §4.1.
type MutationKind uint8

const (
	SetBranchStatus MutationKind = iota
	SetGenStatus
	ScaleLoad
	ScaleGen
	// SetGenOutput overwrites a single generator's scheduled active power,
	// used by pkg/opf solvers to stage a dispatch before a verification
	// power-flow solve.
	SetGenOutput
)

// Mutation is one scenario edit applied by CloneWithMutations. Only the
// fields relevant to Kind are consulted.
type Mutation struct {
	Kind MutationKind

	// SetBranchStatus / SetGenStatus
	ExternalID int64
	InService  bool

	// ScaleLoad / ScaleGen — applied to every load/generator, in service
	// or not, when TargetID is zero, or to a single entity when TargetID is set.
	TargetID int64
	Factor   float64

	// SetGenOutput — TargetID selects the generator, PMW is the new
	// absolute active-power setpoint.
	PMW float64
}

// CloneWithMutations deep-copies the model's entity slices and ID<->index
// maps, applies the given mutations to the copy, and returns a new
// independent immutable Model. The receiver is never touched — BatchRunner
// relies on this for safe concurrent scenario fan-out (spec.md §5: "the
// base NetworkModel is read-only and safely sharable across workers").
func (m *Model) CloneWithMutations(muts []Mutation) (*Model, error) {
	clone := &Model{
		params:          m.params,
		buses:           append([]Bus(nil), m.buses...),
		branches:        append([]Branch(nil), m.branches...),
		gens:            append([]Generator(nil), m.gens...),
		loads:           append([]Load(nil), m.loads...),
		shunts:          append([]Shunt(nil), m.shunts...),
		busIndexByID:    copyIndexMap(m.busIndexByID),
		busIDByIndex:    append([]int64(nil), m.busIDByIndex...),
		branchIndexByID: copyIndexMap(m.branchIndexByID),
		branchIDByIndex: append([]int64(nil), m.branchIDByIndex...),
		genIndexByID:    copyIndexMap(m.genIndexByID),
		genIDByIndex:    append([]int64(nil), m.genIDByIndex...),
	}

	for _, mut := range muts {
		switch mut.Kind {
		case SetBranchStatus:
			idx, ok := clone.branchIndexByID[mut.ExternalID]
			if !ok {
				return nil, newModelError(UnknownReference, "mutate", "branch", mut.ExternalID, "")
			}
			clone.branches[idx].InService = mut.InService

		case SetGenStatus:
			idx, ok := clone.genIndexByID[mut.ExternalID]
			if !ok {
				return nil, newModelError(UnknownReference, "mutate", "generator", mut.ExternalID, "")
			}
			clone.gens[idx].InService = mut.InService
			if !mut.InService {
				clone.gens[idx].P = 0
				clone.gens[idx].Q = 0
			}

		case ScaleLoad:
			for i := range clone.loads {
				if mut.TargetID != 0 && clone.loads[i].ExternalID != mut.TargetID {
					continue
				}
				clone.loads[i].PMW *= mut.Factor
				clone.loads[i].QMVAr *= mut.Factor
			}

		case ScaleGen:
			for i := range clone.gens {
				if mut.TargetID != 0 && clone.gens[i].ExternalID != mut.TargetID {
					continue
				}
				clone.gens[i].P *= mut.Factor
				clone.gens[i].PMax *= mut.Factor
				if clone.gens[i].PMin > 0 {
					clone.gens[i].PMin *= mut.Factor
				}
			}

		case SetGenOutput:
			idx, ok := clone.genIndexByID[mut.TargetID]
			if !ok {
				return nil, newModelError(UnknownReference, "mutate", "generator", mut.TargetID, "")
			}
			clone.gens[idx].P = mut.PMW
		}
	}

	if err := clone.validateBusTypeConsistency(); err != nil {
		return nil, err
	}
	return clone, nil
}

func copyIndexMap(src map[int64]int) map[int64]int {
	dst := make(map[int64]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
