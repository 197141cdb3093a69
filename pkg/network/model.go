package network

import (
	"fmt"

	"github.com/dd0wney/gridflow/pkg/gridvalidation"
)

// ShuntRecord is the import-time shape of a fixed shunt.
type ShuntRecord struct {
	HostBus int64
	G       float64
	B       float64
}

// Records is the full set of import records NetworkModel is built from. An
// importer (an external collaborator per spec.md §6) is responsible for
// producing this from whatever source file format it reads.
type Records struct {
	Params     SystemParams
	Buses      []gridvalidation.BusRecord
	Branches   []gridvalidation.BranchRecord
	Generators []gridvalidation.GeneratorRecord
	Loads      []gridvalidation.LoadRecord
	Shunts     []ShuntRecord
	// Costs maps a generator's ExternalID to its cost model. Generators
	// absent from this map default to CostModel{Kind: CostNone}.
	Costs map[int64]CostModel
}

// Model is the canonical in-memory grid: validated entities, indexed by a
// stable 0-based internal index per entity kind, with a bidirectional
// external-ID<->index map that is never exposed to solver packages.
// Immutable for its lifetime once New returns successfully; BatchRunner
// derives independent clones rather than mutating in place (spec.md §4.1).
type Model struct {
	params SystemParams

	buses    []Bus
	branches []Branch
	gens     []Generator
	loads    []Load
	shunts   []Shunt

	busIndexByID map[int64]int
	busIDByIndex []int64

	branchIndexByID map[int64]int
	branchIDByIndex []int64

	genIndexByID map[int64]int
	genIDByIndex []int64
}

// New validates records and constructs an immutable Model, or returns a
// *ModelError tagged with one of spec.md §4.1's failure kinds.
func New(records Records) (*Model, error) {
	if records.Params.BaseMVA <= 0 {
		return nil, newModelError(InvalidLimits, "new", "system", 0, "base MVA must be positive")
	}

	m := &Model{
		params:          records.Params,
		busIndexByID:    make(map[int64]int, len(records.Buses)),
		branchIndexByID: make(map[int64]int, len(records.Branches)),
		genIndexByID:    make(map[int64]int, len(records.Generators)),
	}

	for _, rec := range records.Buses {
		if err := gridvalidation.ValidateStruct(rec); err != nil {
			return nil, newModelErrorCause(InvalidLimits, "new", "bus", rec.ExternalID, err)
		}
		if _, dup := m.busIndexByID[rec.ExternalID]; dup {
			return nil, newModelError(DuplicateId, "new", "bus", rec.ExternalID, "")
		}
		if rec.VMin > rec.VMax {
			return nil, newModelError(InvalidLimits, "new", "bus", rec.ExternalID, "v_min exceeds v_max")
		}
		bt, err := parseBusType(rec.Type)
		if err != nil {
			return nil, newModelErrorCause(InvalidLimits, "new", "bus", rec.ExternalID, err)
		}
		idx := len(m.buses)
		m.busIndexByID[rec.ExternalID] = idx
		m.busIDByIndex = append(m.busIDByIndex, rec.ExternalID)
		m.buses = append(m.buses, Bus{
			ExternalID: rec.ExternalID,
			Name:       rec.Name,
			NominalKV:  rec.NominalKV,
			VM:         1.0,
			VA:         0,
			VMin:       rec.VMin,
			VMax:       rec.VMax,
			Type:       bt,
		})
	}

	for _, rec := range records.Branches {
		if err := gridvalidation.ValidateStruct(rec); err != nil {
			return nil, newModelErrorCause(InvalidLimits, "new", "branch", rec.ExternalID, err)
		}
		if _, dup := m.branchIndexByID[rec.ExternalID]; dup {
			return nil, newModelError(DuplicateId, "new", "branch", rec.ExternalID, "")
		}
		fromIdx, ok := m.busIndexByID[rec.FromBus]
		if !ok {
			return nil, newModelError(UnknownReference, "new", "branch", rec.ExternalID, fmt.Sprintf("unknown from-bus %d", rec.FromBus))
		}
		toIdx, ok := m.busIndexByID[rec.ToBus]
		if !ok {
			return nil, newModelError(UnknownReference, "new", "branch", rec.ExternalID, fmt.Sprintf("unknown to-bus %d", rec.ToBus))
		}
		tap := rec.TapRatio
		if tap == 0 {
			tap = 1.0
		}
		idx := len(m.branches)
		m.branchIndexByID[rec.ExternalID] = idx
		m.branchIDByIndex = append(m.branchIDByIndex, rec.ExternalID)
		m.branches = append(m.branches, Branch{
			ExternalID:     rec.ExternalID,
			FromBus:        fromIdx,
			ToBus:          toIdx,
			R:              rec.R,
			X:              rec.X,
			B:              rec.B,
			TapRatio:       tap,
			PhaseShift:     rec.PhaseShift,
			LimitMVA:       rec.LimitMVA,
			InService:      rec.InService,
			IsPhaseShifter: rec.IsPhaseShifter,
		})
	}

	for _, rec := range records.Generators {
		if err := gridvalidation.ValidateStruct(rec); err != nil {
			return nil, newModelErrorCause(InvalidLimits, "new", "generator", rec.ExternalID, err)
		}
		if _, dup := m.genIndexByID[rec.ExternalID]; dup {
			return nil, newModelError(DuplicateId, "new", "generator", rec.ExternalID, "")
		}
		hostIdx, ok := m.busIndexByID[rec.HostBus]
		if !ok {
			return nil, newModelError(UnknownReference, "new", "generator", rec.ExternalID, fmt.Sprintf("unknown host bus %d", rec.HostBus))
		}
		isSyncCond := rec.PMax <= 0 && rec.QMax > rec.QMin
		if !isSyncCond && rec.PMin > rec.PMax {
			return nil, newModelError(InvalidLimits, "new", "generator", rec.ExternalID, "p_min exceeds p_max")
		}
		if rec.QMin > rec.QMax {
			return nil, newModelError(InvalidLimits, "new", "generator", rec.ExternalID, "q_min exceeds q_max")
		}
		cost := records.Costs[rec.ExternalID]
		if err := cost.Validate(); err != nil {
			return nil, newModelErrorCause(InvalidCost, "new", "generator", rec.ExternalID, err)
		}
		idx := len(m.gens)
		m.genIndexByID[rec.ExternalID] = idx
		m.genIDByIndex = append(m.genIDByIndex, rec.ExternalID)
		m.gens = append(m.gens, Generator{
			ExternalID:      rec.ExternalID,
			HostBus:         hostIdx,
			PMin:            rec.PMin,
			PMax:            rec.PMax,
			QMin:            rec.QMin,
			QMax:            rec.QMax,
			VSetpoint:       rec.VSetpoint,
			Cost:            cost,
			InService:       rec.InService,
			IsSyncCondenser: isSyncCond,
			IsRenewable:     rec.IsRenewable,
		})
	}

	for _, rec := range records.Loads {
		if err := gridvalidation.ValidateStruct(rec); err != nil {
			return nil, newModelErrorCause(InvalidLimits, "new", "load", rec.ExternalID, err)
		}
		hostIdx, ok := m.busIndexByID[rec.HostBus]
		if !ok {
			return nil, newModelError(UnknownReference, "new", "load", rec.ExternalID, fmt.Sprintf("unknown host bus %d", rec.HostBus))
		}
		m.loads = append(m.loads, Load{
			ExternalID: rec.ExternalID,
			HostBus:    hostIdx,
			PMW:        rec.PMW,
			QMVAr:      rec.QMVAr,
			InService:  rec.InService,
		})
	}

	for _, rec := range records.Shunts {
		hostIdx, ok := m.busIndexByID[rec.HostBus]
		if !ok {
			return nil, newModelError(UnknownReference, "new", "shunt", rec.HostBus, "unknown host bus")
		}
		m.shunts = append(m.shunts, Shunt{HostBus: hostIdx, G: rec.G, B: rec.B})
	}

	if err := m.validateBusTypeConsistency(); err != nil {
		return nil, err
	}
	if err := m.validateSlackPerIsland(); err != nil {
		return nil, err
	}

	return m, nil
}

func parseBusType(s string) (BusType, error) {
	switch s {
	case "slack":
		return Slack, nil
	case "pv":
		return PV, nil
	case "pq":
		return PQ, nil
	default:
		return 0, fmt.Errorf("unknown bus type %q", s)
	}
}

// validateBusTypeConsistency enforces spec.md §4.1: a PV bus must host at
// least one in-service generator.
func (m *Model) validateBusTypeConsistency() error {
	hasGen := make([]bool, len(m.buses))
	for _, g := range m.gens {
		if g.InService {
			hasGen[g.HostBus] = true
		}
	}
	for i, b := range m.buses {
		if b.Type == PV && !hasGen[i] {
			return newModelError(InvalidLimits, "new", "bus", b.ExternalID, "PV bus has no attached in-service generator")
		}
	}
	return nil
}

func (m *Model) validateSlackPerIsland() error {
	islands := m.Islands()
	for _, island := range islands {
		slacks := 0
		for _, busIdx := range island {
			if m.buses[busIdx].Type == Slack {
				slacks++
			}
		}
		if slacks == 0 {
			return newModelError(NoSlack, "new", "island", 0, fmt.Sprintf("island with %d buses has no slack", len(island)))
		}
		if slacks > 1 {
			return newModelError(MultipleSlacksPerIsland, "new", "island", 0, fmt.Sprintf("island has %d slack buses", slacks))
		}
	}
	return nil
}

func newModelErrorCause(kind ErrorKind, op, entity string, id int64, cause error) *ModelError {
	e := newModelError(kind, op, entity, id, "")
	e.Cause = cause
	return e
}

// --- read-only accessors, indexed by internal index ---

func (m *Model) Params() SystemParams { return m.params }
func (m *Model) NumBuses() int        { return len(m.buses) }
func (m *Model) NumBranches() int     { return len(m.branches) }
func (m *Model) NumGens() int         { return len(m.gens) }
func (m *Model) NumLoads() int        { return len(m.loads) }
func (m *Model) NumShunts() int       { return len(m.shunts) }

func (m *Model) Bus(i int) Bus           { return m.buses[i] }
func (m *Model) Branch(i int) Branch     { return m.branches[i] }
func (m *Model) Gen(i int) Generator     { return m.gens[i] }
func (m *Model) Load(i int) Load         { return m.loads[i] }
func (m *Model) Shunt(i int) Shunt       { return m.shunts[i] }

func (m *Model) Buses() []Bus         { return append([]Bus(nil), m.buses...) }
func (m *Model) Branches() []Branch   { return append([]Branch(nil), m.branches...) }
func (m *Model) Gens() []Generator    { return append([]Generator(nil), m.gens...) }
func (m *Model) Loads() []Load        { return append([]Load(nil), m.loads...) }
func (m *Model) Shunts() []Shunt      { return append([]Shunt(nil), m.shunts...) }

// BusIndex translates an external bus ID to its internal index.
func (m *Model) BusIndex(externalID int64) (int, bool) {
	idx, ok := m.busIndexByID[externalID]
	return idx, ok
}

// BusExternalID translates an internal bus index back to its external ID.
func (m *Model) BusExternalID(index int) int64 { return m.busIDByIndex[index] }

// BranchIndex translates an external branch ID to its internal index.
func (m *Model) BranchIndex(externalID int64) (int, bool) {
	idx, ok := m.branchIndexByID[externalID]
	return idx, ok
}

// GenIndex translates an external generator ID to its internal index.
func (m *Model) GenIndex(externalID int64) (int, bool) {
	idx, ok := m.genIndexByID[externalID]
	return idx, ok
}

// SlackBus returns the internal index of the slack bus in the given island
// (a list of internal bus indices): the smallest bus index in the island
// carrying BusType Slack (spec.md §4.3.2's tie-break: "Slack defaults to
// the smallest bus internal index").
func (m *Model) SlackBus(island []int) int {
	best := -1
	for _, idx := range island {
		if m.buses[idx].Type == Slack && (best == -1 || idx < best) {
			best = idx
		}
	}
	return best
}

// NetInjection returns (P, Q) net injection in MW/MVAr at bus i: generation
// minus load, aggregating multiple in-service generators/loads additively.
func (m *Model) NetInjection(i int) (p, q float64) {
	for _, g := range m.gens {
		if g.InService && g.HostBus == i {
			p += g.P
			q += g.Q
		}
	}
	for _, l := range m.loads {
		if l.InService && l.HostBus == i {
			p -= l.PMW
			q -= l.QMVAr
		}
	}
	return p, q
}
