// Package network implements the canonical in-memory grid data model:
// buses, branches, generators, loads and shunts, with referential and
// physical invariants enforced at construction, and a stable bidirectional
// mapping between externally supplied identifiers and the contiguous
// internal indices solvers operate on. Entities are plain structs with
// exported fields, the same shape as the teacher's storage.Node/storage.Edge
// (pkg/storage/types.go) — no getters, no hidden state.
package network

// BusType enumerates the three bus roles of spec.md §3. Tagged as a
// discriminated value (not inheritance), per the teacher's ValueType /
// Value pattern in pkg/storage/types.go.
type BusType uint8

const (
	Slack BusType = iota
	PV
	PQ
)

func (t BusType) String() string {
	switch t {
	case Slack:
		return "slack"
	case PV:
		return "pv"
	case PQ:
		return "pq"
	default:
		return "unknown"
	}
}

// Bus is a network node.
type Bus struct {
	ExternalID int64
	Name       string
	NominalKV  float64
	VM         float64 // voltage magnitude, per unit
	VA         float64 // voltage angle, radians
	VMin       float64
	VMax       float64
	Type       BusType
}

// Branch is a transmission line or transformer.
type Branch struct {
	ExternalID int64
	FromBus    int // internal bus index
	ToBus      int // internal bus index
	R          float64
	X          float64
	B          float64 // total line charging susceptance, pi-model
	TapRatio   float64 // magnitude, default 1.0
	PhaseShift float64 // radians, default 0.0
	LimitMVA   float64 // 0 means unconstrained
	InService  bool

	// IsPhaseShifter flags a branch whose (r, x) are intentionally exotic
	// (e.g. negative r, or |x| dominated) because it models a phase-
	// shifting transformer rather than a conventional line. Admittance
	// assembly still applies its short-circuit check to these branches and
	// only exempts them from the Hermitian-structure check.
	IsPhaseShifter bool
}

// Generator hosts active/reactive output at a bus.
type Generator struct {
	ExternalID int64
	HostBus    int // internal bus index
	P          float64 // MW setpoint
	Q          float64 // MVAr setpoint
	PMin       float64
	PMax       float64
	QMin       float64
	QMax       float64
	VSetpoint  float64 // per unit, meaningful only when hosting a PV bus
	Cost       CostModel
	InService  bool

	// IsSyncCondenser flags a generator with PMax <= 0 (no active output)
	// that still supplies reactive support — spec.md §3 requires this be
	// flagged distinctly so validation does not reject PMin == PMax == 0
	// units as misconfigured.
	IsSyncCondenser bool

	// IsRenewable is parsed from import records but not yet consulted by
	// any scale operation; see SPEC_FULL.md §10 (Open Questions).
	IsRenewable bool
}

// Load draws active/reactive power at a bus. Multiple loads at the same
// bus aggregate additively when net injection is computed.
type Load struct {
	ExternalID int64
	HostBus    int // internal bus index
	PMW        float64
	QMVAr      float64
	InService  bool
}

// Shunt is a fixed admittance attached to a bus, added directly to the Y
// diagonal by AdmittanceAssembly.
type Shunt struct {
	HostBus int // internal bus index
	G       float64
	B       float64
}

// SystemParams carries the per-unit base used across the model.
type SystemParams struct {
	BaseMVA  float64
	BaseHz   float64
}
