// Package resultio defines the fixed per-stage result schemas of spec.md §6
// ("a fixed logical schema... is written; partition-key columns appear as
// directory-level partitions") and a partitioned, frame-compressed writer
// for them. The serialization format itself is deliberately simple — the
// spec's Non-goals place "Parquet/columnar-file writing beyond its logical
// schema" out of scope, so this package owns the schema and partitioning
// and leaves any Parquet/Arrow encoding to an external collaborator.
package resultio

// Stage names one of spec.md §6's eight solver-stage result tables. These
// are also the metric/log tier names pkg/opf, pkg/powerflow and
// pkg/stateestimate already use, so a result row's Stage always matches the
// tier that produced it.
type Stage string

const (
	StagePFDC      Stage = "pf-dc"
	StagePFAC      Stage = "pf-ac"
	StageOPFED     Stage = "opf-ed"
	StageOPFDC     Stage = "opf-dcopf"
	StageOPFSOCP   Stage = "opf-socp"
	StageOPFACNLP  Stage = "opf-acnlp"
	StageNMinus1DC Stage = "nminus1-dc"
	StageSEWLS     Stage = "se-wls"
)

// Row is one result row common envelope: the partition-key columns every
// stage's table is partitioned by (scenario_id, and optionally a time
// slice), plus the stage-specific payload. Partition keys are carried on
// the envelope rather than inside Payload so Writer can route rows to
// their partition directory without type-switching on Payload.
type Row struct {
	Stage      Stage
	ScenarioID string
	TimeSlice  string // optional; empty for single-snapshot batches
	Payload    any    // one of the *Row payload types below, matching Stage
}

// PowerFlowRow is the per-bus result row for pf-dc and pf-ac,
// flattening powerflow.Solution into the columnar shape spec.md §6
// describes: one row per bus, carrying that bus's voltage plus the
// solve-level convergence/loss summary repeated on every row (the common
// denormalized shape a columnar consumer expects rather than a
// header-plus-detail pair of tables).
type PowerFlowRow struct {
	BusExternalID int64
	VM            float64
	VA            float64
	Converged     bool
	Iterations    int
	LossesMW      float64
	LossesMVAr    float64
}

// OPFRow is the per-generator dispatch row for opf-ed, opf-dcopf,
// opf-socp and opf-acnlp.
type OPFRow struct {
	GenExternalID int64
	PMW           float64
	QMVAr         float64
	QPopulated    bool
	Objective     float64
	LossesMW      float64
	Iterations    int
}

// ContingencyRow is the per-(contingency, branch) screening row for
// nminus1-dc.
type ContingencyRow struct {
	ContingencyID    string
	BranchExternalID int64
	Converged        bool
	Islanded         bool
	FlowMVA          float64
	LimitMVA         float64
	PercentLoading   float64
	Violated         bool
}

// StateEstimateRow is the per-bus solved-state row for se-wls.
type StateEstimateRow struct {
	BusExternalID int64
	VM            float64
	VA            float64
	Iterations    int
	RemovedCount  int
}
