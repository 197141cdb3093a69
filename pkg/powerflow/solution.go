// Package powerflow implements the DC and AC power-flow solvers of spec.md
// §4.3: a linear DC solve over AdmittanceAssembly's B'', and an AC
// Newton-Raphson solve with a Q-limit (PV->PQ) outer loop. Both consume a
// borrowed network.Model and admittance.AdmittanceAssembly and return an
// owned Solution value, the same borrow/own split the teacher uses between
// pkg/storage (owns nodes/edges) and pkg/query (borrows, returns owned
// results).
package powerflow

// BusResult is the per-bus slice of a Solution.
type BusResult struct {
	VM float64 // voltage magnitude, per unit
	VA float64 // voltage angle, radians
}

// BranchResult is the per-branch slice of a Solution.
type BranchResult struct {
	PFromMW   float64
	QFromMVAr float64
	SFromMVA  float64
}

// GenResult is the per-generator slice of a Solution.
type GenResult struct {
	PMW   float64
	QMVAr float64
}

// Solution is the common PowerFlowSolution contract of spec.md §3.
type Solution struct {
	Converged    bool
	Iterations   int
	MaxMismatch  float64
	Buses        []BusResult
	Branches     []BranchResult
	Gens         []GenResult
	LossesMW     float64
	LossesMVAr   float64
}
