package contingency

import (
	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/network"
)

// PTDF exposes pkg/admittance's power-transfer-distribution-factor solve as
// a screening-package operation, per SPEC_FULL.md §9: the GLOSSARY names
// PTDF but spec.md assigns it no operation, so this package — the natural
// consumer of branch-sensitivity data for "which contingency stresses which
// branch" analysis — gives it one. Returns *admittance.PTDFMatrix rather
// than a raw *sparse.Matrix so callers get branch/bus-indexed accessors
// instead of reconstructing the row/column convention themselves.
func PTDF(nm *network.Model, adm *admittance.AdmittanceAssembly) (*admittance.PTDFMatrix, error) {
	return admittance.ComputePTDF(nm, adm)
}
