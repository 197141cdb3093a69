// Package admittance builds the bus admittance matrix Y and the DC
// susceptance matrix B' from a network.Model, per spec.md §4.2. It borrows
// the model for the duration of Build and retains no reference to it
// afterward — the resulting AdmittanceAssembly is a self-contained value
// that outlives the call: admittance does not retain the model after
// construction.
package admittance

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/sparse"
)

// shortCircuitThreshold is the minimum |z| below which a branch is treated
// as a fatal short rather than a very low impedance line, per spec.md §4.2.
const shortCircuitThreshold = 1e-9

// AdmittanceAssembly owns the sparse Y and B' matrices derived from one
// NetworkModel snapshot.
type AdmittanceAssembly struct {
	n int

	y  *sparse.ComplexMatrix
	bp *sparse.Matrix // B', full n x n

	slackIdx int
	bpp      *sparse.Matrix // B'', B' with the slack row/col removed
}

// Build implements the Y and B' construction algorithm of spec.md §4.2. It
// fails with a *network.ModelError tagged SingularAdmittance if any island
// lacks an in-service branch connecting it to its slack bus.
func Build(nm *network.Model) (*AdmittanceAssembly, error) {
	n := nm.NumBuses()
	yb := sparse.NewComplexBuilder(n)
	bb := sparse.NewBuilder(n)

	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService {
			continue
		}
		// Negative r or negative x is accepted unconditionally here — it is
		// physically valid for a phase-shifting transformer and this package
		// does not second-guess the model's IsPhaseShifter tag. The only
		// fatal case is |z| indistinguishable from a short.
		z := complex(br.R, br.X)
		if cmplx.Abs(z) < shortCircuitThreshold {
			return nil, &network.ModelError{
				Kind:    network.SingularAdmittance,
				Op:      "build",
				Entity:  "branch",
				ID:      br.ExternalID,
				Context: "impedance below short-circuit threshold",
			}
		}

		y := 1 / z
		tapMag := br.TapRatio
		if tapMag == 0 {
			tapMag = 1.0
		}
		tap := cmplx.Rect(tapMag, br.PhaseShift)
		bc := complex(0, br.B/2)

		i, j := br.FromBus, br.ToBus

		yb.Add(i, i, y/complex(tapMag*tapMag, 0)+bc)
		yb.Add(j, j, y+bc)
		yb.Add(i, j, -y/cmplx.Conj(tap))
		yb.Add(j, i, -y/tap)

		if br.X != 0 {
			bstar := 1 / br.X
			bb.Add(i, i, bstar)
			bb.Add(j, j, bstar)
			bb.Add(i, j, -bstar)
			bb.Add(j, i, -bstar)
		}
	}

	for si := 0; si < nm.NumShunts(); si++ {
		sh := nm.Shunt(si)
		yb.Add(sh.HostBus, sh.HostBus, complex(sh.G, sh.B))
	}

	a := &AdmittanceAssembly{
		n:  n,
		y:  yb.Build(),
		bp: bb.Build(),
	}

	if err := a.validateConnectivity(nm); err != nil {
		return nil, err
	}

	island := make([]int, n)
	for i := range island {
		island[i] = i
	}
	a.slackIdx = nm.SlackBus(island)
	if a.slackIdx < 0 {
		return nil, singularErr(nm, "no slack bus in model")
	}
	a.bpp = a.bp.Reduced([]int{a.slackIdx})

	return a, nil
}

// Y returns the complex bus admittance matrix, indexed by internal bus
// index.
func (a *AdmittanceAssembly) Y() *sparse.ComplexMatrix { return a.y }

// BPrime returns the full n x n DC susceptance matrix B'.
func (a *AdmittanceAssembly) BPrime() *sparse.Matrix { return a.bp }

// BDoublePrime returns B' with the slack bus's row and column removed, the
// matrix DC power flow solves directly.
func (a *AdmittanceAssembly) BDoublePrime() *sparse.Matrix { return a.bpp }

// SlackIndex returns the internal bus index treated as the angle reference
// when BDoublePrime was derived.
func (a *AdmittanceAssembly) SlackIndex() int { return a.slackIdx }

// N returns the number of buses the assembly was built over.
func (a *AdmittanceAssembly) N() int { return a.n }

// validateConnectivity fails with SingularAdmittance if any island has no
// in-service branch reaching its slack bus — detected by a breadth-first
// search over in-service branches from each multi-bus island's slack bus;
// single-bus islands are skipped.
func (a *AdmittanceAssembly) validateConnectivity(nm *network.Model) error {
	for _, isl := range nm.Islands() {
		if len(isl) == 1 {
			continue
		}
		slack := nm.SlackBus(isl)
		if slack < 0 {
			return singularErr(nm, "island has no slack bus")
		}
		reached := bfsReachable(nm, slack)
		for _, idx := range isl {
			if !reached[idx] {
				return singularErr(nm, fmt.Sprintf("bus %d unreachable from slack", nm.BusExternalID(idx)))
			}
		}
	}
	return nil
}

func bfsReachable(nm *network.Model, start int) []bool {
	adj := make([][]int, nm.NumBuses())
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService {
			continue
		}
		adj[br.FromBus] = append(adj[br.FromBus], br.ToBus)
		adj[br.ToBus] = append(adj[br.ToBus], br.FromBus)
	}
	reached := make([]bool, nm.NumBuses())
	queue := []int{start}
	reached[start] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reached
}

func singularErr(nm *network.Model, msg string) error {
	return &network.ModelError{
		Kind:    network.SingularAdmittance,
		Op:      "build",
		Entity:  "island",
		Context: msg,
	}
}

// IsHermitianExcludingPhaseShifters reports whether Y is Hermitian once
// entries introduced solely by phase-shifting transformers are ignored —
// the structural invariant of spec.md §8.
func (a *AdmittanceAssembly) IsHermitianExcludingPhaseShifters(nm *network.Model, tol float64) bool {
	hasShifter := make(map[[2]int]bool)
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if br.InService && br.IsPhaseShifter {
			hasShifter[[2]int{br.FromBus, br.ToBus}] = true
			hasShifter[[2]int{br.ToBus, br.FromBus}] = true
		}
	}
	ok := true
	for i := 0; i < a.n; i++ {
		a.y.Row(i, func(j int, v complex128) {
			if hasShifter[[2]int{i, j}] {
				return
			}
			if cmplx.Abs(v-cmplx.Conj(a.y.At(j, i))) > tol {
				ok = false
			}
		})
	}
	return ok
}

// clampTiny rounds values indistinguishable from zero at machine precision
// (|v| < 1e-12) to exactly zero.
func clampTiny(v float64) float64 {
	if math.Abs(v) < 1e-12 {
		return 0
	}
	return v
}
