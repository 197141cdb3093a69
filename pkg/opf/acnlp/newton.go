package acnlp

import (
	"math"

	"github.com/dd0wney/gridflow/pkg/admittance"
	"github.com/dd0wney/gridflow/pkg/network"
	"github.com/dd0wney/gridflow/pkg/opf"
	"github.com/dd0wney/gridflow/pkg/sparse"
)

// acState mirrors pkg/powerflow.busState's role but classifies buses as
// voltage-controlled (hosting an in-service generator) rather than by
// network.BusType, since the "interior-point" backend below floats Pg/Qg as
// outer decision variables rather than trusting the model's PV/PQ tags.
type acState struct {
	vm, va  float64
	isPV    bool
	pSpecPU float64
	qSpecPU float64
}

// interiorPointSolve implements spec.md §4.4.4 backend 1: an outer
// coordinate-descent / projected-gradient loop over generator active-power
// dispatch, with each trial dispatch verified by an inner Newton-Raphson
// AC power-flow solve (the analytic-Jacobian machinery of
// pkg/powerflow.SolveAC's calcPQ/buildJacobian, reimplemented here in
// self-contained form since those helpers are unexported). The slack bus's
// voltage magnitude and angle are held fixed throughout, and every
// generator bus is treated as voltage-controlled (PV) for the duration of
// the inner solve — a documented simplification against a true primal-dual
// interior-point/barrier method, which no library in the example pack
// provides.
func interiorPointSolve(nm *network.Model, adm *admittance.AdmittanceAssembly, gens []genVar, theta, vm, pg, qg []float64, slack int, baseMVA float64, opts opf.Options) (*opf.Solution, error) {
	n := nm.NumBuses()
	tol := opts.Tolerance
	if tol <= 0 {
		tol = 1e-6
	}
	maxInner := opts.MaxIter
	if maxInner <= 0 || maxInner > 40 {
		maxInner = 20
	}

	loadP, loadQ := busLoads(nm, n, baseMVA)

	isPV := make([]bool, n)
	genAt := make([]int, n) // index into gens, or -1
	for i := range genAt {
		genAt[i] = -1
	}
	for k, g := range gens {
		if g.hostBus == slack {
			continue
		}
		isPV[g.hostBus] = true
		genAt[g.hostBus] = k
	}

	states := make([]*acState, n)
	for i := 0; i < n; i++ {
		states[i] = &acState{vm: vm[i], va: theta[i], isPV: isPV[i]}
	}

	evalAt := func(trialPg []float64) (float64, []*acState, bool) {
		for i := 0; i < n; i++ {
			states[i].pSpecPU = -loadP[i]
			states[i].qSpecPU = -loadQ[i]
		}
		for k, g := range gens {
			if g.hostBus == slack {
				continue
			}
			states[g.hostBus].pSpecPU += trialPg[k]
		}
		_, converged, err := runNewton(adm, states, slack, tol, maxInner)
		if err != nil || !converged {
			return math.Inf(1), states, false
		}

		var cost float64
		for k, g := range gens {
			p := trialPg[k] * baseMVA
			if g.hostBus == slack {
				pCalc, _ := calcPQAt(adm, extractTheta(states), extractVM(states))
				p = pCalc[slack]*baseMVA + loadP[slack]*baseMVA
			}
			cost += g.cost.Evaluate(p)
		}

		penalty := thermalPenalty(nm, states, baseMVA)
		return cost + 1e4*penalty, states, true
	}

	curPg := append([]float64(nil), pg...)
	baseVal, _, ok := evalAt(curPg)
	if !ok {
		return nil, &opf.SolveError{Kind: opf.NumericFailure, Reason: "initial AC operating point failed to solve", Details: "interior-point backend"}
	}

	step := 0.05
	maxOuter := 15
	for outer := 0; outer < maxOuter; outer++ {
		improved := false
		for k, g := range gens {
			if g.hostBus == slack {
				continue
			}
			h := math.Max(1e-4, (g.pMax-g.pMin)*1e-3)

			up := append([]float64(nil), curPg...)
			up[k] = math.Min(g.pMax, up[k]+h)
			valUp, _, okUp := evalAt(up)

			down := append([]float64(nil), curPg...)
			down[k] = math.Max(g.pMin, down[k]-h)
			valDown, _, okDown := evalAt(down)

			if !okUp && !okDown {
				continue
			}

			grad := 0.0
			switch {
			case okUp && okDown:
				grad = (valUp - valDown) / (2 * h)
			case okUp:
				grad = (valUp - baseVal) / h
			case okDown:
				grad = (baseVal - valDown) / h
			}

			trial := append([]float64(nil), curPg...)
			trial[k] = math.Max(g.pMin, math.Min(g.pMax, trial[k]-step*grad))
			trialVal, _, okTrial := evalAt(trial)
			if okTrial && trialVal < baseVal {
				curPg = trial
				baseVal = trialVal
				improved = true
			}
		}
		if !improved {
			step *= 0.5
			if step < 1e-4 {
				break
			}
		}
	}

	_, finalStates, ok := evalAt(curPg)
	if !ok {
		return nil, &opf.SolveError{Kind: opf.NotConverged, Reason: "interior-point backend failed to reach a converged AC operating point"}
	}

	outTheta := extractTheta(finalStates)
	outVM := extractVM(finalStates)
	pCalc, qCalc := calcPQAt(adm, outTheta, outVM)

	outPg := append([]float64(nil), curPg...)
	outQg := make([]float64, len(gens))
	for k, g := range gens {
		if g.hostBus == slack {
			outPg[k] = pCalc[slack] + loadP[slack]
			outQg[k] = qCalc[slack] + loadQ[slack]
		} else {
			outQg[k] = qCalc[g.hostBus] + loadQ[g.hostBus]
		}
	}

	return buildNLSolution(nm, adm, gens, outTheta, outVM, outPg, outQg, baseMVA, "opf-ac-nlp", maxOuter), nil
}

func extractTheta(states []*acState) []float64 {
	out := make([]float64, len(states))
	for i, st := range states {
		out[i] = st.va
	}
	return out
}

func extractVM(states []*acState) []float64 {
	out := make([]float64, len(states))
	for i, st := range states {
		out[i] = st.vm
	}
	return out
}

// thermalPenalty sums squared one-sided branch apparent-power overloads, in
// the same hinge-squared shape pkg/opf/socp and the penalty backend above
// use for inequality constraints.
func thermalPenalty(nm *network.Model, states []*acState, baseMVA float64) float64 {
	var total float64
	for bi := 0; bi < nm.NumBranches(); bi++ {
		br := nm.Branch(bi)
		if !br.InService || br.LimitMVA <= 0 {
			continue
		}
		vi := states[br.FromBus].vm
		vj := states[br.ToBus].vm
		dt := states[br.FromBus].va - states[br.ToBus].va
		// approximate apparent power via the lossless DC-like magnitude of the
		// from-end current times voltage, sufficient for a penalty signal
		// without rebuilding the full tap/shunt current phasor used in
		// buildNLSolution's reported flows.
		r, x := br.R, br.X
		zmag2 := r*r + x*x
		if zmag2 == 0 {
			continue
		}
		dv := math.Hypot(vi-vj*math.Cos(dt), vj*math.Sin(dt))
		sApprox := vi * dv / math.Sqrt(zmag2) * baseMVA
		over := sApprox - br.LimitMVA
		if over > 0 {
			total += over * over
		}
	}
	return total
}

// runNewton solves for free bus angles (every non-slack bus) and free
// voltage magnitudes (every bus not flagged isPV and not slack) to match
// each state's pSpecPU/qSpecPU, mirroring pkg/powerflow.ac.go's newtonInner.
func runNewton(adm *admittance.AdmittanceAssembly, states []*acState, slack int, tol float64, maxIter int) (int, bool, error) {
	n := adm.N()

	thetaIdx := make([]int, n)
	vIdx := make([]int, n)
	nTheta, nV := 0, 0
	for i := 0; i < n; i++ {
		if i == slack {
			thetaIdx[i] = -1
		} else {
			thetaIdx[i] = nTheta
			nTheta++
		}
		if i != slack && !states[i].isPV {
			vIdx[i] = nV
			nV++
		} else {
			vIdx[i] = -1
		}
	}
	dim := nTheta + nV
	if dim == 0 {
		return 0, true, nil
	}

	for iter := 0; iter < maxIter; iter++ {
		theta := extractTheta(states)
		vm := extractVM(states)
		pCalc, qCalc := calcPQAt(adm, theta, vm)

		mismatch := make([]float64, dim)
		maxMis := 0.0
		for i := 0; i < n; i++ {
			if thetaIdx[i] >= 0 {
				m := states[i].pSpecPU - pCalc[i]
				mismatch[thetaIdx[i]] = m
				if math.Abs(m) > maxMis {
					maxMis = math.Abs(m)
				}
			}
			if vIdx[i] >= 0 {
				m := states[i].qSpecPU - qCalc[i]
				mismatch[nTheta+vIdx[i]] = m
				if math.Abs(m) > maxMis {
					maxMis = math.Abs(m)
				}
			}
		}
		if maxMis <= tol {
			return iter, true, nil
		}

		jac := buildACJacobian(adm, states, thetaIdx, vIdx, nTheta, dim)
		dx, err := jac.Solve(mismatch)
		if err != nil {
			return iter, false, nil
		}

		for i := 0; i < n; i++ {
			if thetaIdx[i] >= 0 {
				states[i].va += dx[thetaIdx[i]]
			}
			if vIdx[i] >= 0 {
				states[i].vm += dx[nTheta+vIdx[i]]
			}
		}
	}

	return maxIter, false, nil
}

// buildACJacobian is the same analytic-partials assembly as
// pkg/powerflow.buildJacobian, copied rather than imported since the
// original operates on the unexported busState type.
func buildACJacobian(adm *admittance.AdmittanceAssembly, states []*acState, thetaIdx, vIdx []int, nTheta, dim int) *sparse.Matrix {
	n := adm.N()
	y := adm.Y()
	b := sparse.NewBuilder(dim)

	g := make([][]float64, n)
	bsus := make([][]float64, n)
	for i := range g {
		g[i] = make([]float64, n)
		bsus[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		y.Row(i, func(j int, yij complex128) {
			g[i][j] = real(yij)
			bsus[i][j] = imag(yij)
		})
	}

	for i := 0; i < n; i++ {
		ri := thetaIdx[i]
		rv := vIdx[i]
		if ri < 0 && rv < 0 {
			continue
		}
		vi := states[i].vm

		for j := 0; j < n; j++ {
			if g[i][j] == 0 && bsus[i][j] == 0 && i != j {
				continue
			}
			vj := states[j].vm
			theta := states[i].va - states[j].va
			cosT, sinT := math.Cos(theta), math.Sin(theta)

			cj := thetaIdx[j]
			cvj := vIdx[j]

			if i == j {
				var dPdTheta, dPdV, dQdTheta, dQdV float64
				y.Row(i, func(k int, yik complex128) {
					if k == i {
						return
					}
					vk := states[k].vm
					thk := states[i].va - states[k].va
					gk, bk := real(yik), imag(yik)
					dPdTheta += vi * vk * (-gk*math.Sin(thk) + bk*math.Cos(thk))
					dQdTheta += vi * vk * (gk*math.Cos(thk) + bk*math.Sin(thk))
				})
				dPdV = 2*vi*g[i][i] + sumOffDiagPVLocal(y, states, i)
				dQdV = -2*vi*bsus[i][i] + sumOffDiagQVLocal(y, states, i)

				if ri >= 0 {
					b.Add(ri, ri, dPdTheta)
					if rv >= 0 {
						b.Add(ri, nTheta+rv, dPdV)
					}
				}
				if rv >= 0 {
					if ri >= 0 {
						b.Add(nTheta+rv, ri, dQdTheta)
					}
					b.Add(nTheta+rv, nTheta+rv, dQdV)
				}
				continue
			}

			dPdThetaJ := vi * vj * (g[i][j]*sinT - bsus[i][j]*cosT)
			dPdVJ := vi * (g[i][j]*cosT + bsus[i][j]*sinT)
			dQdThetaJ := vi * vj * (-g[i][j]*cosT - bsus[i][j]*sinT)
			dQdVJ := vi * (g[i][j]*sinT - bsus[i][j]*cosT)

			if ri >= 0 && cj >= 0 {
				b.Add(ri, cj, dPdThetaJ)
			}
			if ri >= 0 && cvj >= 0 {
				b.Add(ri, nTheta+cvj, dPdVJ)
			}
			if rv >= 0 && cj >= 0 {
				b.Add(nTheta+rv, cj, dQdThetaJ)
			}
			if rv >= 0 && cvj >= 0 {
				b.Add(nTheta+rv, nTheta+cvj, dQdVJ)
			}
		}
	}

	return b.Build()
}

func sumOffDiagPVLocal(y *sparse.ComplexMatrix, states []*acState, i int) float64 {
	var sum float64
	y.Row(i, func(j int, yij complex128) {
		if j == i {
			return
		}
		vj := states[j].vm
		theta := states[i].va - states[j].va
		g, bb := real(yij), imag(yij)
		sum += vj * (g*math.Cos(theta) + bb*math.Sin(theta))
	})
	return sum
}

func sumOffDiagQVLocal(y *sparse.ComplexMatrix, states []*acState, i int) float64 {
	var sum float64
	y.Row(i, func(j int, yij complex128) {
		if j == i {
			return
		}
		vj := states[j].vm
		theta := states[i].va - states[j].va
		g, bb := real(yij), imag(yij)
		sum += vj * (g*math.Sin(theta) - bb*math.Cos(theta))
	})
	return sum
}
