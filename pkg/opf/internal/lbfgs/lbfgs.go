// Package lbfgs implements a limited-memory BFGS minimizer with backtracking
// line search, shared by the penalty-method NLP backends in pkg/opf/socp and
// pkg/opf/acnlp. No NLP/optimization library appears anywhere in the example
// pack's dependency graph, so this is written from first principles rather
// than wired to an external solver.
package lbfgs

import "math"

// Func evaluates an objective at x and returns its gradient.
type Func func(x []float64) (val float64, grad []float64)

// Options configures the minimizer.
type Options struct {
	MaxIter    int
	History    int // number of (s, y) pairs retained, 0 defaults to 10
	GradTol    float64
	StepInit   float64
}

// DefaultOptions returns reasonable defaults for small dense OPF problems.
func DefaultOptions() Options {
	return Options{MaxIter: 200, History: 10, GradTol: 1e-6, StepInit: 1.0}
}

// Result carries the outcome of a Minimize call.
type Result struct {
	X          []float64
	Value      float64
	Gradient   []float64
	Iterations int
	Converged  bool
}

// Minimize runs L-BFGS from x0, returning the best point found. It always
// returns a result — callers decide whether Converged=false at the
// iteration cap is acceptable (penalty methods typically re-invoke with an
// increased penalty weight regardless of convergence of the inner solve).
func Minimize(f Func, x0 []float64, opts Options) Result {
	if opts.History <= 0 {
		opts.History = 10
	}
	if opts.StepInit <= 0 {
		opts.StepInit = 1.0
	}
	n := len(x0)
	x := append([]float64(nil), x0...)
	val, grad := f(x)

	var sHist, yHist [][]float64
	var rhoHist []float64

	for iter := 0; iter < opts.MaxIter; iter++ {
		gnorm := norm(grad)
		if gnorm < opts.GradTol {
			return Result{X: x, Value: val, Gradient: grad, Iterations: iter, Converged: true}
		}

		dir := twoLoop(grad, sHist, yHist, rhoHist)

		gDotDir := dotVec(grad, dir)
		step := opts.StepInit
		newX := make([]float64, n)
		var newVal float64
		var newGrad []float64
		accepted := false
		for ls := 0; ls < 30; ls++ {
			for i := 0; i < n; i++ {
				newX[i] = x[i] + step*dir[i]
			}
			newVal, newGrad = f(newX)
			// Armijo sufficient-decrease condition: gDotDir is negative for a
			// descent direction, so this threshold sits below val.
			if newVal <= val+1e-4*step*gDotDir {
				accepted = true
				break
			}
			step *= 0.5
		}
		if !accepted {
			return Result{X: x, Value: val, Gradient: grad, Iterations: iter, Converged: false}
		}

		s := make([]float64, n)
		y := make([]float64, n)
		for i := 0; i < n; i++ {
			s[i] = newX[i] - x[i]
			y[i] = newGrad[i] - grad[i]
		}
		sy := dotVec(s, y)
		if sy > 1e-12 {
			sHist = append(sHist, s)
			yHist = append(yHist, y)
			rhoHist = append(rhoHist, 1/sy)
			if len(sHist) > opts.History {
				sHist = sHist[1:]
				yHist = yHist[1:]
				rhoHist = rhoHist[1:]
			}
		}

		x, val, grad = newX, newVal, newGrad
	}
	return Result{X: x, Value: val, Gradient: grad, Iterations: opts.MaxIter, Converged: false}
}

// twoLoop is the standard L-BFGS two-loop recursion producing a descent
// direction from the gradient and recent curvature pairs.
func twoLoop(grad []float64, sHist, yHist [][]float64, rhoHist []float64) []float64 {
	q := append([]float64(nil), grad...)
	m := len(sHist)
	alpha := make([]float64, m)

	for i := m - 1; i >= 0; i-- {
		alpha[i] = rhoHist[i] * dotVec(sHist[i], q)
		for j := range q {
			q[j] -= alpha[i] * yHist[i][j]
		}
	}

	gamma := 1.0
	if m > 0 {
		sy := dotVec(sHist[m-1], yHist[m-1])
		yy := dotVec(yHist[m-1], yHist[m-1])
		if yy > 1e-12 {
			gamma = sy / yy
		}
	}
	for j := range q {
		q[j] *= gamma
	}

	for i := 0; i < m; i++ {
		beta := rhoHist[i] * dotVec(yHist[i], q)
		for j := range q {
			q[j] += sHist[i][j] * (alpha[i] - beta)
		}
	}
	return negate(q)
}

// CentralDifferenceGradient evaluates grad(val) at x via central
// differences — used where an analytic gradient would require deriving
// and hand-verifying a large number of partial derivatives without a
// compiler to catch sign errors.
func CentralDifferenceGradient(valFn func(x []float64) float64, x []float64, h float64) []float64 {
	if h <= 0 {
		h = 1e-6
	}
	n := len(x)
	grad := make([]float64, n)
	xp := append([]float64(nil), x...)
	for i := 0; i < n; i++ {
		orig := xp[i]
		xp[i] = orig + h
		fp := valFn(xp)
		xp[i] = orig - h
		fm := valFn(xp)
		xp[i] = orig
		grad[i] = (fp - fm) / (2 * h)
	}
	return grad
}

func dotVec(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func negate(a []float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = -v
	}
	return out
}

func norm(a []float64) float64 {
	return math.Sqrt(dotVec(a, a))
}
