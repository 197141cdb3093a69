package lbfgs_test

import (
	"math"
	"testing"

	"github.com/dd0wney/gridflow/pkg/opf/internal/lbfgs"
)

func TestMinimizeQuadraticConvergesToOrigin(t *testing.T) {
	f := func(x []float64) (float64, []float64) {
		val := x[0]*x[0] + 3*x[1]*x[1]
		grad := []float64{2 * x[0], 6 * x[1]}
		return val, grad
	}
	res := lbfgs.Minimize(f, []float64{5, -4}, lbfgs.DefaultOptions())
	if !res.Converged {
		t.Fatalf("expected convergence, got result %+v", res)
	}
	if math.Abs(res.X[0]) > 1e-4 || math.Abs(res.X[1]) > 1e-4 {
		t.Fatalf("expected minimizer near origin, got %v", res.X)
	}
}

func TestCentralDifferenceGradientMatchesAnalytic(t *testing.T) {
	valFn := func(x []float64) float64 { return x[0]*x[0]*x[1] + math.Sin(x[1]) }
	x := []float64{2.0, 1.0}
	grad := lbfgs.CentralDifferenceGradient(valFn, x, 1e-6)
	// d/dx0 = 2*x0*x1 = 4; d/dx1 = x0^2 + cos(x1) = 4 + cos(1)
	want0 := 4.0
	want1 := 4.0 + math.Cos(1.0)
	if math.Abs(grad[0]-want0) > 1e-4 {
		t.Fatalf("expected dx0~%v, got %v", want0, grad[0])
	}
	if math.Abs(grad[1]-want1) > 1e-4 {
		t.Fatalf("expected dx1~%v, got %v", want1, grad[1])
	}
}
