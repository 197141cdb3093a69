package sparse

import (
	"errors"
	"fmt"
)

// ErrSingular is returned when a direct solve encounters a (numerically)
// singular matrix: no pivot above the threshold can be found for some
// column. Callers map this to their own domain error (powerflow's
// SingularJacobian, stateestimate's NormalEquationsSingular, ...).
var ErrSingular = errors.New("sparse: matrix is singular")

const pivotThreshold = 1e-12

// Solve solves M*x = rhs via Gaussian elimination with partial pivoting.
// The matrix is materialized densely for elimination; this trades peak
// memory for a simple, from-scratch implementation (see DESIGN.md) and is
// adequate at the grid sizes this engine targets.
func (m *Matrix) Solve(rhs []float64) ([]float64, error) {
	n := m.n
	if len(rhs) != n {
		return nil, fmt.Errorf("sparse: rhs length %d does not match matrix dimension %d", len(rhs), n)
	}
	a := m.Dense()
	b := make([]float64, n)
	copy(b, rhs)

	for col := 0; col < n; col++ {
		pivotRow := col
		pivotVal := abs(a[col][col])
		for r := col + 1; r < n; r++ {
			if v := abs(a[r][col]); v > pivotVal {
				pivotRow, pivotVal = r, v
			}
		}
		if pivotVal < pivotThreshold {
			return nil, fmt.Errorf("%w: no usable pivot at column %d", ErrSingular, col)
		}
		if pivotRow != col {
			a[col], a[pivotRow] = a[pivotRow], a[col]
			b[col], b[pivotRow] = b[pivotRow], b[col]
		}

		pivot := a[col][col]
		for r := col + 1; r < n; r++ {
			factor := a[r][col] / pivot
			if factor == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
