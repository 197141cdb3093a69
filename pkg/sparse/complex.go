package sparse

import (
	"math/cmplx"
	"sort"
)

type complexEntry struct {
	col int
	val complex128
}

// ComplexBuilder accumulates complex (row, col, value) contributions,
// mirroring Builder but for the complex admittance matrix Y.
type ComplexBuilder struct {
	n    int
	rows []map[int]complex128
}

// NewComplexBuilder creates a builder for an n x n complex matrix.
func NewComplexBuilder(n int) *ComplexBuilder {
	rows := make([]map[int]complex128, n)
	for i := range rows {
		rows[i] = make(map[int]complex128)
	}
	return &ComplexBuilder{n: n, rows: rows}
}

// Add accumulates val into position (i, j).
func (b *ComplexBuilder) Add(i, j int, val complex128) {
	b.rows[i][j] += val
}

// Build compresses the accumulated entries into a ComplexMatrix.
func (b *ComplexBuilder) Build() *ComplexMatrix {
	m := &ComplexMatrix{n: b.n, rowStart: make([]int, b.n+1)}
	for i := 0; i < b.n; i++ {
		cols := make([]complexEntry, 0, len(b.rows[i]))
		for c, v := range b.rows[i] {
			cols = append(cols, complexEntry{col: c, val: v})
		}
		sort.Slice(cols, func(a, bb int) bool { return cols[a].col < cols[bb].col })
		for _, e := range cols {
			m.colIdx = append(m.colIdx, e.col)
			m.vals = append(m.vals, e.val)
		}
		m.rowStart[i+1] = len(m.colIdx)
	}
	return m
}

// ComplexMatrix is a complex, row-compressed (CSR) square sparse matrix,
// used for the bus admittance matrix Y.
type ComplexMatrix struct {
	n        int
	rowStart []int
	colIdx   []int
	vals     []complex128
}

// N returns the matrix dimension.
func (m *ComplexMatrix) N() int { return m.n }

// NNZ returns the number of stored non-zero entries.
func (m *ComplexMatrix) NNZ() int { return len(m.vals) }

// At returns the value at (i, j), or 0 if not explicitly stored.
func (m *ComplexMatrix) At(i, j int) complex128 {
	for k := m.rowStart[i]; k < m.rowStart[i+1]; k++ {
		if m.colIdx[k] == j {
			return m.vals[k]
		}
		if m.colIdx[k] > j {
			break
		}
	}
	return 0
}

// Row calls fn for each explicit entry in row i, in column order.
func (m *ComplexMatrix) Row(i int, fn func(col int, val complex128)) {
	for k := m.rowStart[i]; k < m.rowStart[i+1]; k++ {
		fn(m.colIdx[k], m.vals[k])
	}
}

// IsHermitian reports whether M[i][j] == conj(M[j][i]) for every explicit
// entry, to within tol. Off-diagonal entries introduced by phase-shifting
// transformers are intentionally asymmetric and are excluded by the caller
// before invoking this check (spec.md §8: "Y is Hermitian on the graph
// structure excluding phase shifters").
func (m *ComplexMatrix) IsHermitian(tol float64) bool {
	ok := true
	for i := 0; i < m.n; i++ {
		m.Row(i, func(j int, v complex128) {
			if cmplx.Abs(v-cmplx.Conj(m.At(j, i))) > tol {
				ok = false
			}
		})
	}
	return ok
}
