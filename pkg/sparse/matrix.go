// Package sparse implements the minimal sparse-matrix primitives the power-
// flow and OPF solvers build on: real and complex row-compressed matrices
// with accumulate-then-compress construction, and a direct solve adequate
// for the grid sizes this engine targets (spec.md §9: "tens of thousands of
// buses at most"). No pure-Go sparse linear-algebra library appears anywhere
// in the example pack, so this package — unlike the rest of the engine — is
// written directly against the standard library (see DESIGN.md).
package sparse

import "sort"

// entry is a single (column, value) pair accumulated during construction,
// generalizing the teacher's map[uint64][]uint64 adjacency-list build loop
// (pkg/storage/node_adjacency.go) from unweighted node adjacency to weighted
// matrix entries.
type entry struct {
	col int
	val float64
}

// Builder accumulates (row, col, value) contributions before compression,
// the way AdmittanceAssembly adds several terms (series admittance, shunt,
// charging) into the same matrix position across multiple branch passes.
type Builder struct {
	n    int
	rows []map[int]float64
}

// NewBuilder creates a builder for an n x n matrix.
func NewBuilder(n int) *Builder {
	rows := make([]map[int]float64, n)
	for i := range rows {
		rows[i] = make(map[int]float64)
	}
	return &Builder{n: n, rows: rows}
}

// Add accumulates val into position (i, j), summing with any prior
// contribution at that position.
func (b *Builder) Add(i, j int, val float64) {
	b.rows[i][j] += val
}

// Set overwrites position (i, j), discarding any prior contribution.
func (b *Builder) Set(i, j int, val float64) {
	b.rows[i][j] = val
}

// Build compresses the accumulated entries into a CSR-like Matrix.
func (b *Builder) Build() *Matrix {
	m := &Matrix{n: b.n, rowStart: make([]int, b.n+1)}
	for i := 0; i < b.n; i++ {
		cols := make([]entry, 0, len(b.rows[i]))
		for c, v := range b.rows[i] {
			cols = append(cols, entry{col: c, val: v})
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

// Matrix is a real, row-compressed (CSR) square sparse matrix.
type Matrix struct {
	n        int
	rowStart []int
	colIdx   []int
	vals     []float64
}

// N returns the matrix dimension.
func (m *Matrix) N() int { return m.n }

// NNZ returns the number of stored (explicit) non-zero entries.
func (m *Matrix) NNZ() int { return len(m.vals) }

// At returns the value at (i, j), or 0 if not explicitly stored.
func (m *Matrix) At(i, j int) float64 {
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
func (m *Matrix) Row(i int, fn func(col int, val float64)) {
	for k := m.rowStart[i]; k < m.rowStart[i+1]; k++ {
		fn(m.colIdx[k], m.vals[k])
	}
}

// MulVec computes y = M*x.
func (m *Matrix) MulVec(x []float64) []float64 {
	y := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		sum := 0.0
		for k := m.rowStart[i]; k < m.rowStart[i+1]; k++ {
			sum += m.vals[k] * x[m.colIdx[k]]
		}
		y[i] = sum
	}
	return y
}

// Dense materializes the matrix as a row-major dense array, used internally
// by the direct solver.
func (m *Matrix) Dense() [][]float64 {
	d := make([][]float64, m.n)
	for i := range d {
		d[i] = make([]float64, m.n)
	}
	for i := 0; i < m.n; i++ {
		m.Row(i, func(col int, val float64) { d[i][col] = val })
	}
	return d
}

// Reduced returns the matrix with the rows and columns at the given indices
// removed, used to derive B'' from B' by eliminating the slack bus.
func (m *Matrix) Reduced(remove []int) *Matrix {
	skip := make(map[int]bool, len(remove))
	for _, r := range remove {
		skip[r] = true
	}
	keep := make([]int, 0, m.n-len(remove))
	for i := 0; i < m.n; i++ {
		if !skip[i] {
			keep = append(keep, i)
		}
	}
	newIdx := make(map[int]int, len(keep))
	for ni, oi := range keep {
		newIdx[oi] = ni
	}

	b := NewBuilder(len(keep))
	for ni, oi := range keep {
		m.Row(oi, func(col int, val float64) {
			if nj, ok := newIdx[col]; ok {
				b.Set(ni, nj, val)
			}
		})
	}
	return b.Build()
}
