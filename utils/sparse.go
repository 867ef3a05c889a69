package utils

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
	"gonum.org/v1/gonum/mat"
)

type DOK struct {
	M    *sparse.DOK
	name string
}

func NewDOK(nr, nc int, name ...string) (R DOK) {
	R = DOK{
		sparse.NewDOK(nr, nc),
		"unnamed",
	}
	if len(name) != 0 {
		R.name = name[0]
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m DOK) Dims() (r, c int)    { return m.M.Dims() }
func (m DOK) At(i, j int) float64 { return m.M.At(i, j) }
func (m DOK) T() mat.Matrix       { return m.M.T() }

// Accumulate adds val into entry (i,j), as used when assembling stencils
func (m DOK) Accumulate(i, j int, val float64) DOK { // Changes receiver
	var (
		nr, nc = m.Dims()
	)
	if i < 0 || i >= nr || j < 0 || j >= nc {
		panic(fmt.Errorf("index (%d,%d) out of bounds for %dx%d matrix named: \"%v\"", i, j, nr, nc, m.name))
	}
	m.M.Set(i, j, m.M.At(i, j)+val)
	return m
}

func (m DOK) ToCSR() CSR {
	return CSR{
		M:    m.M.ToCSR(),
		name: m.name,
	}
}

type CSR struct {
	M    *sparse.CSR
	name string
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m CSR) Dims() (r, c int)              { return m.M.Dims() }
func (m CSR) At(i, j int) float64           { return m.M.At(i, j) }
func (m CSR) T() mat.Matrix                 { return m.M.T() }
func (m CSR) RawMatrix() *blas.SparseMatrix { return m.M.RawMatrix() }
func (m CSR) Name() string                  { return m.name }

// MulVecTo computes y = A x using the compressed row storage directly
func (m CSR) MulVecTo(y, x []float64) {
	m.checkMulVec(y, x)
	m.mulRows(y, x, 0, len(y))
}

// MulVecToPartitioned computes y = A x with the rows of y shared out over the partition
func (m CSR) MulVecToPartitioned(y, x []float64, rp *RowPartition) {
	m.checkMulVec(y, x)
	if rp == nil || rp.MaxIndex != len(y) {
		m.mulRows(y, x, 0, len(y))
		return
	}
	rp.Run(func(min, max int) { m.mulRows(y, x, min, max) })
}

func (m CSR) checkMulVec(y, x []float64) {
	var (
		nr, nc = m.Dims()
	)
	if len(x) != nc || len(y) != nr {
		panic(fmt.Errorf("dimension mismatch in MulVecTo for \"%v\": A is %dx%d, len(x) = %d, len(y) = %d",
			m.name, nr, nc, len(x), len(y)))
	}
}

func (m CSR) mulRows(y, x []float64, min, max int) {
	var (
		raw = m.RawMatrix()
	)
	for i := min; i < max; i++ {
		var sum float64
		for jj := raw.Indptr[i]; jj < raw.Indptr[i+1]; jj++ {
			sum += raw.Data[jj] * x[raw.Ind[jj]]
		}
		y[i] = sum
	}
}

// Diagonal returns a copy of the main diagonal
func (m CSR) Diagonal() (diag []float64) {
	var (
		raw    = m.RawMatrix()
		nr, nc = m.Dims()
	)
	diag = make([]float64, min(nr, nc))
	for i := range diag {
		for jj := raw.Indptr[i]; jj < raw.Indptr[i+1]; jj++ {
			if raw.Ind[jj] == i {
				diag[i] += raw.Data[jj]
			}
		}
	}
	return
}
