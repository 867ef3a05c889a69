package FrictionFlow

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gotidal/utils"
)

type operator struct {
	stencil   utils.CSR
	partition *utils.RowPartition
	shift     []float64 // (Cf + tf) / H
	precond   []float64 // diagonal of the operator
}

func (op *operator) mulVecTo(y, x []float64) {
	op.stencil.MulVecToPartitioned(y, x, op.partition)
	for i, s := range op.shift {
		y[i] += s * x[i]
	}
}

// conjugateGradient solves A x = b in place, starting from the incoming x
func (op *operator) conjugateGradient(x, b []float64, tol float64, maxIter int) (iters int, err error) {
	var (
		N     = len(b)
		r     = make([]float64, N)
		z     = make([]float64, N)
		p     = make([]float64, N)
		Ap    = make([]float64, N)
		bNorm = floats.Norm(b, 2)
	)
	for i, d := range op.precond {
		if d <= 0 {
			return 0, fmt.Errorf("operator is not positive definite, diagonal %d is %v", i, d)
		}
	}
	if bNorm == 0 {
		for i := range x {
			x[i] = 0
		}
		return
	}
	op.mulVecTo(Ap, x)
	floats.SubTo(r, b, Ap)
	if floats.Norm(r, 2) <= tol*bNorm {
		return
	}
	floats.DivTo(z, r, op.precond)
	copy(p, z)
	rz := floats.Dot(r, z)
	for iters = 1; iters <= maxIter; iters++ {
		op.mulVecTo(Ap, p)
		pAp := floats.Dot(p, Ap)
		if pAp <= 0 || math.IsNaN(pAp) {
			return iters, fmt.Errorf("operator is not positive definite, p.Ap = %v at iteration %d", pAp, iters)
		}
		alpha := rz / pAp
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, Ap)
		if floats.Norm(r, 2) <= tol*bNorm {
			return
		}
		floats.DivTo(z, r, op.precond)
		rzNew := floats.Dot(r, z)
		floats.AddScaledTo(p, z, rzNew/rz, p)
		rz = rzNew
	}
	return maxIter, fmt.Errorf("conjugate gradients did not converge in %d iterations, |r|/|b| = %8.3e",
		maxIter, floats.Norm(r, 2)/bNorm)
}
