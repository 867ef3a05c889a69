package verify

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/notargets/gotidal/types"
)

type (
	ValueFn    func(m []float64) (float64, error)
	GradientFn func(m []float64) ([]float64, error)
)

type TaylorResult struct {
	Steps                []float64 // h_i = seed / 2^i
	Residual0, Residual1 []float64 // |J(m0+h p) - J(m0)|, |J(m0+h p) - J(m0) - h dJ.p|
	Order0, Order1       []float64 // log2 of consecutive residual ratios
	MinOrder             float64   // min(Order1)
}

// RandomDirection returns a perturbation with components drawn uniformly from [0,1)
func RandomDirection(n int, seed uint64) (p []float64) {
	var (
		dist = distuv.Uniform{Min: 0, Max: 1, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	)
	p = make([]float64, n)
	for i := range p {
		p[i] = dist.Rand()
	}
	return
}

/*
TaylorCheck runs the Taylor remainder test of gradFn against valueFn at m0 along direction p.
For a correct gradient the first order residual falls as h^2, so Order1 approaches 2 while
Order0 stays near 1. The functional and gradient are evaluated at m0 once each.
*/
func TaylorCheck(valueFn ValueFn, gradFn GradientFn, m0, p []float64, seed float64, steps int) (tr TaylorResult, err error) {
	var (
		j0, dj0p float64
		dj       []float64
	)
	if len(p) != len(m0) {
		err = fmt.Errorf("%w: perturbation has length %d, control vector %d",
			types.ErrInvalidControlLength, len(p), len(m0))
		return
	}
	if steps < 2 {
		err = fmt.Errorf("taylor test needs at least two step sizes, have %d", steps)
		return
	}
	if j0, err = valueFn(m0); err != nil {
		return
	}
	if dj, err = gradFn(m0); err != nil {
		return
	}
	if len(dj) != len(m0) {
		err = fmt.Errorf("%w: gradient has length %d, control vector %d",
			types.ErrInvalidControlLength, len(dj), len(m0))
		return
	}
	dj0p = floats.Dot(dj, p)
	mh := make([]float64, len(m0))
	for i := 0; i < steps; i++ {
		h := seed / math.Pow(2, float64(i))
		floats.AddScaledTo(mh, m0, h, p)
		var jh float64
		if jh, err = valueFn(mh); err != nil {
			return
		}
		tr.Steps = append(tr.Steps, h)
		tr.Residual0 = append(tr.Residual0, math.Abs(jh-j0))
		tr.Residual1 = append(tr.Residual1, math.Abs(jh-j0-h*dj0p))
	}
	tr.Order0 = convergenceOrders(tr.Residual0)
	tr.Order1 = convergenceOrders(tr.Residual1)
	tr.MinOrder = floats.Min(tr.Order1)
	return
}

func convergenceOrders(r []float64) (order []float64) {
	order = make([]float64, len(r)-1)
	for i := range order {
		switch {
		case r[i+1] == 0:
			// An exact remainder can not converge any further
			order[i] = math.Inf(1)
		case r[i] == 0:
			order[i] = math.Inf(-1)
		default:
			order[i] = math.Log2(r[i] / r[i+1])
		}
	}
	return
}

// Check fails with ErrGradientVerificationFailed when the observed order is below tol
func Check(tr TaylorResult, tol float64) error {
	if len(tr.Order1) == 0 {
		return fmt.Errorf("%w: no convergence orders computed", types.ErrGradientVerificationFailed)
	}
	if math.IsNaN(tr.MinOrder) || tr.MinOrder < tol {
		return fmt.Errorf("%w: minimum convergence order %8.5f is below %8.5f, orders %v",
			types.ErrGradientVerificationFailed, tr.MinOrder, tol, tr.Order1)
	}
	return nil
}

func (tr TaylorResult) Print() {
	fmt.Printf("%12s%16s%10s%16s%10s\n", "h", "|r0|", "order", "|r1|", "order")
	for i, h := range tr.Steps {
		if i == 0 {
			fmt.Printf("%12.4e%16.8e%10s%16.8e%10s\n", h, tr.Residual0[i], "", tr.Residual1[i], "")
			continue
		}
		fmt.Printf("%12.4e%16.8e%10.4f%16.8e%10.4f\n",
			h, tr.Residual0[i], tr.Order0[i-1], tr.Residual1[i], tr.Order1[i-1])
	}
}
