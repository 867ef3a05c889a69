package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vector is a dense column of nodal values backed by a gonum VecDense
type Vector struct {
	V *mat.VecDense
}

func NewVector(N int, dataO ...[]float64) Vector {
	var (
		data []float64
	)
	if len(dataO) != 0 {
		data = dataO[0]
		if len(data) != N {
			panic("mismatched dimensions in NewVector")
		}
	} else {
		data = make([]float64, N)
	}
	return Vector{mat.NewVecDense(N, data)}
}

func NewVectorConst(N int, val float64) Vector {
	return NewVector(N, ConstArray(N, val))
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (v Vector) Dims() (r, c int)    { return v.V.Dims() }
func (v Vector) At(i, j int) float64 { return v.V.At(i, j) }
func (v Vector) T() mat.Matrix       { return v.V.T() }
func (v Vector) AtVec(i int) float64 { return v.V.AtVec(i) }
func (v Vector) Len() int            { return v.V.Len() }
func (v Vector) Data() []float64     { return v.V.RawVector().Data }
func (v Vector) IsNil() bool         { return v.V == nil }

func (v Vector) Copy() Vector { // Does not change receiver
	var (
		data = make([]float64, v.Len())
	)
	copy(data, v.Data())
	return NewVector(len(data), data)
}

func (v Vector) Dot(a Vector) float64 { return mat.Dot(v.V, a.V) }

// Chainable (extended) methods, all change the receiver
func (v Vector) Scale(a float64) Vector {
	v.V.ScaleVec(a, v.V)
	return v
}

func (v Vector) AddVec(a Vector) Vector {
	v.V.AddVec(v.V, a.V)
	return v
}

func (v Vector) AddScaled(alpha float64, a Vector) Vector {
	v.V.AddScaledVec(v.V, alpha, a.V)
	return v
}

func (v Vector) Zero() Vector {
	v.V.Zero()
	return v
}

func (v Vector) Apply(f func(float64) float64) Vector {
	var (
		data = v.Data()
	)
	for i, val := range data {
		data[i] = f(val)
	}
	return v
}

// MaxAbs is the infinity norm, zero for an empty vector
func MaxAbs(data []float64) (max float64) {
	for _, val := range data {
		if a := math.Abs(val); a > max {
			max = a
		}
	}
	return
}
