package utils

import (
	"math"
)

func ConstArray(N int, val float64) (v []float64) {
	v = make([]float64, N)
	for i := range v {
		v[i] = val
	}
	return
}

// POW is x^p for integer p, multiplied out by squaring for |p| <= 8
func POW(x float64, p int) (y float64) {
	var (
		n = p
	)
	if p > 8 || p < -8 {
		return math.Pow(x, float64(p))
	}
	if n < 0 {
		n = -n
	}
	y = 1
	for base := x; n > 0; n >>= 1 {
		if n&1 == 1 {
			y *= base
		}
		base *= base
	}
	if p < 0 {
		y = 1. / y
	}
	return
}
