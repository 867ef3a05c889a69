package scaling

import (
	"fmt"
	"math"

	"github.com/notargets/gotidal/controls"
	"github.com/notargets/gotidal/types"
	"github.com/notargets/gotidal/utils"
)

/*
ScaleState rescales functional values and gradients for the optimiser. Scale is the fixed user
factor. With Automatic set, Factor is computed once, from the first gradient, so that the
largest position derivative has the length Multiplier * (largest turbine extent). Once set it
is frozen for the rest of the run.
*/
type ScaleState struct {
	Scale      float64
	Automatic  bool
	Multiplier float64
	Factor     float64
	Set        bool
}

func NewScaleState(scale float64, automatic bool, multiplier float64) *ScaleState {
	return &ScaleState{
		Scale:      scale,
		Automatic:  automatic,
		Multiplier: multiplier,
	}
}

// Pending reports whether automatic scaling still waits for its first gradient
func (ss ScaleState) Pending() bool { return ss.Automatic && !ss.Set }

func (ss ScaleState) multiplier() (a float64) {
	a = ss.Scale
	if ss.Set {
		a *= ss.Factor
	}
	return
}

func (ss ScaleState) Apply(j float64) float64 { return j * ss.multiplier() }

// ApplyVec returns a scaled copy of the gradient
func (ss ScaleState) ApplyVec(dj []float64) (out []float64) {
	var (
		a = ss.multiplier()
	)
	out = make([]float64, len(dj))
	for i, val := range dj {
		out[i] = a * val
	}
	return
}

// ComputeFactor sets Factor from an unscaled gradient. It does nothing unless automatic scaling
// is pending, so later gradients never move the factor.
func (ss *ScaleState) ComputeFactor(dj []float64, cs controls.ControlSpec) (err error) {
	if !ss.Pending() {
		return
	}
	if cs.PositionLen() == 0 {
		return fmt.Errorf("%w: automatic scaling only works if the turbine positions are control parameters",
			types.ErrUnsupportedControls)
	}
	if err = cs.CheckLength(dj); err != nil {
		return
	}
	lo, hi := cs.PositionSegment()
	den := utils.MaxAbs(dj[lo:hi])
	if den == 0 {
		return types.ErrDegenerateGradient
	}
	ss.Factor = math.Abs(ss.Multiplier * cs.MaxExtent() / den)
	ss.Set = true
	return
}
