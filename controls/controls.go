package controls

import (
	"fmt"

	"github.com/notargets/gotidal/types"
)

/*
A ControlSpec fixes the layout of the flat control vector handed to the optimiser:

	PositionFriction: [friction_0 .. friction_N-1] [x_0, y_0, .. x_N-1, y_N-1]
	DynamicFriction:  [friction_t0_0 .. friction_t0_N-1, .. friction_tL-1_N-1] [x_0, y_0, ..]
	SmearedField:     [field coefficient 0 .. FieldDim-1]

Either segment may be absent for PositionFriction, the friction segment always leads.
*/
type ControlSpec struct {
	Kind               types.ControlKind
	Friction, Position bool
	NumTurbines        int
	NumLevels          int // Time levels carrying their own friction, DynamicFriction only
	FieldDim           int // Coefficient count of the friction field, SmearedField only
	TurbineX, TurbineY float64
}

// Controls is the structured form of a control vector
type Controls struct {
	Friction  [][]float64 // [level][turbine], a single level for static friction
	Positions [][2]float64
	Field     []float64 // SmearedField only
}

func (cs ControlSpec) Validate() (err error) {
	switch cs.Kind {
	case types.SmearedField:
		if cs.FieldDim <= 0 {
			err = fmt.Errorf("%w: smeared parametrisation needs a positive field dimension, have %d",
				types.ErrUnsupportedControls, cs.FieldDim)
		}
	case types.PositionFriction:
		if !cs.Friction && !cs.Position {
			err = fmt.Errorf("%w: no active controls", types.ErrUnsupportedControls)
		}
	case types.DynamicFriction:
		if !cs.Friction {
			err = fmt.Errorf("%w: dynamic friction control without friction segment", types.ErrUnsupportedControls)
		} else if cs.NumLevels <= 0 {
			err = fmt.Errorf("%w: dynamic friction needs at least one time level, have %d",
				types.ErrUnsupportedControls, cs.NumLevels)
		}
	default:
		err = fmt.Errorf("%w: %v", types.ErrUnsupportedControls, cs.Kind)
	}
	if err == nil && cs.Kind != types.SmearedField && cs.NumTurbines <= 0 {
		err = fmt.Errorf("%w: no turbines configured", types.ErrUnsupportedControls)
	}
	return
}

// Levels is the number of friction levels carried by Controls.Friction
func (cs ControlSpec) Levels() int {
	if cs.Kind == types.DynamicFriction {
		return cs.NumLevels
	}
	return 1
}

func (cs ControlSpec) FrictionLen() int {
	switch cs.Kind {
	case types.PositionFriction:
		if cs.Friction {
			return cs.NumTurbines
		}
	case types.DynamicFriction:
		return cs.NumLevels * cs.NumTurbines
	}
	return 0
}

func (cs ControlSpec) PositionLen() int {
	if cs.Kind != types.SmearedField && cs.Position {
		return 2 * cs.NumTurbines
	}
	return 0
}

// Len is the sum of the segment sizes, the only valid control vector length
func (cs ControlSpec) Len() int {
	if cs.Kind == types.SmearedField {
		return cs.FieldDim
	}
	return cs.FrictionLen() + cs.PositionLen()
}

// PositionSegment is the index range [lo,hi) of the position pairs within a control vector
func (cs ControlSpec) PositionSegment() (lo, hi int) {
	lo = cs.FrictionLen()
	hi = lo + cs.PositionLen()
	return
}

// MaxExtent is the largest turbine dimension, the reference length for automatic scaling
func (cs ControlSpec) MaxExtent() float64 {
	if cs.TurbineX > cs.TurbineY {
		return cs.TurbineX
	}
	return cs.TurbineY
}

func (cs ControlSpec) CheckLength(m []float64) error {
	if len(m) != cs.Len() {
		return fmt.Errorf("%w: expected %d values for %v controls, have %d",
			types.ErrInvalidControlLength, cs.Len(), cs.Kind, len(m))
	}
	return nil
}

// Decode maps a control vector onto structured controls. Values are copied.
func Decode(m []float64, cs ControlSpec) (c Controls, err error) {
	if err = cs.CheckLength(m); err != nil {
		return
	}
	if cs.Kind == types.SmearedField {
		c.Field = make([]float64, len(m))
		copy(c.Field, m)
		return
	}
	var (
		shift = cs.FrictionLen()
		nt    = cs.NumTurbines
	)
	if shift > 0 {
		c.Friction = make([][]float64, cs.Levels())
		for t := range c.Friction {
			c.Friction[t] = make([]float64, nt)
			copy(c.Friction[t], m[t*nt:(t+1)*nt])
		}
	}
	if cs.PositionLen() > 0 {
		mp := m[shift:]
		c.Positions = make([][2]float64, nt)
		for i := range c.Positions {
			c.Positions[i] = [2]float64{mp[2*i], mp[2*i+1]}
		}
	}
	return
}

// Encode flattens structured controls into a control vector, the inverse of Decode
func Encode(c Controls, cs ControlSpec) (m []float64, err error) {
	if err = cs.checkShape(c); err != nil {
		return
	}
	if cs.Kind == types.SmearedField {
		m = make([]float64, len(c.Field))
		copy(m, c.Field)
		return
	}
	m = make([]float64, 0, cs.Len())
	if cs.FrictionLen() > 0 {
		for _, level := range c.Friction {
			m = append(m, level...)
		}
	}
	if cs.PositionLen() > 0 {
		for _, p := range c.Positions {
			m = append(m, p[0], p[1])
		}
	}
	return
}

func (cs ControlSpec) checkShape(c Controls) (err error) {
	mismatch := func(what string, want, have int) error {
		return fmt.Errorf("%w: %s expects %d entries, have %d", types.ErrInvalidControlLength, what, want, have)
	}
	if cs.Kind == types.SmearedField {
		if len(c.Field) != cs.FieldDim {
			return mismatch("friction field", cs.FieldDim, len(c.Field))
		}
		return
	}
	if cs.FrictionLen() > 0 {
		if len(c.Friction) != cs.Levels() {
			return mismatch("friction levels", cs.Levels(), len(c.Friction))
		}
		for t, level := range c.Friction {
			if len(level) != cs.NumTurbines {
				return mismatch(fmt.Sprintf("friction level %d", t), cs.NumTurbines, len(level))
			}
		}
	}
	if cs.PositionLen() > 0 && len(c.Positions) != cs.NumTurbines {
		return mismatch("turbine positions", cs.NumTurbines, len(c.Positions))
	}
	return
}

// InitialControl is the control vector implied by the initial configuration. A smeared
// parametrisation without an initial field starts from zero friction.
func InitialControl(c Controls, cs ControlSpec) (m []float64, err error) {
	if cs.Kind == types.SmearedField && len(c.Field) == 0 {
		m = make([]float64, cs.FieldDim)
		return
	}
	return Encode(c, cs)
}

// Merge returns the controls with the active segments taken from active and the inactive
// ones (e.g. fixed positions during a friction-only optimisation) taken from fixed.
func Merge(active, fixed Controls, cs ControlSpec) (c Controls) {
	c = fixed
	if cs.Kind == types.SmearedField {
		c.Field = active.Field
		return
	}
	if cs.FrictionLen() > 0 {
		c.Friction = active.Friction
	}
	if cs.PositionLen() > 0 {
		c.Positions = active.Positions
	}
	return
}
