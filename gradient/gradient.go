package gradient

import (
	"fmt"

	"github.com/notargets/gotidal/controls"
	"github.com/notargets/gotidal/turbines"
	"github.com/notargets/gotidal/types"
)

// Sensitivities are the adjoint derivatives dJ/d(friction field) of the last recorded solve
type Sensitivities interface {
	Total() (turbines.Field, error)      // Derivative w.r.t. a friction field shared by all time levels
	Level(t int) (turbines.Field, error) // Derivative w.r.t. the friction field of time level t
}

/*
Assemble applies the chain rule

	dJ/dm_c = sum over terms of < dJ/dtf_level , dtf_level/dm_c >

to every control component c in control vector order. The smeared parametrisation controls the
friction field itself, so its gradient is the total sensitivity. Nothing here solves a PDE, the
result is only as valid as the FieldSet is for the solve that produced the sensitivities.
*/
func Assemble(sens Sensitivities, fs *turbines.FieldSet, cs controls.ControlSpec) (dj []float64, err error) {
	if fs == nil {
		return nil, fmt.Errorf("no turbine fields available for gradient assembly")
	}
	switch cs.Kind {
	case types.SmearedField:
		var total turbines.Field
		if total, err = sens.Total(); err != nil {
			return
		}
		dj = make([]float64, total.Len())
		copy(dj, total.Data())
	case types.PositionFriction, types.DynamicFriction:
		var (
			total  turbines.Field
			levels = make(map[int]turbines.Field)
		)
		dj = make([]float64, 0, len(fs.Derivatives))
		for _, d := range fs.Derivatives {
			var djc float64
			for _, term := range d.Terms {
				var s turbines.Field
				if term.Level == turbines.AllLevels {
					if total.IsNil() {
						if total, err = sens.Total(); err != nil {
							return nil, err
						}
					}
					s = total
				} else {
					var ok bool
					if s, ok = levels[term.Level]; !ok {
						if s, err = sens.Level(term.Level); err != nil {
							return nil, err
						}
						levels[term.Level] = s
					}
				}
				if s.Len() != term.Field.Len() {
					return nil, fmt.Errorf("sensitivity has %d nodal values, derivative field has %d",
						s.Len(), term.Field.Len())
				}
				djc += s.Dot(term.Field)
			}
			dj = append(dj, djc)
		}
	default:
		return nil, fmt.Errorf("%w: %v", types.ErrUnsupportedControls, cs.Kind)
	}
	if len(dj) != cs.Len() {
		return nil, fmt.Errorf("%w: assembled %d gradient components for a control vector of %d",
			types.ErrInvalidControlLength, len(dj), cs.Len())
	}
	return
}
