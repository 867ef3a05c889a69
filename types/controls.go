package types

import (
	"fmt"
	"strings"
)

// ControlKind selects how the control vector is laid out and how gradients are assembled
type ControlKind uint8

const (
	// PositionFriction controls per-turbine positions and/or a static friction per turbine
	PositionFriction ControlKind = iota
	// DynamicFriction controls one friction per turbine per time level, optionally with positions
	DynamicFriction
	// SmearedField controls the nodal coefficients of the friction field directly
	SmearedField
)

func (ck ControlKind) String() string {
	switch ck {
	case PositionFriction:
		return "PositionFriction"
	case DynamicFriction:
		return "DynamicFriction"
	case SmearedField:
		return "SmearedField"
	}
	return fmt.Sprintf("ControlKind(%d)", uint8(ck))
}

// Control names used in input files
const (
	CtlTurbinePos             = "turbine_pos"
	CtlTurbineFriction        = "turbine_friction"
	CtlDynamicTurbineFriction = "dynamic_turbine_friction"
)

// Turbine parametrisation names used in input files
const (
	ParamIndividual = "individual"
	ParamSmeared    = "smeared"
)

type ControlFLAG uint8

const (
	CTL_None ControlFLAG = iota
	CTL_Position
	CTL_Friction
	CTL_DynamicFriction
)

var ControlNameMap = map[string]ControlFLAG{
	CtlTurbinePos:             CTL_Position,
	"position":                CTL_Position,
	CtlTurbineFriction:        CTL_Friction,
	"friction":                CTL_Friction,
	CtlDynamicTurbineFriction: CTL_DynamicFriction,
	"dynamic_friction":        CTL_DynamicFriction,
}

func NewControlFLAG(name string) (cf ControlFLAG) {
	var (
		ok bool
	)
	if cf, ok = ControlNameMap[strings.ToLower(strings.TrimSpace(name))]; !ok {
		return CTL_None
	}
	return
}

// ResolveControls turns the parametrisation and control names of an input file into a ControlKind
// plus the flags for the active friction and position segments.
func ResolveControls(parametrisation string, names []string) (kind ControlKind, friction, position bool, err error) {
	switch strings.ToLower(strings.TrimSpace(parametrisation)) {
	case ParamSmeared:
		kind = SmearedField
		return
	case ParamIndividual, "":
	default:
		err = fmt.Errorf("%w: unknown turbine parametrisation %q", ErrUnsupportedControls, parametrisation)
		return
	}
	var dynamic bool
	for _, name := range names {
		switch NewControlFLAG(name) {
		case CTL_Position:
			position = true
		case CTL_Friction:
			friction = true
		case CTL_DynamicFriction:
			dynamic = true
		default:
			err = fmt.Errorf("%w: unknown control %q", ErrUnsupportedControls, name)
			return
		}
	}
	if friction && dynamic {
		err = fmt.Errorf("%w: %s and %s are mutually exclusive",
			ErrUnsupportedControls, CtlTurbineFriction, CtlDynamicTurbineFriction)
		return
	}
	if dynamic {
		kind, friction = DynamicFriction, true
		return
	}
	if !friction && !position {
		err = fmt.Errorf("%w: no active controls", ErrUnsupportedControls)
		return
	}
	kind = PositionFriction
	return
}
