package functional

import (
	"fmt"

	"github.com/notargets/gotidal/turbines"
)

// State is the final solution of a solve, one field per time level
type State []turbines.Field

const SensitivityTotal = "turbine_friction"

// LevelSensitivityName names the sensitivity w.r.t. the friction field of time level t
func LevelSensitivityName(t int) string { return fmt.Sprintf("turbine_friction_t_%d", t) }

// Solver computes the functional for a set of friction fields, one per time level or a single
// field shared by every level. When record is set the solve leaves a trace behind that the
// AdjointEngine differentiates, replacing any earlier trace.
type Solver interface {
	Solve(friction []turbines.Field, initial State, record bool) (j float64, final State, err error)
}

type AdjointEngine interface {
	Sensitivity(name string) (turbines.Field, error)
	Forget()
}

type Model interface {
	Solver
	AdjointEngine
}

// adjointSensitivities reads the gradient assembler's inputs from the adjoint engine
type adjointSensitivities struct {
	engine AdjointEngine
}

func (as adjointSensitivities) Total() (turbines.Field, error) {
	return as.engine.Sensitivity(SensitivityTotal)
}

func (as adjointSensitivities) Level(t int) (turbines.Field, error) {
	return as.engine.Sensitivity(LevelSensitivityName(t))
}
