package FrictionFlow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/notargets/gotidal/functional"
	"github.com/notargets/gotidal/turbines"
	"github.com/notargets/gotidal/utils"
)

type levelTrace struct {
	op *operator
	tf turbines.Field
	u  turbines.Field
}

// trace holds what the adjoint of the last recorded solve needs; sensitivities are computed once
type trace struct {
	levels []levelTrace
	sens   map[int]turbines.Field
}

func (m *Model) Forget() { m.trace = nil }

// Recorded reports whether a trace is available for the adjoint
func (m *Model) Recorded() bool { return m.trace != nil }

func (m *Model) Sensitivity(name string) (s turbines.Field, err error) {
	if m.trace == nil {
		return s, fmt.Errorf("no recorded solve to compute sensitivity %q from", name)
	}
	if name == functional.SensitivityTotal {
		s = m.Grid.NewField()
		for k := range m.trace.levels {
			var sk turbines.Field
			if sk, err = m.levelSensitivity(k); err != nil {
				return
			}
			s.AddVec(sk)
		}
		return
	}
	prefix := functional.SensitivityTotal + "_t_"
	if !strings.HasPrefix(name, prefix) {
		return s, fmt.Errorf("unknown sensitivity %q", name)
	}
	var k int
	if k, err = strconv.Atoi(strings.TrimPrefix(name, prefix)); err != nil {
		return s, fmt.Errorf("unknown sensitivity %q: %w", name, err)
	}
	if k < 0 || k >= len(m.trace.levels) {
		return s, fmt.Errorf("sensitivity %q: time level out of range [0,%d)", name, len(m.trace.levels))
	}
	if s, err = m.levelSensitivity(k); err != nil {
		return
	}
	return s.Copy(), nil
}

func (m *Model) levelSensitivity(k int) (s turbines.Field, err error) {
	var (
		ok bool
		lt = m.trace.levels[k]
		w  = m.weight()
		N  = lt.u.Len()
	)
	if s, ok = m.trace.sens[k]; ok {
		return
	}
	var (
		g      = make([]float64, N)
		lambda = make([]float64, N)
		u      = lt.u.Data()
		iters  int
	)
	for i := range g {
		g[i] = 3 * w * lt.tf.AtVec(i) * u[i] * u[i]
	}
	if iters, err = lt.op.conjugateGradient(lambda, g, m.Tolerance, m.MaxIterations); err != nil {
		return s, fmt.Errorf("adjoint of time level %d: %w", k, err)
	}
	m.iterations += iters
	s = m.Grid.NewField()
	for i := range u {
		s.Data()[i] = w*utils.POW(u[i], 3) - lambda[i]*u[i]/m.Depth
	}
	m.trace.sens[k] = s
	return
}
