package FrictionFlow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/notargets/gotidal/controls"
	"github.com/notargets/gotidal/functional"
	"github.com/notargets/gotidal/turbines"
	"github.com/notargets/gotidal/types"
)

var (
	testParameters = Parameters{Depth: 10, Friction: 0.5, Inflow: 1, Diffusion: 50, Period: 12, NumLevels: 2}
)

func blob(g *turbines.Grid, amplitude, cx, cy float64) (tf turbines.Field) {
	tf = g.NewField()
	for k := range tf.Data() {
		x, y := g.Coord(k)
		tf.Data()[k] = amplitude * math.Exp(-((x-cx)*(x-cx)+(y-cy)*(y-cy))/200)
	}
	return
}

func TestNewModel(t *testing.T) {
	g, err := turbines.NewGrid(100, 50, 20, 10)
	require.NoError(t, err)
	for _, p := range []Parameters{
		{Depth: 0, Friction: 1, NumLevels: 1},
		{Depth: 1, Friction: 0, NumLevels: 1},
		{Depth: 1, Friction: 1, Diffusion: -1, NumLevels: 1},
		{Depth: 1, Friction: 1, NumLevels: 0},
	} {
		_, err = NewModel(g, p)
		assert.Error(t, err)
	}
	m, err := NewModel(g, testParameters)
	require.NoError(t, err)
	assert.Equal(t, 10*g.NumNodes(), m.MaxIterations)
	// Levels sit symmetrically in the half period
	assert.InDelta(t, m.Forcing(0), m.Forcing(1), 1.e-14)
	assert.InDelta(t, math.Sin(math.Pi/3), m.Forcing(0), 1.e-14)
	single, err := NewModel(g, Parameters{Depth: 1, Friction: 1, Inflow: 2, NumLevels: 1})
	require.NoError(t, err)
	assert.InDelta(t, 2., single.Forcing(0), 1.e-14)
}

func TestSolve(t *testing.T) {
	g, err := turbines.NewGrid(100, 50, 20, 10)
	require.NoError(t, err)
	m, err := NewModel(g, testParameters)
	require.NoError(t, err)
	tf := blob(g, 2, 50, 25)
	{ // The solution satisfies the discrete equations and is symmetric about the basin center
		j, final, err := m.Solve([]turbines.Field{tf}, nil, false)
		require.NoError(t, err)
		require.Equal(t, 2, len(final))
		assert.True(t, j > 0)
		u := final[0].Data()
		Au := make([]float64, len(u))
		m.operator(tf).mulVecTo(Au, u)
		for i := range Au {
			assert.InDelta(t, m.Forcing(0), Au[i], 1.e-9)
		}
		for jj := 0; jj < g.NodesY(); jj++ {
			for ii := 0; ii < g.NodesX(); ii++ {
				mirror := g.Index(g.NodesX()-1-ii, g.NodesY()-1-jj)
				assert.InDelta(t, u[g.Index(ii, jj)], u[mirror], 1.e-8)
			}
		}
		assert.Equal(t, 1, m.Solves())
		assert.False(t, m.Recorded())
	}
	{ // No turbines, no power
		j, _, err := m.Solve([]turbines.Field{g.NewField()}, nil, false)
		require.NoError(t, err)
		assert.Equal(t, 0., j)
	}
	{ // A shared field and one field per level are the same problem
		j1, _, err := m.Solve([]turbines.Field{tf}, nil, false)
		require.NoError(t, err)
		j2, _, err := m.Solve([]turbines.Field{tf, tf.Copy()}, nil, false)
		require.NoError(t, err)
		assert.InDelta(t, j1, j2, 1.e-10*j1)
	}
	{ // Warm starts converge in fewer iterations
		_, final, err := m.Solve([]turbines.Field{tf}, nil, false)
		require.NoError(t, err)
		before := m.Iterations()
		_, _, err = m.Solve([]turbines.Field{tf}, nil, false)
		require.NoError(t, err)
		cold := m.Iterations() - before
		before = m.Iterations()
		_, _, err = m.Solve([]turbines.Field{tf}, final, false)
		require.NoError(t, err)
		assert.True(t, m.Iterations()-before < cold)
	}
	{ // Malformed input and indefinite operators
		_, _, err := m.Solve([]turbines.Field{tf, tf, tf}, nil, false)
		assert.Error(t, err)
		_, _, err = m.Solve([]turbines.Field{{}}, nil, false)
		assert.Error(t, err)
		_, _, err = m.Solve([]turbines.Field{blob(g, -100, 50, 25)}, nil, false)
		assert.Error(t, err)
	}
}

func TestSensitivity(t *testing.T) {
	g, err := turbines.NewGrid(100, 50, 20, 10)
	require.NoError(t, err)
	m, err := NewModel(g, testParameters)
	require.NoError(t, err)
	_, err = m.Sensitivity(functional.SensitivityTotal)
	assert.Error(t, err)

	levels := []turbines.Field{blob(g, 2, 40, 25), blob(g, 1, 60, 20)}
	_, _, err = m.Solve(levels, nil, true)
	require.NoError(t, err)
	require.True(t, m.Recorded())
	perturbed := func(level, node int) func(float64) float64 {
		return func(val float64) float64 {
			fields := []turbines.Field{levels[0].Copy(), levels[1].Copy()}
			fields[level].Data()[node] = val
			j, _, err := m.Solve(fields, nil, false)
			require.NoError(t, err)
			return j
		}
	}
	nodes := []int{g.Index(8, 5), g.Index(12, 4), g.Index(0, 0), g.Index(10, 7)}
	for k := range levels {
		s, err := m.Sensitivity(functional.LevelSensitivityName(k))
		require.NoError(t, err)
		for _, node := range nodes {
			want := fd.Derivative(perturbed(k, node), levels[k].AtVec(node), &fd.Settings{Formula: fd.Central, Step: 1.e-2})
			assert.InDelta(t, want, s.AtVec(node), 1.e-5*math.Max(100, math.Abs(want)), "level %d node %d", k, node)
		}
	}
	{ // The total is the derivative w.r.t. a field shared by both levels
		shared := blob(g, 2, 50, 25)
		_, _, err = m.Solve([]turbines.Field{shared}, nil, true)
		require.NoError(t, err)
		s, err := m.Sensitivity(functional.SensitivityTotal)
		require.NoError(t, err)
		for _, node := range nodes {
			f := func(val float64) float64 {
				field := shared.Copy()
				field.Data()[node] = val
				j, _, err := m.Solve([]turbines.Field{field}, nil, false)
				require.NoError(t, err)
				return j
			}
			want := fd.Derivative(f, shared.AtVec(node), &fd.Settings{Formula: fd.Central, Step: 1.e-2})
			assert.InDelta(t, want, s.AtVec(node), 1.e-5*math.Max(100, math.Abs(want)))
		}
	}
	{ // Names and the trace lifetime
		_, err = m.Sensitivity("turbine_friction_t_2")
		assert.Error(t, err)
		_, err = m.Sensitivity("turbine_friction_t_x")
		assert.Error(t, err)
		_, err = m.Sensitivity("velocity")
		assert.Error(t, err)
		m.Forget()
		_, err = m.Sensitivity(functional.LevelSensitivityName(0))
		assert.Error(t, err)
	}
}

func newSession(t *testing.T, cs controls.ControlSpec, opts functional.Options) (rf *functional.ReducedFunctional, model *Model) {
	g, err := turbines.NewGrid(200, 100, 40, 20)
	require.NoError(t, err)
	model, err = NewModel(g, Parameters{Depth: 2, Friction: 0.5, Inflow: 1, Diffusion: 100, NumLevels: 3,
		Tolerance: 1.e-13})
	require.NoError(t, err)
	opts.BasePath = t.TempDir()
	opts.Fixed = controls.Controls{Positions: [][2]float64{{70, 50}, {130, 50}}}
	for k := 0; k < cs.Levels(); k++ {
		opts.Fixed.Friction = append(opts.Fixed.Friction, []float64{2, 2})
	}
	rf, err = functional.New(g, cs, model, opts)
	require.NoError(t, err)
	return
}

func TestReducedFunctional(t *testing.T) {
	{ // Verified gradients for static and dynamic controls
		for _, cs := range []controls.ControlSpec{
			{Kind: types.PositionFriction, Friction: true, Position: true, NumTurbines: 2, TurbineX: 40, TurbineY: 30},
			{Kind: types.DynamicFriction, Friction: true, Position: true, NumTurbines: 2, NumLevels: 3, TurbineX: 40, TurbineY: 30},
		} {
			rf, model := newSession(t, cs, functional.Options{Scale: -1, DirectionSeed: 7, TaylorSteps: 4})
			m0, err := rf.InitialControl()
			require.NoError(t, err)
			dj, err := rf.GradientWithCheck(m0, 0.1, 1.9)
			require.NoError(t, err)
			assert.Equal(t, cs.Len(), len(dj))
			solves := model.Solves()
			_, err = rf.Objective(m0)
			require.NoError(t, err)
			assert.Equal(t, solves, model.Solves())
		}
	}
	{ // A few steps of L-BFGS extract more power
		cs := controls.ControlSpec{Kind: types.PositionFriction, Friction: true, NumTurbines: 2, TurbineX: 40, TurbineY: 30}
		rf, _ := newSession(t, cs, functional.Options{Scale: -1, WarmStart: true})
		m0, err := rf.InitialControl()
		require.NoError(t, err)
		f0, err := rf.Objective(m0)
		require.NoError(t, err)
		settings := &optimize.Settings{MajorIterations: 3, GradientThreshold: 1.e-10}
		result, _ := optimize.Minimize(rf.Problem(), m0, settings, &optimize.LBFGS{Linesearcher: &optimize.Backtracking{}})
		require.NotNil(t, result)
		assert.True(t, result.F < f0)
		assert.True(t, rf.Iteration() > 0)
	}
}
