package scaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gotidal/controls"
	"github.com/notargets/gotidal/types"
)

func TestScaleState(t *testing.T) {
	cs := controls.ControlSpec{
		Kind: types.PositionFriction, Friction: true, Position: true,
		NumTurbines: 2, TurbineX: 20, TurbineY: 5,
	}
	{ // Fixed scale only
		ss := NewScaleState(-2, false, 5)
		assert.False(t, ss.Pending())
		assert.Equal(t, -6., ss.Apply(3))
		assert.Equal(t, []float64{-2, 4}, ss.ApplyVec([]float64{1, -2}))
		require.NoError(t, ss.ComputeFactor([]float64{1, 1, 1, 1, 1, 1}, cs))
		assert.False(t, ss.Set)
	}
	{ // Raw values pass until the factor is set, then the factor is frozen
		ss := NewScaleState(1, true, 5)
		assert.True(t, ss.Pending())
		assert.Equal(t, 3., ss.Apply(3))
		// The friction segment is ignored even though it holds the largest entry
		dj := []float64{1000, -1000, 0.5, -4, 2, 1}
		require.NoError(t, ss.ComputeFactor(dj, cs))
		assert.True(t, ss.Set)
		assert.InDelta(t, 5*20./4, ss.Factor, 1.e-14)
		assert.InDelta(t, 25*3., ss.Apply(3), 1.e-12)
		scaled := ss.ApplyVec(dj)
		assert.InDelta(t, -100., scaled[3], 1.e-12)
		assert.Equal(t, -4., dj[3])
		// Copies handed out by a session scale the same way
		frozen := func() ScaleState { return *ss }
		assert.InDelta(t, 25*3., frozen().Apply(3), 1.e-12)
		assert.InDelta(t, -100., frozen().ApplyVec(dj)[3], 1.e-12)
		assert.False(t, frozen().Pending())

		require.NoError(t, ss.ComputeFactor([]float64{1, 1, 100, 100, 100, 100}, cs))
		assert.InDelta(t, 25., ss.Factor, 1.e-14)
	}
	{ // Preconditions
		ss := NewScaleState(1, true, 5)
		assert.ErrorIs(t, ss.ComputeFactor([]float64{1, 1, 0, 0, 0, 0}, cs), types.ErrDegenerateGradient)
		assert.False(t, ss.Set)
		friction := controls.ControlSpec{Kind: types.PositionFriction, Friction: true, NumTurbines: 2}
		assert.ErrorIs(t, ss.ComputeFactor([]float64{1, 1}, friction), types.ErrUnsupportedControls)
		assert.ErrorIs(t, ss.ComputeFactor([]float64{1, 1}, cs), types.ErrInvalidControlLength)
	}
}
