package controls

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gotidal/types"
)

func testSpecs() (specs []ControlSpec) {
	specs = []ControlSpec{
		{Kind: types.PositionFriction, Position: true, NumTurbines: 3, TurbineX: 20, TurbineY: 5},
		{Kind: types.PositionFriction, Friction: true, NumTurbines: 3, TurbineX: 20, TurbineY: 5},
		{Kind: types.PositionFriction, Friction: true, Position: true, NumTurbines: 3, TurbineX: 20, TurbineY: 5},
		{Kind: types.DynamicFriction, Friction: true, NumTurbines: 2, NumLevels: 4, TurbineX: 20, TurbineY: 20},
		{Kind: types.DynamicFriction, Friction: true, Position: true, NumTurbines: 2, NumLevels: 3, TurbineX: 20, TurbineY: 20},
		{Kind: types.SmearedField, FieldDim: 12},
	}
	return
}

func testControls(cs ControlSpec) (c Controls) {
	if cs.Kind == types.SmearedField {
		c.Field = make([]float64, cs.FieldDim)
		for i := range c.Field {
			c.Field[i] = 0.5 * float64(i)
		}
		return
	}
	if cs.FrictionLen() > 0 {
		c.Friction = make([][]float64, cs.Levels())
		for t := range c.Friction {
			c.Friction[t] = make([]float64, cs.NumTurbines)
			for i := range c.Friction[t] {
				c.Friction[t][i] = 10*float64(t) + float64(i) + 1
			}
		}
	}
	if cs.PositionLen() > 0 {
		c.Positions = make([][2]float64, cs.NumTurbines)
		for i := range c.Positions {
			c.Positions[i] = [2]float64{100 + float64(i), 200 + float64(i)}
		}
	}
	return
}

func TestControlSpec(t *testing.T) {
	{ // Segment sizes add up to the vector length
		lens := []int{6, 3, 9, 8, 10, 12}
		for i, cs := range testSpecs() {
			require.NoError(t, cs.Validate())
			assert.Equal(t, lens[i], cs.Len())
			if cs.Kind != types.SmearedField {
				assert.Equal(t, cs.Len(), cs.FrictionLen()+cs.PositionLen())
			}
		}
	}
	{ // Position segment trails the friction segment
		cs := testSpecs()[2]
		lo, hi := cs.PositionSegment()
		assert.Equal(t, 3, lo)
		assert.Equal(t, 9, hi)
		cs = testSpecs()[4]
		lo, hi = cs.PositionSegment()
		assert.Equal(t, 6, lo)
		assert.Equal(t, 10, hi)
		assert.Equal(t, 20., cs.MaxExtent())
	}
	{ // Invalid configurations
		assert.ErrorIs(t, ControlSpec{Kind: types.PositionFriction, NumTurbines: 2}.Validate(),
			types.ErrUnsupportedControls)
		assert.ErrorIs(t, ControlSpec{Kind: types.DynamicFriction, Friction: true, NumTurbines: 2}.Validate(),
			types.ErrUnsupportedControls)
		assert.ErrorIs(t, ControlSpec{Kind: types.SmearedField}.Validate(), types.ErrUnsupportedControls)
		assert.ErrorIs(t, ControlSpec{Kind: types.PositionFriction, Position: true}.Validate(),
			types.ErrUnsupportedControls)
	}
}

func TestDecodeEncode(t *testing.T) {
	{ // Round trip for every supported layout
		for _, cs := range testSpecs() {
			c := testControls(cs)
			m, err := Encode(c, cs)
			require.NoError(t, err)
			assert.Equal(t, cs.Len(), len(m))
			cc, err := Decode(m, cs)
			require.NoError(t, err)
			assert.Equal(t, c, cc, "kind %v", cs.Kind)
		}
	}
	{ // Friction leads, positions trail as interleaved pairs
		cs := testSpecs()[2]
		m := []float64{1, 2, 3, 10, 11, 20, 21, 30, 31}
		c, err := Decode(m, cs)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{1, 2, 3}}, c.Friction)
		assert.Equal(t, [][2]float64{{10, 11}, {20, 21}, {30, 31}}, c.Positions)
	}
	{ // Dynamic friction is level-major
		cs := testSpecs()[3]
		m := []float64{1, 2, 3, 4, 5, 6, 7, 8}
		c, err := Decode(m, cs)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}, c.Friction)
		assert.Nil(t, c.Positions)
	}
	{ // Smeared decode is the identity and does not alias the input
		cs := testSpecs()[5]
		m := make([]float64, cs.FieldDim)
		m[3] = 7
		c, err := Decode(m, cs)
		require.NoError(t, err)
		assert.Equal(t, m, c.Field)
		m[3] = 0
		assert.Equal(t, 7., c.Field[3])
	}
	{ // Length mismatch
		for _, cs := range testSpecs() {
			_, err := Decode(make([]float64, cs.Len()+1), cs)
			assert.True(t, errors.Is(err, types.ErrInvalidControlLength))
		}
		cs := testSpecs()[2]
		c := testControls(cs)
		c.Positions = c.Positions[:2]
		_, err := Encode(c, cs)
		assert.ErrorIs(t, err, types.ErrInvalidControlLength)
	}
}

func TestInitialControlAndMerge(t *testing.T) {
	{
		cs := testSpecs()[5]
		m, err := InitialControl(Controls{}, cs)
		require.NoError(t, err)
		assert.Equal(t, make([]float64, cs.FieldDim), m)
	}
	{ // Position-only optimisation keeps the configured friction
		cs := testSpecs()[0]
		fixed := Controls{
			Friction:  [][]float64{{12, 12, 12}},
			Positions: [][2]float64{{0, 0}, {1, 1}, {2, 2}},
		}
		m, err := InitialControl(fixed, cs)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 1, 1, 2, 2}, m)
		m[0] = 50
		active, err := Decode(m, cs)
		require.NoError(t, err)
		c := Merge(active, fixed, cs)
		assert.Equal(t, fixed.Friction, c.Friction)
		assert.Equal(t, [2]float64{50, 0}, c.Positions[0])
	}
}
