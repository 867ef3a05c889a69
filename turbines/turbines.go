package turbines

import (
	"fmt"
	"math"

	"github.com/notargets/gotidal/controls"
	"github.com/notargets/gotidal/types"
)

// AllLevels marks a derivative term that acts on the friction of every time level
const AllLevels = -1

var e2 = math.Exp(2)

/*
Each turbine is a smooth bump of compact support centred on its position:

	tf(x,y) = friction * e^2 * psi((x-px)/rx) * psi((y-py)/ry),  psi(s) = exp(-1/(1-s^2)) for |s| < 1

with rx, ry half the turbine extents. The e^2 factor makes the peak equal to the friction.
*/
func psi(s float64) float64 {
	s2 := s * s
	if s2 >= 1 {
		return 0
	}
	return math.Exp(-1 / (1 - s2))
}

func dpsi(s float64) float64 {
	s2 := s * s
	if s2 >= 1 {
		return 0
	}
	d := 1 - s2
	return psi(s) * (-2 * s / (d * d))
}

// Term is the partial derivative of the friction field of one time level
type Term struct {
	Level int // AllLevels for a static friction field
	Field Field
}

// Derivative collects the partial derivative of the friction field(s) w.r.t. one control component
type Derivative struct {
	Terms []Term
}

// FieldSet is valid only for the exact control vector it was computed from
type FieldSet struct {
	Friction    []Field      // One per time level, a single entry when friction is static
	Derivatives []Derivative // One per control component, in control vector order; empty for SmearedField
}

type FieldCache struct {
	Grid    *Grid
	Spec    controls.ControlSpec
	current *FieldSet
	updates int
}

func NewFieldCache(g *Grid, cs controls.ControlSpec) (fc *FieldCache, err error) {
	if err = cs.Validate(); err != nil {
		return
	}
	if cs.Kind == types.SmearedField && cs.FieldDim != g.NumNodes() {
		err = fmt.Errorf("%w: smeared field dimension %d does not match the %d grid nodes",
			types.ErrUnsupportedControls, cs.FieldDim, g.NumNodes())
		return
	}
	fc = &FieldCache{Grid: g, Spec: cs}
	return
}

// Current is the FieldSet of the last Update, nil before the first one
func (fc *FieldCache) Current() *FieldSet { return fc.current }

// Updates counts the field recomputations, each one is a full rebuild
func (fc *FieldCache) Updates() int { return fc.updates }

/*
Update rebuilds the friction field(s) and every derivative field from structured controls.
It never compares against the previous controls, deciding whether a rebuild is needed is the
caller's job.
*/
func (fc *FieldCache) Update(c controls.Controls) (fs *FieldSet, err error) {
	var (
		cs = fc.Spec
	)
	fs = &FieldSet{}
	switch cs.Kind {
	case types.SmearedField:
		var f Field
		if f, err = fc.Grid.FieldFrom(c.Field); err != nil {
			return nil, err
		}
		fs.Friction = []Field{f}
	case types.PositionFriction, types.DynamicFriction:
		if err = fc.checkControls(c); err != nil {
			return nil, err
		}
		fc.updateTurbines(c, fs)
	default:
		return nil, fmt.Errorf("%w: %v", types.ErrUnsupportedControls, cs.Kind)
	}
	fc.current = fs
	fc.updates++
	return
}

func (fc *FieldCache) checkControls(c controls.Controls) error {
	var (
		cs = fc.Spec
	)
	if len(c.Positions) != cs.NumTurbines {
		return fmt.Errorf("%w: have %d turbine positions for %d turbines",
			types.ErrInvalidControlLength, len(c.Positions), cs.NumTurbines)
	}
	if len(c.Friction) != cs.Levels() {
		return fmt.Errorf("%w: have %d friction levels, expected %d",
			types.ErrInvalidControlLength, len(c.Friction), cs.Levels())
	}
	for t, level := range c.Friction {
		if len(level) != cs.NumTurbines {
			return fmt.Errorf("%w: friction level %d has %d values for %d turbines",
				types.ErrInvalidControlLength, t, len(level), cs.NumTurbines)
		}
	}
	return nil
}

func (fc *FieldCache) updateTurbines(c controls.Controls, fs *FieldSet) {
	var (
		cs      = fc.Spec
		g       = fc.Grid
		nt      = cs.NumTurbines
		nl      = cs.Levels()
		dynamic = cs.Kind == types.DynamicFriction
		rx, ry  = cs.TurbineX / 2, cs.TurbineY / 2
		shape   = make([]Field, nt) // e^2 psi psi, the friction derivative of each turbine
		shapeX  = make([]Field, nt) // d(shape)/dpx
		shapeY  = make([]Field, nt) // d(shape)/dpy
	)
	for i := 0; i < nt; i++ {
		shape[i], shapeX[i], shapeY[i] = g.NewField(), g.NewField(), g.NewField()
		px, py := c.Positions[i][0], c.Positions[i][1]
		s, sX, sY := shape[i].Data(), shapeX[i].Data(), shapeY[i].Data()
		for k := 0; k < g.NumNodes(); k++ {
			x, y := g.Coord(k)
			sx, sy := (x-px)/rx, (y-py)/ry
			if sx*sx >= 1 || sy*sy >= 1 {
				continue
			}
			wx, wy := psi(sx), psi(sy)
			s[k] = e2 * wx * wy
			sX[k] = -e2 * dpsi(sx) / rx * wy
			sY[k] = -e2 * wx * dpsi(sy) / ry
		}
	}
	levelOf := func(t int) int {
		if dynamic {
			return t
		}
		return AllLevels
	}
	fs.Friction = make([]Field, nl)
	for t := 0; t < nl; t++ {
		fs.Friction[t] = g.NewField()
		for i := 0; i < nt; i++ {
			fs.Friction[t].AddScaled(c.Friction[t][i], shape[i])
		}
	}
	if cs.FrictionLen() > 0 {
		for t := 0; t < nl; t++ {
			for i := 0; i < nt; i++ {
				fs.Derivatives = append(fs.Derivatives, Derivative{
					Terms: []Term{{Level: levelOf(t), Field: shape[i]}},
				})
			}
		}
	}
	if cs.PositionLen() > 0 {
		for i := 0; i < nt; i++ {
			for _, sd := range []Field{shapeX[i], shapeY[i]} {
				var d Derivative
				for t := 0; t < nl; t++ {
					d.Terms = append(d.Terms, Term{
						Level: levelOf(t),
						Field: sd.Copy().Scale(c.Friction[t][i]),
					})
				}
				fs.Derivatives = append(fs.Derivatives, d)
			}
		}
	}
}
