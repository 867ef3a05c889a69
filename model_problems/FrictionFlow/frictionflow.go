package FrictionFlow

import (
	"fmt"
	"math"
	"time"

	"github.com/notargets/gotidal/functional"
	"github.com/notargets/gotidal/turbines"
	"github.com/notargets/gotidal/utils"
)

/*
A steady, friction limited flow through a rectangular basin, solved on each of NumLevels time
levels of a tidal half period:

				D (-∇² u) + (Cf + tf) / H u = b(t)		in the basin
				u = 0							just outside the basin

				b(t) = Inflow |sin(2π t / Period)|,	t_k = (k+1) Period / (2 (NumLevels+1))

tf is the turbine friction field produced by the field cache and Cf the background bottom
friction. The 5 point stencil gives an SPD operator for any tf > -Cf, so each level is solved
with Jacobi preconditioned conjugate gradients.

The functional is the mean extracted power over the time levels

				J = 1/NumLevels Σ_k  h² Σ_i tf_i u_i³

and its adjoint, for level k, is

				A λ = 3/NumLevels h² tf ∘ u²
				dJ/dtf_i = 1/NumLevels h² u_i³ - λ_i u_i / H
*/
type Parameters struct {
	Depth, Friction, Inflow, Diffusion, Period float64
	NumLevels                                  int
	Tolerance                                  float64
	MaxIterations                              int // CG iterations per solve, 0 means 10 x nodes
	ProcLimit                                  int // Goroutines used in the mat-vec, 0 means all processors
	Verbose                                    bool
}

type Model struct {
	Parameters
	Grid       *turbines.Grid
	stencil    utils.CSR // D (-∇²)
	stencilDgn []float64
	partition  *utils.RowPartition
	trace      *trace
	solves     int
	iterations int
}

var _ functional.Model = (*Model)(nil)

func NewModel(g *turbines.Grid, p Parameters) (m *Model, err error) {
	switch {
	case p.Depth <= 0:
		err = fmt.Errorf("depth must be positive, have %v", p.Depth)
	case p.Friction <= 0:
		err = fmt.Errorf("bottom friction must be positive, have %v", p.Friction)
	case p.Diffusion < 0:
		err = fmt.Errorf("diffusion must not be negative, have %v", p.Diffusion)
	case p.NumLevels < 1:
		err = fmt.Errorf("number of time levels must be at least 1, have %d", p.NumLevels)
	}
	if err != nil {
		return
	}
	if p.Period == 0 {
		p.Period = 1
	}
	if p.Tolerance == 0 {
		p.Tolerance = 1.e-12
	}
	if p.MaxIterations == 0 {
		p.MaxIterations = 10 * g.NumNodes()
	}
	m = &Model{
		Parameters: p,
		Grid:       g,
		stencil:    assembleStencil(g, p.Diffusion),
		partition:  utils.NewRowPartition(utils.DefaultParallelDegree(p.ProcLimit, g.NodesY()), g.NumNodes()),
	}
	m.stencilDgn = m.stencil.Diagonal()
	if p.Verbose {
		fmt.Printf("Friction limited flow, %d x %d nodes, %d time levels\n", g.NodesX(), g.NodesY(), p.NumLevels)
		fmt.Printf("Depth = %8.5f, Friction = %8.5f, Inflow = %8.5f, Diffusion = %8.5f\n",
			p.Depth, p.Friction, p.Inflow, p.Diffusion)
		fmt.Printf("Using %d go routines in the operator\n", m.partition.ParallelDegree)
	}
	return
}

func assembleStencil(g *turbines.Grid, diffusion float64) utils.CSR {
	var (
		N      = g.NumNodes()
		A      = utils.NewDOK(N, N, "stencil")
		cx, cy = diffusion / (g.Dx * g.Dx), diffusion / (g.Dy * g.Dy)
	)
	for j := 0; j < g.NodesY(); j++ {
		for i := 0; i < g.NodesX(); i++ {
			k := g.Index(i, j)
			A.Accumulate(k, k, 2*cx+2*cy)
			if i > 0 {
				A.Accumulate(k, g.Index(i-1, j), -cx)
			}
			if i < g.NodesX()-1 {
				A.Accumulate(k, g.Index(i+1, j), -cx)
			}
			if j > 0 {
				A.Accumulate(k, g.Index(i, j-1), -cy)
			}
			if j < g.NodesY()-1 {
				A.Accumulate(k, g.Index(i, j+1), -cy)
			}
		}
	}
	return A.ToCSR()
}

// Solves counts forward solves, Iterations the CG iterations of all solves
func (m *Model) Solves() int     { return m.solves }
func (m *Model) Iterations() int { return m.iterations }

func (m *Model) LevelTime(k int) float64 {
	return m.Period * float64(k+1) / (2 * float64(m.NumLevels+1))
}

func (m *Model) Forcing(k int) float64 {
	return m.Inflow * math.Abs(math.Sin(2*math.Pi*m.LevelTime(k)/m.Period))
}

func (m *Model) weight() float64 { return m.Grid.Dx * m.Grid.Dy / float64(m.NumLevels) }

// operator returns the diagonal shift (Cf + tf) / H of the level operator
func (m *Model) operator(tf turbines.Field) (op *operator) {
	op = &operator{
		stencil:   m.stencil,
		partition: m.partition,
		shift:     make([]float64, tf.Len()),
		precond:   make([]float64, tf.Len()),
	}
	for i, val := range tf.Data() {
		op.shift[i] = (m.Friction + val) / m.Depth
		op.precond[i] = m.stencilDgn[i] + op.shift[i]
	}
	return
}

func (m *Model) checkFriction(friction []turbines.Field) (err error) {
	if len(friction) != 1 && len(friction) != m.NumLevels {
		return fmt.Errorf("have %d friction fields for %d time levels", len(friction), m.NumLevels)
	}
	for _, tf := range friction {
		if tf.IsNil() || tf.Len() != m.Grid.NumNodes() {
			return fmt.Errorf("friction field does not match the %d grid nodes", m.Grid.NumNodes())
		}
	}
	return
}

func (m *Model) Solve(friction []turbines.Field, initial functional.State, record bool) (j float64, final functional.State, err error) {
	var (
		start = time.Now()
		w     = m.weight()
		tr    = &trace{sens: make(map[int]turbines.Field)}
	)
	if err = m.checkFriction(friction); err != nil {
		return
	}
	final = make(functional.State, m.NumLevels)
	for k := 0; k < m.NumLevels; k++ {
		var (
			tf    = friction[0]
			b     = utils.NewVectorConst(m.Grid.NumNodes(), m.Forcing(k))
			u     = m.Grid.NewField()
			op    *operator
			iters int
		)
		if len(friction) == m.NumLevels {
			tf = friction[k]
		}
		if len(initial) == m.NumLevels && !initial[k].IsNil() && initial[k].Len() == u.Len() {
			copy(u.Data(), initial[k].Data())
		}
		op = m.operator(tf)
		if iters, err = op.conjugateGradient(u.Data(), b.Data(), m.Tolerance, m.MaxIterations); err != nil {
			return 0, nil, fmt.Errorf("time level %d: %w", k, err)
		}
		m.iterations += iters
		if utils.IsNan(u) {
			return 0, nil, fmt.Errorf("time level %d: velocity has NaN entries", k)
		}
		for i, val := range u.Data() {
			j += w * tf.AtVec(i) * utils.POW(val, 3)
		}
		final[k] = u
		tr.levels = append(tr.levels, levelTrace{op: op, tf: tf, u: u})
	}
	m.solves++
	if record {
		m.trace = tr
	}
	if m.Verbose {
		fmt.Printf("Solve %d, J = %12.8f, runtime = %v, %s\n", m.solves, j, time.Since(start), utils.GetMemUsage())
	}
	return
}
