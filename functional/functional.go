package functional

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/notargets/gotidal/checkpoint"
	"github.com/notargets/gotidal/controls"
	"github.com/notargets/gotidal/gradient"
	"github.com/notargets/gotidal/memoize"
	"github.com/notargets/gotidal/scaling"
	"github.com/notargets/gotidal/turbines"
	"github.com/notargets/gotidal/types"
	"github.com/notargets/gotidal/verify"
)

const (
	AutoCheckpointBase   = "checkpoint"
	FunctionalValuesFile = "functional_values.txt"
)

// ForwardOptions and GradientOptions are part of the cache keys
type ForwardOptions struct {
	Annotate bool
}

type GradientOptions struct {
	Forget bool
}

type Options struct {
	Strategy             memoize.KeyStrategy
	Fixed                controls.Controls // Configured turbines, supplies the inactive controls
	Scale                float64
	AutomaticScaling     bool
	ScalingMultiplier    float64
	SaveCheckpoints      bool
	BasePath             string
	SaveFunctionalValues bool
	WarmStart            bool
	TaylorSeed           float64
	TaylorTolerance      float64
	TaylorSteps          int
	DirectionSeed        uint64
	Verbose              bool
}

/*
ReducedFunctional is the functional of the turbine controls alone, with the flow eliminated
through the model. The optimiser calls Objective and Gradient in turn; both are memoized so
that repeated requests for the same control vector never repeat a solve.

The gradient needs the trace left behind by a forward solve of the same control vector. When
asked for the gradient at a vector other than the last one solved, the forward solve is run
again first, even when its value is already cached.

A ReducedFunctional is not safe for concurrent use.
*/
type ReducedFunctional struct {
	Spec        controls.ControlSpec
	Grid        *turbines.Grid
	opts        Options
	model       Model
	fields      *turbines.FieldCache
	fwd         *memoize.Memoizer[ForwardOptions, float64]
	adj         *memoize.Memoizer[GradientOptions, []float64]
	scale       *scaling.ScaleState
	checkpoints *checkpoint.Manager
	lastM       []float64 // control vector of the last forward solve, nil when no trace is valid
	fieldsM     []float64 // control vector the current fields were built for
	lastState   State
	lastJ       float64 // raw value of the last Objective request
	iteration   int
	err         error // first failure inside an optimize.Problem callback
}

func New(g *turbines.Grid, cs controls.ControlSpec, model Model, opts Options) (rf *ReducedFunctional, err error) {
	if err = cs.Validate(); err != nil {
		return
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.AutomaticScaling && cs.PositionLen() == 0 {
		return nil, fmt.Errorf("%w: automatic scaling only works if the turbine positions are control parameters",
			types.ErrUnsupportedControls)
	}
	rf = &ReducedFunctional{
		Spec:  cs,
		Grid:  g,
		opts:  opts,
		model: model,
		scale: scaling.NewScaleState(opts.Scale, opts.AutomaticScaling, opts.ScalingMultiplier),
	}
	if rf.fields, err = turbines.NewFieldCache(g, cs); err != nil {
		return nil, err
	}
	if rf.checkpoints, err = checkpoint.NewManager(opts.BasePath); err != nil {
		return nil, err
	}
	rf.fwd = memoize.New(rf.computeFunctional, opts.Strategy)
	rf.adj = memoize.New(rf.computeGradient, opts.Strategy)
	return
}

func (rf *ReducedFunctional) Iteration() int              { return rf.iteration }
func (rf *ReducedFunctional) Scaling() scaling.ScaleState { return *rf.scale }
func (rf *ReducedFunctional) Fields() *turbines.FieldSet  { return rf.fields.Current() }
func (rf *ReducedFunctional) Err() error                  { return rf.err }

// ForwardRecords and GradientRecords report the cached evaluations
func (rf *ReducedFunctional) ForwardRecords() int  { return rf.fwd.Len() }
func (rf *ReducedFunctional) GradientRecords() int { return rf.adj.Len() }

// InitialControl is the control vector of the configured turbines
func (rf *ReducedFunctional) InitialControl() ([]float64, error) {
	return controls.InitialControl(rf.opts.Fixed, rf.Spec)
}

// updateFields decodes m over the configured turbines and rebuilds the friction fields
func (rf *ReducedFunctional) updateFields(m []float64) (fs *turbines.FieldSet, err error) {
	var (
		c controls.Controls
	)
	if c, err = controls.Decode(m, rf.Spec); err != nil {
		return
	}
	rf.fieldsM = nil
	if fs, err = rf.fields.Update(controls.Merge(c, rf.opts.Fixed, rf.Spec)); err != nil {
		return
	}
	rf.fieldsM = slices.Clone(m)
	return
}

// currentFields returns the fields for m, rebuilding them only when m differs from the last vector
func (rf *ReducedFunctional) currentFields(m []float64) (*turbines.FieldSet, error) {
	if rf.fieldsM != nil && slices.Equal(m, rf.fieldsM) {
		return rf.fields.Current(), nil
	}
	return rf.updateFields(m)
}

func (rf *ReducedFunctional) computeFunctional(m []float64, opts ForwardOptions) (j float64, err error) {
	var (
		fs      *turbines.FieldSet
		initial State
		final   State
		start   = time.Now()
	)
	if fs, err = rf.currentFields(m); err != nil {
		return
	}
	if rf.opts.WarmStart {
		initial = rf.lastState
	}
	// The trace of the previous solve is stale from here on
	rf.lastM = nil
	if j, final, err = rf.model.Solve(fs.Friction, initial, opts.Annotate); err != nil {
		return
	}
	if rf.opts.WarmStart {
		rf.lastState = final
	}
	if opts.Annotate {
		rf.lastM = slices.Clone(m)
	}
	if rf.opts.Verbose {
		fmt.Printf("j = %v, runtime = %v\n", j, time.Since(start))
	}
	return
}

// functionalAt is the cached functional at m, or the last objective value if m was never evaluated
func (rf *ReducedFunctional) functionalAt(m []float64) float64 {
	fo := ForwardOptions{Annotate: true}
	if rf.fwd.HasCache(m, fo) {
		if j, err := rf.fwd.Call(m, fo); err == nil {
			return j
		}
	}
	return rf.lastJ
}

func (rf *ReducedFunctional) appendFunctionalValue(j float64) (err error) {
	var (
		file *os.File
	)
	path := filepath.Join(rf.checkpoints.BaseDir, FunctionalValuesFile)
	if file, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err != nil {
		return fmt.Errorf("unable to record functional value: %w", err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	_, err = fmt.Fprintf(file, "%.16e\n", j)
	return
}

func (rf *ReducedFunctional) computeGradient(m []float64, opts GradientOptions) (dj []float64, err error) {
	var (
		start = time.Now()
	)
	if rf.lastM == nil || !slices.Equal(m, rf.lastM) {
		// Re-establish the trace, bypassing the forward cache if it already holds m
		fo := ForwardOptions{Annotate: true}
		if rf.fwd.HasCache(m, fo) {
			_, err = rf.computeFunctional(m, fo)
		} else {
			_, err = rf.fwd.Call(m, fo)
		}
		if err != nil {
			return
		}
	}
	if _, err = rf.currentFields(m); err != nil {
		return
	}
	if dj, err = gradient.Assemble(adjointSensitivities{rf.model}, rf.fields.Current(), rf.Spec); err != nil {
		return
	}
	if opts.Forget {
		rf.model.Forget()
		rf.lastM = nil
	}
	if rf.opts.Verbose {
		fmt.Printf("|dj| = %v, runtime = %v\n", floats.Norm(dj, 2), time.Since(start))
	}
	return
}

// Objective returns the scaled functional at m
func (rf *ReducedFunctional) Objective(m []float64) (j float64, err error) {
	if err = rf.Spec.CheckLength(m); err != nil {
		return
	}
	if j, err = rf.fwd.Call(m, ForwardOptions{Annotate: true}); err != nil {
		return
	}
	rf.lastJ = j
	if rf.scale.Pending() {
		var dj []float64
		if dj, err = rf.adj.Call(m, GradientOptions{Forget: false}); err != nil {
			return
		}
		if err = rf.computeScaling(dj); err != nil {
			return
		}
	}
	if err = rf.autoCheckpoint(); err != nil {
		return
	}
	return rf.scale.Apply(j), nil
}

func (rf *ReducedFunctional) computeScaling(dj []float64) (err error) {
	if !rf.scale.Pending() {
		return
	}
	if err = rf.scale.ComputeFactor(dj, rf.Spec); err != nil {
		return
	}
	if rf.opts.Verbose {
		fmt.Printf("Set automatic scaling factor to %e\n", rf.scale.Factor)
	}
	return
}

// Gradient returns the scaled gradient at m and counts an optimisation iteration
func (rf *ReducedFunctional) Gradient(m []float64) (dj []float64, err error) {
	var (
		opts = GradientOptions{Forget: true}
	)
	if err = rf.Spec.CheckLength(m); err != nil {
		return
	}
	rf.iteration++
	if rf.opts.Verbose {
		fmt.Printf("Start of optimisation iteration %d\n", rf.iteration)
	}
	if rf.adj.HasCache(m, opts) {
		// No solve will happen, the fields still have to follow m
		if _, err = rf.currentFields(m); err != nil {
			return
		}
	}
	if dj, err = rf.adj.Call(m, opts); err != nil {
		return
	}
	if rf.opts.Verbose && rf.Spec.Kind == types.SmearedField {
		fmt.Printf("Total amount of friction: %v\n", rf.Grid.Integral(rf.fields.Current().Friction[0]))
	}
	if rf.opts.SaveFunctionalValues {
		// One entry per optimisation iteration
		if err = rf.appendFunctionalValue(rf.functionalAt(m)); err != nil {
			return
		}
	}
	if err = rf.computeScaling(dj); err != nil {
		return
	}
	if err = rf.autoCheckpoint(); err != nil {
		return
	}
	return rf.scale.ApplyVec(dj), nil
}

// GradientWithCheck runs a Taylor test of the gradient at m before returning it
func (rf *ReducedFunctional) GradientWithCheck(m []float64, seed, tol float64) (dj []float64, err error) {
	var (
		tr verify.TaylorResult
	)
	if err = rf.Spec.CheckLength(m); err != nil {
		return
	}
	p := verify.RandomDirection(len(m), rf.opts.DirectionSeed)
	if tr, err = verify.TaylorCheck(rf.Objective, rf.Gradient, m, p, seed, rf.taylorSteps()); err != nil {
		return
	}
	if rf.opts.Verbose {
		tr.Print()
	}
	if err = verify.Check(tr, tol); err != nil {
		return
	}
	return rf.Gradient(m)
}

func (rf *ReducedFunctional) taylorSteps() int {
	if rf.opts.TaylorSteps < 2 {
		return 5
	}
	return rf.opts.TaylorSteps
}

// Derivative is the optimiser entry point, optionally verifying the gradient first
func (rf *ReducedFunctional) Derivative(m []float64, taylorTest bool) ([]float64, error) {
	if taylorTest {
		seed, tol := rf.opts.TaylorSeed, rf.opts.TaylorTolerance
		if seed == 0 {
			seed = 0.001
		}
		if tol == 0 {
			tol = 1.9
		}
		return rf.GradientWithCheck(m, seed, tol)
	}
	return rf.Gradient(m)
}

func (rf *ReducedFunctional) Hessian(m, dm []float64) ([]float64, error) {
	return nil, fmt.Errorf("%w: hessian of the reduced functional", types.ErrNotImplemented)
}

func (rf *ReducedFunctional) autoCheckpoint() error {
	if !rf.opts.SaveCheckpoints {
		return nil
	}
	return rf.SaveCheckpoint(AutoCheckpointBase)
}

func (rf *ReducedFunctional) SaveCheckpoint(base string) error {
	return rf.checkpoints.Save(base, rf.fwd, rf.adj)
}

// LoadCheckpoint restores both caches, only into a session that has evaluated nothing yet
func (rf *ReducedFunctional) LoadCheckpoint(base string) (err error) {
	if n := rf.fwd.Len() + rf.adj.Len(); n != 0 {
		return fmt.Errorf("%w: session holds %d records", types.ErrCheckpointConflict, n)
	}
	if err = rf.checkpoints.Load(base, rf.fwd, rf.adj); err != nil {
		rf.fwd.Clear()
		rf.adj.Clear()
		return
	}
	if rf.opts.Verbose {
		fmt.Printf("Loaded %d functional and %d gradient records from checkpoint %q\n",
			rf.fwd.Len(), rf.adj.Len(), base)
	}
	return
}

/*
Problem adapts the session to gonum's optimize package. Gonum callbacks can not return errors,
so a failed evaluation is stored, reported by Err, and answered with +Inf (NaN for gradients)
which stops the line search. A control vector of the wrong length is a programming error and
panics.
*/
func (rf *ReducedFunctional) Problem() optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			j, err := rf.Objective(x)
			if err != nil {
				rf.fail(err)
				return math.Inf(1)
			}
			return j
		},
		Grad: func(grad, x []float64) {
			if len(grad) != len(x) {
				panic(fmt.Errorf("%w: gradient buffer %d, control vector %d",
					types.ErrInvalidControlLength, len(grad), len(x)))
			}
			dj, err := rf.Gradient(x)
			if err != nil {
				rf.fail(err)
				for i := range grad {
					grad[i] = math.NaN()
				}
				return
			}
			copy(grad, dj)
		},
	}
}

func (rf *ReducedFunctional) fail(err error) {
	if errors.Is(err, types.ErrInvalidControlLength) {
		panic(err)
	}
	if rf.err == nil {
		rf.err = err
	}
}
