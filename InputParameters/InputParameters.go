package InputParameters

import (
	"fmt"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/gotidal/controls"
	"github.com/notargets/gotidal/functional"
	"github.com/notargets/gotidal/memoize"
	"github.com/notargets/gotidal/model_problems/FrictionFlow"
	"github.com/notargets/gotidal/turbines"
	"github.com/notargets/gotidal/types"
)

// Parameters obtained from the YAML input file, ghodss/yaml maps YAML keys through the json tags
type InputParametersTidal struct {
	Title                      string       `json:"Title"`
	BasinX                     float64      `json:"BasinX"`
	BasinY                     float64      `json:"BasinY"`
	Nx                         int          `json:"Nx"`
	Ny                         int          `json:"Ny"`
	TurbinePos                 [][2]float64 `json:"TurbinePos"`
	TurbineFriction            []float64    `json:"TurbineFriction"` // One per turbine, every time level starts from it
	TurbineX                   float64      `json:"TurbineX"`
	TurbineY                   float64      `json:"TurbineY"`
	Controls                   []string     `json:"Controls"`
	TurbineParametrisation     string       `json:"TurbineParametrisation"`
	KeyStrategy                string       `json:"KeyStrategy"` // identity or hashed, hashed by default for smeared
	NumLevels                  int          `json:"NumLevels"`
	Depth                      float64      `json:"Depth"`
	Friction                   float64      `json:"Friction"`
	Inflow                     float64      `json:"Inflow"`
	Diffusion                  float64      `json:"Diffusion"`
	Period                     float64      `json:"Period"`
	CGTolerance                float64      `json:"CGTolerance"`
	ProcLimit                  int          `json:"ProcLimit"`
	Scale                      float64      `json:"Scale"`
	AutomaticScaling           bool         `json:"AutomaticScaling"`
	AutomaticScalingMultiplier float64      `json:"AutomaticScalingMultiplier"`
	SaveCheckpoints            bool         `json:"SaveCheckpoints"`
	BasePath                   string       `json:"BasePath"`
	MaxIterations              int          `json:"MaxIterations"`
	GradientThreshold          float64      `json:"GradientThreshold"`
	TaylorSeed                 float64      `json:"TaylorSeed"`
	TaylorTolerance            float64      `json:"TaylorTolerance"`
	TaylorSteps                int          `json:"TaylorSteps"`
	DirectionSeed              uint64       `json:"DirectionSeed"`
	WarmStart                  bool         `json:"WarmStart"`
	SaveFunctionalValues       bool         `json:"SaveFunctionalValues"`
	Verbose                    bool         `json:"Verbose"`
}

func NewInputParametersTidal() *InputParametersTidal {
	return &InputParametersTidal{
		NumLevels:                  1,
		Scale:                      1,
		AutomaticScalingMultiplier: 5,
		BasePath:                   ".",
		MaxIterations:              50,
		GradientThreshold:          1.e-6,
		TaylorSeed:                 0.001,
		TaylorTolerance:            1.9,
		TaylorSteps:                5,
		Period:                     12.42 * 3600,
	}
}

// Parse overlays the input file on the current (default) values
func (ip *InputParametersTidal) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *InputParametersTidal) Validate() (err error) {
	var (
		kind types.ControlKind
	)
	switch {
	case ip.BasinX <= 0 || ip.BasinY <= 0:
		err = fmt.Errorf("basin dimensions must be positive, have %v x %v", ip.BasinX, ip.BasinY)
	case ip.Nx < 1 || ip.Ny < 1:
		err = fmt.Errorf("basin needs at least one cell per direction, have %d x %d", ip.Nx, ip.Ny)
	case ip.NumLevels < 1:
		err = fmt.Errorf("NumLevels must be at least 1, have %d", ip.NumLevels)
	case ip.TaylorSteps < 2:
		err = fmt.Errorf("TaylorSteps must be at least 2, have %d", ip.TaylorSteps)
	}
	if err != nil {
		return
	}
	if kind, _, _, err = types.ResolveControls(ip.TurbineParametrisation, ip.Controls); err != nil {
		return
	}
	if kind == types.SmearedField {
		return
	}
	switch {
	case len(ip.TurbinePos) == 0:
		err = fmt.Errorf("%w: no turbines configured", types.ErrUnsupportedControls)
	case len(ip.TurbineFriction) != len(ip.TurbinePos):
		err = fmt.Errorf("have %d turbine frictions for %d turbines", len(ip.TurbineFriction), len(ip.TurbinePos))
	case ip.TurbineX <= 0 || ip.TurbineY <= 0:
		err = fmt.Errorf("turbine extents must be positive, have %v x %v", ip.TurbineX, ip.TurbineY)
	}
	return
}

func (ip *InputParametersTidal) Grid() (*turbines.Grid, error) {
	return turbines.NewGrid(ip.BasinX, ip.BasinY, ip.Nx, ip.Ny)
}

// ControlSpec builds the control layout; fieldDim is the node count of the friction field
func (ip *InputParametersTidal) ControlSpec(fieldDim int) (cs controls.ControlSpec, err error) {
	var (
		kind               types.ControlKind
		friction, position bool
	)
	if kind, friction, position, err = types.ResolveControls(ip.TurbineParametrisation, ip.Controls); err != nil {
		return
	}
	cs = controls.ControlSpec{
		Kind:        kind,
		Friction:    friction,
		Position:    position,
		NumTurbines: len(ip.TurbinePos),
		TurbineX:    ip.TurbineX,
		TurbineY:    ip.TurbineY,
	}
	switch kind {
	case types.SmearedField:
		cs.FieldDim = fieldDim
	case types.DynamicFriction:
		cs.NumLevels = ip.NumLevels
	}
	err = cs.Validate()
	return
}

// InitialControls are the configured turbines, friction repeated on every controlled level
func (ip *InputParametersTidal) InitialControls(cs controls.ControlSpec) (c controls.Controls) {
	if cs.Kind == types.SmearedField {
		return
	}
	c.Positions = make([][2]float64, len(ip.TurbinePos))
	copy(c.Positions, ip.TurbinePos)
	for t := 0; t < cs.Levels(); t++ {
		level := make([]float64, len(ip.TurbineFriction))
		copy(level, ip.TurbineFriction)
		c.Friction = append(c.Friction, level)
	}
	return
}

func (ip *InputParametersTidal) Strategy(cs controls.ControlSpec) (ks memoize.KeyStrategy, err error) {
	switch strings.ToLower(ip.KeyStrategy) {
	case "":
		if cs.Kind == types.SmearedField {
			return memoize.HashedKeys, nil
		}
		return memoize.IdentityKeys, nil
	case "identity":
		return memoize.IdentityKeys, nil
	case "hashed", "hash":
		return memoize.HashedKeys, nil
	}
	return ks, fmt.Errorf("unknown key strategy %q", ip.KeyStrategy)
}

func (ip *InputParametersTidal) ModelParameters() FrictionFlow.Parameters {
	return FrictionFlow.Parameters{
		Depth:     ip.Depth,
		Friction:  ip.Friction,
		Inflow:    ip.Inflow,
		Diffusion: ip.Diffusion,
		Period:    ip.Period,
		NumLevels: ip.NumLevels,
		Tolerance: ip.CGTolerance,
		ProcLimit: ip.ProcLimit,
		Verbose:   ip.Verbose,
	}
}

func (ip *InputParametersTidal) FunctionalOptions(cs controls.ControlSpec) (opts functional.Options, err error) {
	opts = functional.Options{
		Fixed:                ip.InitialControls(cs),
		Scale:                ip.Scale,
		AutomaticScaling:     ip.AutomaticScaling,
		ScalingMultiplier:    ip.AutomaticScalingMultiplier,
		SaveCheckpoints:      ip.SaveCheckpoints,
		BasePath:             ip.BasePath,
		SaveFunctionalValues: ip.SaveFunctionalValues,
		WarmStart:            ip.WarmStart,
		TaylorSeed:           ip.TaylorSeed,
		TaylorTolerance:      ip.TaylorTolerance,
		TaylorSteps:          ip.TaylorSteps,
		DirectionSeed:        ip.DirectionSeed,
		Verbose:              ip.Verbose,
	}
	opts.Strategy, err = ip.Strategy(cs)
	return
}

func (ip *InputParametersTidal) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("%8.2f x %8.2f\t= Basin\n", ip.BasinX, ip.BasinY)
	fmt.Printf("[%d x %d]\t\t= Cells\n", ip.Nx, ip.Ny)
	fmt.Printf("[%d]\t\t\t\t= Turbines\n", len(ip.TurbinePos))
	for i, pos := range ip.TurbinePos {
		var friction float64
		if i < len(ip.TurbineFriction) {
			friction = ip.TurbineFriction[i]
		}
		fmt.Printf("Turbine[%d] = (%8.2f, %8.2f), friction %8.5f\n", i, pos[0], pos[1], friction)
	}
	fmt.Printf("%8.2f x %8.2f\t= Turbine Extent\n", ip.TurbineX, ip.TurbineY)
	fmt.Printf("%v\t= Controls\n", ip.Controls)
	fmt.Printf("[%s]\t\t= Turbine Parametrisation\n", ip.TurbineParametrisation)
	fmt.Printf("[%d]\t\t\t\t= Time Levels\n", ip.NumLevels)
	fmt.Printf("%8.5f\t\t= Depth\n", ip.Depth)
	fmt.Printf("%8.5f\t\t= Friction\n", ip.Friction)
	fmt.Printf("%8.5f\t\t= Inflow\n", ip.Inflow)
	fmt.Printf("%8.5f\t\t= Diffusion\n", ip.Diffusion)
	fmt.Printf("%8.5f\t\t= Scale\n", ip.Scale)
	if ip.AutomaticScaling {
		fmt.Printf("%8.5f\t\t= Automatic Scaling Multiplier\n", ip.AutomaticScalingMultiplier)
	}
	if ip.SaveCheckpoints {
		fmt.Printf("[%s]\t\t\t= Checkpoint Path\n", ip.BasePath)
	}
}
