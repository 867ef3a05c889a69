/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/optimize"

	"github.com/notargets/gotidal/InputParameters"
	"github.com/notargets/gotidal/controls"
	"github.com/notargets/gotidal/functional"
	"github.com/notargets/gotidal/model_problems/FrictionFlow"
)

type RunTidal struct {
	ICFile     string
	Resume     string
	ProfileDir string
	CSVFile    string
	Check      bool
}

// OptimizeCmd represents the optimize command
var OptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Maximise the power extracted by a turbine array",
	Long: `
Runs L-BFGS on the reduced functional of the turbine controls, using adjoint gradients,

gotidal optimize -I input.yml [--resume checkpoint] [--check]`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		rt := &RunTidal{}
		if rt.ICFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			return
		}
		rt.Resume, _ = cmd.Flags().GetString("resume")
		rt.ProfileDir, _ = cmd.Flags().GetString("profile")
		rt.Check, _ = cmd.Flags().GetBool("check")
		return RunOptimize(rt)
	},
}

func init() {
	rootCmd.AddCommand(OptimizeCmd)
	OptimizeCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- basin and turbines\n\t- controls and scaling")
	OptimizeCmd.Flags().StringP("resume", "r", "", "checkpoint base name to preload the caches from")
	OptimizeCmd.Flags().String("profile", "", "write a CPU profile into this directory")
	OptimizeCmd.Flags().Bool("check", false, "verify the gradient with a Taylor test before optimising")
}

var exampleFile = `
########################################
Title: "Two turbines in a channel"
BasinX: 640
BasinY: 320
Nx: 32
Ny: 16
TurbinePos: [[200, 160], [400, 160]]
TurbineFriction: [20, 20]
TurbineX: 40
TurbineY: 20
Controls: [turbine_pos, turbine_friction] # or dynamic_turbine_friction
NumLevels: 1
Depth: 50
Friction: 0.0025
Inflow: 2
Diffusion: 10
Scale: -1
AutomaticScaling: true
########################################
`

func processInput(rt *RunTidal) (ip *InputParameters.InputParametersTidal, err error) {
	var (
		data []byte
	)
	if len(rt.ICFile) == 0 {
		fmt.Printf("Example File:%s\n", exampleFile)
		err = fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile) in YAML format")
		return
	}
	if data, err = os.ReadFile(rt.ICFile); err != nil {
		return
	}
	ip = InputParameters.NewInputParametersTidal()
	if err = ip.Parse(data); err != nil {
		err = fmt.Errorf("parsing %s: %w", rt.ICFile, err)
		return
	}
	if basePath := viper.GetString("basePath"); len(basePath) != 0 {
		ip.BasePath = basePath
	}
	if viper.GetBool("verbose") {
		ip.Verbose = true
	}
	if err = ip.Validate(); err != nil {
		return
	}
	ip.Print()
	return
}

type session struct {
	ip    *InputParameters.InputParametersTidal
	cs    controls.ControlSpec
	model *FrictionFlow.Model
	rf    *functional.ReducedFunctional
}

func newSession(ip *InputParameters.InputParametersTidal) (s *session, err error) {
	var (
		opts functional.Options
	)
	g, err := ip.Grid()
	if err != nil {
		return
	}
	s = &session{ip: ip}
	if s.cs, err = ip.ControlSpec(g.NumNodes()); err != nil {
		return
	}
	if s.model, err = FrictionFlow.NewModel(g, ip.ModelParameters()); err != nil {
		return
	}
	if opts, err = ip.FunctionalOptions(s.cs); err != nil {
		return
	}
	s.rf, err = functional.New(g, s.cs, s.model, opts)
	return
}

func RunOptimize(rt *RunTidal) (err error) {
	var (
		s      *session
		m0     []float64
		result *optimize.Result
	)
	ip, err := processInput(rt)
	if err != nil {
		return
	}
	if len(rt.ProfileDir) != 0 {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(rt.ProfileDir), profile.NoShutdownHook).Stop()
	}
	if s, err = newSession(ip); err != nil {
		return
	}
	if len(rt.Resume) != 0 {
		if err = s.rf.LoadCheckpoint(rt.Resume); err != nil {
			return
		}
		fmt.Printf("Resumed from \"%s\": %d functional and %d gradient records\n",
			rt.Resume, s.rf.ForwardRecords(), s.rf.GradientRecords())
	}
	if m0, err = s.rf.InitialControl(); err != nil {
		return
	}
	if rt.Check {
		if _, err = s.rf.Derivative(m0, true); err != nil {
			return
		}
		fmt.Println("Gradient verified")
	}
	start := time.Now()
	settings := &optimize.Settings{MajorIterations: ip.MaxIterations, GradientThreshold: ip.GradientThreshold}
	result, err = optimize.Minimize(s.rf.Problem(), m0, settings, &optimize.LBFGS{Linesearcher: &optimize.Backtracking{}})
	if result == nil || math.IsInf(result.F, 1) {
		return errors.Join(err, s.rf.Err())
	}
	if err != nil {
		fmt.Printf("warning: optimisation stopped with status %v: %v\n", result.Status, err)
		err = nil
	}
	if s.rf.Err() != nil {
		fmt.Printf("warning: the line search rejected steps where the solve failed: %v\n", s.rf.Err())
	}
	if err = printResult(s, result, time.Since(start)); err != nil {
		return
	}
	if ip.SaveCheckpoints {
		err = s.rf.SaveCheckpoint("final")
	}
	return
}

func printResult(s *session, result *optimize.Result, elapsed time.Duration) (err error) {
	var (
		c controls.Controls
	)
	fmt.Printf("Status = %v, %d major iterations, %d gradients, %d solves in %v\n",
		result.Status, result.Stats.MajorIterations, s.rf.Iteration(), s.model.Solves(), elapsed)
	fmt.Printf("%16.8e\t= Scaled functional\n", result.F)
	if factor := s.rf.Scaling().Apply(1); factor != 0 {
		fmt.Printf("%16.8e\t= Power\n", result.F/factor)
	}
	if c, err = controls.Decode(result.X, s.cs); err != nil {
		return
	}
	for i, pos := range c.Positions {
		fmt.Printf("Turbine[%d] = (%8.2f, %8.2f)\n", i, pos[0], pos[1])
	}
	for t, level := range c.Friction {
		fmt.Printf("Friction[%d] = %v\n", t, level)
	}
	return
}
