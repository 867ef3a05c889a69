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
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/notargets/gotidal/verify"
)

// TaylorCmd represents the taylor command
var TaylorCmd = &cobra.Command{
	Use:   "taylor",
	Short: "Verify the adjoint gradient with a Taylor remainder test",
	Long: `
Perturbs the initial controls along a random direction and reports the convergence
order of the first order Taylor remainder, which is 2 for a correct gradient,

gotidal taylor -I input.yml [--csv taylor.csv]`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		rt := &RunTidal{}
		if rt.ICFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			return
		}
		rt.CSVFile, _ = cmd.Flags().GetString("csv")
		return RunTaylor(rt)
	},
}

func init() {
	rootCmd.AddCommand(TaylorCmd)
	TaylorCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters, TaylorSeed, TaylorSteps and TaylorTolerance drive the test")
	TaylorCmd.Flags().String("csv", "", "write the step sizes, residuals and orders to this CSV file")
}

func RunTaylor(rt *RunTidal) (err error) {
	var (
		s  *session
		m0 []float64
		tr verify.TaylorResult
	)
	ip, err := processInput(rt)
	if err != nil {
		return
	}
	if s, err = newSession(ip); err != nil {
		return
	}
	if m0, err = s.rf.InitialControl(); err != nil {
		return
	}
	p := verify.RandomDirection(len(m0), ip.DirectionSeed)
	if tr, err = verify.TaylorCheck(s.rf.Objective, s.rf.Gradient, m0, p, ip.TaylorSeed, ip.TaylorSteps); err != nil {
		return
	}
	tr.Print()
	if len(rt.CSVFile) != 0 {
		if err = WriteTaylorCSV(rt.CSVFile, tr); err != nil {
			return
		}
	}
	if err = verify.Check(tr, ip.TaylorTolerance); err != nil {
		return
	}
	fmt.Printf("Minimum convergence order %8.5f\n", tr.MinOrder)
	return
}

// WriteTaylorCSV writes one row per step size, the orders of the first row are empty
func WriteTaylorCSV(fileName string, tr verify.TaylorResult) (err error) {
	var (
		f *os.File
	)
	if f, err = os.Create(fileName); err != nil {
		return
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	format := func(x float64) string { return strconv.FormatFloat(x, 'e', 10, 64) }
	if err = w.Write([]string{"h", "r0", "order0", "r1", "order1"}); err != nil {
		return
	}
	for i, h := range tr.Steps {
		rec := []string{format(h), format(tr.Residual0[i]), "", format(tr.Residual1[i]), ""}
		if i > 0 {
			rec[2], rec[4] = format(tr.Order0[i-1]), format(tr.Order1[i-1])
		}
		if err = w.Write(rec); err != nil {
			return
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return
	}
	return bw.Flush()
}
