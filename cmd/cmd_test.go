package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gotidal/checkpoint"
)

func writeInput(t *testing.T, dir, extra string) (fileName string) {
	fileInput := fmt.Sprintf(`
Title: Test Case
BasinX: 200
BasinY: 100
Nx: 40
Ny: 20
TurbinePos: [[70, 50], [130, 50]]
TurbineFriction: [2, 2]
TurbineX: 40
TurbineY: 30
Controls: [turbine_pos, dynamic_turbine_friction]
NumLevels: 3
Depth: 2
Friction: 0.5
Inflow: 1
Diffusion: 100
CGTolerance: 1.e-13
Scale: -1
TaylorSeed: 0.1
TaylorSteps: 4
DirectionSeed: 7
BasePath: %s
%s`, dir, extra)
	fileName = filepath.Join(dir, "input.yml")
	require.NoError(t, os.WriteFile(fileName, []byte(fileInput), 0644))
	return
}

func TestProcessInput(t *testing.T) {
	_, err := processInput(&RunTidal{})
	assert.Error(t, err)
	_, err = processInput(&RunTidal{ICFile: filepath.Join(t.TempDir(), "missing.yml")})
	assert.Error(t, err)
	dir := t.TempDir()
	ip, err := processInput(&RunTidal{ICFile: writeInput(t, dir, "")})
	require.NoError(t, err)
	assert.Equal(t, "Test Case", ip.Title)
	assert.Equal(t, dir, ip.BasePath)
	s, err := newSession(ip)
	require.NoError(t, err)
	assert.Equal(t, 3*2+4, s.cs.Len())
}

func TestRunTaylor(t *testing.T) {
	dir := t.TempDir()
	rt := &RunTidal{ICFile: writeInput(t, dir, ""), CSVFile: filepath.Join(dir, "taylor.csv")}
	require.NoError(t, RunTaylor(rt))
	f, err := os.Open(rt.CSVFile)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Equal(t, 5, len(records))
	assert.Equal(t, []string{"h", "r0", "order0", "r1", "order1"}, records[0])
	assert.Equal(t, "", records[1][4])
	for _, rec := range records[2:] {
		order, err := strconv.ParseFloat(rec[4], 64)
		require.NoError(t, err)
		assert.True(t, order > 1.9)
	}
}

func TestRunOptimize(t *testing.T) {
	dir := t.TempDir()
	rt := &RunTidal{ICFile: writeInput(t, dir, "MaxIterations: 2\nSaveCheckpoints: true\nSaveFunctionalValues: true\n")}
	require.NoError(t, RunOptimize(rt))
	mgr, err := checkpoint.NewManager(dir)
	require.NoError(t, err)
	bases, err := mgr.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"checkpoint", "final"}, bases)
	_, err = os.Stat(filepath.Join(dir, "functional_values.txt"))
	assert.NoError(t, err)
	{ // A second run resumes from the final caches
		rt.Resume = "final"
		require.NoError(t, RunOptimize(rt))
		rt.Resume = "missing"
		assert.Error(t, RunOptimize(rt))
	}
	assert.NoError(t, ListCheckpoints(dir))
}
