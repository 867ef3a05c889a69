package turbines

import (
	"fmt"

	"github.com/notargets/gotidal/utils"
)

// Field holds nodal values on a Grid, x index varying fastest
type Field = utils.Vector

// Grid is a rectangular basin [0,BasinX]x[0,BasinY] split into Nx by Ny cells
type Grid struct {
	BasinX, BasinY float64
	Nx, Ny         int
	Dx, Dy         float64
}

func NewGrid(basinX, basinY float64, nx, ny int) (g *Grid, err error) {
	if nx < 1 || ny < 1 {
		err = fmt.Errorf("grid needs at least one cell in each direction, have %dx%d", nx, ny)
		return
	}
	if basinX <= 0 || basinY <= 0 {
		err = fmt.Errorf("basin must have a positive area, have %v x %v", basinX, basinY)
		return
	}
	g = &Grid{
		BasinX: basinX, BasinY: basinY,
		Nx: nx, Ny: ny,
		Dx: basinX / float64(nx), Dy: basinY / float64(ny),
	}
	return
}

func (g *Grid) NodesX() int   { return g.Nx + 1 }
func (g *Grid) NodesY() int   { return g.Ny + 1 }
func (g *Grid) NumNodes() int { return g.NodesX() * g.NodesY() }

func (g *Grid) Index(i, j int) int { return i + g.NodesX()*j }

func (g *Grid) Coord(k int) (x, y float64) {
	var (
		i = k % g.NodesX()
		j = k / g.NodesX()
	)
	x, y = float64(i)*g.Dx, float64(j)*g.Dy
	return
}

func (g *Grid) NewField() Field { return utils.NewVector(g.NumNodes()) }

// FieldFrom wraps nodal coefficients, copying them
func (g *Grid) FieldFrom(data []float64) (f Field, err error) {
	if len(data) != g.NumNodes() {
		err = fmt.Errorf("field needs %d nodal values, have %d", g.NumNodes(), len(data))
		return
	}
	f = g.NewField()
	copy(f.Data(), data)
	return
}

// Integral approximates the area integral of a field with the trapezoidal rule
func (g *Grid) Integral(f Field) (sum float64) {
	var (
		data = f.Data()
	)
	for j := 0; j < g.NodesY(); j++ {
		wy := 1.
		if j == 0 || j == g.Ny {
			wy = 0.5
		}
		for i := 0; i < g.NodesX(); i++ {
			wx := 1.
			if i == 0 || i == g.Nx {
				wx = 0.5
			}
			sum += wx * wy * data[g.Index(i, j)]
		}
	}
	sum *= g.Dx * g.Dy
	return
}
