package world

import (
	"fmt"

	"github.com/YashM20/voxel-builder-threejs/internal/rng"
)

// Generator seeds a freshly created grid before any session connects.
type Generator interface {
	Generate(g *Grid, src rng.Source) error
}

// DefaultGenerator lays a solid ground layer at y = 0 and scatters
// ScatterCount blocks at random heights in [ScatterMinY, ScatterMaxY].
// Scatter placements may collide, so fewer distinct cells than ScatterCount
// is legal.
type DefaultGenerator struct {
	GroundBlock  int
	ScatterBlock int
	ScatterCount int
	ScatterMinY  int
	ScatterMaxY  int
}

// NewDefaultGenerator returns the stock terrain: grass ground (code 1) and
// 20 stone blocks (code 2) between heights 1 and 3.
func NewDefaultGenerator() DefaultGenerator {
	return DefaultGenerator{
		GroundBlock:  1,
		ScatterBlock: 2,
		ScatterCount: 20,
		ScatterMinY:  1,
		ScatterMaxY:  3,
	}
}

// Generate resets g to Empty and applies the terrain.
//
// Precondition: g and src must be non-nil.
// Postcondition: Every (x, 0, z) holds GroundBlock unless overwritten by a
// scatter placement; returns an error if the scatter band does not fit the grid.
func (d DefaultGenerator) Generate(g *Grid, src rng.Source) error {
	w, h, dep := g.Dimensions()
	if d.ScatterCount > 0 && (d.ScatterMinY < 0 || d.ScatterMaxY < d.ScatterMinY || d.ScatterMaxY >= h) {
		return fmt.Errorf("scatter band [%d,%d] does not fit grid height %d", d.ScatterMinY, d.ScatterMaxY, h)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cells {
		g.cells[i] = Empty
	}
	for x := 0; x < w; x++ {
		for z := 0; z < dep; z++ {
			g.cells[g.index(x, 0, z)] = d.GroundBlock
		}
	}
	span := d.ScatterMaxY - d.ScatterMinY + 1
	for i := 0; i < d.ScatterCount; i++ {
		x := src.Intn(w)
		y := d.ScatterMinY + src.Intn(span)
		z := src.Intn(dep)
		g.cells[g.index(x, y, z)] = d.ScatterBlock
	}
	return nil
}
