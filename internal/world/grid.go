// Package world holds the authoritative voxel grid and the generators that
// seed it at startup.
package world

import (
	"errors"
	"fmt"
	"sync"
)

// Empty is the block code of an unoccupied cell.
const Empty = 0

// ErrOutOfBounds is returned when a coordinate lies outside the grid extent.
var ErrOutOfBounds = errors.New("position out of bounds")

// Snapshot is a deep copy of the grid indexed [x][y][z].
type Snapshot [][][]int

// At returns the block code at (x, y, z).
//
// Precondition: the coordinate lies within the snapshot's extent.
func (s Snapshot) At(x, y, z int) int {
	return s[x][y][z]
}

// Grid is the fixed-extent 3D array of block codes shared by every session.
// All methods are safe for concurrent use.
//
// Invariant: every cell holds exactly one code; the extent never changes.
type Grid struct {
	width, height, depth int

	mu    sync.RWMutex
	cells []int
}

// MaxCells caps the number of cells a grid may hold.
const MaxCells = 1 << 24

// FitsCells reports whether a width x height x depth grid stays within
// MaxCells. Every extent must be >= 1.
func FitsCells(width, height, depth int) bool {
	if width > MaxCells || height > MaxCells/width {
		return false
	}
	return depth <= MaxCells/(width*height)
}

// NewGrid creates an empty grid.
//
// Precondition: width, height and depth must be >= 1 with at most MaxCells cells.
// Postcondition: Returns a grid with every cell Empty, or an error.
func NewGrid(width, height, depth int) (*Grid, error) {
	if width < 1 || height < 1 || depth < 1 {
		return nil, fmt.Errorf("grid extent must be positive, got %dx%dx%d", width, height, depth)
	}
	if !FitsCells(width, height, depth) {
		return nil, fmt.Errorf("grid extent %dx%dx%d exceeds %d cells", width, height, depth, MaxCells)
	}
	return &Grid{
		width:  width,
		height: height,
		depth:  depth,
		cells:  make([]int, width*height*depth),
	}, nil
}

// Dimensions returns the grid extent.
func (g *Grid) Dimensions() (width, height, depth int) {
	return g.width, g.height, g.depth
}

// Contains reports whether (x, y, z) lies inside the grid.
func (g *Grid) Contains(x, y, z int) bool {
	return x >= 0 && x < g.width &&
		y >= 0 && y < g.height &&
		z >= 0 && z < g.depth
}

func (g *Grid) index(x, y, z int) int {
	return (x*g.height+y)*g.depth + z
}

// Get returns the block code at (x, y, z).
//
// Postcondition: Returns ErrOutOfBounds if any coordinate is outside the extent.
func (g *Grid) Get(x, y, z int) (int, error) {
	if !g.Contains(x, y, z) {
		return 0, fmt.Errorf("get (%d,%d,%d): %w", x, y, z, ErrOutOfBounds)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[g.index(x, y, z)], nil
}

// Set overwrites the block code at (x, y, z). Concurrent writers to the same
// cell resolve last-write-wins.
//
// Postcondition: Returns ErrOutOfBounds and leaves the grid unchanged if any
// coordinate is outside the extent.
func (g *Grid) Set(x, y, z, blockType int) error {
	if !g.Contains(x, y, z) {
		return fmt.Errorf("set (%d,%d,%d): %w", x, y, z, ErrOutOfBounds)
	}
	g.mu.Lock()
	g.cells[g.index(x, y, z)] = blockType
	g.mu.Unlock()
	return nil
}

// Snapshot returns a deep copy of every cell.
//
// Postcondition: Mutating the result never affects the grid.
func (g *Grid) Snapshot() Snapshot {
	g.mu.RLock()
	flat := make([]int, len(g.cells))
	copy(flat, g.cells)
	g.mu.RUnlock()

	snap := make(Snapshot, g.width)
	for x := 0; x < g.width; x++ {
		snap[x] = make([][]int, g.height)
		for y := 0; y < g.height; y++ {
			start := g.index(x, y, 0)
			snap[x][y] = flat[start : start+g.depth : start+g.depth]
		}
	}
	return snap
}

// Count returns the number of cells holding blockType.
func (g *Grid) Count(blockType int) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, c := range g.cells {
		if c == blockType {
			n++
		}
	}
	return n
}
