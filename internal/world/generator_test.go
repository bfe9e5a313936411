package world_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/YashM20/voxel-builder-threejs/internal/rng"
	"github.com/YashM20/voxel-builder-threejs/internal/world"
)

func TestDefaultGenerator_Terrain(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64Range(1, 1<<40).Draw(rt, "seed")
		g := newGrid(rt)
		require.NoError(rt, g.Set(8, 10, 8, 6))

		require.NoError(rt, world.NewDefaultGenerator().Generate(g, rng.NewSeededSource(seed)))

		snap := g.Snapshot()
		scattered := 0
		for x := 0; x < 16; x++ {
			for y := 0; y < 16; y++ {
				for z := 0; z < 16; z++ {
					c := snap.At(x, y, z)
					switch {
					case y == 0:
						assert.Equal(rt, 1, c, "ground at (%d,0,%d)", x, z)
					case y >= 1 && y <= 3:
						if c != world.Empty {
							assert.Equal(rt, 2, c)
							scattered++
						}
					default:
						assert.Equal(rt, world.Empty, c, "(%d,%d,%d) above scatter band", x, y, z)
					}
				}
			}
		}
		assert.GreaterOrEqual(rt, scattered, 1)
		assert.LessOrEqual(rt, scattered, 20)
	})
}

func TestDefaultGenerator_SeededIsDeterministic(t *testing.T) {
	a, b := newGrid(t), newGrid(t)
	gen := world.NewDefaultGenerator()
	require.NoError(t, gen.Generate(a, rng.NewSeededSource(99)))
	require.NoError(t, gen.Generate(b, rng.NewSeededSource(99)))
	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestDefaultGenerator_BandMustFit(t *testing.T) {
	g, err := world.NewGrid(4, 3, 4)
	require.NoError(t, err)
	err = world.NewDefaultGenerator().Generate(g, rng.NewSeededSource(1))
	assert.Error(t, err)
}
