package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileAtDeterministic(t *testing.T) {
	a := &Generator{Seed: 42, WallDensity: 0.12}
	b := &Generator{Seed: 42, WallDensity: 0.12}
	for x := -50; x <= 50; x += 7 {
		for y := -50; y <= 50; y += 7 {
			require.Equal(t, a.TileAt(x, y), b.TileAt(x, y), "tile (%d,%d)", x, y)
		}
	}
}

func TestTileAtSeedChangesLayout(t *testing.T) {
	a := &Generator{Seed: 1, WallDensity: 0.3}
	b := &Generator{Seed: 2, WallDensity: 0.3}
	diff := 0
	for x := -40; x <= 40; x++ {
		for y := -40; y <= 40; y++ {
			if a.TileAt(x, y) != b.TileAt(x, y) {
				diff++
			}
		}
	}
	assert.Greater(t, diff, 0)
}

func TestWallDensityApproximate(t *testing.T) {
	g := &Generator{Seed: 9, WallDensity: 0.12}
	walls, total := 0, 0
	for x := 100; x < 200; x++ {
		for y := 100; y < 200; y++ {
			total++
			if g.TileAt(x, y).Kind == TileWall {
				walls++
			}
		}
	}
	ratio := float64(walls) / float64(total)
	assert.InDelta(t, 0.12, ratio, 0.03)
}

func TestOriginAreaClear(t *testing.T) {
	g := &Generator{Seed: 77, WallDensity: 0.9}
	for x := -clearRadius; x <= clearRadius; x++ {
		for y := -clearRadius; y <= clearRadius; y++ {
			require.True(t, g.TileAt(x, y).Walkable, "(%d,%d) should be clear", x, y)
		}
	}
}

func TestSpecialTiles(t *testing.T) {
	g := &Generator{
		Seed:         3,
		WallDensity:  0.12,
		ShopOffset:   Position{X: 3, Y: 3},
		WaterOffsets: []Position{{X: -2, Y: 1}},
	}
	shop := g.TileAt(3, 3)
	assert.Equal(t, TileShop, shop.Kind)
	assert.True(t, shop.Walkable)

	water := g.TileAt(-2, 1)
	assert.Equal(t, TileWater, water.Kind)
	assert.False(t, water.Walkable)
}

func TestChebyshev(t *testing.T) {
	cases := []struct {
		a, b Position
		want int
	}{
		{Position{0, 0}, Position{0, 0}, 0},
		{Position{0, 0}, Position{1, 1}, 1},
		{Position{0, 0}, Position{3, -2}, 3},
		{Position{-1, -1}, Position{2, 5}, 6},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.a.Chebyshev(c.b))
		assert.Equal(t, c.want, c.b.Chebyshev(c.a))
	}
}
