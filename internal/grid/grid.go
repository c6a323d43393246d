// Package grid derives tiles of an unbounded 2D lattice from a session seed
// and answers pathfinding queries over it. Tiles are pure functions of
// (seed, x, y) and are never stored.
package grid

// Position is a point on the unbounded lattice.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Chebyshev returns the Chebyshev distance to another position. This is the
// metric for 8-connected movement and attack range checks.
func (p Position) Chebyshev(o Position) int {
	dx := abs(p.X - o.X)
	dy := abs(p.Y - o.Y)
	if dy > dx {
		return dy
	}
	return dx
}

// Adjacent reports whether o is one 8-connected step away (or equal).
func (p Position) Adjacent(o Position) bool {
	return p.Chebyshev(o) <= 1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// TileKind classifies a generated tile.
type TileKind string

const (
	TileFloor TileKind = "floor"
	TileWall  TileKind = "wall"
	TileWater TileKind = "water"
	TileShop  TileKind = "shop"
)

// Tile is the generated attribute set for one position.
type Tile struct {
	Walkable bool
	Kind     TileKind
}

// clearRadius keeps the area around the origin free of generated walls so
// session rosters always spawn on open ground.
const clearRadius = 4

// Generator produces tiles deterministically from a seed. The zero density
// yields an all-floor map; the default is set by session configuration.
type Generator struct {
	Seed         int64
	WallDensity  float64
	ShopOffset   Position
	WaterOffsets []Position
}

// TileAt returns the tile at (x, y). Pure and total: identical inputs always
// yield identical outputs, with no I/O and no failure mode.
func (g *Generator) TileAt(x, y int) Tile {
	p := Position{X: x, Y: y}
	if p == g.ShopOffset {
		return Tile{Walkable: true, Kind: TileShop}
	}
	for _, w := range g.WaterOffsets {
		if p == w {
			return Tile{Walkable: false, Kind: TileWater}
		}
	}
	if p.Chebyshev(Position{}) > clearRadius && g.noise(x, y) < g.WallDensity {
		return Tile{Walkable: false, Kind: TileWall}
	}
	return Tile{Walkable: true, Kind: TileFloor}
}

// Walkable reports whether the tile at p can be stood on.
func (g *Generator) Walkable(p Position) bool {
	return g.TileAt(p.X, p.Y).Walkable
}

// noise maps (seed, x, y) to a uniform value in [0, 1) via a splitmix64
// finalizer over the packed coordinates.
func (g *Generator) noise(x, y int) float64 {
	z := uint64(g.Seed)
	z ^= uint64(uint32(x))<<32 | uint64(uint32(y))
	z += 0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return float64(z>>11) / (1 << 53)
}

// steps are the 8-connected neighbor offsets, in a fixed order so search
// results are deterministic. Cardinals come first: equal-length paths
// resolve to straight lines rather than zig-zags.
var steps = [8]Position{
	{0, -1}, {1, 0}, {0, 1}, {-1, 0},
	{1, -1}, {1, 1}, {-1, 1}, {-1, -1},
}
