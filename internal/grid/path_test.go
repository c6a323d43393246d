package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openWalker returns a walker over an all-floor map with the given unit
// classifications.
func openWalker(enemies, allies []Position) *Walker {
	enemySet := map[Position]bool{}
	for _, p := range enemies {
		enemySet[p] = true
	}
	allySet := map[Position]bool{}
	for _, p := range allies {
		allySet[p] = true
	}
	return &Walker{
		Tiles: &Generator{Seed: 1, WallDensity: 0},
		Enemy: func(p Position) bool { return enemySet[p] },
		Ally:  func(p Position) bool { return allySet[p] },
	}
}

func TestFindPathStraightLine(t *testing.T) {
	w := openWalker(nil, nil)
	path, ok := w.FindPath(Position{0, 0}, Position{3, 0})
	require.True(t, ok)
	assert.Equal(t, []Position{{0, 0}, {1, 0}, {2, 0}, {3, 0}}, path)
}

func TestFindPathDiagonalCostsOne(t *testing.T) {
	w := openWalker(nil, nil)
	path, ok := w.FindPath(Position{0, 0}, Position{3, 3})
	require.True(t, ok)
	// Diagonal steps cost 1, so the path is 4 tiles total.
	assert.Len(t, path, 4)
}

func TestFindPathSameTile(t *testing.T) {
	w := openWalker(nil, nil)
	path, ok := w.FindPath(Position{2, 2}, Position{2, 2})
	require.True(t, ok)
	assert.Equal(t, []Position{{2, 2}}, path)
}

func TestFindPathThroughAllyNotEnemy(t *testing.T) {
	// Scenario: ally at (1,0) is traversable, target tile (2,0) empty.
	w := openWalker(nil, []Position{{1, 0}})
	path, ok := w.FindPath(Position{0, 0}, Position{2, 0})
	require.True(t, ok)
	assert.Equal(t, []Position{{0, 0}, {1, 0}, {2, 0}}, path)

	// An enemy in a horizontal corridor forces a detour around it.
	w = openWalker([]Position{{1, 0}}, nil)
	path, ok = w.FindPath(Position{0, 0}, Position{2, 0})
	require.True(t, ok)
	assert.Len(t, path, 3) // e.g. (0,0) (1,1) (2,0)
	assert.NotContains(t, path, Position{1, 0})
}

func TestFindPathGoalTileAlwaysWalkable(t *testing.T) {
	// The goal may hold an enemy: the query still resolves, so callers can
	// validate adjacent attacks.
	w := openWalker([]Position{{2, 0}}, nil)
	path, ok := w.FindPath(Position{0, 0}, Position{2, 0})
	require.True(t, ok)
	assert.Equal(t, Position{2, 0}, path[len(path)-1])
}

func TestFindPathNoPath(t *testing.T) {
	// Box the start position in with enemies.
	var ring []Position
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx != 0 || dy != 0 {
				ring = append(ring, Position{dx, dy})
			}
		}
	}
	w := openWalker(ring, nil)
	_, ok := w.FindPath(Position{0, 0}, Position{10, 10})
	assert.False(t, ok)
}

func TestFindPathUnreachableGoalTerminates(t *testing.T) {
	// Unreachable goal on an unbounded grid: the search must give up
	// (pocket exhaustion or the expansion cap) instead of running forever.
	var ring []Position
	for d := -2; d <= 2; d++ {
		ring = append(ring,
			Position{d, -2}, Position{d, 2}, Position{-2, d}, Position{2, d})
	}
	w := openWalker(ring, nil)
	path, ok := w.FindPath(Position{0, 0}, Position{500, 500})
	assert.False(t, ok)
	assert.Nil(t, path)
}

func TestFindPathExpansionCap(t *testing.T) {
	// Sealing the goal behind an enemy ring leaves the whole unbounded map
	// searchable: only the 10k expansion cap stops the query.
	var ring []Position
	goal := Position{40, 40}
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx != 0 || dy != 0 {
				ring = append(ring, Position{goal.X + dx, goal.Y + dy})
			}
		}
	}
	w := openWalker(ring, nil)
	path, ok := w.FindPath(Position{0, 0}, goal)
	assert.False(t, ok)
	assert.Nil(t, path)
}

func TestReachableRespectsRange(t *testing.T) {
	w := openWalker(nil, nil)
	got := w.Reachable(Position{0, 0}, 2)
	for p, dist := range got {
		require.LessOrEqual(t, dist, 2)
		require.LessOrEqual(t, Position{0, 0}.Chebyshev(p), 2)
	}
	// 5x5 Chebyshev disk on an open map.
	assert.Len(t, got, 25)
}

func TestReachableFriendlyPassThrough(t *testing.T) {
	// A at (0,0), friendly at (1,0), (2,0) empty.
	w := openWalker(nil, []Position{{1, 0}})
	got := w.Reachable(Position{0, 0}, 2)

	_, hasTarget := got[Position{2, 0}]
	assert.True(t, hasTarget, "(2,0) must be stoppable through the ally")
	_, hasAlly := got[Position{1, 0}]
	assert.False(t, hasAlly, "ally tile must not be stoppable")
}

func TestReachableEnemyBlocks(t *testing.T) {
	// Enemies are not traversable at all.
	var wallOfEnemies []Position
	for dy := -3; dy <= 3; dy++ {
		wallOfEnemies = append(wallOfEnemies, Position{1, dy})
	}
	w := openWalker(wallOfEnemies, nil)
	got := w.Reachable(Position{0, 0}, 2)
	for p := range got {
		require.LessOrEqual(t, p.X, 0, "no tile beyond the enemy wall: %v", p)
	}
}

func TestReachableOriginAlwaysIncluded(t *testing.T) {
	w := openWalker(nil, nil)
	got := w.Reachable(Position{5, 5}, 0)
	assert.Equal(t, map[Position]int{{5, 5}: 0}, got)
}
