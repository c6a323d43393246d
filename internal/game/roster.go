package game

import (
	"fmt"

	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/grid"
)

// PlayerSlot names one joined player when a roster is built.
type PlayerSlot struct {
	UserID string
	Name   string
}

// DefaultPlayerStats is the starting stat line for a player unit.
func DefaultPlayerStats() Stats {
	return Stats{
		HP: 20, MaxHP: 20,
		Attack: 5, Defense: 1,
		Initiative: 10, MoveRange: 5, AttackRange: 1,
	}
}

// playerSpawns are the fixed spawn offsets for player units, filled in
// join order. The generator keeps the origin area clear of walls.
var playerSpawns = []grid.Position{
	{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0},
	{X: 0, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}, {X: 1, Y: -1},
}

// MaxPlayers caps a lobby at the spawn ring size. Every player unit gets
// its own tile; there is no fallback placement.
const MaxPlayers = 8

// BuildRoster populates a lobby session with player units and seeded
// monster spawns. Monster placement draws from the session PRNG, so the
// same seed always yields the same battlefield.
func BuildRoster(st *State, players []PlayerSlot, monsters *data.MonsterTable, monsterCount int) {
	if len(players) > MaxPlayers {
		players = players[:MaxPlayers]
	}
	for i, p := range players {
		spawn := playerSpawns[i]
		st.AddUnit(&Unit{
			ID:      fmt.Sprintf("p%d", i+1),
			Team:    TeamPlayer,
			Name:    p.Name,
			OwnerID: p.UserID,
			Pos:     spawn,
			Stats:   DefaultPlayerStats(),
		})
		st.InventoryFor(p.UserID)
	}

	templates := monsters.All()
	if len(templates) == 0 {
		return
	}
	for i := 0; i < monsterCount; i++ {
		def := monsters.Get(templates[i%len(templates)])
		pos, ok := st.monsterSpawn()
		if !ok {
			break
		}
		st.AddUnit(&Unit{
			ID:   fmt.Sprintf("m%d", i+1),
			Team: TeamMonster,
			Name: def.Name,
			Pos:  pos,
			Stats: Stats{
				HP: def.HP, MaxHP: def.HP,
				Attack: def.Attack, Defense: def.Defense,
				Initiative:  def.Initiative,
				MoveRange:   def.MoveRange,
				AttackRange: def.AttackRange,
			},
		})
	}
	st.syncRng()
}

// monsterSpawn draws a walkable, unoccupied tile 3 to 8 tiles out from the
// origin. Gives up after a bounded number of draws on a dense map.
func (st *State) monsterSpawn() (grid.Position, bool) {
	for tries := 0; tries < 64; tries++ {
		x := st.rand.Range(-8, 8)
		y := st.rand.Range(-8, 8)
		p := grid.Position{X: x, Y: y}
		if p.Chebyshev(grid.Position{}) < 3 {
			continue
		}
		if !st.gen.Walkable(p) || st.LivingUnitAt(p) != nil {
			continue
		}
		return p, true
	}
	return grid.Position{}, false
}
