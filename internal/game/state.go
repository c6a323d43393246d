package game

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/skirmish/server/internal/grid"
	"github.com/skirmish/server/internal/rng"
)

// SessionConfig is the per-session rule configuration, fixed at creation
// from lobby input. The rules engine reads it but never mutates it.
type SessionConfig struct {
	WallDensity  float64         `json:"wallDensity"`
	ShopOffset   grid.Position   `json:"shopOffset"`
	WaterOffsets []grid.Position `json:"waterOffsets,omitempty"`
	SleepHeal    int             `json:"sleepHeal"`
	NpcTurnMode  string          `json:"npcTurnMode"` // "sequential" or "parallel"
	GameSpeed    float64         `json:"gameSpeed"`
}

// DefaultSessionConfig mirrors the original client defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		WallDensity: 0.12,
		ShopOffset:  grid.Position{X: 3, Y: 3},
		SleepHeal:   5,
		NpcTurnMode: "sequential",
		GameSpeed:   1.0,
	}
}

// State is the full authoritative record of one session. It is owned
// exclusively by the session worker; no other component mutates it.
type State struct {
	SessionID   string                `json:"sessionId"`
	Seed        int64                 `json:"seed"`
	Config      SessionConfig         `json:"config"`
	Units       map[string]*Unit      `json:"units"`
	Loot        map[string]*LootDrop  `json:"lootDrops"`
	Combat      Combat                `json:"combat"`
	Inventories map[string]*Inventory `json:"playerInventories"`
	History     []Event               `json:"turnHistory"`
	RngState    uint64                `json:"rngState"`
	LootSeq     int                   `json:"lootSeq"`

	rand *rng.Source
	gen  *grid.Generator
}

// NewState creates an empty lobby-phase session.
func NewState(sessionID string, seed int64, cfg SessionConfig) *State {
	st := &State{
		SessionID:   sessionID,
		Seed:        seed,
		Config:      cfg,
		Units:       map[string]*Unit{},
		Loot:        map[string]*LootDrop{},
		Combat:      Combat{Phase: PhaseNotStarted},
		Inventories: map[string]*Inventory{},
		rand:        rng.New(seed),
	}
	st.gen = &grid.Generator{
		Seed:         seed,
		WallDensity:  cfg.WallDensity,
		ShopOffset:   cfg.ShopOffset,
		WaterOffsets: cfg.WaterOffsets,
	}
	st.RngState = st.rand.State()
	return st
}

// Hydrate rebuilds the unexported generator and PRNG after deserialization.
func (st *State) Hydrate() {
	st.rand = rng.Restore(st.RngState)
	st.gen = &grid.Generator{
		Seed:         st.Seed,
		WallDensity:  st.Config.WallDensity,
		ShopOffset:   st.Config.ShopOffset,
		WaterOffsets: st.Config.WaterOffsets,
	}
	if st.Units == nil {
		st.Units = map[string]*Unit{}
	}
	if st.Loot == nil {
		st.Loot = map[string]*LootDrop{}
	}
	if st.Inventories == nil {
		st.Inventories = map[string]*Inventory{}
	}
}

// Rand returns the session PRNG. Every draw is mirrored into RngState so
// snapshots always capture the cursor.
func (st *State) Rand() *rng.Source {
	return st.rand
}

func (st *State) syncRng() {
	st.RngState = st.rand.State()
}

// Tiles returns the session's map generator.
func (st *State) Tiles() *grid.Generator {
	return st.gen
}

// Unit returns a unit by id, or nil.
func (st *State) Unit(id string) *Unit {
	return st.Units[id]
}

// AddUnit registers a unit. The caller guarantees the position is free.
func (st *State) AddUnit(u *Unit) {
	st.Units[u.ID] = u
}

// LivingUnitAt returns the living unit standing on p, or nil. At most one
// living unit ever occupies a position.
func (st *State) LivingUnitAt(p grid.Position) *Unit {
	for _, u := range st.Units {
		if u.Alive() && u.Pos == p {
			return u
		}
	}
	return nil
}

// UnitIDs returns all unit ids in ascending order.
func (st *State) UnitIDs() []string {
	ids := make([]string, 0, len(st.Units))
	for id := range st.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnitFor returns the living unit owned by a user, or nil.
func (st *State) UnitFor(userID string) *Unit {
	for _, id := range st.UnitIDs() {
		u := st.Units[id]
		if u.OwnerID == userID && u.Alive() {
			return u
		}
	}
	return nil
}

// InventoryFor returns the user's inventory, creating it on first use.
func (st *State) InventoryFor(userID string) *Inventory {
	inv, ok := st.Inventories[userID]
	if !ok {
		inv = NewInventory()
		st.Inventories[userID] = inv
	}
	return inv
}

// walkerFor builds the pathfinding view for one moving unit: living enemies
// block, living friendlies (other than the mover) are pass-through.
func (st *State) walkerFor(mover *Unit) *grid.Walker {
	return &grid.Walker{
		Tiles: st.gen,
		Enemy: func(p grid.Position) bool {
			u := st.LivingUnitAt(p)
			return u != nil && u.Team.PlayerSide() != mover.Team.PlayerSide()
		},
		Ally: func(p grid.Position) bool {
			u := st.LivingUnitAt(p)
			return u != nil && u.ID != mover.ID && u.Team.PlayerSide() == mover.Team.PlayerSide()
		},
	}
}

// FindPath exposes team-aware pathfinding for a unit (used by the AI driver).
func (st *State) FindPath(mover *Unit, to grid.Position) ([]grid.Position, bool) {
	return st.walkerFor(mover).FindPath(mover.Pos, to)
}

// Reachable exposes the stop-on set for a unit.
func (st *State) Reachable(mover *Unit) map[grid.Position]int {
	budget := mover.Stats.MoveRange
	if st.Combat.Turn != nil && st.Combat.Turn.UnitID == mover.ID {
		budget = st.Combat.Turn.MovementRemaining
	}
	return st.walkerFor(mover).Reachable(mover.Pos, budget)
}

// NearShop reports whether p is on or Chebyshev-adjacent to a shop tile.
func (st *State) NearShop(p grid.Position) bool {
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			t := st.gen.TileAt(p.X+dx, p.Y+dy)
			if t.Kind == grid.TileShop {
				return true
			}
		}
	}
	return false
}

// nextLootID mints a deterministic loot drop id.
func (st *State) nextLootID() string {
	st.LootSeq++
	return fmt.Sprintf("loot_%d", st.LootSeq)
}

// append records events into the turn history, preserving emission order.
func (st *State) append(events ...Event) {
	st.History = append(st.History, events...)
}

// Snapshot serializes the full session record, including the PRNG cursor,
// for the save store.
func (st *State) Snapshot() ([]byte, error) {
	st.syncRng()
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("snapshot session %s: %w", st.SessionID, err)
	}
	return raw, nil
}

// LoadState deserializes a snapshot and rehydrates it.
func LoadState(raw []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	st.Hydrate()
	return &st, nil
}

// Fingerprint returns canonical JSON of the game-visible state with the
// PRNG cursor normalized out. Two sessions that played the same actions
// from the same seed have equal fingerprints.
func (st *State) Fingerprint() (string, error) {
	st.syncRng()
	saved := st.RngState
	st.RngState = 0
	raw, err := json.Marshal(st)
	st.RngState = saved
	if err != nil {
		return "", fmt.Errorf("fingerprint session %s: %w", st.SessionID, err)
	}
	return string(raw), nil
}
