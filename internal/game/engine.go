package game

import (
	"fmt"
	"sort"

	"github.com/skirmish/server/internal/data"
)

// critChance is the probability that an attack crits and deals double
// damage. A rule constant, not session configuration.
const critChance = 0.10

// lootChanceScale is the denominator of loot table chances.
const lootChanceScale = 1_000_000

// Engine validates and executes actions. It is stateless apart from the
// catalogs; all game state lives in the State it is applied to.
type Engine struct {
	Weapons *data.WeaponTable
	Loot    *data.LootTable
}

// NewEngine creates a rules engine over the given catalogs.
func NewEngine(weapons *data.WeaponTable, loot *data.LootTable) *Engine {
	return &Engine{Weapons: weapons, Loot: loot}
}

// StartCombat transitions a lobby session to in_progress: initiative is
// computed, the first turn starts. No-op if combat already started.
func (e *Engine) StartCombat(st *State) []Event {
	if st.Combat.Phase != PhaseNotStarted {
		return nil
	}

	order := make([]string, 0, len(st.Units))
	for id := range st.Units {
		order = append(order, id)
	}
	// Descending initiative, ties broken by ascending unit id.
	sort.Slice(order, func(i, j int) bool {
		a, b := st.Units[order[i]], st.Units[order[j]]
		if a.Stats.Initiative != b.Stats.Initiative {
			return a.Stats.Initiative > b.Stats.Initiative
		}
		return a.ID < b.ID
	})

	st.Combat = Combat{
		Phase:            PhaseInProgress,
		Round:            1,
		InitiativeOrder:  order,
		CurrentTurnIndex: 0,
	}

	// Every controlling user has an inventory from the first round on.
	for _, id := range st.UnitIDs() {
		if owner := st.Units[id].OwnerID; owner != "" {
			st.InventoryFor(owner)
		}
	}

	events := []Event{{Type: EvCombatStarted}}
	if len(order) > 0 {
		first := st.Units[order[0]]
		st.Combat.Turn = &TurnState{
			UnitID:            first.ID,
			MovementRemaining: first.Stats.MoveRange,
		}
		events = append(events, Event{Type: EvTurnStarted, UnitID: first.ID})
	}
	st.append(events...)
	return events
}

// Apply validates and executes one action atomically. On a rule violation
// the state is unchanged and no events are emitted.
func (e *Engine) Apply(st *State, act Action) ([]Event, *RuleViolation) {
	if act.Kind == ActBuyWeapon {
		// Shopping is keyed on the user, not the turn holder.
		return e.applyBuyWeapon(st, act)
	}

	if st.Combat.Phase != PhaseInProgress {
		return nil, violation(VioNotYourTurn, "combat is not in progress")
	}
	unit := st.Unit(act.UnitID)
	if unit == nil {
		return nil, violation(VioUnitDead, fmt.Sprintf("unknown unit %q", act.UnitID))
	}
	// A holder defeated mid-turn can still close the turn out; every other
	// action requires a living unit.
	if !unit.Alive() && act.Kind != ActEndTurn {
		return nil, violation(VioUnitDead, fmt.Sprintf("unit %s is defeated", unit.ID))
	}
	if st.Combat.HolderID() != unit.ID {
		return nil, violation(VioNotYourTurn, fmt.Sprintf("it is not %s's turn", unit.ID))
	}

	switch act.Kind {
	case ActMove:
		return e.applyMove(st, unit, act)
	case ActAttack:
		return e.applyAttack(st, unit, act)
	case ActCollectLoot:
		return e.applyCollectLoot(st, unit, act)
	case ActEndTurn:
		return e.applyEndTurn(st)
	case ActSleep:
		return e.applySleep(st, unit)
	default:
		return nil, violation(VioUnknownAction, fmt.Sprintf("unknown action kind %q", act.Kind))
	}
}

func (e *Engine) applyMove(st *State, unit *Unit, act Action) ([]Event, *RuleViolation) {
	path := act.Path
	if len(path) < 2 {
		return nil, violation(VioPathInvalid, "path must contain at least two positions")
	}
	if path[0] != unit.Pos {
		return nil, violation(VioPathInvalid, "path must start at the unit's position")
	}
	steps := len(path) - 1
	if steps > st.Combat.Turn.MovementRemaining {
		return nil, violation(VioOutOfRange,
			fmt.Sprintf("path length %d exceeds remaining movement %d", steps, st.Combat.Turn.MovementRemaining))
	}

	mySide := unit.Team.PlayerSide()
	for i := 1; i < len(path); i++ {
		if path[i-1].Chebyshev(path[i]) != 1 {
			return nil, violation(VioPathInvalid, "path steps must be adjacent tiles")
		}
		if !st.Tiles().Walkable(path[i]) {
			return nil, violation(VioPathInvalid, fmt.Sprintf("tile (%d,%d) is not walkable", path[i].X, path[i].Y))
		}
		occupant := st.LivingUnitAt(path[i])
		if occupant == nil {
			continue
		}
		if occupant.Team.PlayerSide() != mySide {
			// Enemies block traversal outright.
			return nil, violation(VioPathInvalid, fmt.Sprintf("tile (%d,%d) is blocked by an enemy", path[i].X, path[i].Y))
		}
		if i == len(path)-1 {
			// Friendlies are pass-through but never stop-on.
			return nil, violation(VioOccupied, fmt.Sprintf("tile (%d,%d) is occupied", path[i].X, path[i].Y))
		}
	}

	unit.Pos = path[len(path)-1]
	st.Combat.Turn.MovementRemaining -= steps

	ev := Event{Type: EvUnitMoved, UnitID: unit.ID, Path: path}
	st.append(ev)
	return []Event{ev}, nil
}

func (e *Engine) applyAttack(st *State, attacker *Unit, act Action) ([]Event, *RuleViolation) {
	if st.Combat.Turn.HasAttacked {
		return nil, violation(VioAlreadyAttacked, "unit has already attacked this turn")
	}
	target := st.Unit(act.TargetID)
	if target == nil || !target.Alive() {
		return nil, violation(VioUnitDead, fmt.Sprintf("target %q is not a living unit", act.TargetID))
	}
	if target.Team.PlayerSide() == attacker.Team.PlayerSide() {
		return nil, violation(VioOutOfRange, fmt.Sprintf("target %s is friendly", target.ID))
	}
	if attacker.Pos.Chebyshev(target.Pos) > attacker.Stats.AttackRange {
		return nil, violation(VioOutOfRange,
			fmt.Sprintf("target %s is beyond attack range %d", target.ID, attacker.Stats.AttackRange))
	}

	bonus := 0
	if attacker.OwnerID != "" {
		bonus = st.InventoryFor(attacker.OwnerID).AttackBonus()
	}
	damage := attacker.Stats.Attack + bonus - target.Stats.Defense
	if damage < 1 {
		damage = 1
	}
	crit := st.Rand().Chance(critChance)
	if crit {
		damage *= 2
	}

	target.Stats.HP -= damage
	if target.Stats.HP < 0 {
		target.Stats.HP = 0
	}
	st.Combat.Turn.HasAttacked = true

	events := []Event{
		{Type: EvUnitAttacked, AttackerID: attacker.ID, TargetID: target.ID, Crit: crit},
		{Type: EvUnitDamaged, UnitID: target.ID, Damage: damage, RemainingHP: target.Stats.HP},
	}
	if !target.Alive() {
		events = append(events, Event{Type: EvUnitDefeated, UnitID: target.ID})
		if target.Team == TeamMonster {
			if drop := e.rollLoot(st, target); drop != nil {
				st.Loot[drop.ID] = drop
				events = append(events, Event{Type: EvLootDropped, LootDrop: drop.Clone()})
			}
		}
	}
	st.syncRng()
	st.append(events...)
	return events, nil
}

// rollLoot rolls the loot table once per entry, in table order, consuming
// the session PRNG in a fixed sequence. Returns nil when nothing dropped.
func (e *Engine) rollLoot(st *State, fallen *Unit) *LootDrop {
	var items []LootItem
	for _, entry := range e.Loot.Entries() {
		if !st.Rand().Chance(float64(entry.Chance) / lootChanceScale) {
			continue
		}
		switch entry.Type {
		case "gold", "silver":
			items = append(items, LootItem{
				Type:  ItemType(entry.Type),
				Name:  entry.Name,
				Value: st.Rand().Range(entry.Min, entry.Max),
			})
		case "weapon":
			def := e.Weapons.Get(entry.WeaponID)
			if def == nil {
				continue
			}
			items = append(items, LootItem{
				Type: ItemWeapon,
				Name: def.Name,
				Weapon: &Weapon{
					ID:          def.ID,
					Name:        def.Name,
					AttackBonus: def.AttackBonus,
					Price:       def.Price,
				},
			})
		}
	}
	if len(items) == 0 {
		return nil
	}
	return &LootDrop{ID: st.nextLootID(), Pos: fallen.Pos, Items: items}
}

func (e *Engine) applyCollectLoot(st *State, unit *Unit, act Action) ([]Event, *RuleViolation) {
	if !unit.Team.PlayerSide() || unit.OwnerID == "" {
		return nil, violation(VioNotAdjacent, "only player-controlled units collect loot")
	}
	drop, ok := st.Loot[act.LootDropID]
	if !ok {
		return nil, violation(VioNotAdjacent, fmt.Sprintf("no loot drop %q", act.LootDropID))
	}
	if !unit.Pos.Adjacent(drop.Pos) {
		return nil, violation(VioNotAdjacent, "loot drop is out of reach")
	}

	inv := st.InventoryFor(unit.OwnerID)
	collectInto(inv, drop)
	delete(st.Loot, drop.ID)

	events := []Event{
		{Type: EvLootCollected, LootDropID: drop.ID, UserID: unit.OwnerID},
		{Type: EvInventoryChanged, UserID: unit.OwnerID, Inventory: inv.Clone()},
	}
	st.append(events...)
	return events, nil
}

// collectInto applies a drop's items to an inventory: coins add their value
// as gold, weapons append and auto-equip when strictly better.
func collectInto(inv *Inventory, drop *LootDrop) {
	for _, item := range drop.Items {
		switch item.Type {
		case ItemGold, ItemSilver:
			inv.Gold += item.Value
		case ItemWeapon:
			if item.Weapon != nil {
				inv.Add(*item.Weapon)
			}
		}
	}
}

func (e *Engine) applyEndTurn(st *State) ([]Event, *RuleViolation) {
	ended := st.Combat.HolderID()
	events := []Event{{Type: EvTurnEnded, UnitID: ended}}

	if result, over := e.combatResult(st); over {
		st.Combat.Phase = PhaseEnded
		st.Combat.EndResult = result
		st.Combat.Turn = nil
		events = append(events, Event{Type: EvCombatEnded, Result: result})
		st.append(events...)
		return events, nil
	}

	next := e.advanceTurn(st)
	events = append(events, Event{Type: EvTurnStarted, UnitID: next.ID})
	st.append(events...)
	return events, nil
}

// advanceTurn moves CurrentTurnIndex to the next living unit, incrementing
// the round on wrap, and resets the turn budget. The caller guarantees at
// least one living unit per side.
func (e *Engine) advanceTurn(st *State) *Unit {
	order := st.Combat.InitiativeOrder
	for i := 0; i < len(order); i++ {
		st.Combat.CurrentTurnIndex = (st.Combat.CurrentTurnIndex + 1) % len(order)
		if st.Combat.CurrentTurnIndex == 0 {
			st.Combat.Round++
		}
		unit := st.Units[order[st.Combat.CurrentTurnIndex]]
		if unit.Alive() {
			st.Combat.Turn = &TurnState{
				UnitID:            unit.ID,
				MovementRemaining: unit.Stats.MoveRange,
			}
			return unit
		}
	}
	// Unreachable while combatResult is checked first.
	return st.Units[order[st.Combat.CurrentTurnIndex]]
}

// combatResult reports whether combat is over: all monsters defeated is a
// victory, all player-side units defeated is a defeat.
func (e *Engine) combatResult(st *State) (EndResult, bool) {
	monstersAlive, playersAlive := false, false
	for _, u := range st.Units {
		if !u.Alive() {
			continue
		}
		if u.Team.PlayerSide() {
			playersAlive = true
		} else {
			monstersAlive = true
		}
	}
	if !monstersAlive {
		return ResultVictory, true
	}
	if !playersAlive {
		return ResultDefeat, true
	}
	return "", false
}

func (e *Engine) applySleep(st *State, unit *Unit) ([]Event, *RuleViolation) {
	if !unit.Team.PlayerSide() {
		return nil, violation(VioUnknownAction, "monsters do not sleep")
	}
	heal := st.Config.SleepHeal
	if room := unit.Stats.MaxHP - unit.Stats.HP; heal > room {
		heal = room
	}
	unit.Stats.HP += heal

	ev := Event{Type: EvUnitHealed, UnitID: unit.ID, Amount: heal}
	st.append(ev)
	events := []Event{ev}

	// Sleeping ends the turn.
	endEvents, _ := e.applyEndTurn(st)
	return append(events, endEvents...), nil
}

func (e *Engine) applyBuyWeapon(st *State, act Action) ([]Event, *RuleViolation) {
	unit := st.UnitFor(act.UserID)
	if unit == nil {
		return nil, violation(VioNotAdjacent, fmt.Sprintf("user %q has no living unit", act.UserID))
	}
	if !st.NearShop(unit.Pos) {
		return nil, violation(VioNotAdjacent, "no shop within reach")
	}
	def := e.Weapons.Get(act.WeaponID)
	if def == nil {
		return nil, violation(VioUnknownAction, fmt.Sprintf("unknown weapon %q", act.WeaponID))
	}
	inv := st.InventoryFor(act.UserID)
	if inv.Owns(def.ID) {
		return nil, violation(VioDuplicateWeapon, fmt.Sprintf("weapon %s already owned", def.ID))
	}
	if inv.Gold < def.Price {
		return nil, violation(VioInsufficientGold,
			fmt.Sprintf("weapon %s costs %d, have %d gold", def.ID, def.Price, inv.Gold))
	}

	inv.Gold -= def.Price
	inv.Add(Weapon{ID: def.ID, Name: def.Name, AttackBonus: def.AttackBonus, Price: def.Price})

	ev := Event{Type: EvInventoryChanged, UserID: act.UserID, Inventory: inv.Clone()}
	st.append(ev)
	return []Event{ev}, nil
}
