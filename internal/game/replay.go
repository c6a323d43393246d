package game

import "fmt"

// Replay reconstructs a session's final game-visible state by applying its
// turn history to a fresh session built from the same seed and unit roster.
// Every event carries its resolved outcome (damage, rolled loot, inventory
// snapshots), so replay consumes no randomness.
func Replay(sessionID string, seed int64, cfg SessionConfig, roster []*Unit, history []Event) (*State, error) {
	st := NewState(sessionID, seed, cfg)
	for _, u := range roster {
		st.AddUnit(u.Clone())
	}

	for i, ev := range history {
		if err := replayEvent(st, ev); err != nil {
			return nil, fmt.Errorf("replay event %d (%s): %w", i, ev.Type, err)
		}
	}
	st.History = append([]Event(nil), history...)
	return st, nil
}

func replayEvent(st *State, ev Event) error {
	switch ev.Type {
	case EvCombatStarted:
		// Recompute initiative exactly as StartCombat does; the first
		// turn_started event sets the turn state.
		var eng Engine
		eng.StartCombat(st)
		st.History = nil
		st.Combat.Turn = nil

	case EvTurnStarted:
		unit := st.Unit(ev.UnitID)
		if unit == nil {
			return fmt.Errorf("unknown unit %q", ev.UnitID)
		}
		idx := indexOf(st.Combat.InitiativeOrder, ev.UnitID)
		if idx < 0 {
			return fmt.Errorf("unit %q not in initiative order", ev.UnitID)
		}
		if st.Combat.Turn != nil && idx <= st.Combat.CurrentTurnIndex {
			st.Combat.Round++
		}
		st.Combat.CurrentTurnIndex = idx
		st.Combat.Turn = &TurnState{UnitID: unit.ID, MovementRemaining: unit.Stats.MoveRange}

	case EvTurnEnded:
		// Transitions are carried by turn_started / combat_ended.

	case EvUnitMoved:
		unit := st.Unit(ev.UnitID)
		if unit == nil {
			return fmt.Errorf("unknown unit %q", ev.UnitID)
		}
		if len(ev.Path) == 0 {
			return fmt.Errorf("move without path")
		}
		unit.Pos = ev.Path[len(ev.Path)-1]
		if st.Combat.Turn != nil && st.Combat.Turn.UnitID == unit.ID {
			st.Combat.Turn.MovementRemaining -= len(ev.Path) - 1
		}

	case EvUnitAttacked:
		if st.Combat.Turn != nil && st.Combat.Turn.UnitID == ev.AttackerID {
			st.Combat.Turn.HasAttacked = true
		}

	case EvUnitDamaged:
		unit := st.Unit(ev.UnitID)
		if unit == nil {
			return fmt.Errorf("unknown unit %q", ev.UnitID)
		}
		unit.Stats.HP -= ev.Damage
		if unit.Stats.HP < 0 {
			unit.Stats.HP = 0
		}

	case EvUnitDefeated:
		unit := st.Unit(ev.UnitID)
		if unit == nil {
			return fmt.Errorf("unknown unit %q", ev.UnitID)
		}
		unit.Stats.HP = 0

	case EvUnitHealed:
		unit := st.Unit(ev.UnitID)
		if unit == nil {
			return fmt.Errorf("unknown unit %q", ev.UnitID)
		}
		unit.Stats.HP += ev.Amount
		if unit.Stats.HP > unit.Stats.MaxHP {
			unit.Stats.HP = unit.Stats.MaxHP
		}

	case EvLootDropped:
		if ev.LootDrop == nil {
			return fmt.Errorf("loot_dropped without drop")
		}
		st.Loot[ev.LootDrop.ID] = ev.LootDrop.Clone()
		st.LootSeq++

	case EvLootCollected:
		drop, ok := st.Loot[ev.LootDropID]
		if !ok {
			return fmt.Errorf("unknown loot drop %q", ev.LootDropID)
		}
		collectInto(st.InventoryFor(ev.UserID), drop)
		delete(st.Loot, ev.LootDropID)

	case EvInventoryChanged:
		if ev.Inventory == nil {
			return fmt.Errorf("inventory_changed without inventory")
		}
		st.Inventories[ev.UserID] = ev.Inventory.Clone()

	case EvCombatEnded:
		st.Combat.Phase = PhaseEnded
		st.Combat.EndResult = ev.Result
		st.Combat.Turn = nil

	case EvTimeout, EvPlayerDisconnected, EvPlayerReconnected, EvPlayerLeft:
		// Presence and timer log events do not alter combat state.

	default:
		return fmt.Errorf("unhandled event type %q", ev.Type)
	}
	return nil
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
