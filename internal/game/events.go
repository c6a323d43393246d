package game

import "github.com/skirmish/server/internal/grid"

// EventType tags entries of the append-only turn history. Event names and
// payload fields match the wire protocol one-to-one.
type EventType string

const (
	EvCombatStarted      EventType = "combat_started"
	EvTurnStarted        EventType = "turn_started"
	EvTurnEnded          EventType = "turn_ended"
	EvUnitMoved          EventType = "unit_moved"
	EvUnitAttacked       EventType = "unit_attacked"
	EvUnitDamaged        EventType = "unit_damaged"
	EvUnitDefeated       EventType = "unit_defeated"
	EvUnitHealed         EventType = "unit_healed"
	EvLootDropped        EventType = "loot_dropped"
	EvLootCollected      EventType = "loot_collected"
	EvInventoryChanged   EventType = "inventory_changed"
	EvCombatEnded        EventType = "combat_ended"
	EvTimeout            EventType = "timeout"
	EvPlayerDisconnected EventType = "player_disconnected"
	EvPlayerReconnected  EventType = "player_reconnected"
	EvPlayerLeft         EventType = "player_left"
)

// Event is the tagged union appended to turnHistory and broadcast to
// clients. Only the fields relevant to the Type are set.
type Event struct {
	Type          EventType       `json:"type"`
	UnitID        string          `json:"unitId,omitempty"`
	AttackerID    string          `json:"attackerId,omitempty"`
	TargetID      string          `json:"targetId,omitempty"`
	Path          []grid.Position `json:"path,omitempty"`
	Damage        int             `json:"damage,omitempty"`
	RemainingHP   int             `json:"remainingHp,omitempty"`
	Crit          bool            `json:"crit,omitempty"`
	Amount        int             `json:"amount,omitempty"`
	LootDrop      *LootDrop       `json:"lootDrop,omitempty"`
	LootDropID    string          `json:"lootDropId,omitempty"`
	UserID        string          `json:"userId,omitempty"`
	Inventory     *Inventory      `json:"inventory,omitempty"`
	Result        EndResult       `json:"result,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	GracePeriodMs int             `json:"gracePeriodMs,omitempty"`
}
