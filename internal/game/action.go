package game

import "github.com/skirmish/server/internal/grid"

// ActionKind identifies a game action.
type ActionKind string

const (
	ActMove        ActionKind = "move"
	ActAttack      ActionKind = "attack"
	ActCollectLoot ActionKind = "collect_loot"
	ActEndTurn     ActionKind = "end_turn"
	ActBuyWeapon   ActionKind = "buy_weapon"
	ActSleep       ActionKind = "sleep"
)

// Action is a decoded game action. Only the fields relevant to Kind are set.
type Action struct {
	Kind       ActionKind      `json:"kind"`
	UnitID     string          `json:"unitId,omitempty"`
	Path       []grid.Position `json:"path,omitempty"`
	TargetID   string          `json:"targetId,omitempty"`
	LootDropID string          `json:"lootDropId,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	WeaponID   string          `json:"weaponId,omitempty"`
}

// ViolationKind is the machine-readable reason an action was rejected.
type ViolationKind string

const (
	VioNotYourTurn      ViolationKind = "not_your_turn"
	VioUnitDead         ViolationKind = "unit_dead"
	VioOutOfRange       ViolationKind = "out_of_range"
	VioPathInvalid      ViolationKind = "path_invalid"
	VioOccupied         ViolationKind = "occupied"
	VioAlreadyAttacked  ViolationKind = "already_attacked"
	VioInsufficientGold ViolationKind = "insufficient_gold"
	VioDuplicateWeapon  ViolationKind = "duplicate_weapon"
	VioNotAdjacent      ViolationKind = "not_adjacent"
	VioUnknownAction    ViolationKind = "unknown_action"
)

// RuleViolation is returned when an action is rejected. The state is
// guaranteed unchanged.
type RuleViolation struct {
	Kind    ViolationKind
	Message string
}

func (v *RuleViolation) Error() string {
	return string(v.Kind) + ": " + v.Message
}

func violation(kind ViolationKind, msg string) *RuleViolation {
	return &RuleViolation{Kind: kind, Message: msg}
}
