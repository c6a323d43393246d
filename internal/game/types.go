// Package game holds the authoritative combat data model and the rules
// engine that validates and executes actions against it. All mutation of a
// session's state goes through Engine.Apply; everything outside observes the
// state through the emitted event stream.
package game

import "github.com/skirmish/server/internal/grid"

// Team classifies a unit. Player and npc units fight on the player side;
// monsters are the opposing side for passability and attack validity.
type Team string

const (
	TeamPlayer  Team = "player"
	TeamNPC     Team = "npc"
	TeamMonster Team = "monster"
)

// PlayerSide reports whether the team fights alongside the players.
func (t Team) PlayerSide() bool {
	return t != TeamMonster
}

// Stats are the non-negative combat attributes of a unit. HP <= MaxHP at
// every committed state; HP == 0 means the unit is defeated.
type Stats struct {
	HP          int `json:"hp"`
	MaxHP       int `json:"maxHp"`
	Attack      int `json:"attack"`
	Defense     int `json:"defense"`
	Initiative  int `json:"initiative"`
	MoveRange   int `json:"moveRange"`
	AttackRange int `json:"attackRange"`
}

// Unit is one combatant on the map.
type Unit struct {
	ID      string        `json:"id"`
	Team    Team          `json:"team"`
	Name    string        `json:"name"`
	OwnerID string        `json:"ownerId,omitempty"` // controlling user sub; empty for AI units
	Pos     grid.Position `json:"position"`
	Stats   Stats         `json:"stats"`
}

// Alive reports whether the unit is still in the fight.
func (u *Unit) Alive() bool {
	return u.Stats.HP > 0
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() *Unit {
	c := *u
	return &c
}

// Weapon is an owned weapon instance.
type Weapon struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AttackBonus int    `json:"attackBonus"`
	Price       int    `json:"price"`
}

// Inventory is the per-player stash of gold and weapons.
type Inventory struct {
	Gold             int      `json:"gold"`
	Weapons          []Weapon `json:"weapons"`
	EquippedWeaponID string   `json:"equippedWeaponId,omitempty"`
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{Weapons: []Weapon{}}
}

// Equipped returns the currently equipped weapon, or nil.
func (inv *Inventory) Equipped() *Weapon {
	if inv.EquippedWeaponID == "" {
		return nil
	}
	for i := range inv.Weapons {
		if inv.Weapons[i].ID == inv.EquippedWeaponID {
			return &inv.Weapons[i]
		}
	}
	return nil
}

// Owns reports whether the inventory already holds the weapon.
func (inv *Inventory) Owns(weaponID string) bool {
	for i := range inv.Weapons {
		if inv.Weapons[i].ID == weaponID {
			return true
		}
	}
	return false
}

// AttackBonus returns the equipped weapon's bonus, or 0 when unarmed.
func (inv *Inventory) AttackBonus() int {
	if w := inv.Equipped(); w != nil {
		return w.AttackBonus
	}
	return 0
}

// Add appends a weapon and auto-equips it when it beats the current one.
func (inv *Inventory) Add(w Weapon) {
	inv.Weapons = append(inv.Weapons, w)
	if w.AttackBonus > inv.AttackBonus() {
		inv.EquippedWeaponID = w.ID
	}
}

// Clone returns a deep copy of the inventory.
func (inv *Inventory) Clone() *Inventory {
	c := &Inventory{
		Gold:             inv.Gold,
		Weapons:          make([]Weapon, len(inv.Weapons)),
		EquippedWeaponID: inv.EquippedWeaponID,
	}
	copy(c.Weapons, inv.Weapons)
	return c
}

// ItemType classifies a loot item.
type ItemType string

const (
	ItemGold   ItemType = "gold"
	ItemSilver ItemType = "silver"
	ItemWeapon ItemType = "weapon"
)

// LootItem is one collectible item inside a drop. Gold and silver carry a
// Value; weapon items carry the Weapon itself.
type LootItem struct {
	Type   ItemType `json:"type"`
	Name   string   `json:"name"`
	Value  int      `json:"value,omitempty"`
	Weapon *Weapon  `json:"weapon,omitempty"`
}

// LootDrop sits on the map until a player-side unit collects it.
type LootDrop struct {
	ID    string        `json:"id"`
	Pos   grid.Position `json:"position"`
	Items []LootItem    `json:"items"`
}

// Clone returns a deep copy of the drop.
func (d *LootDrop) Clone() *LootDrop {
	c := &LootDrop{ID: d.ID, Pos: d.Pos, Items: make([]LootItem, len(d.Items))}
	for i, it := range d.Items {
		c.Items[i] = it
		if it.Weapon != nil {
			w := *it.Weapon
			c.Items[i].Weapon = &w
		}
	}
	return c
}
