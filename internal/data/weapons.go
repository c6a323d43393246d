// Package data loads the static game catalogs: weapon shop stock, monster
// templates, and the loot table. Defaults ship embedded; each table can be
// overridden from a YAML file on disk.
package data

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed yaml/*.yaml
var defaultsFS embed.FS

// WeaponDef is one purchasable weapon template.
type WeaponDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	AttackBonus int    `yaml:"attack_bonus"`
	Price       int    `yaml:"price"`
}

type weaponListFile struct {
	Weapons []WeaponDef `yaml:"weapons"`
}

// WeaponTable holds all weapon templates indexed by ID. It doubles as the
// shop stock: every listed weapon with a positive price is for sale.
type WeaponTable struct {
	byID  map[string]*WeaponDef
	order []string
}

// Get returns a weapon template, or nil if unknown.
func (t *WeaponTable) Get(id string) *WeaponDef {
	return t.byID[id]
}

// All returns weapon IDs in catalog order.
func (t *WeaponTable) All() []string {
	return t.order
}

// Count returns the number of weapon templates loaded.
func (t *WeaponTable) Count() int {
	return len(t.byID)
}

// LoadWeaponTable loads weapon templates from a YAML file.
func LoadWeaponTable(path string) (*WeaponTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weapon_list: %w", err)
	}
	return parseWeaponTable(raw)
}

// DefaultWeaponTable loads the embedded weapon catalog.
func DefaultWeaponTable() (*WeaponTable, error) {
	raw, err := defaultsFS.ReadFile("yaml/weapon_list.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded weapon_list: %w", err)
	}
	return parseWeaponTable(raw)
}

func parseWeaponTable(raw []byte) (*WeaponTable, error) {
	var f weaponListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse weapon_list: %w", err)
	}
	t := &WeaponTable{byID: make(map[string]*WeaponDef, len(f.Weapons))}
	for i := range f.Weapons {
		w := &f.Weapons[i]
		if _, dup := t.byID[w.ID]; dup {
			return nil, fmt.Errorf("parse weapon_list: duplicate id %q", w.ID)
		}
		t.byID[w.ID] = w
		t.order = append(t.order, w.ID)
	}
	return t, nil
}
