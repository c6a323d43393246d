package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LootEntry is a single possible drop from a defeated monster.
// Chance is out of 1,000,000 (100% = 1000000).
type LootEntry struct {
	Type     string `yaml:"type"` // "gold", "silver" or "weapon"
	Name     string `yaml:"name"`
	Min      int    `yaml:"min"`
	Max      int    `yaml:"max"`
	Chance   int    `yaml:"chance"`
	WeaponID string `yaml:"weapon_id"` // set for type "weapon"
}

type lootListFile struct {
	Entries []LootEntry `yaml:"loot"`
}

// LootTable holds the drop candidates rolled when a monster is defeated.
// Entries are rolled in file order so outcomes are deterministic for a
// given PRNG stream.
type LootTable struct {
	entries []LootEntry
}

// Entries returns the drop candidates in roll order.
func (t *LootTable) Entries() []LootEntry {
	return t.entries
}

// Count returns the number of loot entries loaded.
func (t *LootTable) Count() int {
	return len(t.entries)
}

// LoadLootTable loads the loot table from a YAML file.
func LoadLootTable(path string) (*LootTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read loot_list: %w", err)
	}
	return parseLootTable(raw)
}

// DefaultLootTable loads the embedded loot table.
func DefaultLootTable() (*LootTable, error) {
	raw, err := defaultsFS.ReadFile("yaml/loot_list.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded loot_list: %w", err)
	}
	return parseLootTable(raw)
}

func parseLootTable(raw []byte) (*LootTable, error) {
	var f lootListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse loot_list: %w", err)
	}
	for i, e := range f.Entries {
		switch e.Type {
		case "gold", "silver":
		case "weapon":
			if e.WeaponID == "" {
				return nil, fmt.Errorf("parse loot_list: entry %d: weapon drop without weapon_id", i)
			}
		default:
			return nil, fmt.Errorf("parse loot_list: entry %d: unknown type %q", i, e.Type)
		}
	}
	return &LootTable{entries: f.Entries}, nil
}
