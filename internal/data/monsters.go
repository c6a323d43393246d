package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MonsterDef is one monster template used to build session rosters.
type MonsterDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	HP          int    `yaml:"hp"`
	Attack      int    `yaml:"attack"`
	Defense     int    `yaml:"defense"`
	Initiative  int    `yaml:"initiative"`
	MoveRange   int    `yaml:"move_range"`
	AttackRange int    `yaml:"attack_range"`
}

type monsterListFile struct {
	Monsters []MonsterDef `yaml:"monsters"`
}

// MonsterTable holds all monster templates indexed by template ID.
type MonsterTable struct {
	byID  map[string]*MonsterDef
	order []string
}

// Get returns a monster template, or nil if unknown.
func (t *MonsterTable) Get(id string) *MonsterDef {
	return t.byID[id]
}

// All returns template IDs in catalog order.
func (t *MonsterTable) All() []string {
	return t.order
}

// Count returns the number of monster templates loaded.
func (t *MonsterTable) Count() int {
	return len(t.byID)
}

// LoadMonsterTable loads monster templates from a YAML file.
func LoadMonsterTable(path string) (*MonsterTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read monster_list: %w", err)
	}
	return parseMonsterTable(raw)
}

// DefaultMonsterTable loads the embedded monster catalog.
func DefaultMonsterTable() (*MonsterTable, error) {
	raw, err := defaultsFS.ReadFile("yaml/monster_list.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded monster_list: %w", err)
	}
	return parseMonsterTable(raw)
}

func parseMonsterTable(raw []byte) (*MonsterTable, error) {
	var f monsterListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse monster_list: %w", err)
	}
	t := &MonsterTable{byID: make(map[string]*MonsterDef, len(f.Monsters))}
	for i := range f.Monsters {
		m := &f.Monsters[i]
		if _, dup := t.byID[m.ID]; dup {
			return nil, fmt.Errorf("parse monster_list: duplicate id %q", m.ID)
		}
		t.byID[m.ID] = m
		t.order = append(t.order, m.ID)
	}
	return t, nil
}
