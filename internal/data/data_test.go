package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWeaponTable(t *testing.T) {
	tbl, err := DefaultWeaponTable()
	require.NoError(t, err)
	require.Greater(t, tbl.Count(), 0)

	w := tbl.Get("w_shortsword")
	require.NotNil(t, w)
	assert.Equal(t, "Short Sword", w.Name)
	assert.Equal(t, 2, w.AttackBonus)
	assert.Equal(t, 25, w.Price)

	assert.Nil(t, tbl.Get("w_unknown"))
	assert.Len(t, tbl.All(), tbl.Count())
}

func TestDefaultMonsterTable(t *testing.T) {
	tbl, err := DefaultMonsterTable()
	require.NoError(t, err)
	require.Greater(t, tbl.Count(), 0)

	m := tbl.Get("m_goblin")
	require.NotNil(t, m)
	assert.Equal(t, "Goblin", m.Name)
	assert.Equal(t, 10, m.HP)
	assert.Equal(t, 1, m.AttackRange)
}

func TestDefaultLootTable(t *testing.T) {
	tbl, err := DefaultLootTable()
	require.NoError(t, err)
	require.Greater(t, tbl.Count(), 0)
	for _, e := range tbl.Entries() {
		assert.Contains(t, []string{"gold", "silver", "weapon"}, e.Type)
		if e.Type == "weapon" {
			assert.NotEmpty(t, e.WeaponID)
		}
	}
}

func TestLoadWeaponTableFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weapons.yaml")
	body := "weapons:\n  - id: w_test\n    name: Test Blade\n    attack_bonus: 9\n    price: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	tbl, err := LoadWeaponTable(path)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Count())
	assert.Equal(t, "Test Blade", tbl.Get("w_test").Name)
}

func TestParseRejectsDuplicatesAndBadLoot(t *testing.T) {
	_, err := parseWeaponTable([]byte("weapons:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = parseLootTable([]byte("loot:\n  - type: weapon\n    name: x\n"))
	assert.Error(t, err)

	_, err = parseLootTable([]byte("loot:\n  - type: gems\n    name: x\n"))
	assert.Error(t, err)
}
