package game

import (
	"testing"

	"github.com/skirmish/server/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// playSampleGame runs a short scripted fight and returns the final state
// plus the roster as it stood before combat began.
func playSampleGame(t *testing.T, seed int64) (*State, []*Unit) {
	t.Helper()
	e := testEngine(t)
	st := duelState(seed)

	roster := make([]*Unit, 0, len(st.Units))
	for _, id := range st.UnitIDs() {
		roster = append(roster, st.Units[id].Clone())
	}

	e.StartCombat(st)
	script := []Action{
		{Kind: ActMove, UnitID: "p1", Path: []grid.Position{{X: 0, Y: 0}, {X: 1, Y: 0}}},
		{Kind: ActAttack, UnitID: "p1", TargetID: "m1"},
		{Kind: ActEndTurn, UnitID: "p1"},
		{Kind: ActEndTurn, UnitID: "m1"},
		{Kind: ActSleep, UnitID: "p1"},
		{Kind: ActEndTurn, UnitID: "m1"},
	}
	for _, act := range script {
		_, vio := e.Apply(st, act)
		require.Nil(t, vio)
	}
	return st, roster
}

func TestReplayReproducesFingerprint(t *testing.T) {
	st, roster := playSampleGame(t, 42)

	replayed, err := Replay(st.SessionID, st.Seed, st.Config, roster, st.History)
	require.NoError(t, err)

	want, err := st.Fingerprint()
	require.NoError(t, err)
	got, err := replayed.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReplayFullGameToVictory(t *testing.T) {
	e := testEngine(t)
	st := duelState(9)

	roster := make([]*Unit, 0, len(st.Units))
	for _, id := range st.UnitIDs() {
		roster = append(roster, st.Units[id].Clone())
	}

	e.StartCombat(st)
	_, vio := e.Apply(st, Action{Kind: ActMove, UnitID: "p1",
		Path: []grid.Position{{X: 0, Y: 0}, {X: 1, Y: 0}}})
	require.Nil(t, vio)

	// Attack until the monster falls, ending turns in between.
	for st.Unit("m1").Alive() {
		if st.Combat.HolderID() == "p1" {
			if !st.Combat.Turn.HasAttacked {
				_, vio = e.Apply(st, Action{Kind: ActAttack, UnitID: "p1", TargetID: "m1"})
			} else {
				_, vio = e.Apply(st, Action{Kind: ActEndTurn, UnitID: "p1"})
			}
		} else {
			_, vio = e.Apply(st, Action{Kind: ActEndTurn, UnitID: "m1"})
		}
		require.Nil(t, vio)
	}
	_, vio = e.Apply(st, Action{Kind: ActEndTurn, UnitID: "p1"})
	require.Nil(t, vio)
	require.Equal(t, PhaseEnded, st.Combat.Phase)
	require.Equal(t, ResultVictory, st.Combat.EndResult)

	replayed, err := Replay(st.SessionID, st.Seed, st.Config, roster, st.History)
	require.NoError(t, err)

	assert.Equal(t, PhaseEnded, replayed.Combat.Phase)
	assert.Equal(t, ResultVictory, replayed.Combat.EndResult)
	assert.False(t, replayed.Unit("m1").Alive())

	want, err := st.Fingerprint()
	require.NoError(t, err)
	got, err := replayed.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReplayRejectsUnknownEvent(t *testing.T) {
	_, err := Replay("s1", 1, flatConfig(), nil, []Event{{Type: EventType("warp")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warp")
}

func TestReplayRejectsEventForUnknownUnit(t *testing.T) {
	st := duelState(1)
	roster := []*Unit{st.Units["p1"].Clone()}
	history := []Event{
		{Type: EvCombatStarted},
		{Type: EvTurnStarted, UnitID: "p1"},
		{Type: EvUnitDamaged, UnitID: "ghost", Damage: 3},
	}
	_, err := Replay("s1", 1, flatConfig(), roster, history)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}
