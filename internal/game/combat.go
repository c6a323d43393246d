package game

// Phase is the session's combat lifecycle state.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseEnded      Phase = "ended"
)

// EndResult records how a finished combat ended.
type EndResult string

const (
	ResultVictory EndResult = "victory"
	ResultDefeat  EndResult = "defeat"
	ResultAborted EndResult = "aborted"
)

// TurnState is the per-turn budget of the current turn holder.
type TurnState struct {
	UnitID            string `json:"unitId"`
	MovementRemaining int    `json:"movementRemaining"`
	HasAttacked       bool   `json:"hasAttacked"`
}

// Combat is the turn-order bookkeeping of one session. Defeated units stay
// in InitiativeOrder; their turns are skipped.
type Combat struct {
	Phase            Phase      `json:"phase"`
	Round            int        `json:"round"`
	InitiativeOrder  []string   `json:"initiativeOrder"`
	CurrentTurnIndex int        `json:"currentTurnIndex"`
	Turn             *TurnState `json:"turnState"`
	EndResult        EndResult  `json:"endResult,omitempty"`
}

// HolderID returns the current turn holder's unit id, or "".
func (c *Combat) HolderID() string {
	if c.Turn == nil {
		return ""
	}
	return c.Turn.UnitID
}
