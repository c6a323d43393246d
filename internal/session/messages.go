// Package session runs one single-writer actor per combat session. All
// action submissions, timer expiries, and presence changes are serialized
// into the worker's inbox and processed one at a time, so no two actions
// on the same session ever interleave.
package session

import "github.com/skirmish/server/internal/game"

// Reply is the outcome of one submitted message, delivered through the
// caller's callback on the worker goroutine. Callbacks must not block.
type Reply struct {
	Events    []game.Event
	Violation *game.RuleViolation
	Err       error
}

// ReplyFunc receives the outcome of a submitted message. A nil ReplyFunc
// discards the outcome.
type ReplyFunc func(Reply)

type message interface{ isMessage() }

type submitMsg struct {
	userID string
	act    game.Action
	reply  ReplyFunc
}

type startMsg struct {
	reply ReplyFunc
}

type joinMsg struct {
	userID string
	name   string
	reply  ReplyFunc
}

type leaveMsg struct {
	userID string
	reason string
}

type pauseMsg struct {
	userID string
	reply  ReplyFunc
}

type presenceMsg struct {
	userID    string
	connected bool
}

// deadlineMsg is posted by the turn deadline timer. Stale ids (armed for an
// earlier turn) are ignored.
type deadlineMsg struct {
	id uint64
}

// aiMsg is posted by the AI pacing timer. Stale ids are ignored.
type aiMsg struct {
	id uint64
}

type snapshotMsg struct {
	reply func(raw []byte, err error)
}

type restoreMsg struct {
	st    *game.State
	reply ReplyFunc
}

func (submitMsg) isMessage()   {}
func (startMsg) isMessage()    {}
func (joinMsg) isMessage()     {}
func (leaveMsg) isMessage()    {}
func (pauseMsg) isMessage()    {}
func (presenceMsg) isMessage() {}
func (deadlineMsg) isMessage() {}
func (aiMsg) isMessage()       {}
func (snapshotMsg) isMessage() {}
func (restoreMsg) isMessage()  {}
