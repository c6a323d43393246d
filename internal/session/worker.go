package session

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/game"
	"github.com/skirmish/server/internal/grid"
)

// Broadcaster fans emitted events out to every connected member of a
// session. The connection manager implements it; workers never hold
// connection references directly.
type Broadcaster interface {
	BroadcastEvents(sessionID string, events []game.Event)
}

// BroadcastFunc adapts a plain function to the Broadcaster interface.
type BroadcastFunc func(sessionID string, events []game.Event)

func (f BroadcastFunc) BroadcastEvents(sessionID string, events []game.Event) {
	f(sessionID, events)
}

// Options are the real-time knobs of a worker, injected from server config.
type Options struct {
	TurnDeadline    time.Duration // player turn budget, 15s by default
	SequentialDelay time.Duration // pacing between sequential monster turns
	ParallelDelay   time.Duration // pacing for parallel mode and intra-turn AI steps
	GracePeriod     time.Duration // reconnect window announced on disconnect
	InboxSize       int
}

// DefaultOptions returns the stock real-time contract.
func DefaultOptions() Options {
	return Options{
		TurnDeadline:    15 * time.Second,
		SequentialDelay: 500 * time.Millisecond,
		ParallelDelay:   150 * time.Millisecond,
		GracePeriod:     30 * time.Second,
		InboxSize:       64,
	}
}

// Member is one joined player, in join order.
type Member struct {
	UserID    string
	Name      string
	Connected bool
}

var (
	ErrCombatStarted = errors.New("combat already started")
	ErrLobbyFull     = errors.New("session lobby is full")
	ErrNotMember     = errors.New("user is not a session member")
	ErrStopped       = errors.New("session worker stopped")
)

// Worker owns one session's state. Everything below runs on the worker
// goroutine; external goroutines interact only through the post methods.
type Worker struct {
	id       string
	opts     Options
	engine   *game.Engine
	monsters *data.MonsterTable
	spawnNum int

	st      *game.State
	members []*Member
	paused  bool

	// Turn deadline bookkeeping. deadlineSeq invalidates timers armed for
	// earlier turns; turnRemaining carries frozen time across a pause.
	deadlineSeq   uint64
	turnTimer     *time.Timer
	turnArmedAt   time.Time
	turnRemaining time.Duration

	// AI pacing bookkeeping, same staleness scheme.
	aiSeq   uint64
	aiTimer *time.Timer

	inbox chan message
	done  chan struct{}
	sink  Broadcaster
	log   *zap.Logger
}

// NewWorker creates a lobby-phase session worker. Call Run to start it.
func NewWorker(id string, st *game.State, engine *game.Engine, monsters *data.MonsterTable,
	monsterCount int, opts Options, sink Broadcaster, log *zap.Logger) *Worker {
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultOptions().InboxSize
	}
	return &Worker{
		id:       id,
		opts:     opts,
		engine:   engine,
		monsters: monsters,
		spawnNum: monsterCount,
		st:       st,
		inbox:    make(chan message, opts.InboxSize),
		done:     make(chan struct{}),
		sink:     sink,
		log:      log.With(zap.String("session", id)),
	}
}

// ID returns the session id.
func (w *Worker) ID() string { return w.id }

// Run processes the inbox until Stop. One message at a time; a panic in a
// handler discards that message and the loop continues.
func (w *Worker) Run() {
	for {
		select {
		case msg := <-w.inbox:
			w.handle(msg)
		case <-w.done:
			w.cancelTimers()
			return
		}
	}
}

// Stop shuts the worker down. Pending inbox messages are dropped.
func (w *Worker) Stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

func (w *Worker) post(msg message) bool {
	select {
	case w.inbox <- msg:
		return true
	case <-w.done:
		return false
	}
}

// Submit queues one player action. The reply callback runs on the worker
// goroutine and must not block.
func (w *Worker) Submit(userID string, act game.Action, reply ReplyFunc) {
	if !w.post(submitMsg{userID: userID, act: act, reply: reply}) && reply != nil {
		reply(Reply{Err: ErrStopped})
	}
}

// Start transitions the lobby to combat.
func (w *Worker) Start(reply ReplyFunc) {
	if !w.post(startMsg{reply: reply}) && reply != nil {
		reply(Reply{Err: ErrStopped})
	}
}

// Join adds a player to the lobby, or reattaches a known member.
func (w *Worker) Join(userID, name string, reply ReplyFunc) {
	if !w.post(joinMsg{userID: userID, name: name, reply: reply}) && reply != nil {
		reply(Reply{Err: ErrStopped})
	}
}

// Leave removes a member and broadcasts player_left.
func (w *Worker) Leave(userID, reason string) {
	w.post(leaveMsg{userID: userID, reason: reason})
}

// PauseToggle flips the pause state. Only members may pause.
func (w *Worker) PauseToggle(userID string, reply ReplyFunc) {
	if !w.post(pauseMsg{userID: userID, reply: reply}) && reply != nil {
		reply(Reply{Err: ErrStopped})
	}
}

// SetPresence records a member's connection status and broadcasts the
// matching presence event.
func (w *Worker) SetPresence(userID string, connected bool) {
	w.post(presenceMsg{userID: userID, connected: connected})
}

// Snapshot serializes the session for the save store. The callback runs on
// the worker goroutine; hand the bytes off, do the store I/O elsewhere.
func (w *Worker) Snapshot(reply func(raw []byte, err error)) {
	if !w.post(snapshotMsg{reply: reply}) && reply != nil {
		reply(nil, ErrStopped)
	}
}

// Restore swaps in a state loaded from the save store.
func (w *Worker) Restore(st *game.State, reply ReplyFunc) {
	if !w.post(restoreMsg{st: st, reply: reply}) && reply != nil {
		reply(Reply{Err: ErrStopped})
	}
}

func (w *Worker) handle(msg message) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		w.log.Error("session message discarded after panic", zap.Any("panic", r))
		err := fmt.Errorf("internal error: %v", r)
		// A panic mid-apply can leave the state torn. Messages that mutate
		// it end the session; read-only ones just report the failure.
		switch m := msg.(type) {
		case submitMsg:
			w.replyTo(m.reply, Reply{Err: err})
			w.abort()
		case startMsg:
			w.replyTo(m.reply, Reply{Err: err})
			w.abort()
		case restoreMsg:
			w.replyTo(m.reply, Reply{Err: err})
			w.abort()
		case deadlineMsg, aiMsg, leaveMsg:
			w.abort()
		case joinMsg:
			w.replyTo(m.reply, Reply{Err: err})
		case pauseMsg:
			w.replyTo(m.reply, Reply{Err: err})
		case snapshotMsg:
			m.reply(nil, err)
		}
	}()

	switch m := msg.(type) {
	case submitMsg:
		w.handleSubmit(m)
	case startMsg:
		w.handleStart(m)
	case joinMsg:
		w.handleJoin(m)
	case leaveMsg:
		w.handleLeave(m)
	case pauseMsg:
		w.handlePause(m)
	case presenceMsg:
		w.handlePresence(m)
	case deadlineMsg:
		w.handleDeadline(m)
	case aiMsg:
		w.handleAI(m)
	case snapshotMsg:
		m.reply(w.st.Snapshot())
	case restoreMsg:
		w.handleRestore(m)
	}
}

// abort ends the session after an unrecoverable apply failure. The state
// can no longer be trusted to be internally consistent, so it is never
// served again; members learn the outcome through combat_ended.
func (w *Worker) abort() {
	if w.st.Combat.Phase == game.PhaseEnded {
		return
	}
	w.cancelTimers()
	w.st.Combat.Phase = game.PhaseEnded
	w.st.Combat.EndResult = game.ResultAborted
	w.st.Combat.Turn = nil
	ev := game.Event{Type: game.EvCombatEnded, Result: game.ResultAborted}
	w.st.History = append(w.st.History, ev)
	w.broadcast([]game.Event{ev})
	w.log.Error("session aborted")
}

func (w *Worker) handleSubmit(m submitMsg) {
	act := m.act
	if act.Kind == game.ActBuyWeapon {
		act.UserID = m.userID
	} else if unit := w.st.Unit(act.UnitID); unit != nil && unit.OwnerID != m.userID {
		w.replyTo(m.reply, Reply{Violation: &game.RuleViolation{
			Kind:    game.VioNotYourTurn,
			Message: fmt.Sprintf("unit %s is not controlled by you", act.UnitID),
		}})
		return
	}

	events, vio := w.engine.Apply(w.st, act)
	if vio != nil {
		w.replyTo(m.reply, Reply{Violation: vio})
		return
	}
	w.broadcast(events)
	w.replyTo(m.reply, Reply{Events: events})
	w.afterEvents(events)
}

func (w *Worker) handleStart(m startMsg) {
	if w.st.Combat.Phase != game.PhaseNotStarted {
		w.replyTo(m.reply, Reply{Err: ErrCombatStarted})
		return
	}
	slots := make([]game.PlayerSlot, len(w.members))
	for i, mem := range w.members {
		slots[i] = game.PlayerSlot{UserID: mem.UserID, Name: mem.Name}
	}
	game.BuildRoster(w.st, slots, w.monsters, w.spawnNum)

	events := w.engine.StartCombat(w.st)
	w.log.Info("combat started",
		zap.Int("players", len(slots)),
		zap.Int("units", len(w.st.Units)))
	w.broadcast(events)
	w.replyTo(m.reply, Reply{Events: events})
	w.afterEvents(events)
}

func (w *Worker) handleJoin(m joinMsg) {
	if mem := w.member(m.userID); mem != nil {
		mem.Connected = true
		w.replyTo(m.reply, Reply{})
		return
	}
	if w.st.Combat.Phase != game.PhaseNotStarted {
		w.replyTo(m.reply, Reply{Err: ErrCombatStarted})
		return
	}
	if len(w.members) >= game.MaxPlayers {
		w.replyTo(m.reply, Reply{Err: ErrLobbyFull})
		return
	}
	w.members = append(w.members, &Member{UserID: m.userID, Name: m.name, Connected: true})
	w.log.Info("player joined lobby", zap.String("user", m.userID))
	w.replyTo(m.reply, Reply{})
}

func (w *Worker) handleLeave(m leaveMsg) {
	idx := -1
	for i, mem := range w.members {
		if mem.UserID == m.userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	w.members = append(w.members[:idx], w.members[idx+1:]...)

	ev := game.Event{Type: game.EvPlayerLeft, UserID: m.userID, Reason: m.reason}
	w.st.History = append(w.st.History, ev)
	w.broadcast([]game.Event{ev})
	w.log.Info("player left", zap.String("user", m.userID), zap.String("reason", m.reason))

	// An absent player never blocks the round: end their turn for them.
	if w.st.Combat.Phase == game.PhaseInProgress {
		if holder := w.st.Unit(w.st.Combat.HolderID()); holder != nil && holder.OwnerID == m.userID {
			w.forceEndTurn(holder.ID)
		}
	}
}

func (w *Worker) handlePause(m pauseMsg) {
	if w.member(m.userID) == nil {
		w.replyTo(m.reply, Reply{Err: ErrNotMember})
		return
	}
	if w.paused {
		w.resume()
	} else {
		w.pause()
	}
	w.replyTo(m.reply, Reply{})
}

func (w *Worker) handlePresence(m presenceMsg) {
	mem := w.member(m.userID)
	if mem == nil {
		return
	}
	mem.Connected = m.connected

	var ev game.Event
	if m.connected {
		ev = game.Event{Type: game.EvPlayerReconnected, UserID: m.userID}
	} else {
		ev = game.Event{Type: game.EvPlayerDisconnected, UserID: m.userID,
			GracePeriodMs: int(w.opts.GracePeriod / time.Millisecond)}
	}
	w.st.History = append(w.st.History, ev)
	w.broadcast([]game.Event{ev})
}

func (w *Worker) handleDeadline(m deadlineMsg) {
	if w.paused || m.id != w.deadlineSeq {
		return
	}
	if w.st.Combat.Phase != game.PhaseInProgress {
		return
	}
	holder := w.st.Combat.HolderID()
	w.log.Info("turn deadline expired", zap.String("unit", holder))

	ev := game.Event{Type: game.EvTimeout, UnitID: holder}
	w.st.History = append(w.st.History, ev)
	w.broadcast([]game.Event{ev})
	w.forceEndTurn(holder)
}

// forceEndTurn ends the given unit's turn on the server's behalf.
func (w *Worker) forceEndTurn(unitID string) {
	events, vio := w.engine.Apply(w.st, game.Action{Kind: game.ActEndTurn, UnitID: unitID})
	if vio != nil {
		w.log.Warn("forced end_turn rejected",
			zap.String("unit", unitID), zap.String("kind", string(vio.Kind)))
		return
	}
	w.broadcast(events)
	w.afterEvents(events)
}

func (w *Worker) handleAI(m aiMsg) {
	if w.paused || m.id != w.aiSeq {
		return
	}
	if w.st.Combat.Phase != game.PhaseInProgress {
		return
	}
	unit := w.st.Unit(w.st.Combat.HolderID())
	if unit == nil || unit.OwnerID != "" {
		return
	}

	act := w.aiAction(unit)
	events, vio := w.engine.Apply(w.st, act)
	if vio != nil {
		// The heuristic proposed an illegal action; yield the turn so the
		// round cannot stall.
		w.log.Warn("ai action rejected",
			zap.String("unit", unit.ID),
			zap.String("kind", string(act.Kind)),
			zap.String("violation", string(vio.Kind)))
		w.forceEndTurn(unit.ID)
		return
	}
	w.broadcast(events)
	w.afterEvents(events)

	// Same AI unit still holds the turn: queue the next step.
	if w.st.Combat.Phase == game.PhaseInProgress && w.st.Combat.HolderID() == unit.ID {
		w.scheduleAI(w.opts.ParallelDelay)
	}
}

// aiAction is the fixed heuristic: attack a target in range, else step
// toward the closest opposing unit, else end the turn.
func (w *Worker) aiAction(unit *game.Unit) game.Action {
	mySide := unit.Team.PlayerSide()
	var inRange, closest *game.Unit
	best := 0
	for _, id := range w.st.UnitIDs() {
		u := w.st.Units[id]
		if !u.Alive() || u.Team.PlayerSide() == mySide {
			continue
		}
		d := unit.Pos.Chebyshev(u.Pos)
		if d <= unit.Stats.AttackRange && inRange == nil {
			inRange = u
		}
		if closest == nil || d < best {
			closest, best = u, d
		}
	}

	if inRange != nil && !w.st.Combat.Turn.HasAttacked {
		return game.Action{Kind: game.ActAttack, UnitID: unit.ID, TargetID: inRange.ID}
	}
	if closest != nil && w.st.Combat.Turn.MovementRemaining > 0 {
		if path := w.aiPathToward(unit, closest); len(path) >= 2 {
			return game.Action{Kind: game.ActMove, UnitID: unit.ID, Path: path}
		}
	}
	return game.Action{Kind: game.ActEndTurn, UnitID: unit.ID}
}

// aiPathToward plans a move toward the target, clipped to the movement
// budget and backed off any occupied stop tile.
func (w *Worker) aiPathToward(unit, target *game.Unit) []grid.Position {
	path, ok := w.st.FindPath(unit, target.Pos)
	if !ok || len(path) < 2 {
		return nil
	}
	// The last tile is the target itself; stop short of it.
	path = path[:len(path)-1]
	if budget := w.st.Combat.Turn.MovementRemaining; len(path) > budget+1 {
		path = path[:budget+1]
	}
	for len(path) >= 2 && w.st.LivingUnitAt(path[len(path)-1]) != nil {
		path = path[:len(path)-1]
	}
	if len(path) < 2 {
		return nil
	}
	return path
}

func (w *Worker) handleRestore(m restoreMsg) {
	w.cancelTimers()
	w.st = m.st
	w.paused = false
	w.log.Info("session state restored",
		zap.String("phase", string(m.st.Combat.Phase)),
		zap.Int("historyLen", len(m.st.History)))
	w.replyTo(m.reply, Reply{})

	if w.st.Combat.Phase == game.PhaseInProgress {
		w.armTurn(w.st.Combat.HolderID())
	}
}

// afterEvents re-arms timers from the event stream: a new turn arms a
// deadline or an AI step, combat ending cancels everything.
func (w *Worker) afterEvents(events []game.Event) {
	for _, ev := range events {
		switch ev.Type {
		case game.EvTurnStarted:
			w.armTurn(ev.UnitID)
		case game.EvCombatEnded:
			w.cancelTimers()
		}
	}
}

func (w *Worker) armTurn(unitID string) {
	w.cancelTimers()
	unit := w.st.Unit(unitID)
	if unit == nil {
		return
	}
	if unit.OwnerID != "" {
		w.turnRemaining = w.opts.TurnDeadline
		if !w.paused {
			w.startTurnTimer()
		}
		return
	}
	if !w.paused {
		w.scheduleAI(w.aiTurnDelay())
	}
}

// aiTurnDelay is the pacing before an AI unit's first step: sequential mode
// inserts a visible beat scaled by game speed, parallel mode barely pauses.
func (w *Worker) aiTurnDelay() time.Duration {
	if w.st.Config.NpcTurnMode == "parallel" {
		return w.opts.ParallelDelay
	}
	d := w.opts.SequentialDelay
	if speed := w.st.Config.GameSpeed; speed > 0 {
		d = time.Duration(float64(d) / speed)
	}
	return d
}

func (w *Worker) startTurnTimer() {
	w.deadlineSeq++
	id := w.deadlineSeq
	w.turnArmedAt = time.Now()
	w.turnTimer = time.AfterFunc(w.turnRemaining, func() {
		w.post(deadlineMsg{id: id})
	})
}

func (w *Worker) scheduleAI(d time.Duration) {
	w.aiSeq++
	id := w.aiSeq
	w.aiTimer = time.AfterFunc(d, func() {
		w.post(aiMsg{id: id})
	})
}

// pause freezes the turn deadline, preserving the remaining time.
func (w *Worker) pause() {
	w.paused = true
	if w.turnTimer != nil && w.turnTimer.Stop() {
		w.turnRemaining -= time.Since(w.turnArmedAt)
		if w.turnRemaining < 0 {
			w.turnRemaining = 0
		}
	}
	if w.aiTimer != nil {
		w.aiTimer.Stop()
	}
	w.deadlineSeq++ // invalidate any expiry already in flight
	w.aiSeq++
	w.log.Info("session paused")
}

func (w *Worker) resume() {
	w.paused = false
	w.log.Info("session resumed")
	if w.st.Combat.Phase != game.PhaseInProgress {
		return
	}
	unit := w.st.Unit(w.st.Combat.HolderID())
	if unit == nil {
		return
	}
	if unit.OwnerID != "" {
		if w.turnRemaining <= 0 {
			// Expired while frozen.
			w.handleDeadline(deadlineMsg{id: w.deadlineSeq})
			return
		}
		w.startTurnTimer()
		return
	}
	w.scheduleAI(w.aiTurnDelay())
}

func (w *Worker) cancelTimers() {
	if w.turnTimer != nil {
		w.turnTimer.Stop()
		w.turnTimer = nil
	}
	if w.aiTimer != nil {
		w.aiTimer.Stop()
		w.aiTimer = nil
	}
	w.deadlineSeq++
	w.aiSeq++
}

func (w *Worker) member(userID string) *Member {
	for _, mem := range w.members {
		if mem.UserID == userID {
			return mem
		}
	}
	return nil
}

func (w *Worker) replyTo(reply ReplyFunc, r Reply) {
	if reply != nil {
		reply(r)
	}
}

func (w *Worker) broadcast(events []game.Event) {
	if len(events) == 0 || w.sink == nil {
		return
	}
	w.sink.BroadcastEvents(w.id, events)
}

