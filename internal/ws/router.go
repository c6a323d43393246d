package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/auth"
	"github.com/skirmish/server/internal/game"
	"github.com/skirmish/server/internal/session"
)

// handleFrame routes one inbound client frame. Runs on the manager
// goroutine.
func (m *Manager) handleFrame(c *Conn, raw []byte) {
	if c.closed {
		return
	}
	c.lastActivity = time.Now()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		m.sendError(c, CodeInvalidMessage, "malformed envelope", 0)
		return
	}
	// Client seq must be strictly increasing per connection.
	if env.Seq <= c.lastClientSeq {
		m.sendError(c, CodeInvalidMessage,
			fmt.Sprintf("seq %d is not after %d", env.Seq, c.lastClientSeq), env.Seq)
		return
	}
	c.lastClientSeq = env.Seq

	if !c.authed {
		switch env.Type {
		case MsgAuth:
			m.handleAuth(c, env)
		case MsgPing:
			m.send(c, MsgPong, nil, env.Seq, boolPtr(true), "")
		default:
			m.sendError(c, CodeAuthRequired, "authenticate first", env.Seq)
		}
		return
	}

	switch env.Type {
	case MsgPing:
		m.send(c, MsgPong, nil, env.Seq, boolPtr(true), "")
	case MsgAuth:
		// Re-auth on a live connection is a no-op acknowledgment.
		m.send(c, MsgAuthResult, authResultPayload{
			UserID: c.userID, Name: c.userName, Picture: c.picture,
		}, env.Seq, boolPtr(true), "")
	case MsgAction:
		m.handleAction(c, env)
	case MsgChat:
		m.handleChat(c, env)
	case MsgJoinSession:
		m.handleJoin(c, env)
	case MsgLeaveSession:
		m.handleLeaveSession(c, env)
	case MsgPauseToggle:
		m.handlePauseToggle(c, env)
	case MsgStartCombat:
		m.handleStartCombat(c, env)
	case MsgSaveSession:
		m.handleSave(c, env)
	case MsgLoadSession:
		m.handleLoad(c, env)
	default:
		m.sendError(c, CodeInvalidMessage,
			fmt.Sprintf("unknown message type %q", env.Type), env.Seq)
	}
}

func (m *Manager) handleAuth(c *Conn, env Envelope) {
	var p authPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Token == "" {
		m.sendError(c, CodeInvalidMessage, "auth payload requires token", env.Seq)
		return
	}

	// Verification is I/O; run it off the manager goroutine and post the
	// outcome back.
	connID := c.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		info, err := m.verifier.Verify(ctx, p.Token)
		m.post(func() {
			cur := m.conns[connID]
			if cur != c || c.closed {
				return
			}
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					m.log.Error("token verification failed", zap.Error(err))
				}
				m.sendError(c, CodeAuthFailed, "token rejected", env.Seq)
				c.closeWith(CloseAuthFailed, "auth failed")
				delete(m.conns, c.ID)
				return
			}
			m.finishAuth(c, info, env.Seq)
		})
	}()
}

func (m *Manager) handleAction(c *Conn, env Envelope) {
	if !c.limiter.allow(CatAction, time.Now()) {
		m.sendError(c, CodeRateLimited, "action rate limit exceeded", env.Seq)
		return
	}
	if c.sessionID == "" {
		m.sendError(c, CodeInvalidMessage, "join a session first", env.Seq)
		return
	}
	var act game.Action
	if err := json.Unmarshal(env.Payload, &act); err != nil || act.Kind == "" {
		m.sendError(c, CodeInvalidMessage, "malformed action payload", env.Seq)
		return
	}
	w, err := m.registry.Get(c.sessionID)
	if err != nil {
		m.sendError(c, CodeInvalidMessage, "session no longer exists", env.Seq)
		return
	}

	connID := c.ID
	w.Submit(c.userID, act, func(r session.Reply) {
		m.post(func() { m.deliverReply(connID, env.Seq, r) })
	})
}

// deliverReply turns a worker reply into the wire response for reqSeq.
// Broadcast of the emitted events happens separately through the sink.
func (m *Manager) deliverReply(connID string, reqSeq int, r session.Reply) {
	c := m.conns[connID]
	if c == nil || c.closed {
		return
	}
	switch {
	case r.Violation != nil:
		m.send(c, MsgError, errorPayload{
			Code:    string(r.Violation.Kind),
			Message: r.Violation.Message,
		}, reqSeq, boolPtr(false), string(r.Violation.Kind))
	case r.Err != nil:
		m.sendError(c, CodeInternalError, r.Err.Error(), reqSeq)
	default:
		m.send(c, "ack", nil, reqSeq, boolPtr(true), "")
	}
}

func (m *Manager) handleChat(c *Conn, env Envelope) {
	if !c.limiter.allow(CatChat, time.Now()) {
		m.sendError(c, CodeRateLimited, "chat rate limit exceeded", env.Seq)
		return
	}
	if c.sessionID == "" {
		m.sendError(c, CodeInvalidMessage, "join a session first", env.Seq)
		return
	}
	var p chatPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Text == "" {
		m.sendError(c, CodeInvalidMessage, "malformed chat payload", env.Seq)
		return
	}
	if len(p.Text) > MaxChatLen {
		m.sendError(c, CodeInvalidMessage, "chat message too long", env.Seq)
		return
	}

	bcast := chatBroadcast{UserID: c.userID, Name: c.userName, Text: p.Text, Ts: nowMs()}
	for userID := range m.sessions[c.sessionID] {
		if connID, ok := m.users[userID]; ok {
			if member := m.conns[connID]; member != nil {
				m.send(member, MsgChatBcast, bcast, 0, nil, "")
			}
		}
	}
	m.send(c, "ack", nil, env.Seq, boolPtr(true), "")
}

func (m *Manager) handleJoin(c *Conn, env Envelope) {
	var p joinPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.SessionID == "" {
		m.sendError(c, CodeInvalidMessage, "join payload requires sessionId", env.Seq)
		return
	}

	w, err := m.registry.Get(p.SessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		seed := time.Now().UnixNano()
		if p.Seed != nil {
			seed = *p.Seed
		}
		w, err = m.registry.Create(p.SessionID, seed)
	}
	if err != nil {
		m.sendError(c, CodeInternalError, err.Error(), env.Seq)
		return
	}

	connID := c.ID
	sessionID := p.SessionID
	w.Join(c.userID, c.userName, func(r session.Reply) {
		m.post(func() {
			cur := m.conns[connID]
			if cur == nil || cur.closed {
				return
			}
			if r.Err != nil {
				m.sendError(cur, CodeInvalidMessage, r.Err.Error(), env.Seq)
				return
			}
			cur.sessionID = sessionID
			m.addMembership(sessionID, cur.userID)
			m.send(cur, MsgSessionJoined, sessionJoinedPayload{SessionID: sessionID},
				env.Seq, boolPtr(true), "")
		})
	})
}

func (m *Manager) handleLeaveSession(c *Conn, env Envelope) {
	if c.sessionID == "" {
		m.sendError(c, CodeInvalidMessage, "not in a session", env.Seq)
		return
	}
	sessionID := c.sessionID
	c.sessionID = ""
	m.dropMembership(sessionID, c.userID)
	if w, err := m.registry.Get(sessionID); err == nil {
		w.Leave(c.userID, "left")
	}
	m.send(c, "ack", nil, env.Seq, boolPtr(true), "")
}

func (m *Manager) handlePauseToggle(c *Conn, env Envelope) {
	w, ok := m.sessionWorker(c, env.Seq)
	if !ok {
		return
	}
	connID := c.ID
	w.PauseToggle(c.userID, func(r session.Reply) {
		m.post(func() { m.deliverReply(connID, env.Seq, r) })
	})
}

func (m *Manager) handleStartCombat(c *Conn, env Envelope) {
	w, ok := m.sessionWorker(c, env.Seq)
	if !ok {
		return
	}
	connID := c.ID
	w.Start(func(r session.Reply) {
		m.post(func() { m.deliverReply(connID, env.Seq, r) })
	})
}

func (m *Manager) handleSave(c *Conn, env Envelope) {
	if m.store == nil {
		m.sendError(c, CodeInvalidMessage, "save store not configured", env.Seq)
		return
	}
	var p savePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Slot == "" {
		m.sendError(c, CodeInvalidMessage, "save payload requires slot", env.Seq)
		return
	}
	w, ok := m.sessionWorker(c, env.Seq)
	if !ok {
		return
	}

	connID := c.ID
	sessionID := c.sessionID
	w.Snapshot(func(snap []byte, err error) {
		if err == nil {
			// Store I/O stays off both the worker and manager goroutines.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				saveErr := m.store.Save(ctx, p.Slot, p.Name, "session "+sessionID, snap)
				m.post(func() { m.deliverReply(connID, env.Seq, session.Reply{Err: saveErr}) })
			}()
			return
		}
		m.post(func() { m.deliverReply(connID, env.Seq, session.Reply{Err: err}) })
	})
}

func (m *Manager) handleLoad(c *Conn, env Envelope) {
	if m.store == nil {
		m.sendError(c, CodeInvalidMessage, "save store not configured", env.Seq)
		return
	}
	var p loadPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Slot == "" {
		m.sendError(c, CodeInvalidMessage, "load payload requires slot", env.Seq)
		return
	}
	w, ok := m.sessionWorker(c, env.Seq)
	if !ok {
		return
	}

	connID := c.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := m.store.Load(ctx, p.Slot)
		if err != nil {
			m.post(func() { m.deliverReply(connID, env.Seq, session.Reply{Err: err}) })
			return
		}
		st, err := game.LoadState(snap)
		if err != nil {
			m.post(func() { m.deliverReply(connID, env.Seq, session.Reply{Err: err}) })
			return
		}
		w.Restore(st, func(r session.Reply) {
			m.post(func() { m.deliverReply(connID, env.Seq, r) })
		})
	}()
}

func (m *Manager) sessionWorker(c *Conn, reqSeq int) (*session.Worker, bool) {
	if c.sessionID == "" {
		m.sendError(c, CodeInvalidMessage, "join a session first", reqSeq)
		return nil, false
	}
	w, err := m.registry.Get(c.sessionID)
	if err != nil {
		m.sendError(c, CodeInvalidMessage, "session no longer exists", reqSeq)
		return nil, false
	}
	return w, true
}
