package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/skirmish/server/internal/auth"
	"github.com/skirmish/server/internal/game"
	"github.com/skirmish/server/internal/persist"
	"github.com/skirmish/server/internal/session"
)

// Config are the transport knobs, filled from server configuration.
type Config struct {
	AuthDeadline  time.Duration
	GracePeriod   time.Duration
	WriteTimeout  time.Duration
	PongTimeout   time.Duration
	SendQueueSize int
	MaxMessageLen int64

	RateWindow  time.Duration
	ActionLimit int
	ChatLimit   int
}

// DefaultConfig returns the stock transport contract.
func DefaultConfig() Config {
	return Config{
		AuthDeadline:  5 * time.Second,
		GracePeriod:   30 * time.Second,
		WriteTimeout:  10 * time.Second,
		PongTimeout:   60 * time.Second,
		SendQueueSize: 64,
		MaxMessageLen: 16 * 1024,
		RateWindow:    time.Minute,
		ActionLimit:   30,
		ChatLimit:     20,
	}
}

// graceEntry tracks a disconnected member's reattachment window.
type graceEntry struct {
	timer     *time.Timer
	sessionID string
}

// Manager owns every connection and the process-wide indexes connID to conn
// and userID to connID. All index mutation happens on the manager goroutine
// through the ops queue; the pumps only move bytes.
type Manager struct {
	cfg      Config
	registry *session.Registry
	verifier auth.Verifier
	store    persist.SaveStore

	ops  chan func()
	done chan struct{}

	conns    map[string]*Conn
	users    map[string]string
	sessions map[string]map[string]struct{} // sessionID -> member userIDs
	grace    map[string]*graceEntry

	log *zap.Logger
}

// NewManager wires the transport over the session registry, verifier, and
// optional save store.
func NewManager(cfg Config, registry *session.Registry, verifier auth.Verifier,
	store persist.SaveStore, log *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		registry: registry,
		verifier: verifier,
		store:    store,
		ops:      make(chan func(), 256),
		done:     make(chan struct{}),
		conns:    map[string]*Conn{},
		users:    map[string]string{},
		sessions: map[string]map[string]struct{}{},
		grace:    map[string]*graceEntry{},
		log:      log,
	}
}

// Run processes manager operations until Stop.
func (m *Manager) Run() {
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.done:
			return
		}
	}
}

// Stop shuts the manager loop down.
func (m *Manager) Stop() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Manager) post(op func()) bool {
	select {
	case m.ops <- op:
		return true
	case <-m.done:
		return false
	}
}

// tryPost enqueues without blocking. Session workers call into the manager
// while the manager calls into workers, so at least one direction must never
// wait on a full queue.
func (m *Manager) tryPost(op func()) bool {
	select {
	case m.ops <- op:
		return true
	default:
		return false
	}
}

// HandleConn adopts an upgraded socket: assigns the connection id, arms the
// auth deadline, and starts the pumps.
func (m *Manager) HandleConn(sock *websocket.Conn) {
	c := newConn(sock, m.cfg.SendQueueSize, m.cfg.RateWindow,
		m.cfg.ActionLimit, m.cfg.ChatLimit, m.log)
	m.post(func() {
		m.conns[c.ID] = c
		c.authTimer = time.AfterFunc(m.cfg.AuthDeadline, func() {
			m.post(func() { m.authExpired(c) })
		})
		m.log.Info("connection opened", zap.String("conn", c.ID))
	})
	go m.readPump(c)
	go m.writePump(c)
}

func (m *Manager) authExpired(c *Conn) {
	if c.authed || c.closed {
		return
	}
	m.sendError(c, CodeAuthRequired, "authentication deadline passed", 0)
	c.closeWith(CloseAuthTimeout, "auth timeout")
}

// unregister runs when a pump dies. An authenticated in-session member gets
// a reconnect grace window instead of being removed outright.
func (m *Manager) unregister(c *Conn) {
	if m.conns[c.ID] != c {
		return
	}
	delete(m.conns, c.ID)
	if !c.closed {
		c.closed = true
		if c.authTimer != nil {
			c.authTimer.Stop()
		}
		c.sock.Close()
		close(c.send)
	}
	m.log.Info("connection closed", zap.String("conn", c.ID))

	if !c.authed || c.replaced {
		return
	}
	if m.users[c.userID] == c.ID {
		delete(m.users, c.userID)
	}
	if c.sessionID == "" {
		return
	}

	m.startGrace(c.userID, c.sessionID)
	if w, err := m.registry.Get(c.sessionID); err == nil {
		w.SetPresence(c.userID, false)
	}
}

func (m *Manager) startGrace(userID, sessionID string) {
	if old, ok := m.grace[userID]; ok {
		old.timer.Stop()
	}
	entry := &graceEntry{sessionID: sessionID}
	entry.timer = time.AfterFunc(m.cfg.GracePeriod, func() {
		m.post(func() { m.graceExpired(userID, entry) })
	})
	m.grace[userID] = entry
	m.log.Info("grace window opened",
		zap.String("user", userID), zap.String("session", sessionID))
}

func (m *Manager) graceExpired(userID string, entry *graceEntry) {
	if m.grace[userID] != entry {
		return
	}
	delete(m.grace, userID)
	m.dropMembership(entry.sessionID, userID)
	if w, err := m.registry.Get(entry.sessionID); err == nil {
		w.Leave(userID, "disconnect_timeout")
	}
	m.log.Info("grace window expired", zap.String("user", userID))
}

// finishAuth installs a verified identity on the connection, displacing any
// previous connection of the same user and reattaching a pending grace
// window.
func (m *Manager) finishAuth(c *Conn, info *auth.UserInfo, reqSeq int) {
	if c.closed {
		return
	}
	if oldID, ok := m.users[info.Sub]; ok && oldID != c.ID {
		if old := m.conns[oldID]; old != nil {
			old.replaced = true
			old.closeWith(CloseReplaced, "replaced by new connection")
			delete(m.conns, oldID)
			c.sessionID = old.sessionID
		}
	}

	c.authed = true
	c.userID = info.Sub
	c.userName = info.Name
	c.picture = info.Picture
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	m.users[info.Sub] = c.ID

	reconnected := ""
	if entry, ok := m.grace[info.Sub]; ok {
		entry.timer.Stop()
		delete(m.grace, info.Sub)
		c.sessionID = entry.sessionID
		reconnected = entry.sessionID
		if w, err := m.registry.Get(entry.sessionID); err == nil {
			w.SetPresence(info.Sub, true)
		}
	}

	m.send(c, MsgAuthResult, authResultPayload{
		UserID:               info.Sub,
		Name:                 info.Name,
		Picture:              info.Picture,
		ReconnectedSessionID: reconnected,
	}, reqSeq, boolPtr(true), "")
	m.log.Info("connection authenticated",
		zap.String("conn", c.ID), zap.String("user", info.Sub))
}

// BroadcastEvents implements session.Broadcaster: fan one event batch out
// to every connected member of the session. Runs on the worker goroutine,
// so it must not block; a batch dropped under saturation stays in the
// session history and reaches clients on the next snapshot.
func (m *Manager) BroadcastEvents(sessionID string, events []game.Event) {
	ok := m.tryPost(func() {
		members, ok := m.sessions[sessionID]
		if !ok {
			return
		}
		for userID := range members {
			connID, ok := m.users[userID]
			if !ok {
				continue
			}
			c := m.conns[connID]
			if c == nil {
				continue
			}
			for _, ev := range events {
				m.send(c, string(ev.Type), ev, 0, nil, "")
			}
		}
	})
	if !ok {
		m.log.Warn("manager queue full, dropping event batch",
			zap.String("session", sessionID), zap.Int("events", len(events)))
	}
}

// addMembership indexes a user into a session.
func (m *Manager) addMembership(sessionID, userID string) {
	members, ok := m.sessions[sessionID]
	if !ok {
		members = map[string]struct{}{}
		m.sessions[sessionID] = members
	}
	members[userID] = struct{}{}
}

func (m *Manager) dropMembership(sessionID, userID string) {
	if members, ok := m.sessions[sessionID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(m.sessions, sessionID)
		}
	}
}

// send marshals and enqueues one envelope. A full send queue drops the
// connection; a slow client must not stall the manager.
func (m *Manager) send(c *Conn, msgType string, payload any, reqSeq int, success *bool, errStr string) {
	if c.closed {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			m.log.Error("marshal payload failed",
				zap.String("type", msgType), zap.Error(err))
			return
		}
	}
	frame, err := json.Marshal(Envelope{
		Type:    msgType,
		Payload: raw,
		Seq:     c.nextSeq(),
		Ts:      nowMs(),
		ReqSeq:  reqSeq,
		Success: success,
		Error:   errStr,
	})
	if err != nil {
		m.log.Error("marshal envelope failed", zap.Error(err))
		return
	}
	if !c.enqueue(frame) {
		m.log.Warn("send queue full, dropping connection", zap.String("conn", c.ID))
		m.unregister(c)
	}
}

func (m *Manager) sendError(c *Conn, code, message string, reqSeq int) {
	m.send(c, MsgError, errorPayload{Code: code, Message: message}, reqSeq, boolPtr(false), code)
}

func boolPtr(b bool) *bool { return &b }
