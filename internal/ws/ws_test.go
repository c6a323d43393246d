package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skirmish/server/internal/auth"
	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/game"
	"github.com/skirmish/server/internal/session"
)

// fakeVerifier maps tokens straight to identities.
type fakeVerifier struct {
	users map[string]*auth.UserInfo
}

func (v *fakeVerifier) Verify(_ context.Context, token string) (*auth.UserInfo, error) {
	if info, ok := v.users[token]; ok {
		return info, nil
	}
	return nil, auth.ErrInvalidToken
}

type testServer struct {
	url string
	mgr *Manager
	reg *session.Registry
}

func newTestServer(t *testing.T, cfg Config, monsterCount int) *testServer {
	t.Helper()
	weapons, err := data.DefaultWeaponTable()
	require.NoError(t, err)
	loot, err := data.DefaultLootTable()
	require.NoError(t, err)
	monsters, err := data.DefaultMonsterTable()
	require.NoError(t, err)

	gameCfg := game.DefaultSessionConfig()
	gameCfg.WallDensity = 0

	log := zap.NewNop()
	verifier := &fakeVerifier{users: map[string]*auth.UserInfo{
		"tok-ada":  {Sub: "u1", Name: "Ada"},
		"tok-brin": {Sub: "u2", Name: "Brin"},
	}}

	opts := session.DefaultOptions()
	opts.SequentialDelay = time.Millisecond
	opts.ParallelDelay = time.Millisecond

	var mgr *Manager
	reg := session.NewRegistry(game.NewEngine(weapons, loot), monsters, monsterCount,
		gameCfg, opts, broadcasterFunc(func(id string, events []game.Event) {
			mgr.BroadcastEvents(id, events)
		}), log)
	mgr = NewManager(cfg, reg, verifier, nil, log)
	go mgr.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mgr.HandleConn(sock)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		mgr.Stop()
		reg.Shutdown()
	})

	return &testServer{
		url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		mgr: mgr,
		reg: reg,
	}
}

type broadcasterFunc func(string, []game.Event)

func (f broadcasterFunc) BroadcastEvents(id string, events []game.Event) { f(id, events) }

// client is a scripted test peer.
type client struct {
	t    *testing.T
	sock *websocket.Conn
	seq  int
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	sock, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return &client{t: t, sock: sock}
}

func (c *client) send(msgType string, payload any) int {
	c.t.Helper()
	c.seq++
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(c.t, err)
		raw = b
	}
	env := Envelope{Type: msgType, Payload: raw, Seq: c.seq, Ts: nowMs()}
	require.NoError(c.t, c.sock.WriteJSON(env))
	return c.seq
}

// sendRawSeq sends with an explicit seq, for ordering violations.
func (c *client) sendRawSeq(msgType string, seq int) {
	c.t.Helper()
	require.NoError(c.t, c.sock.WriteJSON(Envelope{Type: msgType, Seq: seq, Ts: nowMs()}))
}

// expect reads frames until one of the wanted type arrives.
func (c *client) expect(msgType string, timeout time.Duration) Envelope {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		c.sock.SetReadDeadline(deadline)
		var env Envelope
		if err := c.sock.ReadJSON(&env); err != nil {
			c.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type == msgType {
			return env
		}
	}
}

// expectClose reads until the peer closes, returning the close code.
func (c *client) expectClose(timeout time.Duration) int {
	c.t.Helper()
	c.sock.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.sock.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return closeErr.Code
			}
			c.t.Fatalf("expected close, got %v", err)
		}
	}
}

func (c *client) auth(token string) Envelope {
	c.t.Helper()
	c.send(MsgAuth, authPayload{Token: token})
	return c.expect(MsgAuthResult, 2*time.Second)
}

func (c *client) join(sessionID string, seed int64) {
	c.t.Helper()
	c.send(MsgJoinSession, joinPayload{SessionID: sessionID, Seed: &seed})
	c.expect(MsgSessionJoined, 2*time.Second)
}

func decodePayload[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func TestAuthHandshakeAndPing(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 0)
	c := dial(t, srv.url)

	env := c.auth("tok-ada")
	res := decodePayload[authResultPayload](t, env)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, "Ada", res.Name)

	seq := c.send(MsgPing, nil)
	pong := c.expect(MsgPong, time.Second)
	assert.Equal(t, seq, pong.ReqSeq)
}

func TestPreAuthWhitelist(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 0)
	c := dial(t, srv.url)

	seq := c.send(MsgChat, chatPayload{Text: "hello"})
	env := c.expect(MsgError, time.Second)
	assert.Equal(t, CodeAuthRequired, env.Error)
	assert.Equal(t, seq, env.ReqSeq)
}

func TestAuthTimeoutCloses4001(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthDeadline = 100 * time.Millisecond
	srv := newTestServer(t, cfg, 0)
	c := dial(t, srv.url)

	env := c.expect(MsgError, time.Second)
	assert.Equal(t, CodeAuthRequired, env.Error)
	assert.Equal(t, CloseAuthTimeout, c.expectClose(time.Second))
}

func TestAuthFailureCloses4002(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 0)
	c := dial(t, srv.url)

	c.send(MsgAuth, authPayload{Token: "bogus"})
	env := c.expect(MsgError, 2*time.Second)
	assert.Equal(t, CodeAuthFailed, env.Error)
	assert.Equal(t, CloseAuthFailed, c.expectClose(time.Second))
}

func TestClientSeqMustIncrease(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 0)
	c := dial(t, srv.url)
	c.auth("tok-ada")

	c.sendRawSeq(MsgPing, c.seq) // duplicate of the auth seq
	env := c.expect(MsgError, time.Second)
	assert.Equal(t, CodeInvalidMessage, env.Error)
}

func TestServerSeqStrictlyIncreasing(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 0)
	c := dial(t, srv.url)
	c.auth("tok-ada")

	last := 0
	for i := 0; i < 5; i++ {
		c.send(MsgPing, nil)
		env := c.expect(MsgPong, time.Second)
		assert.Greater(t, env.Seq, last)
		last = env.Seq
	}
}

func TestJoinStartAndPlay(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 1)
	c := dial(t, srv.url)
	c.auth("tok-ada")
	c.join("s1", 42)

	seq := c.send(MsgStartCombat, nil)
	started := c.expect(string(game.EvCombatStarted), 2*time.Second)
	assert.NotZero(t, started.Seq)

	turn := c.expect(string(game.EvTurnStarted), 2*time.Second)
	ev := decodePayload[game.Event](t, turn)
	assert.Equal(t, "p1", ev.UnitID)

	ack := c.expect("ack", 2*time.Second)
	assert.Equal(t, seq, ack.ReqSeq)

	c.send(MsgAction, game.Action{Kind: game.ActEndTurn, UnitID: "p1"})
	c.expect(string(game.EvTurnEnded), 2*time.Second)
}

func TestActionViolationReferencesReqSeq(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 1)
	c := dial(t, srv.url)
	c.auth("tok-ada")
	c.join("s1", 42)
	c.send(MsgStartCombat, nil)
	c.expect(string(game.EvTurnStarted), 2*time.Second)

	seq := c.send(MsgAction, game.Action{Kind: game.ActAttack, UnitID: "p1", TargetID: "m1"})
	env := c.expect(MsgError, 2*time.Second)
	assert.Equal(t, seq, env.ReqSeq)
	assert.Equal(t, string(game.VioOutOfRange), env.Error)
}

func TestChatBroadcast(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 0)
	a := dial(t, srv.url)
	a.auth("tok-ada")
	a.join("s1", 42)
	b := dial(t, srv.url)
	b.auth("tok-brin")
	b.join("s1", 42)

	a.send(MsgChat, chatPayload{Text: "gl hf"})
	env := b.expect(MsgChatBcast, 2*time.Second)
	msg := decodePayload[chatBroadcast](t, env)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, "Ada", msg.Name)
	assert.Equal(t, "gl hf", msg.Text)
}

func TestChatLengthCap(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 0)
	c := dial(t, srv.url)
	c.auth("tok-ada")
	c.join("s1", 42)

	seq := c.send(MsgChat, chatPayload{Text: strings.Repeat("x", MaxChatLen+1)})
	env := c.expect(MsgError, time.Second)
	assert.Equal(t, CodeInvalidMessage, env.Error)
	assert.Equal(t, seq, env.ReqSeq)
}

func TestActionRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ActionLimit = 2
	srv := newTestServer(t, cfg, 1)
	c := dial(t, srv.url)
	c.auth("tok-ada")
	c.join("s1", 42)
	c.send(MsgStartCombat, nil)
	c.expect(string(game.EvTurnStarted), 2*time.Second)

	c.send(MsgAction, game.Action{Kind: game.ActSleep, UnitID: "p1"})
	c.send(MsgAction, game.Action{Kind: game.ActSleep, UnitID: "p1"})
	seq := c.send(MsgAction, game.Action{Kind: game.ActSleep, UnitID: "p1"})
	for {
		env := c.expect(MsgError, 2*time.Second)
		if env.ReqSeq == seq {
			assert.Equal(t, CodeRateLimited, env.Error)
			break
		}
	}
}

func TestSingleConnectionPerUser(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 0)
	first := dial(t, srv.url)
	first.auth("tok-ada")

	second := dial(t, srv.url)
	second.auth("tok-ada")

	assert.Equal(t, CloseReplaced, first.expectClose(2*time.Second))
}

func TestReconnectWithinGrace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GracePeriod = 5 * time.Second
	srv := newTestServer(t, cfg, 0)

	a := dial(t, srv.url)
	a.auth("tok-ada")
	a.join("s1", 42)
	a.sock.Close()

	time.Sleep(100 * time.Millisecond)

	back := dial(t, srv.url)
	env := back.auth("tok-ada")
	res := decodePayload[authResultPayload](t, env)
	assert.Equal(t, "s1", res.ReconnectedSessionID)
}

func TestGraceExpiryRemovesMember(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GracePeriod = 100 * time.Millisecond
	srv := newTestServer(t, cfg, 0)

	a := dial(t, srv.url)
	a.auth("tok-ada")
	a.join("s1", 42)

	b := dial(t, srv.url)
	b.auth("tok-brin")
	b.join("s1", 42)

	a.sock.Close()
	left := b.expect(string(game.EvPlayerLeft), 2*time.Second)
	ev := decodePayload[game.Event](t, left)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "disconnect_timeout", ev.Reason)
}

func TestUnknownTypeIsInvalidMessage(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), 0)
	c := dial(t, srv.url)
	c.auth("tok-ada")

	seq := c.send("warp_ten", nil)
	env := c.expect(MsgError, time.Second)
	assert.Equal(t, CodeInvalidMessage, env.Error)
	assert.Equal(t, seq, env.ReqSeq)
}

func TestBroadcastNeverBlocksOnSaturatedManager(t *testing.T) {
	mgr := NewManager(DefaultConfig(), nil, &fakeVerifier{}, nil, zap.NewNop())
	defer mgr.Stop()

	// Fill the manager queue without running the loop, as if the manager
	// were stuck handing work to a session worker.
	for i := 0; i < cap(mgr.ops); i++ {
		mgr.ops <- func() {}
	}

	done := make(chan struct{})
	go func() {
		mgr.BroadcastEvents("s1", []game.Event{{Type: game.EvTurnStarted, UnitID: "p1"}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a saturated manager queue")
	}
}

func TestLimiterSlidingWindow(t *testing.T) {
	l := newLimiter(100*time.Millisecond, 2, 0)
	now := time.Now()

	assert.True(t, l.allow(CatAction, now))
	assert.True(t, l.allow(CatAction, now.Add(10*time.Millisecond)))
	assert.False(t, l.allow(CatAction, now.Add(20*time.Millisecond)))
	// The first hit ages out of the window.
	assert.True(t, l.allow(CatAction, now.Add(111*time.Millisecond)))

	// Chat limit 0 disables the category.
	assert.True(t, l.allow(CatChat, now))
}
