package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is one client connection. The pumps own the socket I/O; every other
// field is read and written only on the manager goroutine.
type Conn struct {
	ID   string
	sock *websocket.Conn
	send chan []byte
	log  *zap.Logger

	// Manager-goroutine state.
	authed        bool
	userID        string
	userName      string
	picture       string
	sessionID     string
	authTimer     *time.Timer
	lastClientSeq int
	outSeq        int
	lastActivity  time.Time
	limiter       *limiter
	replaced      bool
	closed        bool

	// Close handshake, written before close(send) and read by the write
	// pump after it drains; the channel close orders the two.
	closeCode   int
	closeReason string
}

func newConn(sock *websocket.Conn, sendQueue int, window time.Duration, actionLimit, chatLimit int, log *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		ID:           id,
		sock:         sock,
		send:         make(chan []byte, sendQueue),
		limiter:      newLimiter(window, actionLimit, chatLimit),
		lastActivity: time.Now(),
		log:          log.With(zap.String("conn", id)),
	}
}

// nextSeq mints the next outbound sequence number. Manager goroutine only.
func (c *Conn) nextSeq() int {
	c.outSeq++
	return c.outSeq
}

// enqueue hands a frame to the write pump. Reports false when the queue is
// full, which marks the client too slow to keep.
func (c *Conn) enqueue(frame []byte) bool {
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeWith schedules a coded close through the send queue. The write pump
// delivers every frame enqueued before the call, then the close frame, so
// an error explaining the close always reaches the client first. Manager
// goroutine only.
func (c *Conn) closeWith(code int, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
}

// readPump reads frames off the socket and posts them to the manager. Runs
// in its own goroutine; exits on any read error.
func (m *Manager) readPump(c *Conn) {
	defer m.post(func() { m.unregister(c) })

	c.sock.SetReadLimit(m.cfg.MaxMessageLen)
	c.sock.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
		return nil
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debug("read error", zap.Error(err))
			}
			return
		}
		frame := raw
		if !m.post(func() { m.handleFrame(c, frame) }) {
			return
		}
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. Runs in its own goroutine.
func (m *Manager) writePump(c *Conn) {
	ticker := time.NewTicker(m.cfg.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			if !ok {
				code := c.closeCode
				if code == 0 {
					code = websocket.CloseNormalClosure
				}
				c.sock.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, c.closeReason))
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
