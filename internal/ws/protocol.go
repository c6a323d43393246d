// Package ws is the WebSocket session layer: the connection manager, the
// message router, and the wire protocol they share. Connection and session
// indexes are mutated only on the manager goroutine; session workers never
// touch connections directly.
package ws

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame in both directions. Server seq is strictly
// increasing per connection; client seq must be strictly increasing per
// sender. ReqSeq ties a reply to the client message it answers.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     int             `json:"seq"`
	Ts      int64           `json:"ts"`
	ReqSeq  int             `json:"reqSeq,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client to server message types.
const (
	MsgAuth         = "auth"
	MsgPing         = "ping"
	MsgAction       = "action"
	MsgChat         = "chat"
	MsgJoinSession  = "join_session"
	MsgLeaveSession = "leave_session"
	MsgPauseToggle  = "pause_toggle"
	MsgStartCombat  = "start_combat"
	MsgSaveSession  = "save_session"
	MsgLoadSession  = "load_session"
)

// Server to client message types. Game events reuse their event type names.
const (
	MsgPong          = "pong"
	MsgAuthResult    = "auth_result"
	MsgError         = "error"
	MsgChatBcast     = "chat_message"
	MsgSessionJoined = "session_joined"
)

// Error codes carried in error payloads. Rule-violation kinds from the
// rules engine are sent through the same field.
const (
	CodeAuthRequired   = "AUTH_REQUIRED"
	CodeAuthFailed     = "AUTH_FAILED"
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternalError  = "INTERNAL_ERROR"
)

// WebSocket close codes.
const (
	CloseAuthTimeout = 4001
	CloseAuthFailed  = 4002
	CloseReplaced    = 4003
)

// MaxChatLen caps chat message content.
const MaxChatLen = 500

type authPayload struct {
	Token string `json:"token"`
}

type authResultPayload struct {
	UserID               string `json:"userId"`
	Name                 string `json:"name"`
	Picture              string `json:"picture,omitempty"`
	ReconnectedSessionID string `json:"reconnectedSessionId,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type chatPayload struct {
	Text string `json:"text"`
}

type chatBroadcast struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"`
}

type joinPayload struct {
	SessionID string `json:"sessionId"`
	Seed      *int64 `json:"seed,omitempty"` // lobby creator may pin the seed
}

type sessionJoinedPayload struct {
	SessionID string `json:"sessionId"`
}

type savePayload struct {
	Slot string `json:"slot"`
	Name string `json:"name"`
}

type loadPayload struct {
	Slot string `json:"slot"`
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
