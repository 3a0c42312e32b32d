package hub

import (
	"github.com/user/alphacentauri/internal/notify"
	"github.com/user/alphacentauri/internal/pty"
)

// Server → client message types.
const (
	TypeNotification = notify.EventName
	TypeOutput       = "output"
	TypeSessions     = "sessions"
	TypeClosed       = "closed"
	TypeError        = "error"
)

// Client → server message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeInput       = "input"
	TypeKey         = "key"
	TypeResize      = "resize"
)

type NotificationMessage struct {
	Type    string       `json:"type"`
	Payload notify.Event `json:"payload"`
}

// OutputMessage carries session output. Dropped counts output bytes of the
// session that were discarded before this message because the hub was
// saturated; a client seeing it can resubscribe to get the replay.
type OutputMessage struct {
	Type    string     `json:"type"`
	Handle  pty.Handle `json:"handle"`
	Data    string     `json:"data"`
	Replay  bool       `json:"replay,omitempty"`
	Dropped int        `json:"dropped,omitempty"`
}

type SessionsMessage struct {
	Type string            `json:"type"`
	List []pty.SessionInfo `json:"list"`
}

// ClosedMessage tells subscribers that a session's output stream ended.
type ClosedMessage struct {
	Type   string     `json:"type"`
	Handle pty.Handle `json:"handle"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is any message a client sends. Handle zero on a subscribe
// means every session.
type ClientMessage struct {
	Type   string     `json:"type"`
	Handle pty.Handle `json:"handle,omitempty"`
	Data   string     `json:"data,omitempty"`
	Key    string     `json:"key,omitempty"`
	Cols   uint16     `json:"cols,omitempty"`
	Rows   uint16     `json:"rows,omitempty"`
}

type hubBroadcast struct {
	data   []byte
	handle pty.Handle
	// output is the number of terminal bytes carried, zero for other messages.
	output int
}
