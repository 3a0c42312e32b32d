package api

import (
	"context"

	"github.com/user/alphacentauri/internal/config"
	"github.com/user/alphacentauri/internal/db"
	"github.com/user/alphacentauri/internal/notify"
	"github.com/user/alphacentauri/internal/pty"
)

type sessionManager interface {
	CreateSession(ctx context.Context, opts pty.CreateOptions) (pty.Handle, error)
	WriteToSession(h pty.Handle, data []byte) error
	ReadFromSession(h pty.Handle) ([]byte, error)
	Resize(h pty.Handle, cols, rows uint16) error
	EndSession(h pty.Handle) error
	WaitForExit(ctx context.Context, h pty.Handle) (int, error)
	CheckExitStatus(h pty.Handle) (pty.ExitStatus, error)
	ReleaseSession(h pty.Handle) error
	ListSessions() []pty.SessionInfo
}

type historyReader interface {
	List(ctx context.Context, f db.ListFilter) ([]*db.SessionEvent, error)
}

// relay is the websocket side that needs to hear about table changes.
type relay interface {
	BroadcastSessions()
	Forget(h pty.Handle)
}

// State is the application state every request handler works on. It is
// built once at startup and shared; all fields are safe for concurrent use.
type State struct {
	Sessions sessionManager
	Config   *config.Store
	// Startup holds notifications raised before any UI was listening.
	Startup  *notify.Queue
	Notifier notify.Sink
	History  historyReader
	Relay    relay
}

type handler struct {
	state *State
}

func newHandler(state *State) *handler {
	if state.Config == nil {
		state.Config = config.NewStore(nil)
	}
	if state.Startup == nil {
		state.Startup = &notify.Queue{}
	}
	if state.Notifier == nil {
		state.Notifier = notify.Discard
	}
	return &handler{state: state}
}

func (h *handler) tableChanged() {
	if h.state.Relay != nil {
		h.state.Relay.BroadcastSessions()
	}
}
