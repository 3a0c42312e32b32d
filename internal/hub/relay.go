package hub

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/user/alphacentauri/internal/pty"
)

// replayBufferSize bounds how much recent output a late subscriber receives.
const replayBufferSize = 64 * 1024

// subscribe adds handle to c's subscriptions, replays what the session
// printed so far and makes sure a pump is reading the session.
func (h *Hub) subscribe(c *Client, handle pty.Handle) {
	c.subscribe(handle)
	if handle == 0 || h.term == nil {
		return
	}

	if backlog := h.replayBuffer(handle).Bytes(); len(backlog) > 0 {
		data, err := json.Marshal(OutputMessage{Type: TypeOutput, Handle: handle, Data: string(backlog), Replay: true})
		if err == nil {
			select {
			case c.send <- data:
			default:
			}
		}
	}
	h.startPump(handle)
}

// startPump starts the single reader for handle unless one is running.
func (h *Hub) startPump(handle pty.Handle) {
	h.relayMu.Lock()
	if _, running := h.pumps[handle]; running {
		h.relayMu.Unlock()
		return
	}
	h.pumps[handle] = struct{}{}
	h.relayMu.Unlock()

	go h.pump(handle)
}

// pump reads the session until it fails or reports nothing left to read.
func (h *Hub) pump(handle pty.Handle) {
	defer func() {
		h.relayMu.Lock()
		delete(h.pumps, handle)
		h.relayMu.Unlock()
	}()

	ctx := h.context()
	h.logger.Debug("output pump started", "handle", handle)
	for ctx.Err() == nil {
		data, err := h.term.ReadFromSession(handle)
		if err != nil || len(data) == 0 {
			break
		}
		h.BroadcastOutput(handle, data)
	}
	h.rateLimiter.Flush(handle)
	h.send(handle, ClosedMessage{Type: TypeClosed, Handle: handle})
	h.logger.Debug("output pump stopped", "handle", handle)
}

// PumpRunning reports whether output of handle is being relayed.
func (h *Hub) PumpRunning(handle pty.Handle) bool {
	h.relayMu.Lock()
	defer h.relayMu.Unlock()
	_, ok := h.pumps[handle]
	return ok
}

// Forget drops the replay buffer of a released session.
func (h *Hub) Forget(handle pty.Handle) {
	h.relayMu.Lock()
	delete(h.replay, handle)
	delete(h.dropped, handle)
	h.relayMu.Unlock()
}

func (h *Hub) replayBuffer(handle pty.Handle) *ringBuf {
	h.relayMu.Lock()
	defer h.relayMu.Unlock()
	rb, ok := h.replay[handle]
	if !ok {
		rb = newRingBuf(replayBufferSize)
		h.replay[handle] = rb
	}
	return rb
}

func (h *Hub) handleInput(c *Client, handle pty.Handle, data []byte) {
	if h.term == nil {
		return
	}
	if err := h.term.WriteToSession(handle, data); err != nil {
		h.SendError(c, err.Error())
	}
}

func (h *Hub) handleResize(c *Client, handle pty.Handle, cols, rows uint16) {
	if h.term == nil {
		return
	}
	if err := h.term.Resize(handle, cols, rows); err != nil {
		h.SendError(c, err.Error())
	}
}

// mapNamedKey translates a key name to the bytes a terminal sends for it.
// Unknown names are sent as typed.
func mapNamedKey(key string) string {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "enter":
		return "\r"
	case "c-c", "ctrl+c":
		return "\x03"
	case "c-d", "ctrl+d":
		return "\x04"
	case "c-z", "ctrl+z":
		return "\x1a"
	case "c-l", "ctrl+l":
		return "\x0c"
	case "escape", "esc":
		return "\x1b"
	case "tab":
		return "\t"
	case "backspace":
		return "\x7f"
	case "up", "arrowup":
		return "\x1b[A"
	case "down", "arrowdown":
		return "\x1b[B"
	case "right", "arrowright":
		return "\x1b[C"
	case "left", "arrowleft":
		return "\x1b[D"
	default:
		return key
	}
}

// ringBuf keeps the most recent bytes written to it.
type ringBuf struct {
	mu   sync.Mutex
	data []byte
	pos  int
	full bool
}

func newRingBuf(capacity int) *ringBuf {
	return &ringBuf{data: make([]byte, capacity)}
}

func (r *ringBuf) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(p) >= len(r.data) {
		copy(r.data, p[len(p)-len(r.data):])
		r.pos = 0
		r.full = true
		return
	}
	n := copy(r.data[r.pos:], p)
	if n < len(p) {
		copy(r.data, p[n:])
		r.full = true
	}
	r.pos = (r.pos + len(p)) % len(r.data)
	if r.pos == 0 {
		r.full = true
	}
}

// Bytes returns a copy of the buffered data, oldest first.
func (r *ringBuf) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]byte(nil), r.data[:r.pos]...)
	}
	out := make([]byte, 0, len(r.data))
	out = append(out, r.data[r.pos:]...)
	return append(out, r.data[:r.pos]...)
}
