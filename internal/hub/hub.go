package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/alphacentauri/internal/notify"
	"github.com/user/alphacentauri/internal/pty"
)

const defaultBatchInterval = 20 * time.Millisecond

// Terminal is the part of the session manager the relay drives.
type Terminal interface {
	WriteToSession(h pty.Handle, data []byte) error
	ReadFromSession(h pty.Handle) ([]byte, error)
	Resize(h pty.Handle, cols, rows uint16) error
	ListSessions() []pty.SessionInfo
}

// Hub fans notifications and session output out to websocket clients and
// relays their input back to the sessions.
type Hub struct {
	clients    map[string]*Client
	register   chan *clientRegistration
	unregister chan *Client
	broadcast  chan hubBroadcast
	token      string
	term       Terminal
	logger     *slog.Logger
	mu         sync.RWMutex

	relayMu sync.Mutex
	pumps   map[pty.Handle]struct{}
	replay  map[pty.Handle]*ringBuf
	dropped map[pty.Handle]int

	rateLimiter  *RateLimiter
	batchEnabled atomic.Bool
	running      atomic.Bool

	ctxMu sync.RWMutex
	ctx   context.Context
}

type clientRegistration struct {
	client  *Client
	initial []byte
}

// New creates a hub. term may be nil, in which case only notifications are
// delivered.
func New(token string, term Terminal, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *clientRegistration, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan hubBroadcast, 256),
		token:      token,
		term:       term,
		logger:     logger,
		pumps:      make(map[pty.Handle]struct{}),
		replay:     make(map[pty.Handle]*ringBuf),
		dropped:    make(map[pty.Handle]int),
		ctx:        context.Background(),
	}
	h.batchEnabled.Store(true)
	h.rateLimiter = NewRateLimiter(defaultBatchInterval, func(handle pty.Handle, msg OutputMessage) {
		h.sendBroadcast(handle, msg)
	})
	return h
}

func (h *Hub) context() context.Context {
	h.ctxMu.RLock()
	defer h.ctxMu.RUnlock()
	return h.ctx
}

func (h *Hub) Run(ctx context.Context) {
	h.ctxMu.Lock()
	h.ctx = ctx
	h.ctxMu.Unlock()
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.rateLimiter.FlushAll()
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client.id] = reg.client
			h.mu.Unlock()
			if reg.initial != nil {
				select {
				case reg.client.send <- reg.initial:
				default:
				}
			}
			go reg.client.writePump(ctx)
			go reg.client.readPump(ctx)
			h.logger.Info("client connected", "client", reg.client.id, "total", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", "client", client.id, "total", h.ClientCount())

		case b := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				if !c.wantsHandle(b.handle) {
					continue
				}
				select {
				case c.send <- b.data:
				default:
					if b.output > 0 {
						h.logger.Warn("client send buffer full, dropping output",
							"client", c.id, "handle", b.handle, "bytes", b.output)
					} else {
						h.logger.Warn("client send buffer full, dropping message", "client", c.id)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept", "error", err)
		return
	}

	client := newClient(conn, h)
	initial, _ := json.Marshal(SessionsMessage{Type: TypeSessions, List: h.sessions()})

	select {
	case h.register <- &clientRegistration{client: client, initial: initial}:
	default:
		h.logger.Warn("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
	}
}

// Notify broadcasts a notification event to every client.
func (h *Hub) Notify(ev notify.Event) {
	h.send(0, NotificationMessage{Type: TypeNotification, Payload: ev})
}

// BroadcastSessions pushes the current session table to every client.
func (h *Hub) BroadcastSessions() {
	h.send(0, SessionsMessage{Type: TypeSessions, List: h.sessions()})
}

// BroadcastOutput records data in the session's replay buffer and sends it
// to the session's subscribers.
func (h *Hub) BroadcastOutput(handle pty.Handle, data []byte) {
	h.replayBuffer(handle).Write(data)
	if h.batchEnabled.Load() {
		h.rateLimiter.Add(handle, data)
		return
	}
	h.sendBroadcast(handle, OutputMessage{Type: TypeOutput, Handle: handle, Data: string(data)})
}

// sendBroadcast queues session output. Output that cannot be queued is
// counted against the handle and reported on the next message that is.
func (h *Hub) sendBroadcast(handle pty.Handle, msg OutputMessage) {
	h.relayMu.Lock()
	defer h.relayMu.Unlock()
	msg.Dropped = h.dropped[handle]
	if h.enqueue(handle, msg, len(msg.Data)) {
		delete(h.dropped, handle)
		return
	}
	h.dropped[handle] += len(msg.Data)
	h.logger.Warn("broadcast channel full, dropping output",
		"handle", handle, "bytes", len(msg.Data), "pending_dropped", h.dropped[handle])
}

// DroppedOutput returns how many output bytes of handle were dropped since
// the last message that got through.
func (h *Hub) DroppedOutput(handle pty.Handle) int {
	h.relayMu.Lock()
	defer h.relayMu.Unlock()
	return h.dropped[handle]
}

func (h *Hub) send(handle pty.Handle, msg any) {
	if !h.enqueue(handle, msg, 0) {
		h.logger.Warn("broadcast channel full, dropping message", "handle", handle)
	}
}

func (h *Hub) enqueue(handle pty.Handle, msg any, output int) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal hub message", "error", err)
		return false
	}
	select {
	case h.broadcast <- hubBroadcast{data: data, handle: handle, output: output}:
		return true
	default:
		return false
	}
}

func (h *Hub) SendError(client *Client, message string) {
	data, err := json.Marshal(ErrorMessage{Type: TypeError, Message: message})
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SetBatchEnabled(enabled bool) {
	h.batchEnabled.Store(enabled)
}

func (h *Hub) FlushPendingOutput() {
	h.rateLimiter.FlushAll()
}

func (h *Hub) sessions() []pty.SessionInfo {
	if h.term == nil {
		return []pty.SessionInfo{}
	}
	return h.term.ListSessions()
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.running.Load() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		h.logger.Warn("unregister channel full, forcing close", "client", c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
