package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/user/alphacentauri/internal/pty"
)

type Client struct {
	id            string
	conn          *websocket.Conn
	send          chan []byte
	hub           *Hub
	subMu         sync.RWMutex
	subscribeAll  bool
	subscriptions map[pty.Handle]struct{}
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		id:            uuid.NewString(),
		conn:          conn,
		send:          make(chan []byte, 256),
		hub:           hub,
		subscriptions: make(map[pty.Handle]struct{}),
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(32768)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.hub.logger.Debug("client read", "client", c.id, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.Debug("invalid client message", "client", c.id, "error", err)
			c.hub.SendError(c, "invalid message format")
			continue
		}

		switch msg.Type {
		case TypeSubscribe:
			c.hub.subscribe(c, msg.Handle)
		case TypeUnsubscribe:
			c.unsubscribe(msg.Handle)
		case TypeInput:
			if msg.Handle != 0 && msg.Data != "" {
				c.hub.handleInput(c, msg.Handle, []byte(msg.Data))
			}
		case TypeKey:
			if msg.Handle != 0 && msg.Key != "" {
				c.hub.handleInput(c, msg.Handle, []byte(mapNamedKey(msg.Key)))
			}
		case TypeResize:
			if msg.Handle != 0 && msg.Cols > 0 && msg.Rows > 0 {
				c.hub.handleResize(c, msg.Handle, msg.Cols, msg.Rows)
			}
		default:
			c.hub.SendError(c, "unknown message type: "+msg.Type)
		}
	}
}

func (c *Client) subscribe(handle pty.Handle) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if handle == 0 {
		c.subscribeAll = true
		c.subscriptions = make(map[pty.Handle]struct{})
		return
	}
	c.subscriptions[handle] = struct{}{}
}

func (c *Client) unsubscribe(handle pty.Handle) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if handle == 0 {
		c.subscribeAll = false
		return
	}
	delete(c.subscriptions, handle)
}

// wantsHandle reports whether a message about handle should reach c.
// Handle zero addresses every client.
func (c *Client) wantsHandle(handle pty.Handle) bool {
	if handle == 0 {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if c.subscribeAll {
		return true
	}
	_, ok := c.subscriptions[handle]
	return ok
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}
