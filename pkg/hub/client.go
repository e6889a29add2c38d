package hub

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/posture-guard/internal/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Subscribe is the only message a watcher may send. It replaces the
// session filter; an empty session watches everything.
type Subscribe struct {
	Session string `json:"session"`
}

// Client is one watcher connection
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	filter atomic.Pointer[string]
	sent   atomic.Uint64
}

// NewClient registers a watcher of session ("" for all sessions)
func NewClient(hub *Hub, conn *websocket.Conn, session string) *Client {
	client := &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	client.filter.Store(&session)

	select {
	case hub.register <- client:
	case <-hub.done:
		close(client.send)
	}
	return client
}

// Handler returns a Fiber websocket handler that attaches watchers to h.
// The optional "session" query parameter narrows the feed to one session.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		NewClient(h, c, c.Query("session")).Run()
	})
}

// Run pumps messages until the connection closes
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// Session returns the current session filter
func (c *Client) Session() string {
	return *c.filter.Load()
}

// Sent returns how many messages were written to the watcher
func (c *Client) Sent() uint64 {
	return c.sent.Load()
}

func (c *Client) wants(msg Message) bool {
	filter := c.Session()
	return filter == "" || msg.Session == "" || msg.Session == filter
}

// readPump handles subscription changes, pongs and disconnects
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("watcher read failed", "hub", c.hub.name, "watcher", c.id, "error", err)
			}
			return
		}

		var sub Subscribe
		if err := json.Unmarshal(data, &sub); err != nil {
			log.Debug("ignoring watcher message", "hub", c.hub.name, "watcher", c.id, "error", err)
			continue
		}
		c.filter.Store(&sub.Session)
		log.Debug("watcher subscribed", "hub", c.hub.name, "watcher", c.id, "session", sub.Session)
	}
}

// writePump is the only writer on the connection. Messages queued while a
// write was in flight go out under the same deadline.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(message); err != nil {
				return
			}
			for n := len(c.send); n > 0; n-- {
				message, ok = <-c.send
				if !ok {
					c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.write(message); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msg Message) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
		log.Debug("watcher write failed", "hub", c.hub.name, "watcher", c.id, "error", err)
		return err
	}
	c.sent.Add(1)
	return nil
}
