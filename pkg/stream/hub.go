// Package stream serves posture sessions over websockets, one session per
// connection, plus REST routes to inspect and steer live sessions.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/posture-guard/internal/log"
	"github.com/teslashibe/posture-guard/pkg/pose"
	"github.com/teslashibe/posture-guard/pkg/posture"
	"github.com/teslashibe/posture-guard/pkg/protocol"
	"github.com/teslashibe/posture-guard/pkg/session"
)

// ErrSessionNotFound is returned for unknown session IDs
var ErrSessionNotFound = errors.New("stream: session not connected")

const maxFrameSize = 4 * 1024 * 1024

// Connection is one client streaming frames into its own session
type Connection struct {
	ID        string
	Session   *session.Session
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the client
func (c *Connection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastSeen = time.Now()
	c.mu.Unlock()
}

// Hub manages streaming session connections
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	provider pose.Provider
	defaults posture.Config

	onUpdate func(u session.Update)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesRejected   atomic.Uint64
	sessionsOpened   atomic.Uint64
}

// NewHub creates a hub whose sessions detect with provider and start
// from defaults unless the client overrides them.
func NewHub(provider pose.Provider, defaults posture.Config) *Hub {
	return &Hub{
		conns:    make(map[string]*Connection),
		provider: provider,
		defaults: defaults,
	}
}

// OnUpdate sets the callback invoked with every processed frame
func (h *Hub) OnUpdate(callback func(u session.Update)) {
	h.mu.Lock()
	h.onUpdate = callback
	h.mu.Unlock()
}

// RegisterRoutes registers the session websocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Get("/ws/session", h.upgrade, websocket.New(h.handleSession))
	app.Get("/ws/session/:id", h.upgrade, websocket.New(h.handleSession))
}

// upgrade validates the handshake before switching protocols so that bad
// settings and duplicate IDs get a plain HTTP error.
func (h *Hub) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	cfg, err := ConfigFromQuery(h.defaults, c.Query)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if id := c.Params("id"); id != "" && h.GetConnection(id) != nil {
		return fiber.NewError(fiber.StatusConflict, "session already connected")
	}

	c.Locals("config", cfg)
	return c.Next()
}

// ConfigFromQuery overlays the threshold, smoothing and metric query
// parameters onto defaults and validates the result.
func ConfigFromQuery(defaults posture.Config, query func(key string, def ...string) string) (posture.Config, error) {
	cfg := defaults

	if v := query("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, posture.ErrThresholdRange
		}
		cfg.Threshold = f
	}
	if v := query("smoothing"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, posture.ErrSmoothingRange
		}
		cfg.SmoothingWindow = n
	}
	if v := query("metric"); v != "" {
		kind, err := posture.ParseMetricKind(v)
		if err != nil {
			return cfg, err
		}
		cfg.Metric = kind
	}

	return cfg, cfg.Validate()
}

// handleSession runs one session for the lifetime of the connection
func (h *Hub) handleSession(c *websocket.Conn) {
	cfg, ok := c.Locals("config").(posture.Config)
	if !ok {
		cfg = h.defaults
	}

	sess, err := session.New(h.provider, cfg, session.WithID(c.Params("id")))
	if err != nil {
		log.Error("session create failed", "error", err)
		return
	}

	conn := &Connection{
		ID:        sess.ID(),
		Session:   sess,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	if _, exists := h.conns[conn.ID]; exists {
		h.mu.Unlock()
		if msg, err := protocol.NewErrorMessage("session %s already connected", conn.ID); err == nil {
			conn.Send(msg)
		}
		return
	}
	h.conns[conn.ID] = conn
	count := len(h.conns)
	h.mu.Unlock()
	h.sessionsOpened.Add(1)

	logger := log.With("session", conn.ID)
	logger.Info("session connected", "total", count,
		"threshold", cfg.Threshold, "smoothing", cfg.SmoothingWindow, "metric", cfg.Metric)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.conns, conn.ID)
		count := len(h.conns)
		h.mu.Unlock()
		logger.Info("session disconnected", "total", count, "frames", sess.Info().Frames)
	}()

	if msg, err := protocol.NewHelloMessage(conn.ID, sess.Settings()); err == nil {
		h.send(conn, msg)
	}

	c.SetReadLimit(maxFrameSize)

	// Read loop. Frames are processed inline so they stay in arrival order.
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("session read ended", "error", err)
			return
		}

		conn.touch()
		h.messagesReceived.Add(1)
		h.handleMessage(ctx, conn, data)
	}
}

// handleMessage processes one client message
func (h *Hub) handleMessage(ctx context.Context, conn *Connection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.sendError(conn, "invalid message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		h.framesReceived.Add(1)
		frame, err := msg.GetFrameData()
		if err != nil {
			h.framesRejected.Add(1)
			h.sendError(conn, "invalid frame: %v", err)
			return
		}
		img, err := frame.DecodeFrameData()
		if err != nil {
			h.framesRejected.Add(1)
			h.sendError(conn, "invalid frame %d: %v", frame.FrameID, err)
			return
		}

		u := conn.Session.Process(ctx, img)

		status, err := protocol.NewStatusMessage(u, frame.FrameID)
		if err != nil {
			log.Error("status encode failed", "session", conn.ID, "error", err)
			return
		}
		h.send(conn, status)
		h.publish(u)

	case protocol.TypeSettings:
		update, err := msg.GetSettingsData()
		if err != nil {
			h.sendError(conn, "invalid settings: %v", err)
			return
		}
		if _, err := h.configure(conn, *update); err != nil {
			h.sendError(conn, "%v", err)
		}

	case protocol.TypeRestart:
		conn.Session.Restart()

	case protocol.TypePing:
		var id string
		if ping, err := msg.GetPingData(); err == nil {
			id = ping.ID
		}
		if pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli()); err == nil {
			h.send(conn, pong)
		}

	default:
		h.sendError(conn, "unsupported message type %q", msg.Type)
	}
}

// configure applies a partial settings update and acknowledges it with a
// fresh hello carrying the new snapshot.
func (h *Hub) configure(conn *Connection, update protocol.SettingsData) (session.Settings, error) {
	cfg, err := update.Apply(conn.Session.Settings())
	if err != nil {
		return session.Settings{}, err
	}
	settings, err := conn.Session.Configure(cfg)
	if err != nil {
		return session.Settings{}, err
	}
	if msg, err := protocol.NewHelloMessage(conn.ID, settings); err == nil {
		h.send(conn, msg)
	}
	return settings, nil
}

func (h *Hub) publish(u session.Update) {
	h.mu.RLock()
	cb := h.onUpdate
	h.mu.RUnlock()
	if cb != nil {
		cb(u)
	}
}

func (h *Hub) send(conn *Connection, msg *protocol.Message) {
	if err := conn.Send(msg); err != nil {
		log.Debug("send failed", "session", conn.ID, "error", err)
		return
	}
	h.messagesSent.Add(1)
}

func (h *Hub) sendError(conn *Connection, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	log.Debug("rejecting client message", "session", conn.ID, "error", text)

	msg, err := protocol.NewErrorMessage("%s", text)
	if err != nil {
		return
	}
	h.send(conn, msg)
}

// GetConnection returns a connection by session ID
func (h *Hub) GetConnection(id string) *Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[id]
}

// SessionCount returns the number of live sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Configure applies a settings update to a live session
func (h *Hub) Configure(id string, update protocol.SettingsData) (session.Settings, error) {
	conn := h.GetConnection(id)
	if conn == nil {
		return session.Settings{}, ErrSessionNotFound
	}
	return h.configure(conn, update)
}

// Restart schedules recalibration of a live session
func (h *Hub) Restart(id string) error {
	conn := h.GetConnection(id)
	if conn == nil {
		return ErrSessionNotFound
	}
	conn.Session.Restart()
	return nil
}

// Stats contains hub statistics
type Stats struct {
	SessionCount     int    `json:"session_count"`
	SessionsOpened   uint64 `json:"sessions_opened"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesRejected   uint64 `json:"frames_rejected"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		SessionCount:     h.SessionCount(),
		SessionsOpened:   h.sessionsOpened.Load(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesRejected:   h.framesRejected.Load(),
	}
}

// SessionInfo describes a connected session
type SessionInfo struct {
	session.Info
	Connected time.Time `json:"connected"`
}

// GetSessionInfos returns info about all connected sessions
func (h *Hub) GetSessionInfos() []SessionInfo {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, SessionInfo{
			Info:      c.Session.Info(),
			Connected: c.Connected,
		})
	}
	return infos
}
