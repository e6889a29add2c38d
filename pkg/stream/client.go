package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/posture-guard/internal/log"
	"github.com/teslashibe/posture-guard/pkg/protocol"
	"github.com/teslashibe/posture-guard/pkg/session"
)

// ErrClientClosed is returned when sending on a closed client.
var ErrClientClosed = errors.New("stream: client closed")

// writeWait bounds each frame or control write.
const writeWait = 10 * time.Second

// DialOptions selects the session to open. Zero fields use server defaults.
type DialOptions struct {
	SessionID string
	Threshold float64
	Smoothing int
	Metric    string
}

// Client streams frames to a posture server session and receives statuses.
// It implements the terminal UI controller.
type Client struct {
	ws      *websocket.Conn
	wsMutex sync.Mutex

	sessionID string

	mu       sync.RWMutex
	settings protocol.SettingsState

	statuses chan protocol.StatusData
	errs     chan error
	done     chan struct{}

	frameID atomic.Uint64
	closed  atomic.Bool
}

// SessionURL builds the ws:// session URL for an http(s) or ws(s) base URL.
func SessionURL(baseURL string, opts DialOptions) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path += "/ws/session"
	if opts.SessionID != "" {
		u.Path += "/" + url.PathEscape(opts.SessionID)
	}

	q := url.Values{}
	if opts.Threshold != 0 {
		q.Set("threshold", strconv.FormatFloat(opts.Threshold, 'f', -1, 64))
	}
	if opts.Smoothing != 0 {
		q.Set("smoothing", strconv.Itoa(opts.Smoothing))
	}
	if opts.Metric != "" {
		q.Set("metric", opts.Metric)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens a session and waits for its hello.
func Dial(ctx context.Context, baseURL string, opts DialOptions) (*Client, error) {
	target, err := SessionURL(baseURL, opts)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("session connect failed: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("session connect failed: %w", err)
	}

	c := &Client{
		ws:       ws,
		statuses: make(chan protocol.StatusData, 16),
		errs:     make(chan error, 4),
		done:     make(chan struct{}),
	}

	if err := c.waitForHello(); err != nil {
		ws.Close()
		return nil, fmt.Errorf("hello failed: %w", err)
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) waitForHello() error {
	c.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, raw, err := c.ws.ReadMessage()
	c.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	msg, err := protocol.ParseMessage(raw)
	if err != nil {
		return err
	}
	if msg.Type != protocol.TypeHello {
		return fmt.Errorf("expected hello, got %s", msg.Type)
	}
	hello, err := msg.GetHelloData()
	if err != nil {
		return err
	}

	c.sessionID = hello.SessionID
	c.settings = hello.Settings
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.statuses)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.report(fmt.Errorf("connection lost: %w", err))
			}
			return
		}

		msg, err := protocol.ParseMessage(raw)
		if err != nil {
			log.Warn("unparseable server message", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeStatus:
			st, err := msg.GetStatusData()
			if err != nil {
				log.Warn("bad status message", "error", err)
				continue
			}
			select {
			case c.statuses <- *st:
			default:
				log.Debug("status dropped, consumer behind", "seq", st.Seq)
			}

		case protocol.TypeHello:
			// Settings acknowledgment
			hello, err := msg.GetHelloData()
			if err != nil {
				continue
			}
			c.mu.Lock()
			c.settings = hello.Settings
			c.mu.Unlock()
			log.Debug("settings acknowledged", "version", hello.Settings.Version)

		case protocol.TypeError:
			data, err := msg.GetErrorData()
			if err != nil {
				continue
			}
			c.report(errors.New(data.Message))

		case protocol.TypePong:
			if pong, err := msg.GetPongData(); err == nil {
				log.Debug("pong", "id", pong.ID, "latency_ms", pong.LatencyMs)
			}

		default:
			log.Debug("ignoring message", "type", msg.Type)
		}
	}
}

func (c *Client) report(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Client) send(msg *protocol.Message, err error) error {
	if err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

// SessionID returns the server-assigned session ID.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Statuses returns the status feed. It is closed when the connection ends.
func (c *Client) Statuses() <-chan protocol.StatusData {
	return c.statuses
}

// Errors returns server-reported and connection errors.
func (c *Client) Errors() <-chan error {
	return c.errs
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Settings returns the last settings acknowledged by the server.
func (c *Client) Settings() protocol.SettingsState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Apply sends a partial settings update. The server acknowledges with a
// fresh hello, which updates Settings.
func (c *Client) Apply(update protocol.SettingsData) error {
	return c.send(protocol.NewSettingsMessage(update))
}

// Restart asks the server to recalibrate.
func (c *Client) Restart() error {
	return c.send(protocol.NewRestartMessage())
}

// Ping sends a ping. The pong latency is logged at debug level.
func (c *Client) Ping(id string) error {
	return c.send(protocol.NewPingMessage(id))
}

// SendFrame sends one JPEG frame and returns its frame ID.
func (c *Client) SendFrame(width, height int, jpeg []byte) (uint64, error) {
	id := c.frameID.Add(1)
	return id, c.send(protocol.NewFrameMessage(width, height, jpeg, id))
}

// Stream sends a frame from source every interval until ctx is done or the
// connection closes.
func (c *Client) Stream(ctx context.Context, source session.FrameSource, width, height int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	captureErrors := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return ErrClientClosed
		case <-ticker.C:
			frame, err := source.CaptureJPEG()
			if err != nil {
				captureErrors++
				if captureErrors == 1 || captureErrors%50 == 0 {
					log.Warn("frame capture failed", "error", err, "count", captureErrors)
				}
				continue
			}
			captureErrors = 0
			if _, err := c.SendFrame(width, height, frame); err != nil {
				return fmt.Errorf("send frame: %w", err)
			}
		}
	}
}

// Close sends a close frame and shuts down the connection.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.wsMutex.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.wsMutex.Unlock()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	return c.ws.Close()
}
