// Package client connects the terminal surface to a relay's /surface
// endpoint and turns its messages into Bubble Tea messages.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/loopviz/loopviz/internal/event"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// SurfaceClient manages the websocket connection to a relay.
type SurfaceClient struct {
	url    string
	logger *slog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex // serialises all conn writes (ping, notify)
	conn    *websocket.Conn
	pingCtx context.CancelFunc // cancels the active ping goroutine
	retry   time.Duration
}

// NewSurfaceClient creates a client for a ws://host:port/surface URL.
// logger may be nil.
func NewSurfaceClient(url string, logger *slog.Logger) *SurfaceClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurfaceClient{url: url, logger: logger}
}

// URL returns the relay surface URL.
func (c *SurfaceClient) URL() string {
	return c.url
}

// --- Bubble Tea messages ---

// ConnectedMsg is sent when the surface link comes up.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the surface link drops.
type DisconnectedMsg struct{ Err error }

// RelayMsg carries one relay message.
type RelayMsg struct{ Msg event.Message }

// MalformedMsg reports a frame that was not a relay message.
type MalformedMsg struct {
	Raw []byte
	Err error
}

// Listen returns a command that connects, retrying with backoff until it
// succeeds or ctx ends.
func (c *SurfaceClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			if err != nil {
				c.logger.Debug("surface dial failed", "url", c.url, "err", err, "retry", delay)
				c.mu.Lock()
				c.retry = delay
				c.mu.Unlock()
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.pingCtx = pingCancel
			c.retry = 0
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)

			return ConnectedMsg{}
		}
	}
}

// Retry returns the current reconnect delay, or 0 while connected.
func (c *SurfaceClient) Retry() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry
}

// ReadLoop returns a command that delivers the next relay message. The
// caller re-issues it after handling each message.
func (c *SurfaceClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: fmt.Errorf("no connection")}
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()
			return DisconnectedMsg{Err: err}
		}

		msg, err := event.DecodeMessage(data)
		if err != nil {
			return MalformedMsg{Raw: data, Err: err}
		}
		return RelayMsg{Msg: msg}
	}
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (c *SurfaceClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Interaction is a message the surface sends back for the relay to log.
type Interaction struct {
	Command  string `json:"command"`
	Resource int64  `json:"resourceId,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Notify sends an interaction to the relay.
func (c *SurfaceClient) Notify(in Interaction) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close drops the connection.
func (c *SurfaceClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.pingCtx != nil {
		c.pingCtx()
	}
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
