// Package transport is the recorder side of the event link: a websocket
// client that reconnects on its own and never blocks its callers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loopviz/loopviz/internal/session"
)

const (
	defaultQueueSize     = 1024
	defaultReconnectBase = 1 * time.Second
	defaultReconnectMax  = 30 * time.Second
	writeTimeout         = 10 * time.Second
	pongTimeout          = 60 * time.Second
	pingInterval         = 30 * time.Second
)

// ErrNotConnected is returned by Run when ctx ends before any connection was
// ever established.
var ErrNotConnected = errors.New("transport not connected")

// Options tunes a Client. Zero values pick the defaults.
type Options struct {
	QueueSize     int
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	Dialer        *websocket.Dialer
	Logger        *slog.Logger

	// OnConnect runs on the connection goroutine right after a connection
	// is bound; Send already works inside it.
	OnConnect func()
	// OnDisconnect runs after a bound connection is torn down. err is nil
	// for a clean close or cancellation.
	OnDisconnect func(err error)
}

// connSerial numbers connections across all clients in the process so ids
// stay distinct when one session outlives a replaced client.
var connSerial atomic.Int64

// Client holds at most one live websocket connection to the relay.
type Client struct {
	url  string
	opts Options
	sess *session.Session

	mu   sync.Mutex
	conn *websocket.Conn
	send chan []byte

	dialing  atomic.Bool
	inflight atomic.Int64
	ever     atomic.Bool
}

// NewClient creates a client for url. sess records the link state and may be
// shared with the owner.
func NewClient(url string, sess *session.Session, opts Options) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = defaultReconnectBase
	}
	if opts.ReconnectMax < opts.ReconnectBase {
		opts.ReconnectMax = max(defaultReconnectMax, opts.ReconnectBase)
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if sess == nil {
		sess = session.New("transport")
	}
	return &Client{url: url, opts: opts, sess: sess}
}

// URL returns the endpoint this client dials.
func (c *Client) URL() string {
	return c.url
}

// Connected reports whether a connection is currently bound.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Dialing reports whether a connection attempt is outstanding.
func (c *Client) Dialing() bool {
	return c.dialing.Load()
}

// Send queues one text frame for the live connection. It never blocks: with
// no connection, or with the queue full, the frame is dropped and Send
// returns false.
func (c *Client) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return false
	}
	select {
	case c.send <- frame:
		c.inflight.Add(1)
		return true
	default:
		return false
	}
}

// Pending reports whether accepted frames are still waiting to be written.
func (c *Client) Pending() bool {
	return c.inflight.Load() > 0
}

// Run dials, serves, and redials with exponential backoff until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	delay := c.opts.ReconnectBase
	for {
		if ctx.Err() != nil {
			return c.exitErr()
		}

		c.dialing.Store(true)
		c.sess.Begin()
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, nil)
		c.dialing.Store(false)
		if err != nil {
			c.sess.Abandon(err)
			if ctx.Err() != nil {
				return c.exitErr()
			}
			c.opts.Logger.Debug("relay dial failed", "url", c.url, "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return c.exitErr()
			}
			delay = min(delay*2, c.opts.ReconnectMax)
			continue
		}

		delay = c.opts.ReconnectBase
		c.ever.Store(true)
		c.serve(ctx, conn)
	}
}

func (c *Client) exitErr() error {
	if c.ever.Load() {
		return nil
	}
	return ErrNotConnected
}

// serve binds conn, runs its pumps, and unbinds it when either pump fails or
// ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	send := make(chan []byte, c.opts.QueueSize)

	id := "conn-" + strconv.FormatInt(connSerial.Add(1), 10)
	c.mu.Lock()
	c.conn = conn
	c.send = send
	c.mu.Unlock()

	c.sess.Connect(id)
	c.opts.Logger.Info("connected to relay", "url", c.url)
	if c.opts.OnConnect != nil {
		c.opts.OnConnect()
	}

	stop := make(chan struct{})
	errCh := make(chan error, 2)
	go func() { errCh <- c.readLoop(conn) }()
	go func() { errCh <- c.writePump(conn, send, stop) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		c.drain(send)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}

	c.mu.Lock()
	c.conn = nil
	c.send = nil
	c.mu.Unlock()
	close(stop)
	conn.Close()
	c.inflight.Store(0)

	if isCleanClose(err) {
		err = nil
	}
	c.sess.Disconnect(id, err)
	if err != nil {
		c.opts.Logger.Warn("relay connection lost", "url", c.url, "error", err)
	} else {
		c.opts.Logger.Info("disconnected from relay", "url", c.url)
	}
	if c.opts.OnDisconnect != nil {
		c.opts.OnDisconnect(err)
	}
}

// drain gives the write pump a short window to flush frames that were
// accepted before shutdown.
func (c *Client) drain(send chan []byte) {
	deadline := time.Now().Add(time.Second)
	for len(send) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

// readLoop consumes control frames and detects the relay going away. The
// relay sends no data frames on this link.
func (c *Client) readLoop(conn *websocket.Conn) error {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte, stop <-chan struct{}) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.TextMessage, msg)
			c.inflight.Add(-1)
			if err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func isCleanClose(err error) bool {
	if err == nil {
		return true
	}
	return websocket.IsCloseError(errors.Unwrap(err), websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
