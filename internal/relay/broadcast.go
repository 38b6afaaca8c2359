package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSurfaceQueue = 256
	surfaceWriteTimeout = 10 * time.Second
)

// surface is one attached presentation client.
type surface struct {
	conn      *websocket.Conn
	b         *Broadcaster
	send      chan []byte
	closeOnce sync.Once
}

func (c *surface) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(surfaceWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.Remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (c *surface) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Broadcaster fans surface messages out to every attached surface. A surface
// whose queue is full is disconnected rather than waited on.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*surface]bool
	queue   int
	logger  *slog.Logger
	metrics *metrics
}

func newBroadcaster(queue int, m *metrics, logger *slog.Logger) *Broadcaster {
	if queue <= 0 {
		queue = defaultSurfaceQueue
	}
	return &Broadcaster{
		clients: make(map[*surface]bool),
		queue:   queue,
		logger:  logger,
		metrics: m,
	}
}

// Add attaches conn and queues initial ahead of any broadcast. initial may
// be nil.
func (b *Broadcaster) Add(conn *websocket.Conn, initial []byte) *surface {
	c := &surface{
		conn: conn,
		b:    b,
		send: make(chan []byte, b.queue),
	}
	if initial != nil {
		c.send <- initial
	}

	b.mu.Lock()
	b.clients[c] = true
	n := len(b.clients)
	b.mu.Unlock()

	b.metrics.surfaces.Set(float64(n))
	go c.writePump()
	return c
}

// Remove detaches c. It is safe to call more than once.
func (b *Broadcaster) Remove(c *surface) {
	b.mu.Lock()
	_, ok := b.clients[c]
	if ok {
		delete(b.clients, c)
		c.close()
	}
	n := len(b.clients)
	b.mu.Unlock()

	if ok {
		b.metrics.surfaces.Set(float64(n))
	}
}

// Broadcast queues data for every surface and returns how many accepted it.
func (b *Broadcaster) Broadcast(data []byte) int {
	var slow []*surface
	delivered := 0

	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn("surface too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		b.metrics.slowSurfaces.Inc()
		b.Remove(c)
	}
	return delivered
}

// Count returns the number of attached surfaces.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close detaches every surface.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
	b.metrics.surfaces.Set(0)
}
