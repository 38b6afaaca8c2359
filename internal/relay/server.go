// Package relay is the session broker between one recorder link and any
// number of presentation surfaces.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/loopviz/loopviz/internal/config"
	"github.com/loopviz/loopviz/internal/event"
	"github.com/loopviz/loopviz/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	maxFrameSize    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// ErrBind is returned when the relay cannot claim its listening address.
// The relay never searches for another port.
var ErrBind = errors.New("relay cannot bind")

// Options carries the relay's collaborators. Zero values pick defaults.
type Options struct {
	Logger *slog.Logger
	// Registry receives the relay's metrics; a private registry is created
	// when nil.
	Registry *prometheus.Registry
	// NewID names recorder connections. Defaults to random UUIDs.
	NewID func() string
}

// link is the bound recorder connection.
type link struct {
	id   string
	conn *websocket.Conn
}

// Server accepts recorder links on "/" and "/ingest" and surfaces on
// "/surface", and forwards every valid recorder frame to all surfaces.
type Server struct {
	cfg     config.RelayConfig
	logger  *slog.Logger
	sess    *session.Session
	b       *Broadcaster
	metrics *metrics
	newID   func() string
	origins atomic.Pointer[originPolicy]

	mu         sync.Mutex
	link       *link
	lastStatus []byte

	ln  net.Listener
	srv *http.Server
}

// NewServer builds a relay for cfg. Nothing listens until Listen.
func NewServer(cfg config.RelayConfig, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	m := newMetrics(opts.Registry)
	s := &Server{
		cfg:     cfg,
		logger:  opts.Logger,
		sess:    session.New("relay"),
		metrics: m,
		newID:   opts.NewID,
	}
	s.b = newBroadcaster(cfg.SurfaceQueue, m, opts.Logger)
	s.origins.Store(newOriginPolicy(cfg.AllowedOrigins))
	s.lastStatus = s.encode(event.StatusMessage(event.LinkDisconnected, ""))
	return s
}

// Session exposes the relay's view of the recorder link.
func (s *Server) Session() *session.Session {
	return s.sess
}

// Surfaces returns the number of attached surfaces.
func (s *Server) Surfaces() int {
	return s.b.Count()
}

// SetAllowedOrigins replaces the surface origin allow-list.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.origins.Store(newOriginPolicy(origins))
	s.logger.Info("allowed origins updated", "count", len(origins))
}

// Handler returns the relay's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/surface", s.handleSurface)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", s.metrics.handler())
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Listen claims the configured address. Failure wraps ErrBind.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBind, addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve handles connections until ctx is cancelled, then drops the
// recorder link and every surface.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.srv = &http.Server{Handler: s.Handler()}
	s.logger.Info("relay listening", "addr", s.Addr())

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()

	select {
	case err := <-errc:
		s.closeLinks()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	s.closeLinks()
	if err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	return nil
}

func (s *Server) closeLinks() {
	s.mu.Lock()
	if s.link != nil {
		s.link.conn.Close()
	}
	s.mu.Unlock()
	s.b.Close()
}

func (s *Server) upgrader() *websocket.Upgrader {
	policy := s.origins.Load()
	return &websocket.Upgrader{CheckOrigin: policy.allow}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "loopviz relay")
		return
	}
	s.handleIngest(w, r)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("recorder upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	id := s.newID()
	s.bind(id, conn)
	s.logger.Info("recorder connected", "connection", id, "remote", r.RemoteAddr)

	go s.readRecorder(id, conn)
}

// bind makes id the live recorder link. A previous link is announced as
// disconnected and closed before the new one is announced.
func (s *Server) bind(id string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.link
	s.link = &link{id: id, conn: conn}
	if replaced := s.sess.Connect(id); replaced != "" {
		s.postLocked(event.LinkDisconnected, replaced)
		s.logger.Info("recorder link replaced", "previous", replaced, "connection", id)
	}
	if old != nil {
		old.conn.Close()
	}
	s.postLocked(event.LinkConnected, id)
}

func (s *Server) readRecorder(id string, conn *websocket.Conn) {
	var cause error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cause = err
			}
			break
		}
		s.forward(id, data)
	}
	conn.Close()
	s.unbind(id, cause)
}

// unbind releases id if it is still the live link. Closes of replaced links
// post nothing.
func (s *Server) unbind(id string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sess.Disconnect(id, cause) {
		return
	}
	s.link = nil
	if cause != nil {
		s.logger.Warn("recorder link failed", "connection", id, "err", cause)
		s.postLocked(event.LinkError, id)
	} else {
		s.logger.Info("recorder disconnected", "connection", id)
	}
	s.postLocked(event.LinkDisconnected, id)
}

// forward validates one recorder frame and posts it unchanged to the
// surfaces. Frames are discarded while no surface is attached.
func (s *Server) forward(id string, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link == nil || s.link.id != id {
		s.metrics.frames.WithLabelValues(frameDiscarded).Inc()
		return
	}
	if _, err := event.Decode(frame); err != nil {
		s.logger.Warn("discarding malformed frame", "connection", id, "err", err)
		s.metrics.frames.WithLabelValues(frameMalformed).Inc()
		s.postLocked(event.LinkError, id)
		return
	}
	if s.b.Count() == 0 {
		s.metrics.frames.WithLabelValues(frameDiscarded).Inc()
		return
	}
	if data := s.encode(event.EventMessage(frame)); data != nil {
		s.b.Broadcast(data)
		s.metrics.frames.WithLabelValues(frameForwarded).Inc()
	}
}

// postLocked broadcasts a status message and remembers it for surfaces
// that attach later. Caller must hold s.mu.
func (s *Server) postLocked(status, id string) {
	data := s.encode(event.StatusMessage(status, id))
	if data == nil {
		return
	}
	s.lastStatus = data
	s.metrics.links.WithLabelValues(status).Inc()
	s.b.Broadcast(data)
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("surface upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	s.mu.Lock()
	c := s.b.Add(conn, s.lastStatus)
	s.mu.Unlock()
	s.logger.Info("surface attached", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.b.Remove(c)
			s.logger.Info("surface detached", "remote", r.RemoteAddr)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.logger.Debug("surface message", "remote", r.RemoteAddr, "body", string(data))
		}
	}()
}

// SessionInfo is the body of /api/session.
type SessionInfo struct {
	Session  session.Snapshot `json:"session"`
	Surfaces int              `json:"surfaces"`
	Addr     string           `json:"addr"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SessionInfo{
		Session:  s.sess.Snapshot(),
		Surfaces: s.b.Count(),
		Addr:     s.Addr(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (s *Server) encode(msg event.Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode surface message", "command", msg.Command, "err", err)
		return nil
	}
	return data
}
