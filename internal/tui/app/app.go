// Package app is the root Bubble Tea model of the loopviz surface. It owns
// the presentation graph and feeds it from the relay connection.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/loopviz/loopviz/internal/graph"
	"github.com/loopviz/loopviz/internal/relay"
	"github.com/loopviz/loopviz/internal/tui/client"
	"github.com/loopviz/loopviz/internal/tui/theme"
	"github.com/loopviz/loopviz/internal/tui/views/dashboard"
	"github.com/loopviz/loopviz/internal/tui/views/debug"
	"github.com/loopviz/loopviz/internal/tui/views/detail"
	"github.com/loopviz/loopviz/internal/tui/views/status"
	"github.com/loopviz/loopviz/internal/tui/views/timeline"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlayDebug
)

// Model is the root Bubble Tea model.
type Model struct {
	surface *client.SurfaceClient
	http    *client.HTTPClient
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	keys   KeyMap
	width  int
	height int

	graph   *graph.Model
	logSeq  uint64
	info    *relay.SessionInfo
	focusID int64

	overlay Overlay

	statusBar status.Model
	dashboard dashboard.Model
	timeline  timeline.Model
	debug     debug.Model

	connected bool
}

// New creates the root model. surface and http may be nil in tests.
func New(surface *client.SurfaceClient, http *client.HTTPClient, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		surface:   surface,
		http:      http,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		graph:     graph.New(graph.Options{}),
		statusBar: status.New(),
		dashboard: dashboard.New(),
		timeline:  timeline.New(),
		debug:     debug.New(),
	}
}

// Init starts the relay connection.
func (m Model) Init() tea.Cmd {
	if m.surface == nil {
		return nil
	}
	return m.surface.Listen(m.ctx)
}

// Graph exposes the presentation model.
func (m Model) Graph() *graph.Model {
	return m.graph
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		m.timeline.Width = msg.Width
		m.timeline.Height = msg.Height - 10
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.ConnectedMsg:
		m.connected = true
		m.statusBar.Surface = true
		m.statusBar.Retry = 0
		m.debug.Add("ws", "connected to relay")
		return m, tea.Batch(m.readLoop(), m.fetchSession())

	case client.DisconnectedMsg:
		m.connected = false
		m.statusBar.Surface = false
		reason := "disconnected"
		if msg.Err != nil {
			reason += ": " + msg.Err.Error()
		}
		m.debug.Add("ws", reason)
		if m.surface == nil {
			return m, nil
		}
		return m, m.surface.Listen(m.ctx)

	case client.RelayMsg:
		if err := m.graph.Apply(msg.Msg); err != nil {
			m.debug.Add("err", err.Error())
		}
		m.refresh()
		return m, m.readLoop()

	case client.MalformedMsg:
		m.debug.Add("err", fmt.Sprintf("malformed frame (%d bytes): %v", len(msg.Raw), msg.Err))
		return m, m.readLoop()

	case client.SessionInfoMsg:
		if msg.Err != nil {
			m.debug.Add("err", "session info: "+msg.Err.Error())
			return m, nil
		}
		info := msg.Info
		m.info = &info
		m.debug.Add("ws", fmt.Sprintf("relay %s: %d surfaces, link %s", info.Addr, info.Surfaces, info.Session.State))
		return m, nil
	}

	return m, nil
}

func (m Model) readLoop() tea.Cmd {
	if m.surface == nil {
		return nil
	}
	return m.surface.ReadLoop(m.ctx)
}

func (m Model) fetchSession() tea.Cmd {
	if m.http == nil {
		return nil
	}
	return m.http.FetchSession(m.ctx)
}

// notify reports a user interaction to the relay without blocking Update.
func (m Model) notify(in client.Interaction) tea.Cmd {
	if m.surface == nil || !m.connected {
		return nil
	}
	surface, logger := m.surface, m.logger
	return func() tea.Msg {
		if err := surface.Notify(in); err != nil {
			logger.Debug("notify failed", "command", in.Command, "err", err)
		}
		return nil
	}
}

// refresh pushes graph state into the sub-views.
func (m *Model) refresh() {
	for _, e := range m.graph.Log() {
		if e.Seq > m.logSeq {
			m.debug.AddGraphEntry(e)
			m.logSeq = e.Seq
		}
	}

	snap := m.graph.Snapshot()
	m.timeline.SetSnapshot(snap)
	m.dashboard.SetGraph(m.graph)

	live, pending, done := m.timeline.Counts()
	m.statusBar.SetCounts(live+pending, done, m.graph.Counters().Orphans)
	m.statusBar.Link, m.statusBar.Connection = m.graph.Status()
	m.statusBar.Process = processLabel(m.graph.Process())

	if m.overlay == OverlayDetail {
		if _, ok := m.graph.Node(m.focusID); !ok {
			m.overlay = OverlayNone
		}
	}
}

func processLabel(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var p struct {
		PID  int    `json:"pid"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.PID == 0 {
		return ""
	}
	if p.Name == "" {
		return fmt.Sprintf("pid %d", p.PID)
	}
	return fmt.Sprintf("%s (pid %d)", p.Name, p.PID)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && msg.String() == "ctrl+c" {
		m.cancel()
		return m, tea.Quit
	}

	switch m.overlay {
	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		case key.Matches(msg, m.keys.Clear):
			m.debug.Clear()
		case key.Matches(msg, m.keys.Filter):
			m.debug.CycleFilter()
		}
		return m, nil

	case OverlayDetail:
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Parent):
			if v, ok := m.graph.Node(m.focusID); ok && v.Parent != 0 {
				m.focusID = v.Parent
				m.debug.Add("nav", fmt.Sprintf("parent #%d", v.Parent))
				return m, m.notify(client.Interaction{Command: "select", Resource: v.Parent})
			}
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		m.timeline.MoveDown()

	case key.Matches(msg, m.keys.Up):
		m.timeline.MoveUp()

	case key.Matches(msg, m.keys.Tab):
		m.timeline.CycleZone()

	case key.Matches(msg, m.keys.Zone1):
		m.timeline.JumpToZone(timeline.ZoneLive)

	case key.Matches(msg, m.keys.Zone2):
		m.timeline.JumpToZone(timeline.ZonePending)

	case key.Matches(msg, m.keys.Zone3):
		m.timeline.JumpToZone(timeline.ZoneDone)

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchSession()

	case key.Matches(msg, m.keys.Clear):
		m.graph.Reset()
		m.logSeq = 0
		m.debug.Clear()
		m.refresh()
		m.debug.Add("nav", "cleared")
		return m, m.notify(client.Interaction{Command: "clear"})

	case key.Matches(msg, m.keys.Enter):
		v, ok := m.timeline.Selected()
		if !ok {
			return m, nil
		}
		m.focusID = v.ID
		m.overlay = OverlayDetail
		m.debug.Add("nav", fmt.Sprintf("detail #%d", v.ID))
		return m, m.notify(client.Interaction{Command: "select", Resource: v.ID, Detail: v.Kind})
	}

	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if !m.connected {
		return m.renderDisconnected()
	}

	switch m.overlay {
	case OverlayDebug:
		return m.debug.View(m.width, m.height)
	case OverlayDetail:
		if v, ok := m.graph.Node(m.focusID); ok {
			d := detail.New(v, m.graph.Ancestry(v.ID))
			d.Origin, _ = m.graph.Snapshot().Span()
			return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, d.View())
		}
	}

	sections := []string{
		m.statusBar.View(),
		m.dashboard.View(),
		m.timeline.View(),
		theme.StyleDimmed.Render("  j/k:navigate  tab:zone  enter:detail  d:log (f:filter)  r:refresh  c:clear  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	sb := m.statusBar
	url := ""
	if m.surface != nil {
		sb.Retry = m.surface.Retry()
		url = m.surface.URL()
	}
	msg := theme.StyleHeader.Foreground(theme.ColorDanger).Render("DISCONNECTED")
	sub := theme.StyleDimmed.Render("Reconnecting to relay...")
	if url != "" {
		sub = theme.StyleDimmed.Render("Reconnecting to " + url + "...")
	}
	if sb.Retry > 0 {
		sub += theme.StyleDimmed.Render(fmt.Sprintf(" (next attempt in %s)", sb.Retry))
	}
	if n := m.graph.Len(); n > 0 {
		sub += "\n" + theme.StyleDimmed.Render(fmt.Sprintf("%d resources kept from the last session", n))
	}
	box := theme.StyleBorder.Padding(1, 4).Render(lipgloss.JoinVertical(lipgloss.Center, msg, "", sub))
	body := lipgloss.Place(m.width, max(m.height-3, 5), lipgloss.Center, lipgloss.Center, box)
	return lipgloss.JoinVertical(lipgloss.Left, sb.View(), body)
}
