// Package graph reconstructs resource lifecycles and trigger relationships
// from a lifecycle event stream. A Model is owned by a single goroutine and
// is not safe for concurrent use.
package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/loopviz/loopviz/internal/event"
)

const (
	DefaultMaxLogEntries    = 500
	DefaultMaxOpenIntervals = 8
)

// Options tunes a Model. Zero values select the defaults.
type Options struct {
	MaxLogEntries    int
	MaxOpenIntervals int
	// Clock stamps log entries for status messages, which carry no
	// timestamp of their own. Defaults to time.Now.
	Clock func() time.Time
}

// Counters describe how the model disposed of its input.
type Counters struct {
	Applied   uint64 `json:"applied"`
	Orphans   uint64 `json:"orphans"`
	Ignored   uint64 `json:"ignored"`
	Malformed uint64 `json:"malformed"`
}

// Model is the presentation-side ResourceGraph plus session status and a
// bounded log of everything received.
type Model struct {
	opts Options

	nodes   map[int64]*node
	roots   []int64
	retired []*node

	status     string
	connection string
	generation int
	process    json.RawMessage

	log      entryLog
	counters Counters
}

// New returns an empty model in the disconnected state.
func New(opts Options) *Model {
	if opts.MaxLogEntries <= 0 {
		opts.MaxLogEntries = DefaultMaxLogEntries
	}
	if opts.MaxOpenIntervals <= 0 {
		opts.MaxOpenIntervals = DefaultMaxOpenIntervals
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Model{
		opts:   opts,
		nodes:  make(map[int64]*node),
		status: event.LinkDisconnected,
		log:    entryLog{max: opts.MaxLogEntries},
	}
}

// Apply consumes one relay-to-surface message.
func (m *Model) Apply(msg event.Message) error {
	switch msg.Command {
	case event.CommandEvent:
		ev, err := msg.Event()
		if err != nil {
			m.counters.Malformed++
			return err
		}
		m.ApplyEvent(ev)
		return nil
	case event.CommandStatus:
		status, err := msg.Status()
		if err != nil {
			m.counters.Malformed++
			return err
		}
		m.applyLinkStatus(status, msg.Connection)
		return nil
	default:
		m.counters.Ignored++
		return nil
	}
}

// ApplyEvent consumes one lifecycle event. It never fails: events naming
// unknown resources and unknown event types are counted and dropped.
func (m *Model) ApplyEvent(ev event.LifecycleEvent) {
	if !ev.EventType.Known() {
		m.counters.Ignored++
		return
	}
	at := ev.Time()

	if ev.EventType.IsStatus() {
		m.applyRecorderStatus(ev)
		m.log.add(Entry{At: at, Kind: EntryEvent, Event: ev})
		m.counters.Applied++
		return
	}

	if ev.EventType == event.Init {
		if !m.init(ev, at) {
			m.counters.Ignored++
			return
		}
		m.log.add(Entry{At: at, Kind: EntryEvent, Event: ev})
		m.counters.Applied++
		return
	}

	n, ok := m.nodes[ev.ResourceID]
	if !ok {
		m.counters.Orphans++
		return
	}

	applied := true
	switch ev.EventType {
	case event.Before:
		applied = !n.state.Terminal()
		if applied {
			n.begin(at, m.opts.MaxOpenIntervals)
		}
	case event.After:
		applied = !n.state.Terminal() && n.end(at)
	case event.Destroy:
		applied = !n.state.Terminal()
		if applied {
			n.destroy(at)
		}
	case event.PromiseResolve:
		applied = !n.state.Terminal() && n.resolvedAt.IsZero()
		if applied {
			n.resolvedAt = at
		}
	}
	if !applied {
		m.counters.Ignored++
		return
	}
	m.log.add(Entry{At: at, Kind: EntryEvent, Event: ev})
	m.counters.Applied++
}

// init inserts a node. An init for a live id is ignored; an init for a
// destroyed id retires the old node and starts a fresh one.
func (m *Model) init(ev event.LifecycleEvent, at time.Time) bool {
	if old, ok := m.nodes[ev.ResourceID]; ok {
		if !old.state.Terminal() {
			return false
		}
		m.retire(old)
	}

	n := &node{
		id:        ev.ResourceID,
		kind:      ev.Kind,
		triggerID: ev.TriggerID,
		parent:    event.RootID,
		stack:     ev.Stack,
		state:     Created,
		createdAt: at,
	}
	if p, ok := m.nodes[ev.TriggerID]; ok && ev.TriggerID != ev.ResourceID {
		n.parent = p.id
		p.children = append(p.children, n.id)
	} else {
		m.roots = append(m.roots, n.id)
	}
	m.nodes[n.id] = n
	return true
}

// retire moves old out of the graph. Its surviving children are re-hung
// off the root so they never resolve to whatever reuses the id; their
// TriggerID still names the retired resource.
func (m *Model) retire(old *node) {
	delete(m.nodes, old.id)
	if p, ok := m.nodes[old.parent]; ok && old.parent != event.RootID {
		p.children = removeID(p.children, old.id)
	} else {
		m.roots = removeID(m.roots, old.id)
	}
	for _, id := range old.children {
		if c, ok := m.nodes[id]; ok && c.parent == old.id {
			c.parent = event.RootID
			m.roots = append(m.roots, c.id)
		}
	}
	m.retired = append(m.retired, old)
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// applyLinkStatus handles a relay status message. A connected status for a
// connection other than the current one starts a new empty graph.
func (m *Model) applyLinkStatus(status, connection string) {
	switch status {
	case event.LinkConnected:
		fresh := connection != m.connection
		if connection == "" {
			fresh = m.status != event.LinkConnected
		}
		if fresh {
			m.reset()
		}
		m.connection = connection
	case event.LinkDisconnected, event.LinkError:
	default:
		m.counters.Ignored++
		return
	}
	m.status = status
	m.log.add(Entry{At: m.opts.Clock(), Kind: EntryStatus, Status: status, Connection: connection})
	m.counters.Applied++
}

// applyRecorderStatus handles the status events a recorder puts in its own
// stream. They update the flag and process identity but never reset the
// graph; only the relay knows whether a link is new.
func (m *Model) applyRecorderStatus(ev event.LifecycleEvent) {
	switch ev.EventType {
	case event.StatusConnected:
		m.status = event.LinkConnected
		if len(ev.Extra) > 0 {
			m.process = append(json.RawMessage(nil), ev.Extra...)
		}
	case event.StatusDisconnected:
		m.status = event.LinkDisconnected
	case event.StatusError:
		m.status = event.LinkError
	}
}

func (m *Model) reset() {
	m.nodes = make(map[int64]*node)
	m.roots = nil
	m.retired = nil
	m.process = nil
	m.generation++
}

// Reset discards the graph and log and returns to the disconnected state.
func (m *Model) Reset() {
	m.reset()
	m.status = event.LinkDisconnected
	m.connection = ""
	m.log = entryLog{max: m.opts.MaxLogEntries}
}

// Status returns the session status flag and the relay's connection id.
func (m *Model) Status() (status, connection string) {
	return m.status, m.connection
}

// Generation counts graph resets.
func (m *Model) Generation() int {
	return m.generation
}

// Process returns the identity the recorder announced, if any.
func (m *Model) Process() json.RawMessage {
	return m.process
}

// Counters returns input disposition counters.
func (m *Model) Counters() Counters {
	return m.counters
}

// Len returns the number of nodes in the current graph, destroyed included.
func (m *Model) Len() int {
	return len(m.nodes)
}

// Node returns a copy of the node for id.
func (m *Model) Node(id int64) (NodeView, bool) {
	n, ok := m.nodes[id]
	if !ok {
		return NodeView{}, false
	}
	return n.view(), true
}

// Ancestry returns the ids from id's parent up to the outermost known
// ancestor.
func (m *Model) Ancestry(id int64) []int64 {
	var chain []int64
	seen := map[int64]bool{id: true}
	n, ok := m.nodes[id]
	for ok && n.parent != event.RootID && !seen[n.parent] {
		seen[n.parent] = true
		chain = append(chain, n.parent)
		n, ok = m.nodes[n.parent]
	}
	return chain
}

// Log returns the received entries, oldest first.
func (m *Model) Log() []Entry {
	return m.log.entries()
}

func (m *Model) String() string {
	return fmt.Sprintf("graph(gen=%d status=%s nodes=%d retired=%d)", m.generation, m.status, len(m.nodes), len(m.retired))
}
