package graph

import (
	"encoding/json"
	"sort"
	"time"
)

// Edge is a trigger relationship. From is RootID for resources whose trigger
// was never seen.
type Edge struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Snapshot is a deterministic view of the model. Replaying the same stream
// into a fresh model produces an equal Snapshot.
type Snapshot struct {
	Generation int        `json:"generation"`
	Status     string     `json:"status"`
	Connection string     `json:"connection,omitempty"`
	Nodes      []NodeView `json:"nodes"`
	Retired    []NodeView `json:"retired,omitempty"`
	Edges      []Edge     `json:"edges"`
	Roots      []int64    `json:"roots"`
}

// Snapshot copies the current graph. Nodes and edges are sorted by id;
// retired nodes keep retirement order.
func (m *Model) Snapshot() Snapshot {
	s := Snapshot{
		Generation: m.generation,
		Status:     m.status,
		Connection: m.connection,
		Nodes:      make([]NodeView, 0, len(m.nodes)),
		Edges:      make([]Edge, 0, len(m.nodes)),
		Roots:      append([]int64{}, m.roots...),
	}
	for _, n := range m.nodes {
		s.Nodes = append(s.Nodes, n.view())
		s.Edges = append(s.Edges, Edge{From: n.parent, To: n.id})
	}
	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].ID < s.Nodes[j].ID })
	sort.Slice(s.Edges, func(i, j int) bool {
		if s.Edges[i].From != s.Edges[j].From {
			return s.Edges[i].From < s.Edges[j].From
		}
		return s.Edges[i].To < s.Edges[j].To
	})
	for _, n := range m.retired {
		s.Retired = append(s.Retired, n.view())
	}
	return s
}

// HasEdge reports whether the snapshot contains from→to.
func (s Snapshot) HasEdge(from, to int64) bool {
	for _, e := range s.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// Node finds id among the snapshot's current nodes.
func (s Snapshot) Node(id int64) (NodeView, bool) {
	i := sort.Search(len(s.Nodes), func(i int) bool { return s.Nodes[i].ID >= id })
	if i < len(s.Nodes) && s.Nodes[i].ID == id {
		return s.Nodes[i], true
	}
	return NodeView{}, false
}

// Span returns the earliest creation and latest observed time in the
// snapshot, for timeline scaling.
func (s Snapshot) Span() (start, end time.Time) {
	for _, n := range s.Nodes {
		if start.IsZero() || n.CreatedAt.Before(start) {
			start = n.CreatedAt
		}
		for _, t := range []time.Time{n.CreatedAt, n.ResolvedAt, n.DestroyedAt} {
			if t.After(end) {
				end = t
			}
		}
		if k := len(n.Intervals); k > 0 && n.Intervals[k-1].End.After(end) {
			end = n.Intervals[k-1].End
		}
	}
	return start, end
}

// MarshalIndent renders the snapshot as indented JSON.
func (s Snapshot) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
