package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeState is the lifecycle position of one resource as seen by the model.
type NodeState int

const (
	Created NodeState = iota
	Running
	Runnable
	Destroyed
)

var nodeStateNames = map[NodeState]string{
	Created:   "created",
	Running:   "running",
	Runnable:  "runnable",
	Destroyed: "destroyed",
}

func (s NodeState) String() string {
	if n, ok := nodeStateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s NodeState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *NodeState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range nodeStateNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown node state %q", name)
}

// Terminal reports whether no further transition is possible.
func (s NodeState) Terminal() bool {
	return s == Destroyed
}

// maxIntervalHistory bounds the closed intervals kept per node. Run counts
// and total run time keep accumulating past it.
const maxIntervalHistory = 64

// Interval is one execution of a resource's callback.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// node is the mutable per-resource record owned by Model.
type node struct {
	id          int64
	kind        string
	triggerID   int64
	parent      int64 // triggerID if it named a known node, otherwise RootID
	stack       string
	state       NodeState
	createdAt   time.Time
	resolvedAt  time.Time
	destroyedAt time.Time
	runs        int
	runTime     time.Duration
	intervals   []Interval
	open        []time.Time
	children    []int64
}

func (n *node) begin(at time.Time, maxOpen int) {
	if maxOpen > 0 && len(n.open) >= maxOpen {
		n.closeInterval(n.open[0], at)
		n.open = n.open[1:]
	}
	n.open = append(n.open, at)
	n.state = Running
}

// end closes the most recently opened interval. It reports false when
// nothing was open.
func (n *node) end(at time.Time) bool {
	if len(n.open) == 0 {
		return false
	}
	last := len(n.open) - 1
	n.closeInterval(n.open[last], at)
	n.open = n.open[:last]
	if len(n.open) == 0 {
		n.state = Runnable
	}
	return true
}

func (n *node) closeInterval(start, end time.Time) {
	iv := Interval{Start: start, End: end}
	n.runs++
	n.runTime += iv.Duration()
	n.intervals = append(n.intervals, iv)
	if len(n.intervals) > maxIntervalHistory {
		n.intervals = n.intervals[len(n.intervals)-maxIntervalHistory:]
	}
}

func (n *node) destroy(at time.Time) {
	for i := len(n.open) - 1; i >= 0; i-- {
		n.closeInterval(n.open[i], at)
	}
	n.open = nil
	n.state = Destroyed
	n.destroyedAt = at
}

// NodeView is an immutable copy of a node.
type NodeView struct {
	ID          int64         `json:"id"`
	Kind        string        `json:"kind"`
	TriggerID   int64         `json:"triggerId"`
	Parent      int64         `json:"parent"`
	Stack       string        `json:"stack,omitempty"`
	State       NodeState     `json:"state"`
	CreatedAt   time.Time     `json:"createdAt"`
	ResolvedAt  time.Time     `json:"resolvedAt,omitzero"`
	DestroyedAt time.Time     `json:"destroyedAt,omitzero"`
	Runs        int           `json:"runs"`
	RunTime     time.Duration `json:"runTime"`
	OpenRuns    int           `json:"openRuns"`
	Intervals   []Interval    `json:"intervals,omitempty"`
	Children    []int64       `json:"children,omitempty"`
}

// Resolved reports whether a promise resolution was observed.
func (v NodeView) Resolved() bool {
	return !v.ResolvedAt.IsZero()
}

func (n *node) view() NodeView {
	v := NodeView{
		ID:          n.id,
		Kind:        n.kind,
		TriggerID:   n.triggerID,
		Parent:      n.parent,
		Stack:       n.stack,
		State:       n.state,
		CreatedAt:   n.createdAt,
		ResolvedAt:  n.resolvedAt,
		DestroyedAt: n.destroyedAt,
		Runs:        n.runs,
		RunTime:     n.runTime,
		OpenRuns:    len(n.open),
	}
	if len(n.intervals) > 0 {
		v.Intervals = append([]Interval(nil), n.intervals...)
	}
	if len(n.children) > 0 {
		v.Children = append([]int64(nil), n.children...)
	}
	return v
}
