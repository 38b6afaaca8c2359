package graph

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/loopviz/loopviz/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts int64 = 1_700_000_000_000

func tick() int64 {
	ts++
	return ts
}

func initEv(id int64, kind string, trigger int64) event.LifecycleEvent {
	return event.LifecycleEvent{EventType: event.Init, ResourceID: id, Kind: kind, TriggerID: trigger, Timestamp: tick()}
}

func phase(t event.EventType, id int64) event.LifecycleEvent {
	return event.LifecycleEvent{EventType: t, ResourceID: id, Timestamp: tick()}
}

func eventMsg(t *testing.T, ev event.LifecycleEvent) event.Message {
	t.Helper()
	frame, err := event.Encode(ev)
	require.NoError(t, err)
	return event.EventMessage(frame)
}

func newModel() *Model {
	return New(Options{Clock: func() time.Time { return time.UnixMilli(tick()) }})
}

func TestScenarioTimeoutLifecycle(t *testing.T) {
	m := newModel()
	for _, ev := range []event.LifecycleEvent{
		initEv(1, "Timeout", event.RootID),
		phase(event.Before, 1),
		phase(event.After, 1),
		phase(event.Destroy, 1),
	} {
		m.ApplyEvent(ev)
	}

	n, ok := m.Node(1)
	require.True(t, ok)
	assert.Equal(t, "Timeout", n.Kind)
	assert.Equal(t, Destroyed, n.State)
	assert.Equal(t, 1, n.Runs)
	assert.Len(t, n.Intervals, 1)
}

func TestScenarioPromiseChain(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Promise", event.RootID))
	m.ApplyEvent(initEv(2, "Promise", 1))
	m.ApplyEvent(phase(event.PromiseResolve, 1))

	snap := m.Snapshot()
	assert.True(t, snap.HasEdge(1, 2))
	assert.True(t, snap.HasEdge(event.RootID, 1))

	n, ok := snap.Node(1)
	require.True(t, ok)
	assert.True(t, n.Resolved())
	assert.NotEqual(t, Destroyed, n.State)
	assert.Equal(t, []int64{2}, n.Children)
}

func TestScenarioReconnectPreservesGraphUntilNewConnection(t *testing.T) {
	m := newModel()

	require.NoError(t, m.Apply(event.StatusMessage(event.LinkConnected, "conn-a")))
	require.NoError(t, m.Apply(eventMsg(t, initEv(1, "Timeout", event.RootID))))
	require.NoError(t, m.Apply(eventMsg(t, phase(event.Before, 1))))
	require.NoError(t, m.Apply(eventMsg(t, phase(event.After, 1))))
	require.NoError(t, m.Apply(event.StatusMessage(event.LinkDisconnected, "conn-a")))

	status, _ := m.Status()
	assert.Equal(t, event.LinkDisconnected, status)
	_, ok := m.Node(1)
	assert.True(t, ok, "disconnect keeps the completed trace")

	require.NoError(t, m.Apply(event.StatusMessage(event.LinkConnected, "conn-b")))
	_, ok = m.Node(1)
	assert.False(t, ok, "a new connection starts an empty graph")
	require.NoError(t, m.Apply(eventMsg(t, initEv(1, "Immediate", event.RootID))))

	var labels []string
	for _, e := range m.Log() {
		labels = append(labels, e.Label())
	}
	assert.Equal(t, []string{
		"status:connected", "init", "before", "after",
		"status:disconnected", "status:connected", "init",
	}, labels)

	n, ok := m.Node(1)
	require.True(t, ok)
	assert.Equal(t, "Immediate", n.Kind)
	assert.Equal(t, 2, m.Generation())
}

func TestRepeatedConnectedForSameLinkKeepsGraph(t *testing.T) {
	m := newModel()
	require.NoError(t, m.Apply(event.StatusMessage(event.LinkConnected, "conn-a")))
	m.ApplyEvent(initEv(1, "Timeout", event.RootID))
	require.NoError(t, m.Apply(event.StatusMessage(event.LinkConnected, "conn-a")))
	assert.Equal(t, 1, m.Len())
}

func TestScenarioOrphanPhaseCreatesNothing(t *testing.T) {
	m := newModel()
	m.ApplyEvent(phase(event.Before, 99))
	m.ApplyEvent(phase(event.After, 99))
	m.ApplyEvent(phase(event.Destroy, 99))

	_, ok := m.Node(99)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, uint64(3), m.Counters().Orphans)
	assert.Empty(t, m.Log())
}

func TestUnknownTriggerHangsOffRoot(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(5, "TickObject", 42))

	n, _ := m.Node(5)
	assert.Equal(t, int64(42), n.TriggerID)
	assert.Equal(t, event.RootID, n.Parent)
	assert.True(t, m.Snapshot().HasEdge(event.RootID, 5))
}

func TestDestroyedTriggerStillLinks(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Timeout", event.RootID))
	m.ApplyEvent(phase(event.Destroy, 1))
	m.ApplyEvent(initEv(2, "Promise", 1))
	assert.True(t, m.Snapshot().HasEdge(1, 2))
	assert.Equal(t, []int64{1}, m.Ancestry(2))
}

func TestDuplicateDestroyIsNoop(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Timeout", event.RootID))
	m.ApplyEvent(phase(event.Destroy, 1))
	before := m.Snapshot()

	m.ApplyEvent(phase(event.Destroy, 1))
	assert.Equal(t, before, m.Snapshot())
}

func TestInitForLiveIDIsIgnored(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Timeout", event.RootID))
	m.ApplyEvent(initEv(1, "Promise", event.RootID))

	n, _ := m.Node(1)
	assert.Equal(t, "Timeout", n.Kind)
	assert.Equal(t, uint64(1), m.Counters().Ignored)
}

func TestIDReuseRetiresOldNode(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Timeout", event.RootID))
	m.ApplyEvent(initEv(2, "Immediate", 1))
	m.ApplyEvent(phase(event.Destroy, 2))
	m.ApplyEvent(initEv(2, "Promise", 1))

	snap := m.Snapshot()
	require.Len(t, snap.Retired, 1)
	assert.Equal(t, "Immediate", snap.Retired[0].Kind)
	n, _ := snap.Node(2)
	assert.Equal(t, "Promise", n.Kind)
	assert.Equal(t, Created, n.State)

	parent, _ := snap.Node(1)
	assert.Equal(t, []int64{2}, parent.Children)
}

func TestIDReuseDetachesChildrenOfRetiredNode(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Timeout", event.RootID))
	m.ApplyEvent(initEv(2, "Timeout", 1))
	m.ApplyEvent(phase(event.Destroy, 1))
	m.ApplyEvent(initEv(1, "Immediate", event.RootID))

	snap := m.Snapshot()
	assert.False(t, snap.HasEdge(1, 2))
	assert.True(t, snap.HasEdge(event.RootID, 2))
	assert.Contains(t, snap.Roots, int64(2))

	child, ok := snap.Node(2)
	require.True(t, ok)
	assert.Equal(t, event.RootID, child.Parent)
	assert.Equal(t, int64(1), child.TriggerID)
	assert.Empty(t, m.Ancestry(2))

	fresh, _ := snap.Node(1)
	assert.Equal(t, "Immediate", fresh.Kind)
	assert.Empty(t, fresh.Children)

	require.Len(t, snap.Retired, 1)
	assert.Equal(t, []int64{2}, snap.Retired[0].Children)
}

func TestNestedRunsUseIntervalStack(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Goroutine", event.RootID))
	m.ApplyEvent(phase(event.Before, 1))
	m.ApplyEvent(phase(event.Before, 1))

	n, _ := m.Node(1)
	assert.Equal(t, Running, n.State)
	assert.Equal(t, 2, n.OpenRuns)

	m.ApplyEvent(phase(event.After, 1))
	n, _ = m.Node(1)
	assert.Equal(t, Running, n.State, "outer run still open")

	m.ApplyEvent(phase(event.After, 1))
	n, _ = m.Node(1)
	assert.Equal(t, Runnable, n.State)
	assert.Equal(t, 2, n.Runs)

	m.ApplyEvent(phase(event.After, 1))
	assert.Equal(t, uint64(1), m.Counters().Ignored, "unmatched after")
}

func TestOpenIntervalsAreBounded(t *testing.T) {
	m := New(Options{MaxOpenIntervals: 2})
	m.ApplyEvent(initEv(1, "Goroutine", event.RootID))
	for i := 0; i < 5; i++ {
		m.ApplyEvent(phase(event.Before, 1))
	}
	n, _ := m.Node(1)
	assert.Equal(t, 2, n.OpenRuns)
	assert.Equal(t, 3, n.Runs)
}

func TestDestroyClosesOpenIntervals(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Timeout", event.RootID))
	m.ApplyEvent(phase(event.Before, 1))
	destroy := phase(event.Destroy, 1)
	m.ApplyEvent(destroy)

	n, _ := m.Node(1)
	assert.Equal(t, 0, n.OpenRuns)
	require.Len(t, n.Intervals, 1)
	assert.Equal(t, destroy.Time(), n.Intervals[0].End)
	assert.Equal(t, destroy.Time(), n.DestroyedAt)
}

func TestPromiseResolveIsRecordedOnce(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Promise", event.RootID))
	first := phase(event.PromiseResolve, 1)
	m.ApplyEvent(first)
	m.ApplyEvent(phase(event.PromiseResolve, 1))

	n, _ := m.Node(1)
	assert.Equal(t, first.Time(), n.ResolvedAt)
	assert.Equal(t, Created, n.State)
}

func TestPromiseResolveAfterDestroyIsDropped(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Promise", event.RootID))
	m.ApplyEvent(phase(event.Destroy, 1))
	before := m.Snapshot()

	m.ApplyEvent(phase(event.PromiseResolve, 1))
	assert.Equal(t, before, m.Snapshot())
	n, _ := m.Node(1)
	assert.False(t, n.Resolved())
	assert.Equal(t, uint64(1), m.Counters().Ignored)
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	m := newModel()
	m.ApplyEvent(event.LifecycleEvent{EventType: "gcPause", Timestamp: tick()})
	assert.Equal(t, uint64(1), m.Counters().Ignored)
	assert.Empty(t, m.Log())
}

func TestRecorderStatusUpdatesFlagAndProcess(t *testing.T) {
	m := newModel()
	ev := event.Status(event.StatusConnected, time.UnixMilli(tick()), map[string]any{"pid": 12})
	m.ApplyEvent(ev)

	status, _ := m.Status()
	assert.Equal(t, event.LinkConnected, status)
	assert.JSONEq(t, `{"pid":12}`, string(m.Process()))

	m.ApplyEvent(event.Status(event.StatusError, time.UnixMilli(tick()), nil))
	status, _ = m.Status()
	assert.Equal(t, event.LinkError, status)
}

func TestApplyMalformedMessage(t *testing.T) {
	m := newModel()
	err := m.Apply(event.Message{Command: event.CommandEvent, Data: json.RawMessage(`{"eventType":"before"}`)})
	require.Error(t, err)
	assert.Equal(t, uint64(1), m.Counters().Malformed)

	assert.NoError(t, m.Apply(event.Message{Command: "ping"}))
}

func TestLogIsBounded(t *testing.T) {
	m := New(Options{MaxLogEntries: 3})
	for id := int64(1); id <= 5; id++ {
		m.ApplyEvent(initEv(id, "Timeout", event.RootID))
	}
	log := m.Log()
	require.Len(t, log, 3)
	assert.Equal(t, int64(3), log[0].Event.ResourceID)
	assert.Equal(t, uint64(5), log[2].Seq)
}

func TestKindStats(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Timeout", event.RootID))
	m.ApplyEvent(initEv(2, "Promise", event.RootID))
	m.ApplyEvent(initEv(3, "Promise", 2))
	m.ApplyEvent(phase(event.Before, 1))
	m.ApplyEvent(phase(event.After, 1))
	m.ApplyEvent(phase(event.Destroy, 1))
	m.ApplyEvent(phase(event.PromiseResolve, 2))

	stats := m.KindStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "Promise", stats[0].Kind)
	assert.Equal(t, 2, stats[0].Total)
	assert.Equal(t, 2, stats[0].Live)
	assert.Equal(t, 1, stats[0].Resolved)
	assert.Equal(t, "Timeout", stats[1].Kind)
	assert.Equal(t, 0, stats[1].Live)
	assert.Equal(t, 1, stats[1].Runs)
	assert.Equal(t, time.Millisecond, stats[1].AvgRun())

	total := m.Totals()
	assert.Equal(t, 3, total.Total)
	assert.Equal(t, 2, total.Live)
}

// randomStream builds a well-formed stream of interleaved lifecycles.
func randomStream(r *rand.Rand, resources int) []event.LifecycleEvent {
	kinds := []string{"Timeout", "Immediate", "Promise", "TickObject"}
	type pending struct {
		id    int64
		kind  string
		steps int
	}
	var out []event.LifecycleEvent
	var live []*pending
	next := int64(1)
	for next <= int64(resources) || len(live) > 0 {
		if next <= int64(resources) && (len(live) == 0 || r.Intn(3) == 0) {
			trigger := event.RootID
			if len(live) > 0 && r.Intn(2) == 0 {
				trigger = live[r.Intn(len(live))].id
			}
			p := &pending{id: next, kind: kinds[r.Intn(len(kinds))], steps: r.Intn(4)}
			out = append(out, initEv(p.id, p.kind, trigger))
			live = append(live, p)
			next++
			continue
		}
		i := r.Intn(len(live))
		p := live[i]
		if p.steps > 0 {
			out = append(out, phase(event.Before, p.id), phase(event.After, p.id))
			if p.kind == "Promise" && r.Intn(2) == 0 {
				out = append(out, phase(event.PromiseResolve, p.id))
			}
			p.steps--
			continue
		}
		out = append(out, phase(event.Destroy, p.id))
		live = append(live[:i], live[i+1:]...)
	}
	return out
}

func TestEveryCompleteLifecycleEndsDestroyedWithInitKind(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		stream := randomStream(r, 30)
		m := newModel()
		kinds := map[int64]string{}
		for _, ev := range stream {
			if ev.EventType == event.Init {
				kinds[ev.ResourceID] = ev.Kind
			}
			m.ApplyEvent(ev)
		}
		for id, kind := range kinds {
			n, ok := m.Node(id)
			require.True(t, ok)
			assert.Equal(t, Destroyed, n.State)
			assert.Equal(t, kind, n.Kind)
		}
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	stream := randomStream(r, 50)

	a, b := newModel(), newModel()
	for _, ev := range stream {
		a.ApplyEvent(ev)
	}
	for _, ev := range stream {
		b.ApplyEvent(ev)
	}
	assert.Equal(t, a.Snapshot(), b.Snapshot())
	assert.Equal(t, a.KindStats(), b.KindStats())
}

func TestReplayReader(t *testing.T) {
	var lines []string
	lines = append(lines, `{"command":"status","data":"connected","connection":"c1"}`)
	for _, ev := range []event.LifecycleEvent{
		initEv(1, "Promise", event.RootID),
		initEv(2, "Promise", 1),
		phase(event.PromiseResolve, 1),
	} {
		frame, err := event.Encode(ev)
		require.NoError(t, err)
		lines = append(lines, string(frame))
	}
	lines = append(lines, "", "not json", `{"command":"event","data":{"eventType":"destroy","resourceId":2,"timestamp":5}}`)

	m := newModel()
	res, err := Replay(strings.NewReader(strings.Join(lines, "\n")), m)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Lines)
	assert.Equal(t, 1, res.Malformed)

	snap := m.Snapshot()
	assert.Equal(t, "c1", snap.Connection)
	assert.True(t, snap.HasEdge(1, 2))
	n, _ := snap.Node(2)
	assert.Equal(t, Destroyed, n.State)
}

func TestSnapshotSpan(t *testing.T) {
	m := newModel()
	first := initEv(1, "Timeout", event.RootID)
	m.ApplyEvent(first)
	m.ApplyEvent(phase(event.Before, 1))
	last := phase(event.After, 1)
	m.ApplyEvent(last)

	start, end := m.Snapshot().Span()
	assert.Equal(t, first.Time(), start)
	assert.Equal(t, last.Time(), end)
}

func TestSnapshotJSONKeepsStates(t *testing.T) {
	m := newModel()
	m.ApplyEvent(initEv(1, "Timeout", event.RootID))
	m.ApplyEvent(initEv(2, "Immediate", 1))
	m.ApplyEvent(phase(event.Before, 2))
	m.ApplyEvent(phase(event.Destroy, 1))

	data, err := m.Snapshot().MarshalIndent()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state": "running"`)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Nodes, 2)
	assert.Equal(t, Destroyed, back.Nodes[0].State)
	assert.Equal(t, Running, back.Nodes[1].State)
	assert.True(t, back.HasEdge(1, 2))

	var bad NodeState
	assert.Error(t, json.Unmarshal([]byte(`"sleeping"`), &bad))
}
