package workload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/loopviz/loopviz/internal/event"
	"github.com/loopviz/loopviz/internal/graph"
	"github.com/loopviz/loopviz/internal/hooks"
	"github.com/loopviz/loopviz/internal/logging"
	"github.com/loopviz/loopviz/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *memorySender) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return true
}

func runWorkload(t *testing.T, opts Options) (*hooks.Runtime, *recorder.Recorder, *memorySender) {
	t.Helper()
	rt := hooks.NewRuntime(logging.Discard())
	sender := &memorySender{}
	rec := recorder.New(recorder.Options{Sender: sender, Logger: logging.Discard()})
	rec.Start(rt)

	gen, err := NewGenerator(rt, opts, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, gen.Run(ctx))
	return rt, rec, sender
}

func TestFullRunDrainsEveryResource(t *testing.T) {
	rt, rec, sender := runWorkload(t, Options{})

	assert.Equal(t, 0, rt.Live())
	assert.Equal(t, 0, rec.Live())
	assert.Zero(t, rec.Stats().Skipped)

	m := graph.New(graph.Options{})
	for _, frame := range sender.frames {
		ev, err := event.Decode(frame)
		require.NoError(t, err)
		m.ApplyEvent(ev)
	}

	kinds := map[string]bool{}
	for _, n := range m.Snapshot().Nodes {
		kinds[n.Kind] = true
		assert.Equal(t, graph.Destroyed, n.State, "node %d (%s)", n.ID, n.Kind)
	}
	for _, k := range []string{hooks.KindTimeout, hooks.KindImmediate, hooks.KindTick, hooks.KindPromise, hooks.KindGoroutine, KindFSReq} {
		assert.True(t, kinds[k], "expected a %s resource", k)
	}
	assert.Zero(t, m.Counters().Orphans)
}

func TestNestedWorkHasTriggers(t *testing.T) {
	_, _, sender := runWorkload(t, Options{Only: []string{"ticks"}})

	m := graph.New(graph.Options{})
	for _, frame := range sender.frames {
		ev, err := event.Decode(frame)
		require.NoError(t, err)
		m.ApplyEvent(ev)
	}
	snap := m.Snapshot()
	require.Len(t, snap.Nodes, 3)

	nested := 0
	for _, n := range snap.Nodes {
		if n.Parent != event.RootID {
			nested++
		}
	}
	assert.Equal(t, 1, nested, "one tick is created inside another")
}

func TestIntervalRunsThreeTimes(t *testing.T) {
	_, _, sender := runWorkload(t, Options{Only: []string{"interval"}})

	m := graph.New(graph.Options{})
	for _, frame := range sender.frames {
		ev, err := event.Decode(frame)
		require.NoError(t, err)
		m.ApplyEvent(ev)
	}
	snap := m.Snapshot()
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, 3, snap.Nodes[0].Runs)
}

func TestMultipleRounds(t *testing.T) {
	_, _, single := runWorkload(t, Options{Only: []string{"promises"}})
	_, _, double := runWorkload(t, Options{Only: []string{"promises"}, Rounds: 2})
	assert.Equal(t, 2*len(single.frames), len(double.frames))
}

func TestUnknownScenario(t *testing.T) {
	_, err := NewGenerator(hooks.NewRuntime(nil), Options{Only: []string{"http"}}, nil)
	assert.ErrorContains(t, err, "http")
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "timers")
	assert.Contains(t, names, "interval")
	assert.Len(t, names, len(scenarios))
}
