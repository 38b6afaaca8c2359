package timeline

import (
	"strings"
	"testing"
	"time"

	"github.com/loopviz/loopviz/internal/event"
	"github.com/loopviz/loopviz/internal/graph"
)

func ev(t event.EventType, id int64, kind string, ms int64) event.LifecycleEvent {
	return event.LifecycleEvent{EventType: t, ResourceID: id, Kind: kind, Timestamp: ms}
}

func testSnapshot() graph.Snapshot {
	m := graph.New(graph.Options{})
	for _, e := range []event.LifecycleEvent{
		ev(event.Init, 1, "Timeout", 0),
		ev(event.Init, 3, "TickObject", 0),
		ev(event.Init, 4, "PROMISE", 1),
		ev(event.Before, 4, "", 2),
		ev(event.Init, 2, "Immediate", 5),
		ev(event.Before, 1, "", 10),
		ev(event.After, 1, "", 20),
		ev(event.Before, 3, "", 30),
		ev(event.Destroy, 3, "", 40),
	} {
		m.ApplyEvent(e)
	}
	return m.Snapshot()
}

func TestClassify(t *testing.T) {
	tests := []struct {
		state graph.NodeState
		want  Zone
	}{
		{graph.Created, ZonePending},
		{graph.Running, ZoneLive},
		{graph.Runnable, ZoneLive},
		{graph.Destroyed, ZoneDone},
	}
	for _, tt := range tests {
		if got := Classify(graph.NodeView{State: tt.state}); got != tt.want {
			t.Errorf("Classify(%s) = %s, want %s", tt.state, ZoneName(got), ZoneName(tt.want))
		}
	}
}

func TestSetSnapshotGroupsAndSorts(t *testing.T) {
	m := New()
	m.SetSnapshot(testSnapshot())

	live, pending, done := m.Counts()
	if live != 2 || pending != 1 || done != 1 {
		t.Fatalf("counts = %d/%d/%d, want 2/1/1", live, pending, done)
	}

	sel, ok := m.Selected()
	if !ok || sel.ID != 4 {
		t.Fatalf("expected running node #4 first in live zone, got %+v", sel)
	}
	m.MoveDown()
	if sel, _ := m.Selected(); sel.ID != 1 {
		t.Errorf("expected #1 after MoveDown, got #%d", sel.ID)
	}
	m.MoveDown()
	if sel, _ := m.Selected(); sel.ID != 4 {
		t.Errorf("expected wraparound to #4, got #%d", sel.ID)
	}
	m.MoveUp()
	if sel, _ := m.Selected(); sel.ID != 1 {
		t.Errorf("expected MoveUp to wrap to #1, got #%d", sel.ID)
	}
}

func TestZoneNavigation(t *testing.T) {
	m := New()
	m.SetSnapshot(testSnapshot())

	m.CycleZone()
	if m.ActiveZone != ZonePending {
		t.Fatalf("expected pending zone, got %s", ZoneName(m.ActiveZone))
	}
	if sel, _ := m.Selected(); sel.ID != 2 {
		t.Errorf("expected #2 in pending, got #%d", sel.ID)
	}

	m.JumpToZone(ZoneDone)
	if sel, _ := m.Selected(); sel.ID != 3 {
		t.Errorf("expected #3 in destroyed, got #%d", sel.ID)
	}

	m.CycleZone()
	if m.ActiveZone != ZoneLive {
		t.Errorf("expected CycleZone to wrap to live, got %s", ZoneName(m.ActiveZone))
	}
}

func TestSelectionClampedOnShrink(t *testing.T) {
	m := New()
	m.SetSnapshot(testSnapshot())
	m.MoveDown()
	if m.SelectedIdx != 1 {
		t.Fatalf("SelectedIdx = %d", m.SelectedIdx)
	}
	m.SetSnapshot(graph.New(graph.Options{}).Snapshot())
	if m.SelectedIdx != 0 {
		t.Errorf("expected selection reset on empty graph, got %d", m.SelectedIdx)
	}
	if _, ok := m.Selected(); ok {
		t.Error("expected no selection on empty graph")
	}
}

func TestViewContainsZonesAndRows(t *testing.T) {
	m := New()
	m.Width = 100
	m.SetSnapshot(testSnapshot())
	v := m.View()
	for _, want := range []string{"LIVE", "PENDING", "DESTROYED", "#1", "#2", "#3", "#4", "Timeout", "Immediate"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewEmpty(t *testing.T) {
	m := New()
	v := m.View()
	if !strings.Contains(v, "No live resources") {
		t.Error("empty view should say there are no live resources")
	}
}

func TestBarCells(t *testing.T) {
	start := time.UnixMilli(0)
	end := time.UnixMilli(100)
	v := graph.NodeView{
		State:     graph.Runnable,
		CreatedAt: start,
		Intervals: []graph.Interval{{Start: time.UnixMilli(50), End: end}},
	}
	cells := barCells(v, start, end, 11)
	if len(cells) != 11 {
		t.Fatalf("len = %d", len(cells))
	}
	if cells[0] != '░' || cells[4] != '░' {
		t.Errorf("expected shaded lifetime before the run: %q", string(cells))
	}
	if cells[5] != '█' || cells[10] != '█' {
		t.Errorf("expected solid run cells: %q", string(cells))
	}
}

func TestBarCellsDestroyedStopsAtDestroy(t *testing.T) {
	start := time.UnixMilli(0)
	v := graph.NodeView{
		State:       graph.Destroyed,
		CreatedAt:   start,
		DestroyedAt: time.UnixMilli(50),
	}
	cells := barCells(v, start, time.UnixMilli(100), 11)
	if cells[5] != '░' || cells[6] != ' ' {
		t.Errorf("expected lifetime to end at destroy: %q", string(cells))
	}
}
