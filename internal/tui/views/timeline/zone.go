package timeline

import "github.com/loopviz/loopviz/internal/graph"

// Zone groups nodes on the timeline.
type Zone int

const (
	ZoneLive Zone = iota
	ZonePending
	ZoneDone
)

// Classify returns the zone a node belongs in. Nodes that have run at least
// once, or are running now, are live; nodes never run yet are pending.
func Classify(v graph.NodeView) Zone {
	switch v.State {
	case graph.Destroyed:
		return ZoneDone
	case graph.Running, graph.Runnable:
		return ZoneLive
	default:
		return ZonePending
	}
}

// ZoneName returns a display label.
func ZoneName(z Zone) string {
	switch z {
	case ZoneLive:
		return "LIVE"
	case ZonePending:
		return "PENDING"
	case ZoneDone:
		return "DESTROYED"
	default:
		return "?"
	}
}
