package graph

import (
	"sort"
	"time"
)

// KindStat aggregates the nodes of one resource kind in the current graph.
type KindStat struct {
	Kind     string        `json:"kind"`
	Total    int           `json:"total"`
	Live     int           `json:"live"`
	Running  int           `json:"running"`
	Resolved int           `json:"resolved"`
	Runs     int           `json:"runs"`
	RunTime  time.Duration `json:"runTime"`
}

// AvgRun returns the mean callback duration.
func (k KindStat) AvgRun() time.Duration {
	if k.Runs == 0 {
		return 0
	}
	return k.RunTime / time.Duration(k.Runs)
}

// KindStats summarises the current graph per kind, sorted by descending
// total then kind.
func (m *Model) KindStats() []KindStat {
	byKind := make(map[string]*KindStat)
	for _, n := range m.nodes {
		ks, ok := byKind[n.kind]
		if !ok {
			ks = &KindStat{Kind: n.kind}
			byKind[n.kind] = ks
		}
		ks.Total++
		if !n.state.Terminal() {
			ks.Live++
		}
		if n.state == Running {
			ks.Running++
		}
		if !n.resolvedAt.IsZero() {
			ks.Resolved++
		}
		ks.Runs += n.runs
		ks.RunTime += n.runTime
	}

	out := make([]KindStat, 0, len(byKind))
	for _, ks := range byKind {
		out = append(out, *ks)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Totals is the whole-graph counterpart of KindStat.
func (m *Model) Totals() KindStat {
	var t KindStat
	for _, ks := range m.KindStats() {
		t.Total += ks.Total
		t.Live += ks.Live
		t.Running += ks.Running
		t.Resolved += ks.Resolved
		t.Runs += ks.Runs
		t.RunTime += ks.RunTime
	}
	return t
}
