package graph

import (
	"time"

	"github.com/loopviz/loopviz/internal/event"
)

// EntryKind distinguishes relay status markers from forwarded events.
type EntryKind int

const (
	EntryEvent EntryKind = iota
	EntryStatus
)

// Entry is one line of the model's log.
type Entry struct {
	Seq        uint64
	At         time.Time
	Kind       EntryKind
	Event      event.LifecycleEvent
	Status     string
	Connection string
}

// Label is a short name for the entry: the event type or the status.
func (e Entry) Label() string {
	if e.Kind == EntryStatus {
		return "status:" + e.Status
	}
	return string(e.Event.EventType)
}

// entryLog keeps the most recent max entries across graph resets.
type entryLog struct {
	max int
	seq uint64
	buf []Entry
}

func (l *entryLog) add(e Entry) {
	l.seq++
	e.Seq = l.seq
	l.buf = append(l.buf, e)
	if l.max > 0 && len(l.buf) > l.max {
		drop := len(l.buf) - l.max
		l.buf = append(l.buf[:0:0], l.buf[drop:]...)
	}
}

func (l *entryLog) entries() []Entry {
	return append([]Entry(nil), l.buf...)
}
