// Package event defines the lifecycle record emitted by the recorder and the
// JSON wire codec shared by every stage of the pipeline.
package event

import (
	"encoding/json"
	"time"
)

// EventType classifies a lifecycle record.
type EventType string

const (
	Init               EventType = "init"
	Before             EventType = "before"
	After              EventType = "after"
	Destroy            EventType = "destroy"
	PromiseResolve     EventType = "promiseResolve"
	StatusConnected    EventType = "statusConnected"
	StatusDisconnected EventType = "statusDisconnected"
	StatusError        EventType = "statusError"
)

// RootID is the trigger id of resources created from top-level code. It is
// never assigned to a real resource.
const RootID int64 = 0

var knownTypes = map[EventType]bool{
	Init:               true,
	Before:             true,
	After:              true,
	Destroy:            true,
	PromiseResolve:     true,
	StatusConnected:    true,
	StatusDisconnected: true,
	StatusError:        true,
}

// Known reports whether t is one of the event types this version
// understands. Consumers ignore unknown types instead of failing.
func (t EventType) Known() bool {
	return knownTypes[t]
}

// IsStatus reports whether t describes a connection transition rather than
// a resource.
func (t EventType) IsStatus() bool {
	return t == StatusConnected || t == StatusDisconnected || t == StatusError
}

// LifecycleEvent is one immutable, timestamped record of a resource state
// transition or a connection status change.
type LifecycleEvent struct {
	EventType  EventType       `json:"eventType"`
	ResourceID int64           `json:"resourceId"`
	Kind       string          `json:"kind,omitempty"`
	TriggerID  int64           `json:"triggerId,omitempty"`
	Timestamp  int64           `json:"timestamp"` // unix milliseconds
	Stack      string          `json:"stack,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

// Time returns the event timestamp as a time.Time.
func (e LifecycleEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Millis converts t to the wire timestamp representation.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Status builds a synthetic status event. extra may be nil.
func Status(t EventType, at time.Time, extra any) LifecycleEvent {
	ev := LifecycleEvent{
		EventType: t,
		Timestamp: Millis(at),
	}
	if extra != nil {
		if raw, err := json.Marshal(extra); err == nil {
			ev.Extra = raw
		}
	}
	return ev
}
