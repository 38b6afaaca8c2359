package hooks

import (
	"fmt"

	"github.com/loopviz/loopviz/internal/event"
)

// Script is a synthetic Source that raises exactly the notifications it is
// told to, synchronously, in order. It performs no bookkeeping of its own,
// so it can reproduce sequences a real runtime would never produce (a
// Before with no Init, a double Destroy).
type Script struct {
	subs subscriberSet
}

// NewScript creates a synthetic source with no subscribers.
func NewScript() *Script {
	return &Script{}
}

// Subscribe registers cb.
func (s *Script) Subscribe(cb Callbacks) Handle {
	return s.subs.add(cb)
}

func (s *Script) Init(id int64, kind string, trigger int64) { s.subs.init(id, kind, trigger) }
func (s *Script) Before(id int64)                          { s.subs.before(id) }
func (s *Script) After(id int64)                           { s.subs.after(id) }
func (s *Script) Destroy(id int64)                         { s.subs.destroy(id) }
func (s *Script) PromiseResolve(id int64)                  { s.subs.promiseResolve(id) }

// Step is one scripted notification.
type Step struct {
	Phase   event.EventType
	ID      int64
	Kind    string
	Trigger int64
}

// Play raises each step in order. It rejects steps whose phase is not a
// resource lifecycle phase.
func (s *Script) Play(steps ...Step) error {
	for i, st := range steps {
		switch st.Phase {
		case event.Init:
			s.Init(st.ID, st.Kind, st.Trigger)
		case event.Before:
			s.Before(st.ID)
		case event.After:
			s.After(st.ID)
		case event.Destroy:
			s.Destroy(st.ID)
		case event.PromiseResolve:
			s.PromiseResolve(st.ID)
		default:
			return fmt.Errorf("step %d: unsupported phase %q", i, st.Phase)
		}
	}
	return nil
}
