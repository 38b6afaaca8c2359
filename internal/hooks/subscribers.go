package hooks

import (
	"log/slog"
	"sync"
)

type subscription struct {
	cb   Callbacks
	set  *subscriberSet
	once sync.Once
}

func (s *subscription) Disable() {
	s.once.Do(func() {
		s.set.remove(s)
	})
}

// subscriberSet is the fan-out shared by Runtime and Script.
type subscriberSet struct {
	mu     sync.RWMutex
	subs   []*subscription
	logger *slog.Logger
}

func (s *subscriberSet) add(cb Callbacks) *subscription {
	sub := &subscription{cb: cb, set: s}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub
}

func (s *subscriberSet) remove(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.subs {
		if existing == sub {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *subscriberSet) snapshot() []*subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]*subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

// each invokes fn for every subscriber. A panicking subscriber is logged and
// skipped so instrumentation never takes down the observed program.
func (s *subscriberSet) each(phase string, fn func(cb Callbacks)) {
	for _, sub := range s.snapshot() {
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.log().Error("lifecycle subscriber panicked", "phase", phase, "panic", p)
				}
			}()
			fn(sub.cb)
		}()
	}
}

func (s *subscriberSet) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *subscriberSet) init(id int64, kind string, trigger int64) {
	s.each("init", func(cb Callbacks) {
		if cb.Init != nil {
			cb.Init(id, kind, trigger)
		}
	})
}

func (s *subscriberSet) before(id int64) {
	s.each("before", func(cb Callbacks) {
		if cb.Before != nil {
			cb.Before(id)
		}
	})
}

func (s *subscriberSet) after(id int64) {
	s.each("after", func(cb Callbacks) {
		if cb.After != nil {
			cb.After(id)
		}
	})
}

func (s *subscriberSet) destroy(id int64) {
	s.each("destroy", func(cb Callbacks) {
		if cb.Destroy != nil {
			cb.Destroy(id)
		}
	})
}

func (s *subscriberSet) promiseResolve(id int64) {
	s.each("promiseResolve", func(cb Callbacks) {
		if cb.PromiseResolve != nil {
			cb.PromiseResolve(id)
		}
	})
}
