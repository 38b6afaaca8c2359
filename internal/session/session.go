package session

import (
	"sync"
	"time"
)

// Session is one explicitly owned connection lifecycle. The recorder and the
// relay each own one; their views may disagree briefly around connect and
// disconnect races.
//
// A Session cycles disconnected → connecting → connected → disconnected any
// number of times. The current connection is identified by an opaque id so
// that a late close of a replaced connection can be told apart from a close
// of the live one.
type Session struct {
	mu        sync.RWMutex
	name      string
	state     State
	connID    string
	since     time.Time
	connects  int
	lastError string
	now       func() time.Time
}

// Snapshot is a consistent copy of a Session's fields.
type Snapshot struct {
	Name         string    `json:"name"`
	State        State     `json:"state"`
	ConnectionID string    `json:"connectionId,omitempty"`
	Since        time.Time `json:"since"`
	Connects     int       `json:"connects"`
	LastError    string    `json:"lastError,omitempty"`
}

// New creates a disconnected session.
func New(name string) *Session {
	return &Session{
		name:  name,
		state: Disconnected,
		since: time.Now(),
		now:   time.Now,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ConnectionID returns the id of the live connection, or "" when none.
func (s *Session) ConnectionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connID
}

// Begin marks a connection attempt as outstanding. It is a no-op while a
// connection is live.
func (s *Session) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Connected {
		return
	}
	s.setLocked(Connecting)
}

// Connect binds connID as the live connection and returns the id it
// replaced, if any. The last connection to arrive always wins the slot.
func (s *Session) Connect(connID string) (replaced string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Connected && s.connID != connID {
		replaced = s.connID
	}
	s.connID = connID
	s.connects++
	s.lastError = ""
	s.setLocked(Connected)
	return replaced
}

// Disconnect releases connID. It reports false, leaving the session
// untouched, when connID is not the live connection.
func (s *Session) Disconnect(connID string, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connID != connID {
		return false
	}
	s.connID = ""
	if cause != nil {
		s.lastError = cause.Error()
	}
	s.setLocked(Disconnected)
	return true
}

// Abandon returns a connecting session to disconnected, recording why the
// attempt failed.
func (s *Session) Abandon(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connecting {
		return
	}
	if cause != nil {
		s.lastError = cause.Error()
	}
	s.setLocked(Disconnected)
}

// Snapshot returns a copy of the session's fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Name:         s.name,
		State:        s.state,
		ConnectionID: s.connID,
		Since:        s.since,
		Connects:     s.connects,
		LastError:    s.lastError,
	}
}

// setLocked moves to next. Caller must hold s.mu.
func (s *Session) setLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	s.since = s.now()
}
