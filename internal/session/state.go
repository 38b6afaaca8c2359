package session

import (
	"encoding/json"
)

// State is one side's view of the recorder-to-relay link.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

var stateNames = map[State]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
}

var stateFromName = map[string]State{
	"disconnected": Disconnected,
	"connecting":   Connecting,
	"connected":    Connected,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}
