package event

import (
	"encoding/json"
	"fmt"
)

// Command names the two kinds of message a relay posts to a surface.
type Command string

const (
	CommandEvent  Command = "event"
	CommandStatus Command = "status"
)

// Link status values carried by status messages.
const (
	LinkConnected    = "connected"
	LinkDisconnected = "disconnected"
	LinkError        = "error"
)

// Message is the relay-to-surface envelope. Data holds a LifecycleEvent for
// event messages and a JSON string for status messages.
type Message struct {
	Command    Command         `json:"command"`
	Data       json.RawMessage `json:"data"`
	Connection string          `json:"connection,omitempty"`
}

// EventMessage wraps an already-encoded event frame without re-encoding it.
func EventMessage(frame []byte) Message {
	return Message{Command: CommandEvent, Data: json.RawMessage(frame)}
}

// StatusMessage builds a status message for the given link connection.
func StatusMessage(status, connection string) Message {
	raw, _ := json.Marshal(status)
	return Message{Command: CommandStatus, Data: raw, Connection: connection}
}

// Event decodes the payload of an event message.
func (m Message) Event() (LifecycleEvent, error) {
	if m.Command != CommandEvent {
		return LifecycleEvent{}, fmt.Errorf("%w: %q is not an event message", ErrMalformed, m.Command)
	}
	return Decode(m.Data)
}

// Status decodes the payload of a status message.
func (m Message) Status() (string, error) {
	if m.Command != CommandStatus {
		return "", fmt.Errorf("%w: %q is not a status message", ErrMalformed, m.Command)
	}
	var s string
	if err := json.Unmarshal(m.Data, &s); err != nil {
		return "", fmt.Errorf("%w: status payload: %v", ErrMalformed, err)
	}
	return s, nil
}

// DecodeMessage parses one surface frame.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}
