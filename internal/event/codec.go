package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Decode for frames that are not a usable
// lifecycle record.
var ErrMalformed = errors.New("malformed lifecycle event")

// Encode serializes ev as a single self-contained JSON frame.
func Encode(ev LifecycleEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.EventType, err)
	}
	return data, nil
}

// Decode parses one frame. Frames with an unrecognized eventType decode
// successfully; callers check EventType.Known.
func Decode(data []byte) (LifecycleEvent, error) {
	var ev LifecycleEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return LifecycleEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := ev.Validate(); err != nil {
		return LifecycleEvent{}, err
	}
	return ev, nil
}

// Validate checks the structural rules every consumer relies on.
func (e LifecycleEvent) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("%w: missing eventType", ErrMalformed)
	}
	if !e.EventType.Known() || e.EventType.IsStatus() {
		return nil
	}
	if e.ResourceID <= RootID {
		return fmt.Errorf("%w: %s with invalid resourceId %d", ErrMalformed, e.EventType, e.ResourceID)
	}
	if e.TriggerID < RootID {
		return fmt.Errorf("%w: %s with invalid triggerId %d", ErrMalformed, e.EventType, e.TriggerID)
	}
	return nil
}
