package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInit(t *testing.T) {
	ev, err := Decode([]byte(`{"eventType":"init","resourceId":7,"kind":"Timeout","triggerId":1,"timestamp":1718000000123}`))
	require.NoError(t, err)

	assert.Equal(t, Init, ev.EventType)
	assert.Equal(t, int64(7), ev.ResourceID)
	assert.Equal(t, "Timeout", ev.Kind)
	assert.Equal(t, int64(1), ev.TriggerID)
	assert.Equal(t, time.UnixMilli(1718000000123), ev.Time())
}

func TestDecodeMissingTriggerIsRoot(t *testing.T) {
	ev, err := Decode([]byte(`{"eventType":"init","resourceId":3,"kind":"Promise","timestamp":1}`))
	require.NoError(t, err)
	assert.Equal(t, RootID, ev.TriggerID)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{"eventType":`},
		{"missing type", `{"resourceId":1,"timestamp":1}`},
		{"zero resource id", `{"eventType":"before","resourceId":0,"timestamp":1}`},
		{"negative trigger", `{"eventType":"init","resourceId":2,"triggerId":-4,"timestamp":1}`},
		{"array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "error %v should wrap ErrMalformed", err)
		})
	}
}

func TestDecodeUnknownTypeIsForwardCompatible(t *testing.T) {
	ev, err := Decode([]byte(`{"eventType":"gcPause","resourceId":0,"timestamp":5,"extra":{"ms":3}}`))
	require.NoError(t, err)
	assert.False(t, ev.EventType.Known())
	assert.JSONEq(t, `{"ms":3}`, string(ev.Extra))
}

func TestStatusEventsNeedNoResource(t *testing.T) {
	at := time.UnixMilli(42)
	ev := Status(StatusConnected, at, map[string]int{"pid": 10})

	data, err := Encode(ev)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, got.EventType.IsStatus())
	assert.Equal(t, int64(42), got.Timestamp)
	assert.JSONEq(t, `{"pid":10}`, string(got.Extra))
}

func TestEncodeOmitsEmptyOptionals(t *testing.T) {
	data, err := Encode(LifecycleEvent{EventType: Before, ResourceID: 9, Timestamp: 100})
	require.NoError(t, err)
	assert.JSONEq(t, `{"eventType":"before","resourceId":9,"timestamp":100}`, string(data))
}
