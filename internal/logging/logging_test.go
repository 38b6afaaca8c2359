package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelChangesAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	logger, err := New(&buf, "text", &level)
	require.NoError(t, err)

	logger.Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	require.NoError(t, SetLevel(&level, "debug"))
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	assert.Error(t, SetLevel(&level, "nope"))
	assert.Equal(t, slog.LevelDebug, level.Level())
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	logger, err := New(&buf, "json", &level)
	require.NoError(t, err)

	logger.Info("relay listening", "addr", "127.0.0.1:8080")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, "relay listening", rec["msg"])
	assert.Equal(t, "127.0.0.1:8080", rec["addr"])
}

func TestUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", new(slog.LevelVar))
	assert.Error(t, err)
}
