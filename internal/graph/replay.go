package graph

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/loopviz/loopviz/internal/event"
)

const maxReplayLine = 1024 * 1024

// ReplayResult describes one replay pass.
type ReplayResult struct {
	Lines     int
	Malformed int
}

// Replay feeds a JSON-lines stream into m. Each line is either a bare
// lifecycle event, as written by a recorder, or a relay surface message.
// Malformed lines are counted and skipped; only read errors are returned.
func Replay(r io.Reader, m *Model) (ReplayResult, error) {
	var res ReplayResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxReplayLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		res.Lines++
		if err := replayLine(line, m); err != nil {
			res.Malformed++
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("reading replay stream: %w", err)
	}
	return res, nil
}

func replayLine(line []byte, m *Model) error {
	if bytes.Contains(line, []byte(`"command"`)) {
		msg, err := event.DecodeMessage(line)
		if err == nil && msg.Command != "" {
			return m.Apply(msg)
		}
	}
	ev, err := event.Decode(line)
	if err != nil {
		m.counters.Malformed++
		return err
	}
	m.ApplyEvent(ev)
	return nil
}
