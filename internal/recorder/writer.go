package recorder

import (
	"io"
	"sync"
)

// WriterSender writes each frame as one line to w. It suits local files,
// where a write does not stall the caller for long; a failed write disables
// it.
type WriterSender struct {
	mu     sync.Mutex
	w      io.Writer
	failed bool
}

// NewWriterSender wraps w.
func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

func (s *WriterSender) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return false
	}
	line := make([]byte, 0, len(frame)+1)
	line = append(line, frame...)
	line = append(line, '\n')
	if _, err := s.w.Write(line); err != nil {
		s.failed = true
		return false
	}
	return true
}
