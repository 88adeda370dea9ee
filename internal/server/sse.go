package server

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mohammad-safakhou/researchchat/internal/agent/core"
)

// streamSink queues session events for the HTTP writer. Emit never blocks;
// the queue is bounded by the session's own budgets.
type streamSink struct {
	mu     sync.Mutex
	queue  []core.Event
	closed bool
	notify chan struct{}
}

func newStreamSink() *streamSink {
	return &streamSink{notify: make(chan struct{}, 1)}
}

func (s *streamSink) Emit(e core.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.signal()
}

func (s *streamSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *streamSink) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// drain takes every queued event. closed reports that no more will follow.
func (s *streamSink) drain() (events []core.Event, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, s.queue = s.queue, nil
	return events, s.closed
}

// writeSSE writes one server-sent event frame.
func writeSSE(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
