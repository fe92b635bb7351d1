package progress

import (
	"context"
	"sync"
)

const defaultCapacity = 4096

// Stream is an append-only, sequenced event buffer. Publishers never block on
// readers; a reader that falls more than the buffer capacity behind skips the
// oldest events.
type Stream struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
	closed   bool
}

// NewStream constructs a stream retaining up to capacity events.
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	s := &Stream{capacity: capacity}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish appends an event and wakes waiting readers. Publishing to a closed
// stream is a no-op.
func (s *Stream) Publish(eventType string, payload any) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Event{Type: eventType, Payload: payload}
	}
	s.nextSeq++
	evt := Event{Seq: s.nextSeq, Type: eventType, Payload: payload}
	if len(s.buffer) == s.capacity {
		copy(s.buffer, s.buffer[1:])
		s.buffer = s.buffer[:s.capacity-1]
	}
	s.buffer = append(s.buffer, evt)
	s.cond.Broadcast()
	return evt
}

// Close marks the stream finished. Readers drain the remaining events and then stop.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot returns every buffered event.
func (s *Stream) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Fetch returns buffered events with a sequence greater than since. When wait
// is true it blocks until an event arrives, the stream closes, or ctx ends.
// The boolean result reports that the stream is closed and fully drained.
func (s *Stream) Fetch(ctx context.Context, since uint64, wait bool) ([]Event, bool, error) {
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	if wait && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-stopWatch:
			}
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		events := s.afterLocked(since)
		if len(events) > 0 {
			return events, false, nil
		}
		if s.closed {
			return nil, true, nil
		}
		if !wait {
			return nil, false, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		s.cond.Wait()
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
	}
}

// Events delivers the stream from the beginning on a channel that closes once
// the stream is closed and drained or ctx ends. Abandoning the channel after
// cancelling ctx never blocks the publisher.
func (s *Stream) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		var since uint64
		for {
			events, done, err := s.Fetch(ctx, since, true)
			if err != nil || done {
				return
			}
			for _, evt := range events {
				select {
				case out <- evt:
					since = evt.Seq
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *Stream) afterLocked(since uint64) []Event {
	for i, evt := range s.buffer {
		if evt.Seq > since {
			out := make([]Event, len(s.buffer)-i)
			copy(out, s.buffer[i:])
			return out
		}
	}
	return nil
}
