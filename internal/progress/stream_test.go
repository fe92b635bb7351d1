package progress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEventMarshalFlattensPayload(t *testing.T) {
	total := 3
	cases := []struct {
		evt  Event
		want map[string]any
	}{
		{Event{Type: TypeStart, Payload: Start{Total: &total}}, map[string]any{"type": "start", "total": float64(3)}},
		{Event{Type: TypeStart, Payload: Start{}}, map[string]any{"type": "start"}},
		{Event{Type: TypeComplete}, map[string]any{"type": "complete"}},
		{Event{Type: TypeError, Payload: Failure{Message: "boom"}}, map[string]any{"type": "error", "message": "boom"}},
		{Event{Type: TypeProgressApplying, Payload: Applying{Current: 50, Total: 120}}, map[string]any{"type": "progress_applying", "current": float64(50), "total": float64(120)}},
	}
	for _, tc := range cases {
		raw, err := json.Marshal(tc.evt)
		if err != nil {
			t.Fatalf("marshal %s: %v", tc.evt.Type, err)
		}
		var got map[string]any
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", tc.evt.Type, diff)
		}
	}
}

func TestStreamEventsDrainsAfterClose(t *testing.T) {
	s := NewStream(16)
	s.Publish(TypeStart, Start{})
	s.Publish(TypeProgress, ItemProgress{Processed: 1, Total: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Events(ctx)

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Publish(TypeComplete, nil)
		s.Close()
	}()

	var types []string
	for evt := range ch {
		types = append(types, evt.Type)
	}
	if diff := cmp.Diff([]string{TypeStart, TypeProgress, TypeComplete}, types); diff != "" {
		t.Fatalf("event order mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamReaderDisconnectDoesNotBlockPublisher(t *testing.T) {
	s := NewStream(4)
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Events(ctx)
	s.Publish(TypeStart, nil)
	<-ch
	cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(TypeProgress, ItemProgress{Processed: i})
		}
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked after reader disconnected")
	}
	for range ch {
	}

	if got := len(s.Snapshot()); got != 4 {
		t.Fatalf("expected buffer capped at 4, got %d", got)
	}
}

func TestStreamFetchSemantics(t *testing.T) {
	s := NewStream(8)
	events, done, err := s.Fetch(context.Background(), 0, false)
	if err != nil || done || len(events) != 0 {
		t.Fatalf("unexpected empty fetch: %v %v %v", events, done, err)
	}

	first := s.Publish(TypeStart, nil)
	s.Publish(TypeComplete, nil)
	events, _, _ = s.Fetch(context.Background(), first.Seq, false)
	if len(events) != 1 || events[0].Type != TypeComplete {
		t.Fatalf("expected only events after seq %d, got %+v", first.Seq, events)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := s.Fetch(ctx, 2, true); err == nil {
		t.Fatal("expected context error while waiting")
	}

	s.Close()
	if _, done, _ := s.Fetch(context.Background(), 2, true); !done {
		t.Fatal("expected closed stream to report done")
	}
	if evt := s.Publish(TypeProgress, nil); evt.Seq != 0 {
		t.Fatalf("publish after close should not sequence, got %d", evt.Seq)
	}
}
