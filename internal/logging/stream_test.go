package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerIncludesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(hub, nil)

	logger := slog.New(handler).
		With(slog.String(FieldComponent, "jobs")).
		With(slog.Int64(FieldItemID, 42)).
		With(slog.String(FieldJob, "scan"))
	logger.Info("tagging item", slog.String("path", "/books/a.epub"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.ItemID != 42 {
		t.Errorf("expected item_id=42, got %d", evt.ItemID)
	}
	if evt.Job != "scan" || evt.Component != "jobs" {
		t.Errorf("unexpected job/component: %q/%q", evt.Job, evt.Component)
	}
	if evt.Fields["path"] != "/books/a.epub" {
		t.Errorf("expected path field, got %v", evt.Fields)
	}
	if evt.Sequence != 1 {
		t.Errorf("expected first sequence to be 1, got %d", evt.Sequence)
	}
}

func TestStreamHandlerCallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(hub, nil)

	logger := slog.New(handler).With(slog.String(FieldJob, "scan"))
	logger.Info("message", slog.String(FieldJob, "taxonomy_sync"))

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Job != "taxonomy_sync" {
		t.Fatalf("expected call-site job to win, got %+v", events)
	}
}

func TestStreamHandlerNilHub(t *testing.T) {
	if handler := newStreamHandler(nil, nil); handler != nil {
		t.Errorf("expected nil handler when hub is nil, got %T", handler)
	}
}

func TestStreamHandlerHonoursLevel(t *testing.T) {
	hub := NewStreamHub(100)
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	handler := newStreamHandler(hub, level)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected INFO to be disabled at WARN")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected WARN to be enabled at WARN")
	}
}

func TestStreamHandlerFlattensGroups(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(newStreamHandler(hub, nil)).WithGroup("sync")
	logger.Info("batch saved", slog.Int("learned", 4), slog.Group("batch", slog.Int("index", 2)))

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	fields := events[0].Fields
	if fields["sync.learned"] != "4" || fields["sync.batch.index"] != "2" {
		t.Fatalf("unexpected grouped fields: %v", fields)
	}
	if events[0].Level != "INFO" {
		t.Fatalf("expected INFO level label, got %q", events[0].Level)
	}
}

func TestStreamHubCapacityAndFetch(t *testing.T) {
	hub := NewStreamHub(2)
	for i := 0; i < 3; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}
	if first := hub.FirstSequence(); first != 2 {
		t.Fatalf("expected oldest retained sequence 2, got %d", first)
	}

	events, next, err := hub.Fetch(context.Background(), 2, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Sequence != 3 || next != 3 {
		t.Fatalf("unexpected fetch result: %+v next=%d", events, next)
	}
}

func TestStreamHubFetchWaitHonoursContext(t *testing.T) {
	hub := NewStreamHub(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	events, _, err := hub.Fetch(ctx, 0, 0, true)
	if err == nil {
		t.Fatal("expected context error from blocking fetch")
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}
