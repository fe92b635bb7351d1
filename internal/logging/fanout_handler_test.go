package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	info := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newFanoutHandler(info, debug)).With(String(FieldJob, "scan"))
	logger.Debug("extract started")
	logger.Info("item tagged")

	if strings.Contains(infoBuf.String(), "extract started") {
		t.Fatalf("info handler received debug record: %q", infoBuf.String())
	}
	for _, want := range []string{"extract started", "item tagged"} {
		if !strings.Contains(debugBuf.String(), want) {
			t.Fatalf("debug handler missing %q: %q", want, debugBuf.String())
		}
	}
	if !strings.Contains(infoBuf.String(), "job=scan") {
		t.Fatalf("expected WithAttrs to reach every handler: %q", infoBuf.String())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout to be enabled when any handler accepts debug")
	}
}

func TestFanoutFeedsStreamHub(t *testing.T) {
	var buf bytes.Buffer
	hub := NewStreamHub(8)
	level := new(slog.LevelVar)
	logger := slog.New(newFanoutHandler(
		newConsoleHandler(&buf, level, false),
		newStreamHandler(hub, level),
	))
	NewComponentLogger(logger, "taxonomy").WithGroup("sync").Info("grouped", String("tag", "Space-Opera"))

	if !strings.Contains(buf.String(), "INFO taxonomy: grouped sync.tag=Space-Opera") {
		t.Fatalf("unexpected console line %q", buf.String())
	}
	events, _ := hub.Tail(1)
	if len(events) != 1 || events[0].Component != "taxonomy" || events[0].Fields["sync.tag"] != "Space-Opera" {
		t.Fatalf("unexpected stream events %+v", events)
	}
}
