package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"bookshelf/internal/extract"
	"bookshelf/internal/inference"
	"bookshelf/internal/jobs"
	"bookshelf/internal/library"
	"bookshelf/internal/progress"
	"bookshelf/internal/services"
	"bookshelf/internal/tagging"
	"bookshelf/internal/taxonomy"
	"bookshelf/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type taggerFunc func(ctx context.Context, path string) (tagging.Result, error)

func (f taggerFunc) Process(ctx context.Context, path string) (tagging.Result, error) {
	return f(ctx, path)
}

func okTagger(tags string, tokens int) taggerFunc {
	return func(context.Context, string) (tagging.Result, error) {
		return tagging.Result{Tags: tags, Summary: "A summary.", TotalTokens: tokens}, nil
	}
}

type harness struct {
	t       *testing.T
	store   *library.Store
	mapping *taxonomy.MappingFile
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return harness{
		t:       t,
		store:   testsupport.MustOpenStore(t, cfg),
		mapping: taxonomy.NewMappingFile(cfg.TaxonomyPath()),
	}
}

func (h harness) add(paths ...string) {
	h.t.Helper()
	for _, p := range paths {
		testsupport.AddItem(h.t, h.store, p, p)
	}
}

func (h harness) item(path string) *library.Item {
	h.t.Helper()
	item, err := h.store.Get(context.Background(), path)
	if err != nil || item == nil {
		h.t.Fatalf("Get(%s): %v", path, err)
	}
	return item
}

func (h harness) engine(store jobs.Store, tagger jobs.Tagger, batch int) *jobs.Engine {
	return jobs.NewEngine(store, tagger, h.mapping, jobs.Options{BatchSize: batch, ChunkSize: 900}, nil)
}

// collect drains a run's events and waits for the run to finish.
func collect(t *testing.T, run *jobs.Run) []progress.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var events []progress.Event
	for evt := range run.Events(ctx) {
		events = append(events, evt)
	}
	select {
	case <-run.Done():
	case <-ctx.Done():
		t.Fatal("run did not finish")
	}
	return events
}

func eventTypes(events []progress.Event) []string {
	out := make([]string, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Type)
	}
	return out
}

func TestDefaultScanRecordsEveryOutcome(t *testing.T) {
	h := newHarness(t)
	if _, err := h.mapping.Merge(taxonomy.Mapping{"Space-Opera": "Science-Fiction"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	h.add("/lib/ok.epub", "/lib/empty.epub", "/lib/broken.epub", "/lib/garbled.epub", "/lib/panic.epub", "/lib/offline.epub")

	tagger := taggerFunc(func(_ context.Context, path string) (tagging.Result, error) {
		switch path {
		case "/lib/ok.epub":
			return tagging.Result{Tags: "Space-Opera, Robots", Summary: "Robots in space.", TotalTokens: 120}, nil
		case "/lib/empty.epub":
			return tagging.Result{}, fmt.Errorf("%w from empty.epub", tagging.ErrNoContent)
		case "/lib/broken.epub":
			return tagging.Result{}, &extract.Error{Path: path, Err: errors.New("zip: not a valid zip file")}
		case "/lib/garbled.epub":
			return tagging.Result{}, fmt.Errorf("%w: missing tags", tagging.ErrMalformedResponse)
		case "/lib/panic.epub":
			panic("index out of range")
		default:
			return tagging.Result{}, errors.New("connection refused")
		}
	})

	engine := h.engine(h.store, tagger, 50)
	run, err := engine.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, run)
	if run.Err() != nil {
		t.Fatalf("unexpected run error: %v", run.Err())
	}

	wantTypes := []string{"start", "progress", "progress", "progress", "progress", "progress", "progress", "complete"}
	if diff := cmp.Diff(wantTypes, eventTypes(events)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	if start := events[0].Payload.(progress.Start); start.Total == nil || *start.Total != 6 {
		t.Fatalf("unexpected start payload %+v", start)
	}
	last := events[len(events)-2].Payload.(progress.ItemProgress)
	if last.Processed != 6 || last.Total != 6 || last.TotalTokens != 120 || last.Current != "offline.epub" {
		t.Fatalf("unexpected final progress %+v", last)
	}

	type stored struct{ Tags, Summary, Master string }
	want := map[string]stored{
		"/lib/ok.epub":      {"Space-Opera, Robots", "Robots in space.", "Fiction, Science-Fiction"},
		"/lib/empty.epub":   {"Skipped: No Content", "Insufficient text extracted from file.", ""},
		"/lib/broken.epub":  {"Error: Extraction Failed: zip: not a valid zip file", "AI connection or processing failed.", ""},
		"/lib/garbled.epub": {"Error: AI Response Malformed", "AI connection or processing failed.", ""},
		"/lib/panic.epub":   {"Error: Scan Failed", "index out of range", ""},
		"/lib/offline.epub": {"Error: Local AI Error: connection refused", "AI connection or processing failed.", ""},
	}
	for path, w := range want {
		item := h.item(path)
		got := stored{item.Tags, item.Summary, item.MasterTags}
		if diff := cmp.Diff(w, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", path, diff)
		}
		if !item.ContentScanned {
			t.Errorf("%s not marked content scanned", path)
		}
	}

	status := engine.Status()
	if status.Active || status.Processed != 6 || status.TotalTokens != 120 || status.CurrentFile != "" {
		t.Fatalf("unexpected final status %+v", status)
	}

	// Every item now carries an outcome, so a second full scan finds nothing.
	again, err := engine.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if diff := cmp.Diff([]string{"start", "complete"}, eventTypes(collect(t, again))); diff != "" {
		t.Fatalf("second run events mismatch (-want +got):\n%s", diff)
	}
}

func TestStartRejectsSecondJob(t *testing.T) {
	h := newHarness(t)
	h.add("/lib/a.epub", "/lib/b.epub")

	entered := make(chan struct{}, 2)
	gate := make(chan struct{})
	tagger := taggerFunc(func(ctx context.Context, path string) (tagging.Result, error) {
		entered <- struct{}{}
		<-gate
		return tagging.Result{Tags: "Robots"}, nil
	})
	engine := h.engine(h.store, tagger, 50)

	run, err := engine.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-entered

	if _, err := engine.Start(context.Background(), nil); !errors.Is(err, jobs.ErrJobActive) || !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrJobActive conflict, got %v", err)
	}
	status := engine.Status()
	if !status.Active || status.Total < status.Processed || status.CurrentFile != "a.epub" || status.RunID != run.ID {
		t.Fatalf("unexpected status while running %+v", status)
	}
	if engine.Current() != run {
		t.Fatal("Current should return the active run")
	}

	close(gate)
	collect(t, run)
	if engine.Status().Active {
		t.Fatal("engine still active after completion")
	}
	if engine.Current() != nil {
		t.Fatal("Current should be nil once idle")
	}
}

func TestTargetedScanRetriesFailedItems(t *testing.T) {
	h := newHarness(t)
	h.add("/lib/failed.epub", "/lib/done.epub", "/lib/new.epub")
	testsupport.SetContent(t, h.store, "/lib/failed.epub", "Error: Scan Failed", "boom")
	testsupport.SetContent(t, h.store, "/lib/done.epub", "History", "fine")

	var mu sync.Mutex
	var seen []string
	tagger := taggerFunc(func(_ context.Context, path string) (tagging.Result, error) {
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
		return tagging.Result{Tags: "Robots", Summary: "ok"}, nil
	})
	engine := h.engine(h.store, tagger, 1)

	run, err := engine.Start(context.Background(), []string{"/lib/failed.epub", "/lib/done.epub", "/lib/missing.epub"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !run.Targeted {
		t.Fatal("run should be targeted")
	}
	events := collect(t, run)
	if start := events[0].Payload.(progress.Start); *start.Total != 1 {
		t.Fatalf("expected total 1, got %d", *start.Total)
	}
	if diff := cmp.Diff([]string{"/lib/failed.epub"}, seen); diff != "" {
		t.Fatalf("processed items mismatch (-want +got):\n%s", diff)
	}
	if got := h.item("/lib/failed.epub").Tags; got != "Robots" {
		t.Fatalf("failed item not retagged: %q", got)
	}
	if got := h.item("/lib/new.epub").Tags; got != "" {
		t.Fatalf("untargeted item was processed: %q", got)
	}
}

func TestEmptyTargetListScansNothing(t *testing.T) {
	h := newHarness(t)
	h.add("/lib/a.epub", "/lib/b.epub")

	tagger := taggerFunc(func(_ context.Context, path string) (tagging.Result, error) {
		t.Errorf("unexpected tagging of %s", path)
		return tagging.Result{Tags: "Robots"}, nil
	})
	engine := h.engine(h.store, tagger, 50)

	run, err := engine.Start(context.Background(), []string{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !run.Targeted {
		t.Fatal("an empty target list should still be a targeted run")
	}
	events := collect(t, run)
	if diff := cmp.Diff([]string{"start", "complete"}, eventTypes(events)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	if start := events[0].Payload.(progress.Start); start.Total == nil || *start.Total != 0 {
		t.Fatalf("expected total 0, got %+v", start)
	}
	for _, path := range []string{"/lib/a.epub", "/lib/b.epub"} {
		if got := h.item(path).Tags; got != "" {
			t.Fatalf("%s was tagged: %q", path, got)
		}
	}
}

func TestStopTakesEffectAtBatchBoundary(t *testing.T) {
	h := newHarness(t)
	h.add("/lib/1.epub", "/lib/2.epub", "/lib/3.epub", "/lib/4.epub", "/lib/5.epub")

	var engine *jobs.Engine
	tagger := taggerFunc(func(_ context.Context, path string) (tagging.Result, error) {
		if path == "/lib/1.epub" {
			if ok, msg := engine.Stop(); !ok || msg != "Scan stopping..." {
				t.Errorf("Stop returned %v %q", ok, msg)
			}
		}
		return tagging.Result{Tags: "Robots"}, nil
	})
	engine = h.engine(h.store, tagger, 2)

	run, err := engine.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, run)

	wantTypes := []string{"start", "progress", "progress", "complete"}
	if diff := cmp.Diff(wantTypes, eventTypes(events)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	if got := h.item("/lib/1.epub").Tags; got != "Robots" {
		t.Fatalf("in-flight item result not persisted: %q", got)
	}
	if got := h.item("/lib/3.epub").Tags; got != "" {
		t.Fatalf("item after the boundary was processed: %q", got)
	}
	if ok, msg := engine.Stop(); ok || msg != "No scan active" {
		t.Fatalf("Stop on idle engine returned %v %q", ok, msg)
	}
}

func TestEngineFatalErrorAbortsWithoutTouchingItem(t *testing.T) {
	h := newHarness(t)
	h.add("/lib/a.epub", "/lib/b.epub")

	calls := 0
	tagger := taggerFunc(func(context.Context, string) (tagging.Result, error) {
		calls++
		return tagging.Result{}, &inference.ContextExhaustedError{Model: "m.gguf"}
	})
	engine := h.engine(h.store, tagger, 50)

	run, err := engine.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, run)
	if diff := cmp.Diff([]string{"start", "error", "complete"}, eventTypes(events)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	var exhausted *inference.ContextExhaustedError
	if !errors.As(run.Err(), &exhausted) {
		t.Fatalf("expected context exhaustion, got %v", run.Err())
	}
	if calls != 1 {
		t.Fatalf("expected the run to stop after the first item, got %d calls", calls)
	}
	item := h.item("/lib/a.epub")
	if item.ContentScanned || item.Tags != "" {
		t.Fatalf("item should be untouched, got %+v", item)
	}
}

type panickyStore struct {
	*library.Store
}

func (panickyStore) UpdateMasterTags(context.Context, string, string) error {
	panic("master tag writer exploded")
}

func TestProcessCrashMarksInFlightItem(t *testing.T) {
	h := newHarness(t)
	h.add("/lib/a.epub", "/lib/b.epub")
	engine := h.engine(panickyStore{h.store}, okTagger("Robots", 10), 50)

	run, err := engine.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, run)
	if diff := cmp.Diff([]string{"start", "error", "complete"}, eventTypes(events)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	var crash *jobs.CrashError
	if !errors.As(run.Err(), &crash) || crash.Scope != jobs.ScopeProcess || crash.Path != "/lib/a.epub" {
		t.Fatalf("expected process crash on a.epub, got %v", run.Err())
	}

	item := h.item("/lib/a.epub")
	if item.Tags != "Error: Crashed Server" || item.Summary != "Crash: master tag writer exploded" {
		t.Fatalf("crash not recorded on item: %q / %q", item.Tags, item.Summary)
	}
	if h.item("/lib/b.epub").ContentScanned {
		t.Fatal("items after the crash must not be touched")
	}

	// The engine recovers and serves the next run.
	next, err := h.engine(h.store, okTagger("Robots", 1), 50).Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start after crash: %v", err)
	}
	collect(t, next)
	if got := h.item("/lib/b.epub").Tags; got != "Robots" {
		t.Fatalf("b.epub not processed by the next run: %q", got)
	}
}

func TestDetachedConsumerDoesNotStopJob(t *testing.T) {
	h := newHarness(t)
	h.add("/lib/a.epub", "/lib/b.epub", "/lib/c.epub")
	engine := h.engine(h.store, okTagger("Robots", 5), 1)

	run, err := engine.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := run.Events(ctx)
	<-events
	cancel()
	for range events {
	}

	select {
	case <-run.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish after the consumer left")
	}
	if status := engine.Status(); status.Processed != 3 || status.TotalTokens != 15 {
		t.Fatalf("unexpected status %+v", status)
	}
	if got := run.Stream().Snapshot(); got[len(got)-1].Type != progress.TypeComplete {
		t.Fatalf("last buffered event should be complete, got %s", got[len(got)-1].Type)
	}
}

func TestShutdownLeavesInFlightItemUntouched(t *testing.T) {
	h := newHarness(t)
	h.add("/lib/a.epub")

	ctx, cancel := context.WithCancel(context.Background())
	tagger := taggerFunc(func(ctx context.Context, _ string) (tagging.Result, error) {
		cancel()
		return tagging.Result{}, ctx.Err()
	})
	engine := h.engine(h.store, tagger, 50)
	run, err := engine.Start(ctx, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	collect(t, run)
	engine.Wait()
	if !errors.Is(run.Err(), context.Canceled) {
		t.Fatalf("expected cancellation, got %v", run.Err())
	}
	if h.item("/lib/a.epub").ContentScanned {
		t.Fatal("cancelled item must stay unprocessed")
	}
}
