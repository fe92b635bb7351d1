package inference_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"bookshelf/internal/inference"
	"bookshelf/internal/services"
	"bookshelf/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestGatewayFallsBackDownTheLadder(t *testing.T) {
	backend := &testsupport.FakeBackend{
		MaxContext: 4096,
		Respond: func(req inference.Request) (inference.Response, error) {
			return inference.Response{Text: "ok:" + req.User, TotalTokens: 7}, nil
		},
	}
	gateway := inference.NewGateway(backend, []int{8192, 4096, 2048}, nil)

	resp, err := gateway.Complete(context.Background(), "/models/a.gguf", inference.Request{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok:u" || resp.TotalTokens != 7 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gateway.ActiveContextSize() != 4096 {
		t.Fatalf("expected 4096 context, got %d", gateway.ActiveContextSize())
	}
	if diff := cmp.Diff([]int{8192, 4096}, backend.ContextAttempts()); diff != "" {
		t.Fatalf("ladder attempts mismatch (-want +got):\n%s", diff)
	}
	if gateway.ActiveModel() != "/models/a.gguf" {
		t.Fatalf("unexpected active model %q", gateway.ActiveModel())
	}
}

func TestGatewayReusesModelAndReloadsOnSwitch(t *testing.T) {
	backend := &testsupport.FakeBackend{}
	gateway := inference.NewGateway(backend, []int{2048}, nil)
	ctx := context.Background()

	for _, path := range []string{"/m/a.gguf", "/m/a.gguf", "/m/b.gguf", "/m/b.gguf"} {
		if _, err := gateway.Complete(ctx, path, inference.Request{System: "s", User: "u"}); err != nil {
			t.Fatalf("Complete(%s): %v", path, err)
		}
	}
	if diff := cmp.Diff([]string{"/m/a.gguf", "/m/b.gguf"}, backend.Loads()); diff != "" {
		t.Fatalf("loads mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/m/a.gguf"}, backend.Closed()); diff != "" {
		t.Fatalf("closed mismatch (-want +got):\n%s", diff)
	}
	if err := gateway.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if gateway.ActiveContextSize() != 0 {
		t.Fatal("expected no context after close")
	}
}

func TestGatewayLadderExhaustion(t *testing.T) {
	backend := &testsupport.FakeBackend{MaxContext: 1024}
	gateway := inference.NewGateway(backend, []int{8192, 4096, 2048}, nil)

	_, err := gateway.Complete(context.Background(), "/m/huge.gguf", inference.Request{System: "s", User: "u"})
	var exhausted *inference.ContextExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ContextExhaustedError, got %v", err)
	}
	if len(exhausted.Attempts) != 3 || exhausted.Attempts[2].Size != 2048 {
		t.Fatalf("unexpected attempts %+v", exhausted.Attempts)
	}
	if !inference.IsEngineFatal(err) {
		t.Fatal("exhaustion must be engine-fatal")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatal("exhaustion should carry the configuration marker")
	}
	if diff := cmp.Diff([]string{"/m/huge.gguf"}, backend.Closed()); diff != "" {
		t.Fatalf("expected failed model to be closed (-want +got):\n%s", diff)
	}
}

func TestGatewayRequiresModelPath(t *testing.T) {
	gateway := inference.NewGateway(&testsupport.FakeBackend{}, []int{2048}, nil)
	_, err := gateway.Complete(context.Background(), " ", inference.Request{})
	if !errors.Is(err, inference.ErrModelNotSelected) {
		t.Fatalf("expected ErrModelNotSelected, got %v", err)
	}
}

func TestGatewayCoalescesConcurrentLoads(t *testing.T) {
	gate := make(chan struct{})
	backend := &testsupport.FakeBackend{LoadGate: gate}
	gateway := inference.NewGateway(backend, []int{2048}, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gateway.Complete(context.Background(), "/m/a.gguf", inference.Request{System: "s", User: "u"})
			errs <- err
		}()
	}
	close(gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if loads := backend.Loads(); len(loads) < 1 || len(loads) > callers {
		t.Fatalf("unexpected load count %d", len(loads))
	}
	if closed := backend.Closed(); len(closed) != len(backend.Loads())-1 {
		t.Fatalf("every superseded load must be closed: loads=%d closed=%d", len(backend.Loads()), len(closed))
	}
}
