package testsupport

import (
	"context"
	"fmt"
	"sync"

	"bookshelf/internal/inference"
)

// CompleterFunc adapts a function to the Complete method used by the tagging
// pipeline and the taxonomy engine.
type CompleterFunc func(ctx context.Context, req inference.Request) (inference.Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req inference.Request) (inference.Response, error) {
	return f(ctx, req)
}

// FakeBackend is an in-memory inference.Backend. Contexts larger than
// MaxContext fail; a zero MaxContext accepts every size.
type FakeBackend struct {
	MaxContext int
	LoadErr    error
	// LoadGate, when set, blocks LoadModel until it is closed.
	LoadGate chan struct{}
	Respond  func(req inference.Request) (inference.Response, error)

	mu     sync.Mutex
	loads  []string
	closed []string
	sizes  []int
}

// LoadModel records the load and returns a fake model.
func (b *FakeBackend) LoadModel(ctx context.Context, path string) (inference.Model, error) {
	if b.LoadGate != nil {
		select {
		case <-b.LoadGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	b.loads = append(b.loads, path)
	b.mu.Unlock()
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	return &fakeModel{backend: b, path: path}, nil
}

// Loads returns the paths loaded so far.
func (b *FakeBackend) Loads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.loads...)
}

// Closed returns the paths whose models were closed.
func (b *FakeBackend) Closed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.closed...)
}

// ContextAttempts returns every context size requested, in order.
func (b *FakeBackend) ContextAttempts() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.sizes...)
}

type fakeModel struct {
	backend *FakeBackend
	path    string
}

func (m *fakeModel) Path() string { return m.path }

func (m *fakeModel) NewContext(_ context.Context, size int) (inference.Session, error) {
	m.backend.mu.Lock()
	m.backend.sizes = append(m.backend.sizes, size)
	m.backend.mu.Unlock()
	if m.backend.MaxContext > 0 && size > m.backend.MaxContext {
		return nil, fmt.Errorf("out of memory allocating %d tokens", size)
	}
	return &fakeSession{model: m, size: size}, nil
}

func (m *fakeModel) Close() error {
	m.backend.mu.Lock()
	m.backend.closed = append(m.backend.closed, m.path)
	m.backend.mu.Unlock()
	return nil
}

type fakeSession struct {
	model *fakeModel
	size  int
}

func (s *fakeSession) Size() int { return s.size }

func (s *fakeSession) Complete(_ context.Context, req inference.Request) (inference.Response, error) {
	if s.model.backend.Respond == nil {
		return inference.Response{Text: "{}"}, nil
	}
	return s.model.backend.Respond(req)
}
