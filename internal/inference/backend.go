package inference

import "context"

// Request describes a single generation.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// JSON constrains the output to a single JSON object.
	JSON bool
}

// Response is the raw model output. Callers own domain-level parsing.
type Response struct {
	Text        string
	TotalTokens int
}

// Backend loads models into a runtime.
type Backend interface {
	LoadModel(ctx context.Context, path string) (Model, error)
}

// Model is a loaded model able to allocate inference contexts.
type Model interface {
	Path() string
	NewContext(ctx context.Context, size int) (Session, error)
	Close() error
}

// Session is an established context that produces completions.
type Session interface {
	Size() int
	Complete(ctx context.Context, req Request) (Response, error)
}
