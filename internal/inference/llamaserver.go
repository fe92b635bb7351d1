package inference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"bookshelf/internal/services"
	"bookshelf/internal/services/llm"
)

// ServerClient is the subset of the llm client the llama-server backend uses.
type ServerClient interface {
	Props(ctx context.Context) (llm.Props, error)
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
}

// LlamaServer is a Backend speaking to a llama.cpp server. The server owns
// the weights; loading a model validates the GGUF file and reads the
// server's context size so the ladder rejects sizes it cannot honor.
type LlamaServer struct {
	client ServerClient
}

// NewLlamaServer wraps an llm client.
func NewLlamaServer(client ServerClient) *LlamaServer {
	return &LlamaServer{client: client}
}

// LoadModel validates path and probes the server.
func (b *LlamaServer) LoadModel(ctx context.Context, path string) (Model, error) {
	if err := ValidateModelFile(path); err != nil {
		return nil, err
	}
	props, err := b.client.Props(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "inference", "probe llama-server", "", err)
	}
	return &llamaModel{
		client:     b.client,
		path:       path,
		name:       filepath.Base(path),
		serverSize: props.ContextSize,
	}, nil
}

// ValidateModelFile checks that path names an existing GGUF file.
func ValidateModelFile(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".gguf") {
		return services.Wrap(services.ErrValidation, "inference", "validate model",
			fmt.Sprintf("%s is not a .gguf file", path), nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "inference", "validate model", path, nil)
		}
		return fmt.Errorf("stat model %s: %w", path, err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "inference", "validate model",
			fmt.Sprintf("%s is a directory", path), nil)
	}
	return nil
}

type llamaModel struct {
	client     ServerClient
	path       string
	name       string
	serverSize int
}

func (m *llamaModel) Path() string { return m.path }

func (m *llamaModel) NewContext(_ context.Context, size int) (Session, error) {
	if size <= 0 {
		return nil, fmt.Errorf("context size must be positive, got %d", size)
	}
	if m.serverSize > 0 && size > m.serverSize {
		return nil, fmt.Errorf("context size %d exceeds server n_ctx %d", size, m.serverSize)
	}
	return &llamaSession{model: m, size: size}, nil
}

func (m *llamaModel) Close() error { return nil }

type llamaSession struct {
	model *llamaModel
	size  int
}

func (s *llamaSession) Size() int { return s.size }

func (s *llamaSession) Complete(ctx context.Context, req Request) (Response, error) {
	completion, err := s.model.client.Complete(ctx, llm.Request{
		Model:       s.model.name,
		System:      req.System,
		User:        req.User,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		JSON:        req.JSON,
	})
	if err != nil {
		return Response{}, services.Wrap(services.ErrExternalTool, "inference", "complete", "", err)
	}
	return Response{Text: completion.Content, TotalTokens: completion.TotalTokens}, nil
}
