package inference

import (
	"context"
	"log/slog"

	"bookshelf/internal/config"
	"bookshelf/internal/services/llm"
)

// Service completes prompts with whichever model the catalog marks active.
type Service struct {
	gateway *Gateway
	catalog *Catalog
}

// NewService composes a gateway and catalog.
func NewService(gateway *Gateway, catalog *Catalog) *Service {
	return &Service{gateway: gateway, catalog: catalog}
}

// NewFromConfig builds the llama-server backed service described by cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Service {
	client := llm.NewClient(llm.Config{
		APIKey:         cfg.Inference.APIKey,
		BaseURL:        cfg.Inference.BaseURL,
		TimeoutSeconds: cfg.Inference.TimeoutSeconds,
	})
	gateway := NewGateway(NewLlamaServer(client), cfg.Inference.ContextSizes, logger)
	return NewService(gateway, NewCatalog(cfg))
}

// Complete resolves the active model and runs req against it.
func (s *Service) Complete(ctx context.Context, req Request) (Response, error) {
	path, err := s.catalog.ActiveModel()
	if err != nil {
		return Response{}, err
	}
	return s.gateway.Complete(ctx, path, req)
}

// Catalog returns the model catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Gateway returns the underlying gateway.
func (s *Service) Gateway() *Gateway {
	return s.gateway
}

// Close releases the loaded model.
func (s *Service) Close() error {
	return s.gateway.Close()
}
