package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"bookshelf/internal/logging"
)

// Gateway keeps one model and one context alive and funnels every completion
// through them. It is safe for concurrent use; completions run one at a time.
type Gateway struct {
	backend Backend
	ladder  []int
	logger  *slog.Logger

	loads singleflight.Group

	stateMu sync.Mutex
	model   Model
	session Session

	genMu sync.Mutex
}

// NewGateway constructs a gateway that establishes contexts by trying each
// ladder size in order.
func NewGateway(backend Backend, ladder []int, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gateway{
		backend: backend,
		ladder:  append([]int(nil), ladder...),
		logger:  logging.NewComponentLogger(logger, "inference"),
	}
}

// Complete runs req against the model at modelPath, loading it first when it
// is not the model currently held.
func (g *Gateway) Complete(ctx context.Context, modelPath string, req Request) (Response, error) {
	modelPath = strings.TrimSpace(modelPath)
	if modelPath == "" {
		return Response{}, ErrModelNotSelected
	}
	for {
		session, err := g.Warm(ctx, modelPath)
		if err != nil {
			return Response{}, err
		}
		g.genMu.Lock()
		if !g.isCurrent(session) {
			// Another caller swapped models between load and lock.
			g.genMu.Unlock()
			continue
		}
		resp, err := session.Complete(ctx, req)
		g.genMu.Unlock()
		return resp, err
	}
}

// Warm ensures the model at modelPath is loaded with an established context.
// Concurrent callers for the same path share a single load.
func (g *Gateway) Warm(ctx context.Context, modelPath string) (Session, error) {
	g.stateMu.Lock()
	if g.model != nil && g.session != nil && g.model.Path() == modelPath {
		session := g.session
		g.stateMu.Unlock()
		return session, nil
	}
	g.stateMu.Unlock()

	result, err, _ := g.loads.Do(modelPath, func() (any, error) {
		return g.load(ctx, modelPath)
	})
	if err != nil {
		return nil, err
	}
	return result.(Session), nil
}

func (g *Gateway) load(ctx context.Context, modelPath string) (Session, error) {
	g.logger.Info("loading model", logging.String("model_path", modelPath))
	model, err := g.backend.LoadModel(ctx, modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}

	attempts := make([]ContextAttempt, 0, len(g.ladder))
	for _, size := range g.ladder {
		session, err := model.NewContext(ctx, size)
		if err == nil {
			g.logger.Info("model context established",
				logging.String("model_path", modelPath),
				logging.Int("context_size", size),
			)
			g.install(model, session)
			return session, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = model.Close()
			return nil, ctxErr
		}
		logging.WarnWithContext(g.logger, "context size rejected", "context_fallback",
			logging.Int("context_size", size),
			logging.Error(err),
		)
		attempts = append(attempts, ContextAttempt{Size: size, Err: err})
	}

	_ = model.Close()
	exhausted := &ContextExhaustedError{Model: modelPath, Attempts: attempts}
	logging.ErrorWithContext(g.logger, "model context exhausted", "context_exhausted",
		logging.String("model_path", modelPath),
		logging.Error(exhausted),
		logging.String(logging.FieldErrorHint, "free GPU memory, pick a smaller model or lower inference.context_sizes"),
	)
	return nil, exhausted
}

// install swaps in a freshly loaded model once no completion is running.
func (g *Gateway) install(model Model, session Session) {
	g.genMu.Lock()
	defer g.genMu.Unlock()
	g.stateMu.Lock()
	previous := g.model
	g.model = model
	g.session = session
	g.stateMu.Unlock()

	if previous != nil && previous != model {
		if err := previous.Close(); err != nil {
			g.logger.Warn("close previous model", logging.Error(err))
		}
	}
}

func (g *Gateway) isCurrent(session Session) bool {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	return g.session == session
}

// ActiveModel returns the path of the loaded model, if any.
func (g *Gateway) ActiveModel() string {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	if g.model == nil {
		return ""
	}
	return g.model.Path()
}

// ActiveContextSize returns the size of the established context, or 0.
func (g *Gateway) ActiveContextSize() int {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	if g.session == nil {
		return 0
	}
	return g.session.Size()
}

// Close releases the loaded model.
func (g *Gateway) Close() error {
	g.genMu.Lock()
	defer g.genMu.Unlock()
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	if g.model == nil {
		return nil
	}
	err := g.model.Close()
	g.model = nil
	g.session = nil
	return err
}
