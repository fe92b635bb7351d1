package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"bookshelf/internal/config"
	"bookshelf/internal/inference"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
	"bookshelf/internal/services"
)

// ErrSyncActive is returned when Sync is called while another sync runs.
var ErrSyncActive = fmt.Errorf("%w: taxonomy sync already running", services.ErrConflict)

// Store is the slice of the library store the taxonomy engine needs.
type Store interface {
	DistinctTags(ctx context.Context) ([]string, error)
	AllTagged(ctx context.Context) ([]library.TaggedItem, error)
	RunInTransaction(ctx context.Context, fn func(library.Tx) error) error
	ResetTag(ctx context.Context, tag string) (int, error)
	ApplyImplication(ctx context.Context, child, parent string) (int, error)
}

// Completer runs a prompt against the active model.
type Completer interface {
	Complete(ctx context.Context, req inference.Request) (inference.Response, error)
}

// RulesSource supplies the user-authored rules text holding implication lines.
type RulesSource interface {
	Rules() (string, error)
}

// Options tune batch learning and the apply phase.
type Options struct {
	BatchSize   int
	ApplyEvery  int
	MaxTokens   int
	Temperature float64
}

// OptionsFromConfig maps configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:   cfg.Taxonomy.AIBatchSize,
		ApplyEvery:  cfg.Taxonomy.ApplyProgressEvery,
		MaxTokens:   cfg.Taxonomy.MaxTokens,
		Temperature: cfg.Taxonomy.Temperature,
	}
}

// Engine learns the tag to category mapping and keeps master tags in sync
// with it. One sync may run at a time.
type Engine struct {
	store     Store
	mapping   *MappingFile
	completer Completer
	rules     RulesSource
	opts      Options
	logger    *slog.Logger

	running atomic.Bool
}

// NewEngine wires an engine. completer and rules may be nil: without a
// completer unknown tags stay unknown, without rules no implications apply.
func NewEngine(store Store, mapping *MappingFile, completer Completer, rules RulesSource, opts Options, logger *slog.Logger) *Engine {
	cfg := config.Default()
	defaults := OptionsFromConfig(&cfg)
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.ApplyEvery <= 0 {
		opts.ApplyEvery = defaults.ApplyEvery
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaults.MaxTokens
	}
	return &Engine{
		store:     store,
		mapping:   mapping,
		completer: completer,
		rules:     rules,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "taxonomy"),
	}
}

// Mapping returns the persisted mapping.
func (e *Engine) Mapping() (Mapping, error) {
	return e.mapping.Load()
}

// Running reports whether a sync is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// ReEvaluate clears the scan outcome of every item carrying tag so the next
// content scan tags them again. It returns the number of items reset.
func (e *Engine) ReEvaluate(ctx context.Context, tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, services.Wrap(services.ErrValidation, "taxonomy", "re-evaluate", "tag required", nil)
	}
	count, err := e.store.ResetTag(ctx, tag)
	if err != nil {
		return 0, err
	}
	e.logger.Info("tag re-evaluation queued",
		logging.String("tag", tag),
		logging.Int("items", count),
	)
	return count, nil
}

// ApplyImplications parses implication lines from the rules text and adds each
// parent tag to the items carrying the child but not the parent. It returns
// the number of item updates and a description of every rule that changed
// something.
func (e *Engine) ApplyImplications(ctx context.Context) (int, []string, error) {
	applied := []string{}
	if e.rules == nil {
		return 0, applied, nil
	}
	text, err := e.rules.Rules()
	if err != nil {
		return 0, applied, err
	}
	total := 0
	for _, rule := range ParseImplications(text) {
		if err := ctx.Err(); err != nil {
			return total, applied, err
		}
		n, err := e.store.ApplyImplication(ctx, rule.Child, rule.Parent)
		if err != nil {
			return total, applied, err
		}
		if n == 0 {
			continue
		}
		total += n
		applied = append(applied, fmt.Sprintf("%s -> %s (%d books)", rule.Child, rule.Parent, n))
		e.logger.Info("implication applied",
			logging.String("child", rule.Child),
			logging.String("parent", rule.Parent),
			logging.Int("items", n),
		)
	}
	return total, applied, nil
}

func isFatalLearningError(err error) bool {
	return inference.IsEngineFatal(err) || errors.Is(err, errNoCompleter) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
