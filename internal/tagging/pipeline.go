package tagging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"bookshelf/internal/config"
	"bookshelf/internal/inference"
	"bookshelf/internal/logging"
	"bookshelf/internal/taxonomy"
)

// ErrNoContent reports that too little text was extracted to tag the item.
// It is a skip, not a failure.
var ErrNoContent = errors.New("insufficient text extracted")

// Extractor returns a plain-text excerpt of a file.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Completer runs a prompt against the active model.
type Completer interface {
	Complete(ctx context.Context, req inference.Request) (inference.Response, error)
}

// RulesSource supplies the user-authored tagging rules.
type RulesSource interface {
	Rules() (string, error)
}

// Options tune generation.
type Options struct {
	MinTextLength int
	MaxTokens     int
	Temperature   float64
}

// OptionsFromConfig maps configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MinTextLength: cfg.Job.MinTextLength,
		MaxTokens:     cfg.Tagging.MaxTokens,
		Temperature:   cfg.Tagging.Temperature,
	}
}

// Result is a successful tagging of one item.
type Result struct {
	Tags        string
	Summary     string
	TotalTokens int
}

// Pipeline composes extraction, inference and response normalization.
type Pipeline struct {
	extractor Extractor
	completer Completer
	rules     RulesSource
	opts      Options
	logger    *slog.Logger
}

// NewPipeline constructs a pipeline. rules may be nil.
func NewPipeline(extractor Extractor, completer Completer, rules RulesSource, opts Options, logger *slog.Logger) *Pipeline {
	defaults := config.Default()
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = defaults.Job.MinTextLength
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaults.Tagging.MaxTokens
	}
	return &Pipeline{
		extractor: extractor,
		completer: completer,
		rules:     rules,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "tagging"),
	}
}

// Process tags the file at path. Extraction failures come back as
// *extract.Error, a short excerpt as ErrNoContent, unusable model output as
// ErrMalformedResponse, and gateway failures unchanged.
func (p *Pipeline) Process(ctx context.Context, path string) (Result, error) {
	logger := logging.WithContext(ctx, p.logger).With(logging.Item(path))

	text, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return Result{}, err
	}
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < p.opts.MinTextLength {
		logger.Debug("not enough text extracted", logging.Int("length", len([]rune(trimmed))))
		return Result{}, fmt.Errorf("%w from %s", ErrNoContent, filepath.Base(path))
	}

	rules := ""
	if p.rules != nil {
		if rules, err = p.rules.Rules(); err != nil {
			logging.WarnWithContext(logger, "tagging rules unavailable", "rules_read_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "tagging proceeds without custom rules"),
				logging.String(logging.FieldErrorHint, "check permissions on tagging_rules.md"),
			)
			rules = ""
		}
	}

	logger.Debug("requesting tags", logging.Int("chars", len([]rune(text))))
	resp, err := p.completer.Complete(ctx, inference.Request{
		System:      BuildSystemPrompt(rules),
		User:        BuildUserPrompt(text),
		MaxTokens:   p.opts.MaxTokens,
		Temperature: p.opts.Temperature,
		JSON:        true,
	})
	if err != nil {
		return Result{}, err
	}

	parsed, err := ParseResponse(resp.Text)
	if err != nil {
		return Result{}, err
	}
	tags := make([]string, 0, len(parsed.Tags))
	for _, tag := range parsed.Tags {
		if formatted := taxonomy.FormatTag(tag); formatted != "" {
			tags = append(tags, formatted)
		}
	}
	if len(tags) == 0 {
		return Result{}, fmt.Errorf("%w: no usable tags", ErrMalformedResponse)
	}
	return Result{
		Tags:        taxonomy.JoinTags(tags),
		Summary:     strings.TrimSpace(parsed.Summary),
		TotalTokens: resp.TotalTokens,
	}, nil
}
