package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable for the daemon and CLI.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if err := c.validateInference(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"job.batch_size":                c.Job.BatchSize,
		"job.target_chunk_size":         c.Job.TargetChunkSize,
		"job.max_content_chars":         c.Job.MaxContentChars,
		"job.epub_sections":             c.Job.EpubSections,
		"job.extract_timeout_seconds":   c.Job.ExtractTimeoutSeconds,
		"job.min_text_length":           c.Job.MinTextLength,
		"tagging.max_tokens":            c.Tagging.MaxTokens,
		"taxonomy.ai_batch_size":        c.Taxonomy.AIBatchSize,
		"taxonomy.apply_progress_every": c.Taxonomy.ApplyProgressEvery,
		"taxonomy.max_tokens":           c.Taxonomy.MaxTokens,
	}); err != nil {
		return err
	}
	if c.Job.TargetChunkSize > 999 {
		return errors.New("job.target_chunk_size must not exceed 999 (sqlite parameter limit)")
	}
	if c.Tagging.Temperature < 0 || c.Tagging.Temperature > 2 {
		return errors.New("tagging.temperature must be between 0 and 2")
	}
	if c.Taxonomy.Temperature < 0 || c.Taxonomy.Temperature > 2 {
		return errors.New("taxonomy.temperature must be between 0 and 2")
	}
	return c.validateLogging()
}

func (c *Config) validateInference() error {
	if strings.TrimSpace(c.Inference.BaseURL) == "" {
		return errors.New("inference.base_url must be set")
	}
	if len(c.Inference.ContextSizes) == 0 {
		return errors.New("inference.context_sizes must list at least one size")
	}
	for i, size := range c.Inference.ContextSizes {
		if size <= 0 {
			return fmt.Errorf("inference.context_sizes[%d] must be positive", i)
		}
		if i > 0 && size >= c.Inference.ContextSizes[i-1] {
			return errors.New("inference.context_sizes must be strictly decreasing")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
