package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeInference(); err != nil {
		return err
	}
	c.normalizeJob()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("BOOKSHELF_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeInference() error {
	var err error
	c.Inference.BaseURL = strings.TrimSpace(c.Inference.BaseURL)
	if c.Inference.BaseURL == "" {
		c.Inference.BaseURL = defaultInferenceBaseURL
	}
	c.Inference.APIKey = strings.TrimSpace(c.Inference.APIKey)
	if c.Inference.APIKey == "" {
		if value, ok := os.LookupEnv("BOOKSHELF_INFERENCE_API_KEY"); ok {
			c.Inference.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Inference.TimeoutSeconds <= 0 {
		c.Inference.TimeoutSeconds = defaultInferenceTimeout
	}
	if len(c.Inference.ContextSizes) == 0 {
		c.Inference.ContextSizes = DefaultContextSizes()
	}
	if strings.TrimSpace(c.Inference.ModelsDir) == "" {
		c.Inference.ModelsDir = filepath.Join(c.Paths.DataDir, "models")
	}
	if c.Inference.ModelsDir, err = expandPath(c.Inference.ModelsDir); err != nil {
		return fmt.Errorf("inference.models_dir: %w", err)
	}

	paths := make([]string, 0, len(c.Inference.ModelSearchPaths)+1)
	seen := make(map[string]struct{}, len(c.Inference.ModelSearchPaths)+1)
	for _, candidate := range append([]string{c.Inference.ModelsDir}, c.Inference.ModelSearchPaths...) {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(candidate))
		if err != nil {
			return fmt.Errorf("inference.model_search_paths: %w", err)
		}
		if _, ok := seen[expanded]; ok {
			continue
		}
		seen[expanded] = struct{}{}
		paths = append(paths, expanded)
	}
	c.Inference.ModelSearchPaths = paths

	if strings.TrimSpace(c.Inference.ActiveModel) != "" {
		if c.Inference.ActiveModel, err = expandPath(strings.TrimSpace(c.Inference.ActiveModel)); err != nil {
			return fmt.Errorf("inference.active_model: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeJob() {
	if c.Job.BatchSize <= 0 {
		c.Job.BatchSize = defaultBatchSize
	}
	if c.Job.TargetChunkSize <= 0 {
		c.Job.TargetChunkSize = defaultTargetChunkSize
	}
	if c.Job.MaxContentChars <= 0 {
		c.Job.MaxContentChars = defaultMaxContentChars
	}
	if c.Job.EpubSections <= 0 {
		c.Job.EpubSections = defaultEpubSections
	}
	if c.Job.ExtractTimeoutSeconds <= 0 {
		c.Job.ExtractTimeoutSeconds = defaultExtractTimeoutSeconds
	}
	if c.Job.MinTextLength <= 0 {
		c.Job.MinTextLength = defaultMinTextLength
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
