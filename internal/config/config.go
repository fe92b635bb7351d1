package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Inference contains settings for the local model server and model selection.
type Inference struct {
	BaseURL          string   `toml:"base_url"`
	APIKey           string   `toml:"api_key"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
	ContextSizes     []int    `toml:"context_sizes"`
	ModelsDir        string   `toml:"models_dir"`
	ModelSearchPaths []string `toml:"model_search_paths"`
	ActiveModel      string   `toml:"active_model"`
}

// Job contains settings for the content scan loop and text extraction.
type Job struct {
	BatchSize             int `toml:"batch_size"`
	TargetChunkSize       int `toml:"target_chunk_size"`
	MaxContentChars       int `toml:"max_content_chars"`
	EpubSections          int `toml:"epub_sections"`
	ExtractTimeoutSeconds int `toml:"extract_timeout_seconds"`
	MinTextLength         int `toml:"min_text_length"`
}

// Tagging contains generation settings for per-item tagging.
type Tagging struct {
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
}

// Taxonomy contains settings for adaptive category learning.
type Taxonomy struct {
	AIBatchSize        int     `toml:"ai_batch_size"`
	ApplyProgressEvery int     `toml:"apply_progress_every"`
	MaxTokens          int     `toml:"max_tokens"`
	Temperature        float64 `toml:"temperature"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for bookshelf.
//
// Configuration sections by subsystem:
//   - Paths: data directory, logs and API bind address
//   - Inference: local model server connection, context ladder and model catalog
//   - Job: content scan batching and extraction bounds
//   - Tagging: per-item generation settings
//   - Taxonomy: adaptive category learning settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Inference Inference `toml:"inference"`
	Job       Job       `toml:"job"`
	Tagging   Tagging   `toml:"tagging"`
	Taxonomy  Taxonomy  `toml:"taxonomy"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/bookshelf/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bookshelf.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, log and models directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Inference.ModelsDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LibraryDBPath returns the SQLite database location.
func (c *Config) LibraryDBPath() string {
	return filepath.Join(c.Paths.DataDir, "library.db")
}

// TaxonomyPath returns the persistent tag to category mapping file.
func (c *Config) TaxonomyPath() string {
	return filepath.Join(c.Paths.DataDir, "taxonomy.json")
}

// RulesPath returns the user-authored tagging rules file.
func (c *Config) RulesPath() string {
	return filepath.Join(c.Paths.DataDir, "tagging_rules.md")
}

// ModelStatePath returns the file persisting the model catalog selection.
func (c *Config) ModelStatePath() string {
	return filepath.Join(c.Paths.DataDir, "llm_config.json")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "bookshelfd.lock")
}

// ReportsDir returns the directory receiving scan error reports.
func (c *Config) ReportsDir() string {
	return c.Paths.LogDir
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
