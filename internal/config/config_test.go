package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"

	"bookshelf/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BOOKSHELF_INFERENCE_API_KEY", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "bookshelf")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.LogDir != filepath.Join(wantData, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Inference.ModelsDir != filepath.Join(wantData, "models") {
		t.Fatalf("unexpected models dir: %q", cfg.Inference.ModelsDir)
	}
	if diff := cmp.Diff([]string{cfg.Inference.ModelsDir}, cfg.Inference.ModelSearchPaths); diff != "" {
		t.Fatalf("model search paths mismatch (-want +got):\n%s", diff)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if diff := cmp.Diff([]int{8192, 4096, 2048}, cfg.Inference.ContextSizes); diff != "" {
		t.Fatalf("context ladder mismatch (-want +got):\n%s", diff)
	}
	if cfg.Job.BatchSize != 50 || cfg.Job.TargetChunkSize != 900 {
		t.Fatalf("unexpected job batching: %+v", cfg.Job)
	}
	if cfg.Tagging.MaxTokens != 500 || cfg.Tagging.Temperature != 0.3 {
		t.Fatalf("unexpected tagging settings: %+v", cfg.Tagging)
	}
	if cfg.Taxonomy.AIBatchSize != 500 || cfg.Taxonomy.ApplyProgressEvery != 50 {
		t.Fatalf("unexpected taxonomy settings: %+v", cfg.Taxonomy)
	}
	if cfg.LibraryDBPath() != filepath.Join(wantData, "library.db") {
		t.Fatalf("unexpected db path: %q", cfg.LibraryDBPath())
	}
	if cfg.ModelStatePath() != filepath.Join(wantData, "llm_config.json") {
		t.Fatalf("unexpected model state path: %q", cfg.ModelStatePath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	configPath := filepath.Join(tempDir, "bookshelf.toml")

	custom := struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Inference struct {
			ModelSearchPaths []string `toml:"model_search_paths"`
			ContextSizes     []int    `toml:"context_sizes"`
		} `toml:"inference"`
		Job struct {
			BatchSize int `toml:"batch_size"`
		} `toml:"job"`
	}{}
	custom.Paths.DataDir = "~/books-data"
	custom.Inference.ModelSearchPaths = []string{"~/gguf", "~/gguf"}
	custom.Inference.ContextSizes = []int{4096, 1024}
	custom.Job.BatchSize = 10

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be loaded, got %q exists=%v", resolved, exists)
	}
	wantData := filepath.Join(tempDir, "books-data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	want := []string{filepath.Join(wantData, "models"), filepath.Join(tempDir, "gguf")}
	if diff := cmp.Diff(want, cfg.Inference.ModelSearchPaths); diff != "" {
		t.Fatalf("model search paths mismatch (-want +got):\n%s", diff)
	}
	if cfg.Job.BatchSize != 10 {
		t.Fatalf("expected batch size override, got %d", cfg.Job.BatchSize)
	}
	if cfg.Job.MaxContentChars != 5000 {
		t.Fatalf("expected default max content chars, got %d", cfg.Job.MaxContentChars)
	}
}

func TestEnvVarSuppliesInferenceKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BOOKSHELF_INFERENCE_API_KEY", "  secret  ")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Inference.APIKey != "secret" {
		t.Fatalf("expected trimmed env key, got %q", cfg.Inference.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[inference]") {
		t.Fatalf("sample config missing inference section:\n%s", contents)
	}

	cfg := config.Default()
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Job.BatchSize != 50 {
		t.Fatalf("unexpected sample batch size: %d", cfg.Job.BatchSize)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "empty data dir",
			mutate: func(c *config.Config) { c.Paths.DataDir = "" },
			want:   "paths.data_dir",
		},
		{
			name:   "increasing ladder",
			mutate: func(c *config.Config) { c.Inference.ContextSizes = []int{2048, 4096} },
			want:   "strictly decreasing",
		},
		{
			name:   "zero batch",
			mutate: func(c *config.Config) { c.Job.BatchSize = 0 },
			want:   "job.batch_size",
		},
		{
			name:   "chunk above sqlite limit",
			mutate: func(c *config.Config) { c.Job.TargetChunkSize = 1200 },
			want:   "job.target_chunk_size",
		},
		{
			name:   "unknown log format",
			mutate: func(c *config.Config) { c.Logging.Format = "xml" },
			want:   "logging.format",
		},
		{
			name:   "temperature out of range",
			mutate: func(c *config.Config) { c.Tagging.Temperature = 3 },
			want:   "tagging.temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.DataDir = t.TempDir()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "data", "logs")
	cfg.Inference.ModelsDir = filepath.Join(base, "models")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Inference.ModelsDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
