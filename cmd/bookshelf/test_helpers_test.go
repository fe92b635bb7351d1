package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookshelf/internal/config"
	"bookshelf/internal/daemon"
	"bookshelf/internal/inference"
	"bookshelf/internal/jobs"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
	"bookshelf/internal/tagging"
	"bookshelf/internal/taxonomy"
	"bookshelf/internal/testsupport"
)

type taggerFunc func(ctx context.Context, path string) (tagging.Result, error)

func (f taggerFunc) Process(ctx context.Context, path string) (tagging.Result, error) {
	return f(ctx, path)
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *library.Store
	hub        *logging.StreamHub
	daemon     *daemon.Daemon
	server     *httptest.Server
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("NO_COLOR", "1")

	configPath := filepath.Join(homeDir, ".config", "bookshelf", "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	tagger := taggerFunc(func(context.Context, string) (tagging.Result, error) {
		return tagging.Result{Tags: "Science-Fiction", Summary: "A summary.", TotalTokens: 10}, nil
	})
	mapping := taxonomy.NewMappingFile(cfg.TaxonomyPath())
	rules := tagging.NewRulesFile(cfg.RulesPath(), nil)
	service := inference.NewService(
		inference.NewGateway(&testsupport.FakeBackend{}, cfg.Inference.ContextSizes, nil),
		inference.NewCatalog(cfg),
	)
	hub := logging.NewStreamHub(64)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:     store,
		Scan:      jobs.NewEngine(store, tagger, mapping, jobs.OptionsFromConfig(cfg), nil),
		Taxonomy:  taxonomy.NewEngine(store, mapping, service, rules, taxonomy.OptionsFromConfig(cfg), nil),
		Rules:     rules,
		Inference: service,
		LogHub:    hub,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		hub:        hub,
		daemon:     d,
		server:     server,
		configPath: configPath,
		baseDir:    base,
	}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, env.server.URL, env.configPath)
}

func (env *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := env.run(t, args...)
	if err != nil {
		t.Fatalf("bookshelf %s: %v (stderr %q)", strings.Join(args, " "), err, stderr)
	}
	return stdout
}

func (env *cliTestEnv) book(t *testing.T, name, content string) string {
	t.Helper()
	return testsupport.WriteText(t, filepath.Join(env.baseDir, "books", name), content)
}

func runCLI(t *testing.T, args []string, apiURL, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiURL != "" {
		flags = append(flags, "--api", apiURL)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\napi_token = %q\n\n[inference]\nmodels_dir = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Paths.APIToken,
		cfg.Inference.ModelsDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
