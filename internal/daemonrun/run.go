package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bookshelf/internal/config"
	"bookshelf/internal/daemon"
	"bookshelf/internal/extract"
	"bookshelf/internal/inference"
	"bookshelf/internal/jobs"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
	"bookshelf/internal/tagging"
	"bookshelf/internal/taxonomy"
)

// checkpointInterval spaces WAL checkpoints while the daemon is idle or busy.
const checkpointInterval = 15 * time.Minute

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the bookshelf daemon and blocks until it receives SIGINT or
// SIGTERM or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("bookshelf-%s.log", runID))
	logHub := logging.NewStreamHub(4096)

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update bookshelf.log link: %v\n", err)
	}
	if pruned := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "bookshelf-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.ReportsDir(), Pattern: "scan_errors_*.txt", Keep: 5},
	); pruned > 0 {
		logger.Info("expired logs pruned", logging.Int("files", pruned))
	}
	pidPath := filepath.Join(cfg.Paths.LogDir, "bookshelf.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := library.Open(cfg)
	if err != nil {
		logger.Error("open library store", logging.Error(err))
		return err
	}

	service := inference.NewFromConfig(cfg, logger)
	rules := tagging.NewRulesFile(cfg.RulesPath(), logger)
	mapping := taxonomy.NewMappingFile(cfg.TaxonomyPath())
	pipeline := tagging.NewPipeline(
		extract.New(extract.OptionsFromConfig(cfg.Job)),
		service,
		rules,
		tagging.OptionsFromConfig(cfg),
		logger,
	)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:     store,
		Scan:      jobs.NewEngine(store, pipeline, mapping, jobs.OptionsFromConfig(cfg), logger),
		Taxonomy:  taxonomy.NewEngine(store, mapping, service, rules, taxonomy.OptionsFromConfig(cfg), logger),
		Rules:     rules,
		Inference: service,
		LogHub:    logHub,
	}, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	logConfigSnapshot(logger, cfg, service)
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the api_bind address"),
		)
		return err
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		if err := rules.Watch(groupCtx); err != nil {
			logging.WarnWithContext(logger, "tagging rules watcher stopped", "rules_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "edits made outside the API are picked up on the next read"),
			)
		}
		return nil
	})
	group.Go(func() error {
		ticker := time.NewTicker(checkpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if err := store.Checkpoint(groupCtx); err != nil && groupCtx.Err() == nil {
					logger.Warn("wal checkpoint failed", logging.Error(err))
				}
			}
		}
	})

	<-signalCtx.Done()
	logger.Info("bookshelf daemon shutting down")
	d.Stop()
	return group.Wait()
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "bookshelf.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, service *inference.Service) {
	if logger == nil || cfg == nil {
		return
	}
	active, err := service.Catalog().ActiveModel()
	if err != nil {
		active = ""
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_set", cfg.Paths.APIToken != ""),
		logging.String("inference_url", cfg.Inference.BaseURL),
		logging.String("active_model", active),
		logging.Any("context_sizes", cfg.Inference.ContextSizes),
		logging.Int("batch_size", cfg.Job.BatchSize),
		logging.Int("taxonomy_batch_size", cfg.Taxonomy.AIBatchSize),
	)
}
