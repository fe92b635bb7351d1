package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"bookshelf/internal/config"
	"bookshelf/internal/extract"
	"bookshelf/internal/inference"
	"bookshelf/internal/jobs"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
	"bookshelf/internal/progress"
	"bookshelf/internal/services"
	"bookshelf/internal/tagging"
	"bookshelf/internal/taxonomy"
)

// Dependencies are the services the daemon coordinates.
type Dependencies struct {
	Store     *library.Store
	Scan      *jobs.Engine
	Taxonomy  *taxonomy.Engine
	Rules     *tagging.RulesFile
	Inference *inference.Service
	LogHub    *logging.StreamHub
}

// Daemon coordinates the background jobs and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *library.Store
	scan      *jobs.Engine
	taxonomy  *taxonomy.Engine
	rules     *tagging.RulesFile
	inference *inference.Service
	logHub    *logging.StreamHub
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc

	syncMu     sync.Mutex
	syncStream *progress.Stream
	syncWG     sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Scan         jobs.Snapshot
	SyncActive   bool
	LibraryPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Scan == nil || deps.Taxonomy == nil {
		return nil, errors.New("daemon requires config, store, scan engine, and taxonomy engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     deps.Store,
		scan:      deps.Scan,
		taxonomy:  deps.Taxonomy,
		rules:     deps.Rules,
		inference: deps.Inference,
		logHub:    deps.LogHub,
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
		ctx:       ctx,
		cancel:    cancel,
	}
	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Addr returns the address the API listens on, or "" when it is not serving.
func (d *Daemon) Addr() string {
	if d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// Handler returns the HTTP API handler.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Start acquires the daemon lock. Jobs started afterwards run on ctx.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another bookshelf daemon instance is already running")
	}

	d.mu.Lock()
	d.cancel()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	if err := d.api.start(d.jobContext()); err != nil {
		d.cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("bookshelf daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels running jobs, waits for them to publish their final events,
// and releases the daemon lock. The item in flight when the scan is cancelled
// is left for the next run.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if stopping, _ := d.scan.Stop(); stopping {
		d.logger.Info("waiting for content scan to stop")
	}
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()
	d.scan.Wait()
	d.syncWG.Wait()
	d.api.stop()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("bookshelf daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.inference != nil {
		errs = append(errs, d.inference.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

func (d *Daemon) jobContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Scan:         d.scan.Status(),
		SyncActive:   d.SyncActive(),
		LibraryPath:  d.cfg.LibraryDBPath(),
		LockFilePath: d.lockPath,
	}
}

// StartScan launches a content scan on the daemon context.
func (d *Daemon) StartScan(targets []string) (*jobs.Run, error) {
	run, err := d.scan.Start(d.jobContext(), targets)
	if err != nil {
		return nil, err
	}
	d.logger.Info("content scan requested",
		logging.String("run_id", run.ID),
		logging.Bool("targeted", run.Targeted),
		logging.Int("targets", len(targets)),
	)
	return run, nil
}

// StopScan asks the running scan to stop at the next batch boundary.
func (d *Daemon) StopScan() (bool, string) {
	return d.scan.Stop()
}

// ScanStatus returns the content scan descriptor.
func (d *Daemon) ScanStatus() jobs.Snapshot {
	return d.scan.Status()
}

// SyncActive reports whether a taxonomy sync is running.
func (d *Daemon) SyncActive() bool {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()
	return d.syncStream != nil || d.taxonomy.Running()
}

// StartTaxonomySync launches a taxonomy sync and returns its event stream.
func (d *Daemon) StartTaxonomySync() (*progress.Stream, error) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()
	if d.syncStream != nil || d.taxonomy.Running() {
		return nil, taxonomy.ErrSyncActive
	}

	stream := progress.NewStream(0)
	d.syncStream = stream
	ctx := services.WithJob(d.jobContext(), "taxonomy")
	d.syncWG.Add(1)
	go func() {
		defer d.syncWG.Done()
		defer func() {
			stream.Close()
			d.syncMu.Lock()
			d.syncStream = nil
			d.syncMu.Unlock()
		}()
		if _, err := d.taxonomy.Sync(ctx, stream); errors.Is(err, taxonomy.ErrSyncActive) {
			stream.Publish(progress.TypeError, progress.Failure{Message: err.Error()})
		}
	}()
	return stream, nil
}

// ReEvaluateTag re-queues every item carrying tag.
func (d *Daemon) ReEvaluateTag(ctx context.Context, tag string) (int, error) {
	return d.taxonomy.ReEvaluate(ctx, tag)
}

// ApplyImplications applies implication rules from the rules file. The
// boolean result is false when no rules file exists.
func (d *Daemon) ApplyImplications(ctx context.Context) (int, []string, bool, error) {
	if d.rules == nil || !d.rules.Exists() {
		return 0, []string{}, false, nil
	}
	total, applied, err := d.taxonomy.ApplyImplications(ctx)
	return total, applied, true, err
}

// Rules returns the tagging rules markdown.
func (d *Daemon) Rules() (string, error) {
	if d.rules == nil {
		return "", nil
	}
	return d.rules.Rules()
}

// SaveRules replaces the tagging rules markdown.
func (d *Daemon) SaveRules(content string) error {
	if d.rules == nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "save rules", "rules file unavailable", nil)
	}
	if err := d.rules.Save(content); err != nil {
		return err
	}
	d.logger.Info("tagging rules updated", logging.Int("bytes", len(content)))
	return nil
}

// Mapping returns the learned taxonomy.
func (d *Daemon) Mapping() (taxonomy.Mapping, error) {
	return d.taxonomy.Mapping()
}

// ListBooks returns the items matching filter and the size of the library.
func (d *Daemon) ListBooks(ctx context.Context, filter library.Filter) ([]*library.Item, int, error) {
	items, err := d.store.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := d.store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// RegisterBook adds a document file to the library. The title defaults to
// the file name without its extension.
func (d *Daemon) RegisterBook(ctx context.Context, sourcePath string, meta library.Metadata) (*library.Item, bool, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, false, services.Wrap(services.ErrValidation, "daemon", "register book", "filepath is required", nil)
	}
	absPath, err := config.ExpandPath(trimmed)
	if err != nil {
		return nil, false, services.Wrap(services.ErrValidation, "daemon", "register book", "resolve path", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, services.Wrap(services.ErrNotFound, "daemon", "register book", absPath, nil)
		}
		return nil, false, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, false, services.Wrap(services.ErrValidation, "daemon", "register book",
			fmt.Sprintf("%s is a directory", absPath), nil)
	}
	if !extract.Supported(absPath) {
		return nil, false, services.Wrap(services.ErrValidation, "daemon", "register book",
			fmt.Sprintf("unsupported file extension %q", filepath.Ext(absPath)), nil)
	}
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	}
	item, created, err := d.store.Add(ctx, absPath, &meta)
	if err != nil {
		return nil, false, err
	}
	if created {
		d.logger.Info("book registered", logging.Int64(logging.FieldItemID, item.ID), logging.Item(absPath))
	}
	return item, created, nil
}

// UpdateBook edits a manually maintained field.
func (d *Daemon) UpdateBook(ctx context.Context, id int64, field, value string) error {
	if id <= 0 || strings.TrimSpace(field) == "" {
		return services.Wrap(services.ErrValidation, "daemon", "update book", "id, field, and value are required", nil)
	}
	return d.store.UpdateManualMetadata(ctx, id, field, value)
}

// ResetFailed re-queues items scanned without tags.
func (d *Daemon) ResetFailed(ctx context.Context) (int, error) {
	count, err := d.store.ResetFailed(ctx)
	if err != nil {
		return 0, err
	}
	d.logger.Info("failed scans reset", logging.Int("items", count))
	return count, nil
}

// ExportErrors writes a report of every failed or skipped item. It returns
// the number of items and the report path, which is empty when there is
// nothing to report.
func (d *Daemon) ExportErrors(ctx context.Context) (int, string, error) {
	items, err := d.store.FailedItems(ctx)
	if err != nil {
		return 0, "", err
	}
	if len(items) == 0 {
		return 0, "", nil
	}
	path, err := library.WriteErrorReport(items, d.cfg.ReportsDir(), time.Now())
	if err != nil {
		return 0, "", err
	}
	d.logger.Info("scan error report written", logging.Int("items", len(items)), logging.String("path", path))
	return len(items), path, nil
}

// Models lists local model files and the active selection.
func (d *Daemon) Models() ([]inference.ModelInfo, string, error) {
	if d.inference == nil {
		return nil, "", services.Wrap(services.ErrConfiguration, "daemon", "list models", "inference unavailable", nil)
	}
	catalog := d.inference.Catalog()
	models, err := catalog.Scan()
	if err != nil {
		return nil, "", err
	}
	active, _ := catalog.ActiveModel()
	return models, active, nil
}

// SelectModel makes path the active model. It refuses while a job is running
// so a scan never switches models mid-run.
func (d *Daemon) SelectModel(path string) (string, error) {
	if d.inference == nil {
		return "", services.Wrap(services.ErrConfiguration, "daemon", "select model", "inference unavailable", nil)
	}
	if d.scan.Status().Active || d.SyncActive() {
		return "", services.Wrap(services.ErrConflict, "daemon", "select model", "a job is running", nil)
	}
	selected, err := d.inference.Catalog().Select(path)
	if err != nil {
		return "", err
	}
	d.logger.Info("active model selected", logging.String("model", selected))
	return selected, nil
}

// Health describes daemon and model readiness.
type Health struct {
	ModelPath   string
	ModelStatus string
	ModelDetail string
	ContextSize int
}

// Health reports whether a model is selected and present on disk.
func (d *Daemon) Health() Health {
	h := Health{ModelStatus: "offline", ModelDetail: "Local (No Model Selected)"}
	if d.inference == nil {
		return h
	}
	path, err := d.inference.Catalog().ActiveModel()
	if err != nil {
		return h
	}
	h.ModelPath = path
	if _, statErr := os.Stat(path); statErr != nil {
		h.ModelDetail = "Local (Model Missing)"
		return h
	}
	h.ModelStatus = "online"
	h.ModelDetail = "Local (Ready)"
	h.ContextSize = d.inference.Gateway().ActiveContextSize()
	return h
}

// LogStream returns the in-memory log hub.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}
