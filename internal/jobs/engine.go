package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookshelf/internal/config"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
	"bookshelf/internal/metrics"
	"bookshelf/internal/progress"
	"bookshelf/internal/tagging"
	"bookshelf/internal/taxonomy"
)

const initialCurrentFile = "Initializing..."

// Store is the slice of the library store the scan needs.
type Store interface {
	FindUnprocessed(ctx context.Context, limit int) ([]library.PendingItem, error)
	CountUnprocessed(ctx context.Context) (int, error)
	FindByKeys(ctx context.Context, keys []string, chunkSize int) ([]library.PendingItem, error)
	UpdateContent(ctx context.Context, path, tags, summary string) error
	UpdateMasterTags(ctx context.Context, path, masterTags string) error
}

// Tagger produces tags and a summary for one file.
type Tagger interface {
	Process(ctx context.Context, path string) (tagging.Result, error)
}

// MappingSource supplies the current taxonomy mapping.
type MappingSource interface {
	Load() (taxonomy.Mapping, error)
}

// Options size the scan batches.
type Options struct {
	BatchSize int
	ChunkSize int
}

// OptionsFromConfig maps configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize: cfg.Job.BatchSize,
		ChunkSize: cfg.Job.TargetChunkSize,
	}
}

// Snapshot is a read-only view of the job descriptor.
type Snapshot struct {
	Active      bool
	Stopping    bool
	RunID       string
	Processed   int
	Total       int
	CurrentFile string
	StartTime   time.Time
	TotalTokens int
}

// Run is one scan execution.
type Run struct {
	ID       string
	Targeted bool

	stream *progress.Stream
	done   chan struct{}
	err    error
}

// Events delivers the run's events from the start until the run completes or
// ctx ends.
func (r *Run) Events(ctx context.Context) <-chan progress.Event {
	return r.stream.Events(ctx)
}

// Stream exposes the underlying event buffer.
func (r *Run) Stream() *progress.Stream {
	return r.stream
}

// Done is closed after the complete event has been published.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that aborted the run, if any. Valid after Done.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Engine is the single content scan job.
type Engine struct {
	store   Store
	tagger  Tagger
	mapping MappingSource
	opts    Options
	logger  *slog.Logger

	mu          sync.RWMutex
	active      bool
	stopping    bool
	run         *Run
	processed   int
	total       int
	currentFile string
	currentPath string
	startTime   time.Time
	totalTokens int

	wg sync.WaitGroup
}

// NewEngine wires the scan engine.
func NewEngine(store Store, tagger Tagger, mapping MappingSource, opts Options, logger *slog.Logger) *Engine {
	cfg := config.Default()
	defaults := OptionsFromConfig(&cfg)
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	return &Engine{
		store:   store,
		tagger:  tagger,
		mapping: mapping,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "scan"),
	}
}

// Start launches a scan. A non-nil targets slice limits the scan to those item
// keys that still need content, so an empty one completes with nothing to do;
// nil works through every unprocessed item.
// The run keeps going after the caller stops reading events; it ends when the
// work runs out, Stop is honoured, or ctx is cancelled.
func (e *Engine) Start(ctx context.Context, targets []string) (*Run, error) {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return nil, ErrJobActive
	}
	run := &Run{
		ID:       uuid.NewString(),
		Targeted: targets != nil,
		stream:   progress.NewStream(0),
		done:     make(chan struct{}),
	}
	e.active = true
	e.stopping = false
	e.run = run
	e.processed = 0
	e.total = 0
	e.currentFile = initialCurrentFile
	e.currentPath = ""
	e.startTime = time.Now()
	e.totalTokens = 0
	e.wg.Add(1)
	e.mu.Unlock()

	metrics.ScanActive.Set(1)
	var keys []string
	if run.Targeted {
		keys = append(make([]string, 0, len(targets)), targets...)
	}
	go e.supervise(ctx, run, keys)
	return run, nil
}

// Stop asks the running scan to finish at the next batch boundary.
func (e *Engine) Stop() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return false, "No scan active"
	}
	if !e.stopping {
		e.stopping = true
		e.logger.Info("scan stop requested", logging.String("run_id", e.run.ID))
	}
	return true, "Scan stopping..."
}

// Status returns a snapshot of the job descriptor.
func (e *Engine) Status() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := Snapshot{
		Active:      e.active,
		Stopping:    e.stopping,
		Processed:   e.processed,
		Total:       e.total,
		CurrentFile: e.currentFile,
		StartTime:   e.startTime,
		TotalTokens: e.totalTokens,
	}
	if e.run != nil {
		snap.RunID = e.run.ID
	}
	return snap
}

// Current returns the active run, or nil.
func (e *Engine) Current() *Run {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.active {
		return nil
	}
	return e.run
}

// Wait blocks until the running scan, if any, has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) stopRequested() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopping
}

func (e *Engine) setTotal(total int) {
	e.mu.Lock()
	e.total = total
	e.mu.Unlock()
}

func (e *Engine) setCurrent(path, label string) {
	e.mu.Lock()
	e.currentPath = path
	e.currentFile = label
	e.mu.Unlock()
}

func (e *Engine) inFlightPath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentPath
}

// itemDone records one processed item and returns the progress payload.
func (e *Engine) itemDone(tokens int, tags string) progress.ItemProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processed++
	if e.processed > e.total {
		e.total = e.processed
	}
	e.totalTokens += tokens
	e.currentPath = ""
	return progress.ItemProgress{
		Processed:   e.processed,
		Total:       e.total,
		Current:     e.currentFile,
		StartTime:   e.startTime.UnixMilli(),
		TotalTokens: e.totalTokens,
		Tags:        tags,
	}
}

func (e *Engine) release() {
	e.mu.Lock()
	e.active = false
	e.stopping = false
	e.currentFile = ""
	e.currentPath = ""
	e.mu.Unlock()
	metrics.ScanActive.Set(0)
}
