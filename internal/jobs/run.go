package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"bookshelf/internal/inference"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
	"bookshelf/internal/metrics"
	"bookshelf/internal/progress"
	"bookshelf/internal/services"
	"bookshelf/internal/tagging"
)

// supervise is the run goroutine. Its recover boundary turns a panic that
// escaped the per-item boundary into a ProcessCrash; the complete event and
// the release of the active flag happen on every exit path.
func (e *Engine) supervise(ctx context.Context, run *Run, targets []string) {
	ctx = services.WithJob(ctx, "scan")
	logger := logging.WithContext(ctx, e.logger).With(logging.String("run_id", run.ID))

	defer e.wg.Done()
	defer e.finish(logger, run)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		crash := &CrashError{Scope: ScopeProcess, Path: e.inFlightPath(), Value: r, Stack: debug.Stack()}
		e.recordProcessCrash(ctx, logger, crash)
		run.err = crash
		run.stream.Publish(progress.TypeError, progress.Failure{Message: crash.Error()})
	}()

	var err error
	if run.Targeted {
		err = e.executeTargeted(ctx, logger, run, targets)
	} else {
		err = e.executeDefault(ctx, logger, run)
	}
	if err != nil {
		run.err = err
		logging.ErrorWithContext(logger, "scan aborted", "scan_aborted",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, errorHint(err)),
		)
		run.stream.Publish(progress.TypeError, progress.Failure{Message: err.Error()})
	}
}

func (e *Engine) finish(logger *slog.Logger, run *Run) {
	snap := e.Status()
	e.release()
	logger.Info("scan finished",
		logging.Int("processed", snap.Processed),
		logging.Int("total", snap.Total),
		logging.Int("tokens", snap.TotalTokens),
		logging.Duration("elapsed", time.Since(snap.StartTime)),
		logging.Bool("stopped", snap.Stopping),
	)
	run.stream.Publish(progress.TypeComplete, nil)
	run.stream.Close()
	close(run.done)
}

func (e *Engine) publishStart(run *Run, total int) {
	run.stream.Publish(progress.TypeStart, progress.Start{Total: &total})
}

// atBoundary reports whether the loop must end before the next batch.
func (e *Engine) atBoundary(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	return e.stopRequested(), nil
}

func (e *Engine) executeTargeted(ctx context.Context, logger *slog.Logger, run *Run, targets []string) error {
	pending, err := e.store.FindByKeys(ctx, targets, e.opts.ChunkSize)
	if err != nil {
		return err
	}
	e.setTotal(len(pending))
	e.publishStart(run, len(pending))
	logger.Info("scan started",
		logging.String("mode", "targeted"),
		logging.Int("requested", len(targets)),
		logging.Int("total", len(pending)),
	)

	for start := 0; start < len(pending); start += e.opts.BatchSize {
		if stop, err := e.atBoundary(ctx); stop {
			return err
		}
		batch := pending[start:min(start+e.opts.BatchSize, len(pending))]
		if err := e.processBatch(ctx, logger, run, batch); err != nil {
			return err
		}
	}
	return nil
}

// executeDefault keeps pulling unprocessed items until the store runs dry.
// Items already handled in this run are never processed twice: if every item
// in a batch was seen before, their outcomes could not be written and the
// loop ends instead of spinning.
func (e *Engine) executeDefault(ctx context.Context, logger *slog.Logger, run *Run) error {
	total, err := e.store.CountUnprocessed(ctx)
	if err != nil {
		return err
	}
	e.setTotal(total)
	e.publishStart(run, total)
	logger.Info("scan started", logging.String("mode", "full"), logging.Int("total", total))

	seen := make(map[string]struct{})
	for {
		if stop, err := e.atBoundary(ctx); stop {
			return err
		}
		batch, err := e.store.FindUnprocessed(ctx, e.opts.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		fresh := make([]library.PendingItem, 0, len(batch))
		for _, item := range batch {
			if _, dup := seen[item.Path]; dup {
				continue
			}
			seen[item.Path] = struct{}{}
			fresh = append(fresh, item)
		}
		if len(fresh) == 0 {
			logging.WarnWithContext(logger, "scan made no progress; ending run", "scan_stalled",
				logging.Int("batch", len(batch)),
				logging.String(logging.FieldImpact, "items whose outcome could not be stored remain unprocessed"),
				logging.String(logging.FieldErrorHint, "check library database access"),
			)
			return nil
		}
		if err := e.processBatch(ctx, logger, run, fresh); err != nil {
			return err
		}
	}
}

func (e *Engine) processBatch(ctx context.Context, logger *slog.Logger, run *Run, batch []library.PendingItem) error {
	logger.Debug("processing batch", logging.Int("size", len(batch)))
	for _, item := range batch {
		if err := e.processItem(ctx, logger, run, item); err != nil {
			return err
		}
	}
	return nil
}

// processItem tags one item and stores the outcome. Only cancellation and
// engine-fatal inference errors are returned; they leave the item untouched.
func (e *Engine) processItem(ctx context.Context, logger *slog.Logger, run *Run, item library.PendingItem) error {
	label := filepath.Base(item.Path)
	e.setCurrent(item.Path, label)
	itemLogger := logger.With(logging.Item(item.Path))
	itemLogger.Debug("tagging item")
	started := time.Now()

	result, err := e.tagSafely(ctx, item.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if inference.IsEngineFatal(err) {
			return fmt.Errorf("scan aborted at %s: %w", label, err)
		}
	}

	out := e.record(ctx, itemLogger, item.Path, result, err)
	metrics.ScanItems.WithLabelValues(out.outcome).Inc()
	metrics.ScanItemDuration.WithLabelValues(out.outcome).Observe(time.Since(started).Seconds())
	if out.tokens > 0 {
		metrics.ScanTokens.Add(float64(out.tokens))
	}
	run.stream.Publish(progress.TypeProgress, e.itemDone(out.tokens, out.tags))
	return nil
}

// tagSafely is the per-item recover boundary.
func (e *Engine) tagSafely(ctx context.Context, path string) (result tagging.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CrashError{Scope: ScopeItem, Path: path, Value: r, Stack: debug.Stack()}
		}
	}()
	return e.tagger.Process(ctx, path)
}

func errorHint(err error) string {
	switch {
	case inference.IsEngineFatal(err):
		return "select a model with 'bookshelf models use' and check the inference server"
	case errors.Is(err, context.Canceled):
		return "the scan was interrupted; start it again to resume"
	default:
		return "check library database access"
	}
}
