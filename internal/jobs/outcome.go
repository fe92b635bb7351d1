package jobs

import (
	"context"
	"errors"
	"log/slog"

	"bookshelf/internal/extract"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
	"bookshelf/internal/metrics"
	"bookshelf/internal/tagging"
	"bookshelf/internal/taxonomy"
)

// Sentinel tag/summary pairs written in place of real content. Items carrying
// them are skipped by full scans until reset.
const (
	ScanFailedTags     = library.ErrorTagPrefix + " Scan Failed"
	CrashedTags        = library.ErrorTagPrefix + " Crashed Server"
	NoContentTags      = library.SkippedTagPrefix + " No Content"
	NoContentSummary   = "Insufficient text extracted from file."
	ItemFailureSummary = "AI connection or processing failed."
	crashSummaryPrefix = "Crash: "
)

type itemOutcome struct {
	outcome string
	tags    string
	tokens  int
}

// record stores the outcome of one item. Writes are detached from ctx so a
// finished item is persisted even while the daemon shuts down.
func (e *Engine) record(ctx context.Context, logger *slog.Logger, path string, result tagging.Result, procErr error) itemOutcome {
	ctx = context.WithoutCancel(ctx)

	var crash *CrashError
	switch {
	case procErr == nil:
		if err := e.store.UpdateContent(ctx, path, result.Tags, result.Summary); err != nil {
			logging.ErrorWithContext(logger, "failed to store item tags", "item_store_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check library database access"),
			)
			e.writeSentinel(ctx, logger, path, ScanFailedTags, err.Error())
			return itemOutcome{outcome: metrics.OutcomeFailed, tags: ScanFailedTags}
		}
		e.writeMasterTags(ctx, logger, path, result.Tags)
		logger.Info("item tagged",
			logging.String("tags", result.Tags),
			logging.Int("tokens", result.TotalTokens),
		)
		return itemOutcome{outcome: metrics.OutcomeTagged, tags: result.Tags, tokens: result.TotalTokens}

	case errors.Is(procErr, tagging.ErrNoContent):
		logger.Info("item skipped", logging.String("reason", "no content"))
		e.writeSentinel(ctx, logger, path, NoContentTags, NoContentSummary)
		return itemOutcome{outcome: metrics.OutcomeSkipped, tags: NoContentTags}

	case errors.As(procErr, &crash):
		logging.ErrorWithContext(logger, "item crashed", "item_crash",
			logging.Error(crash),
			logging.String("stack", string(crash.Stack)),
			logging.String(logging.FieldErrorHint, "inspect the file; it is excluded from full scans until reset"),
		)
		e.writeSentinel(ctx, logger, path, ScanFailedTags, crash.Message())
		return itemOutcome{outcome: metrics.OutcomeCrashed, tags: ScanFailedTags}

	default:
		tags := library.ErrorTagPrefix + " " + itemErrorMessage(procErr)
		logging.WarnWithContext(logger, "item failed", "item_failed",
			logging.Error(procErr),
			logging.String(logging.FieldImpact, "item excluded from full scans until reset"),
			logging.String(logging.FieldErrorHint, "run 'bookshelf library export-errors' for a report"),
		)
		e.writeSentinel(ctx, logger, path, tags, ItemFailureSummary)
		return itemOutcome{outcome: metrics.OutcomeFailed, tags: tags}
	}
}

func (e *Engine) writeSentinel(ctx context.Context, logger *slog.Logger, path, tags, summary string) {
	if err := e.store.UpdateContent(ctx, path, tags, summary); err != nil {
		logging.ErrorWithContext(logger, "failed to record item outcome", "item_outcome_store_failed",
			logging.Error(err),
			logging.String("tags", tags),
			logging.String(logging.FieldErrorHint, "check library database access"),
		)
	}
}

// writeMasterTags derives master tags from the current mapping. Failures are
// logged only; the next taxonomy sync recomputes every item.
func (e *Engine) writeMasterTags(ctx context.Context, logger *slog.Logger, path, tags string) {
	if e.mapping == nil {
		return
	}
	mapping, err := e.mapping.Load()
	if err != nil {
		logging.WarnWithContext(logger, "taxonomy mapping unavailable", "taxonomy_load_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "master tags are filled in by the next taxonomy sync"),
		)
		return
	}
	master := taxonomy.ComputeMasterTags(tags, mapping)
	if err := e.store.UpdateMasterTags(ctx, path, master); err != nil {
		logger.Warn("failed to store master tags", logging.Error(err))
	}
}

// recordProcessCrash marks the in-flight item, if any, as having crashed the
// run. It never panics itself.
func (e *Engine) recordProcessCrash(ctx context.Context, logger *slog.Logger, crash *CrashError) {
	logging.ErrorWithContext(logger, "scan crashed", "scan_process_crash",
		logging.Error(crash),
		logging.Item(crash.Path),
		logging.String("stack", string(crash.Stack)),
		logging.Alert("process_crash"),
	)
	metrics.ScanItems.WithLabelValues(metrics.OutcomeCrashed).Inc()
	if crash.Path == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("failed to mark crashed item", logging.Any("panic", r))
		}
	}()
	if err := e.store.UpdateContent(context.WithoutCancel(ctx), crash.Path, CrashedTags, crashSummaryPrefix+crash.Message()); err != nil {
		logger.Error("failed to mark crashed item", logging.Error(err))
	}
}

// itemErrorMessage renders a pipeline failure for the item's error tag.
func itemErrorMessage(err error) string {
	var extractErr *extract.Error
	switch {
	case errors.As(err, &extractErr):
		return extractErr.Error()
	case errors.Is(err, tagging.ErrMalformedResponse):
		return "AI Response Malformed"
	default:
		return "Local AI Error: " + err.Error()
	}
}
