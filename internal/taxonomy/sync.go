package taxonomy

import (
	"context"
	"fmt"
	"time"

	"bookshelf/internal/library"
	"bookshelf/internal/logging"
	"bookshelf/internal/metrics"
	"bookshelf/internal/progress"
)

// Sync learns categories for every corpus tag missing from the mapping and
// then re-derives master tags for the whole library. Rule-classified tags are
// persisted before learning starts and each model batch is persisted before
// the next one runs, so an interrupted sync resumes where it stopped. It
// returns the number of items whose master tags changed.
func (e *Engine) Sync(ctx context.Context, sink progress.Sink) (int, error) {
	if !e.running.CompareAndSwap(false, true) {
		return 0, ErrSyncActive
	}
	defer e.running.Store(false)
	if sink == nil {
		sink = progress.Discard{}
	}

	started := time.Now()
	logger := logging.WithContext(ctx, e.logger)
	sink.Publish(progress.TypeStart, progress.Start{})

	count, err := e.sync(ctx, sink)
	if err != nil {
		logging.ErrorWithContext(logger, "taxonomy sync failed", "taxonomy_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "learned batches are kept; run the sync again"),
		)
		sink.Publish(progress.TypeError, progress.Failure{Message: err.Error()})
		return 0, err
	}
	logger.Info("taxonomy sync complete",
		logging.Int("updated", count),
		logging.Duration("elapsed", time.Since(started)),
	)
	sink.Publish(progress.TypeComplete, progress.Completed{Count: count})
	return count, nil
}

func (e *Engine) sync(ctx context.Context, sink progress.Sink) (int, error) {
	logger := logging.WithContext(ctx, e.logger)

	tags, err := e.store.DistinctTags(ctx)
	if err != nil {
		return 0, err
	}
	if len(tags) == 0 {
		logger.Info("no tags in library")
		return 0, nil
	}

	mapping, err := e.mapping.Load()
	if err != nil {
		return 0, err
	}
	lookup := NewLookup(mapping)

	ruled := Mapping{}
	var toLearn []string
	for _, tag := range tags {
		if lookup.Known(tag) {
			continue
		}
		if category, ok := ClassifyTag(tag); ok {
			ruled[tag] = category
			continue
		}
		toLearn = append(toLearn, tag)
	}

	if len(ruled) > 0 {
		if _, err := e.mapping.Merge(ruled); err != nil {
			return 0, err
		}
		metrics.TaxonomyTagsLearned.WithLabelValues(metrics.SourceRule).Add(float64(len(ruled)))
		logger.Info("tags classified by rules", logging.Int("count", len(ruled)))
	}

	if len(toLearn) > 0 {
		if err := e.learn(ctx, sink, toLearn, len(tags)); err != nil {
			return 0, err
		}
	}

	return e.apply(ctx, sink)
}

// learn sends unknown tags to the model in batches. A failed batch is logged
// and skipped; only cancellation or an engine that cannot run at all stops
// the loop early.
func (e *Engine) learn(ctx context.Context, sink progress.Sink, tags []string, totalGlobal int) error {
	logger := logging.WithContext(ctx, e.logger)
	known := totalGlobal - len(tags)
	batches := chunk(tags, e.opts.BatchSize)

	logger.Info("learning unknown tags",
		logging.Int("unknown", len(tags)),
		logging.Int("total", totalGlobal),
		logging.Int("batches", len(batches)),
	)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		sink.Publish(progress.TypeProgressLearning, progress.Learning{
			CurrentBatch:    i + 1,
			TotalBatches:    len(batches),
			TagsInBatch:     len(batch),
			ProcessedGlobal: known + i*e.opts.BatchSize + len(batch),
			TotalGlobal:     totalGlobal,
		})

		learned, err := e.learnBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.TaxonomyBatchFailures.Inc()
			logging.WarnWithContext(logger, "taxonomy batch skipped", "taxonomy_batch_failed",
				logging.Int("batch", i+1),
				logging.Int("tags", len(batch)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "tags in this batch stay unmapped until the next sync"),
			)
			if isFatalLearningError(err) {
				logger.Warn("model unavailable; skipping remaining batches",
					logging.Int("remaining", len(batches)-i-1))
				return nil
			}
			continue
		}
		if len(learned) == 0 {
			continue
		}
		if _, err := e.mapping.Merge(learned); err != nil {
			logging.WarnWithContext(logger, "failed to persist taxonomy batch", "taxonomy_persist_failed",
				logging.Int("batch", i+1),
				logging.Error(err),
			)
			continue
		}
		metrics.TaxonomyTagsLearned.WithLabelValues(metrics.SourceAI).Add(float64(len(learned)))
		logger.Debug("taxonomy batch saved",
			logging.Int("batch", i+1),
			logging.Int("learned", len(learned)),
		)
	}
	return nil
}

// apply recomputes master tags and prunes redundant raw tags for every tagged
// item in a single transaction.
func (e *Engine) apply(ctx context.Context, sink progress.Sink) (int, error) {
	sink.Publish(progress.TypePhaseApplying, nil)

	mapping, err := e.mapping.Load()
	if err != nil {
		return 0, err
	}
	lookup := NewLookup(mapping)

	all, err := e.store.AllTagged(ctx)
	if err != nil {
		return 0, err
	}
	items := make([]library.TaggedItem, 0, len(all))
	for _, item := range all {
		if !library.IsSentinelTags(item.Tags) {
			items = append(items, item)
		}
	}

	total := len(items)
	updated := 0
	err = e.store.RunInTransaction(ctx, func(tx library.Tx) error {
		for i, item := range items {
			current := i + 1
			if current%e.opts.ApplyEvery == 0 || current == total {
				sink.Publish(progress.TypeProgressApplying, progress.Applying{Current: current, Total: total})
			}

			master := lookup.MasterTags(item.Tags)
			if pruned, changed := PruneRedundant(item.Tags, master); changed {
				if err := tx.UpdateRawTags(ctx, item.Path, pruned); err != nil {
					return err
				}
			}
			if master != item.MasterTags {
				if err := tx.UpdateMasterTags(ctx, item.Path, master); err != nil {
					return err
				}
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("apply master tags: %w", err)
	}
	return updated, nil
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
