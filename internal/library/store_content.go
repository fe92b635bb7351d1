package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultKeyChunkSize keeps targeted lookups below SQLite's bound parameter limit.
const DefaultKeyChunkSize = 900

// FindUnprocessed returns up to limit items that still need content tagging.
func (s *Store) FindUnprocessed(ctx context.Context, limit int) ([]PendingItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT filepath, title FROM items WHERE `+needsContentClause+` ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("find unprocessed: %w", err)
	}
	defer rows.Close()
	return scanPending(rows)
}

// CountUnprocessed returns the number of items FindUnprocessed would eventually yield.
func (s *Store) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(*) FROM items WHERE `+needsContentClause).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unprocessed: %w", err)
	}
	return count, nil
}

// FindByKeys restricts the requested paths to those that need tagging, which
// includes items whose previous scan failed or was skipped. Keys are queried
// in chunks of at most chunkSize bound parameters. Unknown keys are dropped.
func (s *Store) FindByKeys(ctx context.Context, keys []string, chunkSize int) ([]PendingItem, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultKeyChunkSize
	}
	ctx = ensureContext(ctx)
	var out []PendingItem
	for start := 0; start < len(keys); start += chunkSize {
		end := min(start+chunkSize, len(keys))
		chunk := keys[start:end]
		args := make([]any, len(chunk))
		for i, key := range chunk {
			args[i] = key
		}
		query := `SELECT filepath, title FROM items
            WHERE filepath IN (` + makePlaceholders(len(chunk)) + `)
            AND (` + retargetClause + `)
            ORDER BY id`
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("find by keys: %w", err)
		}
		batch, err := scanPending(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func scanPending(rows *sql.Rows) ([]PendingItem, error) {
	var items []PendingItem
	for rows.Next() {
		var (
			path  string
			title sql.NullString
		)
		if err := rows.Scan(&path, &title); err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		items = append(items, PendingItem{Path: path, Title: title.String})
	}
	return items, rows.Err()
}

// UpdateContent stores the scan outcome and marks the item content-scanned.
func (s *Store) UpdateContent(ctx context.Context, path, tags, summary string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE items SET tags = ?, summary = ?, content_scanned = 1, updated_at = ? WHERE filepath = ?`,
		tags, summary, nowString(), path,
	); err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	return nil
}

// UpdateMasterTags replaces the derived master tags of an item.
func (s *Store) UpdateMasterTags(ctx context.Context, path, masterTags string) error {
	return updateMasterTags(ctx, s.db, path, masterTags)
}

// UpdateRawTags replaces the raw tags of an item without touching scan flags.
func (s *Store) UpdateRawTags(ctx context.Context, path, tags string) error {
	return updateRawTags(ctx, s.db, path, tags)
}

func updateMasterTags(ctx context.Context, db execer, path, masterTags string) error {
	if _, err := execWithRetry(ctx, db,
		`UPDATE items SET master_tags = ?, updated_at = ? WHERE filepath = ?`,
		masterTags, nowString(), path,
	); err != nil {
		return fmt.Errorf("update master tags: %w", err)
	}
	return nil
}

func updateRawTags(ctx context.Context, db execer, path, tags string) error {
	if _, err := execWithRetry(ctx, db,
		`UPDATE items SET tags = ?, updated_at = ? WHERE filepath = ?`,
		tags, nowString(), path,
	); err != nil {
		return fmt.Errorf("update raw tags: %w", err)
	}
	return nil
}

// Tx exposes the tag writes available inside RunInTransaction.
type Tx interface {
	UpdateRawTags(ctx context.Context, path, tags string) error
	UpdateMasterTags(ctx context.Context, path, masterTags string) error
}

type storeTx struct {
	tx *sql.Tx
}

func (t storeTx) UpdateRawTags(ctx context.Context, path, tags string) error {
	return updateRawTags(ctx, t.tx, path, tags)
}

func (t storeTx) UpdateMasterTags(ctx context.Context, path, masterTags string) error {
	return updateMasterTags(ctx, t.tx, path, masterTags)
}

// RunInTransaction executes fn atomically. Any error returned by fn, or a
// panic inside it, rolls back every write made through the Tx.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Tx) error) (err error) {
	ctx = ensureContext(ctx)
	var tx *sql.Tx
	if err := retryOnBusy(ctx, func() error {
		var beginErr error
		tx, beginErr = s.db.BeginTx(ctx, nil)
		return beginErr
	}); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err == nil {
			err = fmt.Errorf("rollback: %w", rbErr)
		}
	}()

	if err := fn(storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
