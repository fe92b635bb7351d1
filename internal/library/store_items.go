package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"bookshelf/internal/services"
)

// Add registers a document. Existing paths are left untouched and reported
// with inserted=false. Metadata, when supplied, marks the item metadata-scanned.
func (s *Store) Add(ctx context.Context, path string, meta *Metadata) (*Item, bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false, services.Wrap(services.ErrValidation, "library", "add", "path is required", nil)
	}
	timestamp := nowString()

	var (
		title, author any
		year          any
		scanned       int
	)
	if meta != nil {
		title = nullableString(meta.Title)
		author = nullableString(meta.Author)
		year = nullableInt(meta.PublicationYear)
		scanned = 1
	}

	affected, err := s.execAffected(
		ctx,
		`INSERT OR IGNORE INTO items (
            filepath, title, author, publication_year, metadata_scanned, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		path, title, author, year, scanned, timestamp, timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert item: %w", err)
	}

	item, err := s.Get(ctx, path)
	if err != nil {
		return nil, false, err
	}
	return item, affected > 0, nil
}

// Get fetches an item by path. A missing item returns nil without error.
func (s *Store) Get(ctx context.Context, path string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM items WHERE filepath = ?`, path)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetByID fetches an item by identifier. A missing item returns nil without error.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by id: %w", err)
	}
	return item, nil
}

// List returns items matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Item, error) {
	var (
		conditions []string
		args       []any
	)
	if query := strings.TrimSpace(filter.Query); query != "" {
		like := "%" + query + "%"
		conditions = append(conditions, "(title LIKE ? OR author LIKE ? OR tags LIKE ?)")
		args = append(args, like, like, like)
	}
	if filter.YearStart > 0 {
		conditions = append(conditions, "publication_year >= ?")
		args = append(args, filter.YearStart)
	}
	if filter.YearEnd > 0 {
		conditions = append(conditions, "publication_year <= ?")
		args = append(args, filter.YearEnd)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Count returns the number of items in the library.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

// UpdateMetadata records automatically discovered metadata and marks the item
// metadata-scanned. Title and author are skipped when the user locked them.
func (s *Store) UpdateMetadata(ctx context.Context, path string, meta Metadata) error {
	item, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	if item == nil {
		return services.Wrap(services.ErrNotFound, "library", "update metadata", path, nil)
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if !item.IsLocked(FieldTitle) {
		sets = append(sets, "title = ?")
		args = append(args, nullableString(meta.Title))
	}
	if !item.IsLocked(FieldAuthor) {
		sets = append(sets, "author = ?")
		args = append(args, nullableString(meta.Author))
	}
	sets = append(sets, "publication_year = ?", "metadata_scanned = 1", "updated_at = ?")
	args = append(args, nullableInt(meta.PublicationYear), nowString(), path)

	if _, err := s.execWithRetry(ctx,
		`UPDATE items SET `+strings.Join(sets, ", ")+` WHERE filepath = ?`, args...); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

// UpdateManualMetadata sets a user-edited field and locks it against
// automatic overwrites.
func (s *Store) UpdateManualMetadata(ctx context.Context, id int64, field, value string) error {
	if field != FieldTitle && field != FieldAuthor {
		return services.Wrap(services.ErrValidation, "library", "update manual metadata",
			fmt.Sprintf("invalid field: %s", field), nil)
	}
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return services.Wrap(services.ErrNotFound, "library", "update manual metadata",
			fmt.Sprintf("item %d", id), nil)
	}

	locked := item.LockedFields
	if !slices.Contains(locked, field) {
		locked = append(locked, field)
	}
	// field is restricted to the allowlist above, so interpolating the column name is safe.
	if _, err := s.execWithRetry(ctx,
		`UPDATE items SET `+field+` = ?, locked_fields = ?, updated_at = ? WHERE id = ?`,
		value, encodeLockedFields(locked), nowString(), id,
	); err != nil {
		return fmt.Errorf("update manual metadata: %w", err)
	}
	return nil
}
