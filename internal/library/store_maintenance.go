package library

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// tagPattern builds the LIKE pattern matching a whole tag inside tagMatchExpr.
func tagPattern(tag string) string {
	return "%," + strings.ReplaceAll(strings.TrimSpace(tag), " ", "") + ",%"
}

// ResetFailed re-queues items whose last scan produced no tags or left a
// failure marker. Markers are cleared along with their summary so the items
// read as untagged until the next scan.
func (s *Store) ResetFailed(ctx context.Context) (int, error) {
	count, err := s.execAffected(ctx,
		`UPDATE items SET content_scanned = 0,
            tags = CASE WHEN `+sentinelClause+` THEN NULL ELSE tags END,
            summary = CASE WHEN `+sentinelClause+` THEN NULL ELSE summary END,
            master_tags = CASE WHEN `+sentinelClause+` THEN NULL ELSE master_tags END,
            updated_at = ?
        WHERE (metadata_scanned = 1 AND (tags IS NULL OR tags = '')) OR `+sentinelClause,
		nowString())
	if err != nil {
		return 0, fmt.Errorf("reset failed scans: %w", err)
	}
	return count, nil
}

// ResetTag clears the scan outcome of every item carrying tag so the next
// content scan regenerates its tags and summary.
func (s *Store) ResetTag(ctx context.Context, tag string) (int, error) {
	count, err := s.execAffected(ctx,
		`UPDATE items SET content_scanned = 0, tags = NULL, summary = NULL, updated_at = ?
        WHERE `+tagMatchExpr+` LIKE ?`, nowString(), tagPattern(tag))
	if err != nil {
		return 0, fmt.Errorf("reset tag: %w", err)
	}
	return count, nil
}

// ApplyImplication appends parent to every item tagged child that lacks parent.
func (s *Store) ApplyImplication(ctx context.Context, child, parent string) (int, error) {
	parent = strings.TrimSpace(parent)
	count, err := s.execAffected(ctx,
		`UPDATE items SET tags = tags || ', ' || ?, updated_at = ?
        WHERE `+tagMatchExpr+` LIKE ? AND `+tagMatchExpr+` NOT LIKE ?`,
		parent, nowString(), tagPattern(child), tagPattern(parent))
	if err != nil {
		return 0, fmt.Errorf("apply implication %s -> %s: %w", child, parent, err)
	}
	return count, nil
}

// DistinctTags returns every raw tag present in the library, sorted. Items
// whose tags are a scan outcome marker are ignored.
func (s *Store) DistinctTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT tags FROM items WHERE tags IS NOT NULL AND tags != ''`)
	if err != nil {
		return nil, fmt.Errorf("distinct tags: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan tags: %w", err)
		}
		if IsSentinelTags(raw) {
			continue
		}
		for _, part := range strings.Split(raw, ",") {
			if tag := strings.TrimSpace(part); tag != "" {
				seen[tag] = struct{}{}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

// AllTagged returns every item that carries raw tags, in insertion order.
func (s *Store) AllTagged(ctx context.Context) ([]TaggedItem, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT filepath, tags, master_tags FROM items WHERE tags IS NOT NULL AND tags != '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("all tagged: %w", err)
	}
	defer rows.Close()

	var items []TaggedItem
	for rows.Next() {
		var (
			item   TaggedItem
			master sql.NullString
		)
		if err := rows.Scan(&item.Path, &item.Tags, &master); err != nil {
			return nil, fmt.Errorf("scan tagged item: %w", err)
		}
		item.MasterTags = master.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// FailedItems returns items whose last scan failed or was skipped.
func (s *Store) FailedItems(ctx context.Context) ([]FailedItem, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT filepath, tags, summary FROM items WHERE `+sentinelClause+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed items: %w", err)
	}
	defer rows.Close()

	var items []FailedItem
	for rows.Next() {
		var (
			item    FailedItem
			summary sql.NullString
		)
		if err := rows.Scan(&item.Path, &item.Tags, &summary); err != nil {
			return nil, fmt.Errorf("scan failed item: %w", err)
		}
		item.Summary = summary.String
		items = append(items, item)
	}
	return items, rows.Err()
}
