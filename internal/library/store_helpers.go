package library

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const itemColumns = "id, filepath, title, author, publication_year, tags, summary, master_tags, metadata_scanned, content_scanned, locked_fields, created_at, updated_at"

// needsContentClause selects items whose metadata is known but whose content
// tags are missing or empty.
const needsContentClause = "metadata_scanned = 1 AND (content_scanned = 0 OR tags IS NULL OR tags = '')"

// sentinelClause selects items whose last scan failed or was skipped.
const sentinelClause = "(tags LIKE 'Error:%' OR tags LIKE 'Skipped:%')"

// retargetClause selects explicitly requested items that are untagged or carry
// a failure marker, regardless of their metadata state.
const retargetClause = "content_scanned = 0 OR tags IS NULL OR tags = '' OR " + sentinelClause

// tagMatchExpr normalizes the comma list so a LIKE '%,tag,%' pattern matches
// whole tags regardless of the spacing around separators.
const tagMatchExpr = "',' || REPLACE(tags, ' ', '') || ','"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id          int64
		path        string
		title       sql.NullString
		author      sql.NullString
		year        sql.NullInt64
		tags        sql.NullString
		summary     sql.NullString
		masterTags  sql.NullString
		metaScanned sql.NullInt64
		contScanned sql.NullInt64
		lockedRaw   sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&path,
		&title,
		&author,
		&year,
		&tags,
		&summary,
		&masterTags,
		&metaScanned,
		&contScanned,
		&lockedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		Path:            path,
		Title:           title.String,
		Author:          author.String,
		Tags:            tags.String,
		Summary:         summary.String,
		MasterTags:      masterTags.String,
		MetadataScanned: metaScanned.Valid && metaScanned.Int64 != 0,
		ContentScanned:  contScanned.Valid && contScanned.Int64 != 0,
		LockedFields:    parseLockedFields(lockedRaw.String),
	}
	if year.Valid {
		value := int(year.Int64)
		item.PublicationYear = &value
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

// parseLockedFields tolerates malformed JSON by treating it as no locks.
func parseLockedFields(raw string) []string {
	if raw == "" {
		return nil
	}
	var fields []string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil
	}
	return fields
}

func encodeLockedFields(fields []string) string {
	if len(fields) == 0 {
		return "[]"
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timestampLayout has a fixed-width fraction so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nowString() string {
	return time.Now().UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
