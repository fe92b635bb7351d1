package library

import (
	"strings"
	"time"
)

// Tag prefixes marking an item whose last scan did not produce real tags.
const (
	ErrorTagPrefix   = "Error:"
	SkippedTagPrefix = "Skipped:"
)

// Fields a user may edit manually. Manual edits lock the field against
// overwrites from automatic metadata scans.
const (
	FieldTitle  = "title"
	FieldAuthor = "author"
)

// Item is a single document tracked by the library.
type Item struct {
	ID              int64
	Path            string
	Title           string
	Author          string
	PublicationYear *int
	Tags            string
	Summary         string
	MasterTags      string
	MetadataScanned bool
	ContentScanned  bool
	LockedFields    []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasSentinelTags reports whether the item's tags record a failed or skipped scan.
func (i Item) HasSentinelTags() bool {
	return IsSentinelTags(i.Tags)
}

// IsLocked reports whether the field was edited manually.
func (i Item) IsLocked(field string) bool {
	for _, locked := range i.LockedFields {
		if locked == field {
			return true
		}
	}
	return false
}

// IsSentinelTags reports whether a raw tag string is one of the scan outcome
// markers rather than a real tag list.
func IsSentinelTags(tags string) bool {
	trimmed := strings.TrimSpace(tags)
	return strings.HasPrefix(trimmed, ErrorTagPrefix) || strings.HasPrefix(trimmed, SkippedTagPrefix)
}

// PendingItem is the projection consumed by the content scan.
type PendingItem struct {
	Path  string
	Title string
}

// TaggedItem is the projection consumed by the taxonomy apply phase.
type TaggedItem struct {
	Path       string
	Tags       string
	MasterTags string
}

// FailedItem is the projection written to scan error reports.
type FailedItem struct {
	Path    string
	Tags    string
	Summary string
}

// Metadata carries automatically discovered descriptive fields.
type Metadata struct {
	Title           string
	Author          string
	PublicationYear *int
}

// Filter narrows List results. Zero values disable the corresponding clause.
type Filter struct {
	Query     string
	YearStart int
	YearEnd   int
}
