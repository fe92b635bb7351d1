package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Book describes a library item in a transport-friendly format.
type Book struct {
	ID              int64    `json:"id"`
	Filepath        string   `json:"filepath"`
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	PublicationYear *int     `json:"publication_year"`
	Tags            string   `json:"tags"`
	Summary         string   `json:"summary"`
	MasterTags      string   `json:"master_tags"`
	MetadataScanned bool     `json:"metadata_scanned"`
	ContentScanned  bool     `json:"content_scanned"`
	LockedFields    []string `json:"locked_fields"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// BookListResponse wraps a filtered listing. Total counts the whole library.
type BookListResponse struct {
	Books []Book `json:"books"`
	Total int    `json:"total"`
}

// RegisterBookRequest adds a file to the library.
type RegisterBookRequest struct {
	Filepath string `json:"filepath"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Year     *int   `json:"year,omitempty"`
}

// RegisterBookResponse reports the stored item and whether it was new.
type RegisterBookResponse struct {
	Book    Book `json:"book"`
	Created bool `json:"created"`
}

// UpdateBookRequest edits one manually maintained field.
type UpdateBookRequest struct {
	ID    int64  `json:"id"`
	Field string `json:"field"`
	Value string `json:"value"`
}

// ScanRequest starts a content scan. Any target list, even an empty one,
// limits the scan to those items; leaving both fields out or null scans the
// whole library. TargetKeys is accepted as an alias of TargetFilepaths.
type ScanRequest struct {
	TargetFilepaths []string `json:"targetFilepaths"`
	TargetKeys      []string `json:"targetKeys,omitempty"`
}

// Targets returns the requested item keys from either field, or nil when no
// list was supplied.
func (r ScanRequest) Targets() []string {
	if r.TargetFilepaths == nil && r.TargetKeys == nil {
		return nil
	}
	keys := make([]string, 0, len(r.TargetFilepaths)+len(r.TargetKeys))
	return append(append(keys, r.TargetFilepaths...), r.TargetKeys...)
}

// ScanStatus mirrors the content scan job descriptor.
type ScanStatus struct {
	Active      bool    `json:"active"`
	Stopping    bool    `json:"stopping"`
	RunID       string  `json:"runId,omitempty"`
	Processed   int     `json:"processed"`
	Total       int     `json:"total"`
	CurrentFile *string `json:"currentFile"`
	StartTime   *int64  `json:"startTime"`
	TotalTokens int     `json:"totalTokens"`
}

// ConflictResponse is returned with 409 when a job is already running.
type ConflictResponse struct {
	Error  string      `json:"error"`
	Status *ScanStatus `json:"status,omitempty"`
}

// ActionResponse is the generic success/message reply.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CountResponse reports how many items an operation touched.
type CountResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

// ExportErrorsResponse reports the written error report.
type ExportErrorsResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
}

// ReEvalRequest names the tag to re-queue.
type ReEvalRequest struct {
	Tag string `json:"tag"`
}

// ImplicationsResponse lists the implication rules that changed items.
type ImplicationsResponse struct {
	Success bool     `json:"success"`
	Changes int      `json:"changes"`
	Applied []string `json:"applied"`
	Message string   `json:"message,omitempty"`
}

// RulesDocument carries the tagging rules markdown.
type RulesDocument struct {
	Success bool   `json:"success,omitempty"`
	Content string `json:"content"`
}

// MappingResponse exposes the learned taxonomy.
type MappingResponse struct {
	Mapping map[string]string `json:"mapping"`
}

// Model describes a local model file.
type Model struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Folder    string `json:"folder"`
	SizeBytes int64  `json:"sizeBytes"`
	Size      string `json:"size"`
	Active    bool   `json:"active"`
}

// ModelListResponse wraps the model catalog.
type ModelListResponse struct {
	Models []Model `json:"models"`
	Active string  `json:"active,omitempty"`
}

// SelectModelRequest chooses the active model.
type SelectModelRequest struct {
	Path string `json:"path"`
}

// Health reports daemon and inference readiness.
type Health struct {
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
	Backend       bool   `json:"backend"`
	AI            bool   `json:"ai"`
	AIStatus      string `json:"ai_status"`
	AIName        string `json:"ai_name"`
	AIDetail      string `json:"ai_detail"`
	AIContextSize int    `json:"ai_context_size"`
	ScanActive    bool   `json:"scan_active"`
	SyncActive    bool   `json:"sync_active"`
}

// LogEvent is a structured log line for live tailing.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     string            `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Job           string            `json:"job,omitempty"`
	ItemID        int64             `json:"item_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse wraps a page of log events and the cursor for the next.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// Event is one server-sent job event.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the event's payload fields into target.
func (e Event) Decode(target any) error {
	if err := json.Unmarshal(e.Raw, target); err != nil {
		return fmt.Errorf("decode %s event: %w", e.Type, err)
	}
	return nil
}

// ProgressEvent is the payload of scan "start" and "progress" events.
type ProgressEvent struct {
	Total       *int   `json:"total"`
	Processed   int    `json:"processed"`
	Current     string `json:"current"`
	StartTime   int64  `json:"startTime"`
	TotalTokens int    `json:"totalTokens"`
	Tags        string `json:"tags"`
}

// TaxonomyEvent is the payload of taxonomy sync events.
type TaxonomyEvent struct {
	CurrentBatch    int `json:"currentBatch"`
	TotalBatches    int `json:"totalBatches"`
	TagsInBatch     int `json:"tagsInBatch"`
	ProcessedGlobal int `json:"processedGlobal"`
	TotalGlobal     int `json:"totalGlobal"`
	Current         int `json:"current"`
	Total           int `json:"total"`
	Count           int `json:"count"`
}

// ErrorEvent is the payload of "error" events.
type ErrorEvent struct {
	Message string `json:"message"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
