package logging

import (
	"context"
	"log/slog"

	"bookshelf/internal/services"
)

// Well-known attribute keys. The stream hub lifts component, item_id, job and
// correlation_id into typed LogEvent fields.
const (
	FieldComponent     = "component"
	FieldItemID        = "item_id"
	FieldItemPath      = "item_path"
	FieldJob           = "job" // scan or taxonomy_sync
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact states what the user loses when a warning fires.
	FieldImpact = "impact"
	FieldAlert  = "alert"
)

// ContextFields returns the item, job and request identifiers stored on ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := services.ItemIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldItemID, id))
	}
	if job, ok := services.JobFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJob, job))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext attaches ContextFields(ctx) to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(toArgs(fields)...)
	}
	return logger
}
