package api

import (
	"bookshelf/internal/inference"
	"bookshelf/internal/jobs"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
)

// FromItem converts a library item into its transport form.
func FromItem(item library.Item) Book {
	locked := item.LockedFields
	if locked == nil {
		locked = []string{}
	}
	return Book{
		ID:              item.ID,
		Filepath:        item.Path,
		Title:           item.Title,
		Author:          item.Author,
		PublicationYear: item.PublicationYear,
		Tags:            item.Tags,
		Summary:         item.Summary,
		MasterTags:      item.MasterTags,
		MetadataScanned: item.MetadataScanned,
		ContentScanned:  item.ContentScanned,
		LockedFields:    locked,
		CreatedAt:       formatTime(item.CreatedAt),
		UpdatedAt:       formatTime(item.UpdatedAt),
	}
}

// FromItems converts a listing, skipping nil entries.
func FromItems(items []*library.Item) []Book {
	out := make([]Book, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromItem(*item))
	}
	return out
}

// FromSnapshot converts the scan job descriptor. The current file and start
// time are null until a run has started.
func FromSnapshot(snap jobs.Snapshot) ScanStatus {
	status := ScanStatus{
		Active:      snap.Active,
		Stopping:    snap.Stopping,
		RunID:       snap.RunID,
		Processed:   snap.Processed,
		Total:       snap.Total,
		TotalTokens: snap.TotalTokens,
	}
	if snap.CurrentFile != "" {
		current := snap.CurrentFile
		status.CurrentFile = &current
	}
	if !snap.StartTime.IsZero() {
		started := snap.StartTime.UnixMilli()
		status.StartTime = &started
	}
	return status
}

// FromModels converts catalog entries.
func FromModels(models []inference.ModelInfo) []Model {
	out := make([]Model, 0, len(models))
	for _, m := range models {
		out = append(out, Model{
			Name:      m.Name,
			Path:      m.Path,
			Folder:    m.Folder,
			SizeBytes: m.SizeBytes,
			Size:      m.Size,
			Active:    m.Active,
		})
	}
	return out
}

// FromLogEvents converts streamed log records.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     formatTime(evt.Timestamp),
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			Job:           evt.Job,
			ItemID:        evt.ItemID,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
		})
	}
	return out
}
