// Package library persists the document library in SQLite.
//
// Items are keyed by file path and carry extracted metadata, raw AI tags, a
// one-sentence summary and the derived master tags. The store exposes the
// queries the content scan and the taxonomy sync consume: unprocessed item
// batches, targeted lookups in bounded chunks, content and tag updates, and a
// transaction wrapper used by the taxonomy apply phase.
//
// The connection runs in WAL mode with a busy timeout; write helpers retry on
// SQLITE_BUSY with bounded exponential backoff.
package library
