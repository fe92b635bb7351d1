// Package logging assembles structured slog loggers and formatting helpers used
// across bookshelf services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so job code can automatically
// tag log lines with library item IDs, job names, and correlation IDs. The
// StreamHub keeps recent records in memory for the daemon's log tail endpoint.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape and routing as the rest of the system.
package logging
