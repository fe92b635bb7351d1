// Package daemon coordinates the long-running bookshelf process.
//
// It wires the library store, the content scan engine, the taxonomy engine,
// the tagging rules file and the model catalog into a single lifecycle with
// flock-based locking to prevent multiple instances, and serves them over the
// HTTP API. Scans and taxonomy syncs run on the daemon's context rather than
// the request's, so a client that disconnects mid-stream leaves the job
// running; shutting the daemon down cancels them.
//
// Keep orchestration logic here: scanning, tagging and taxonomy rules live in
// their own packages while the daemon focuses on startup, shutdown, and the
// HTTP surface.
package daemon
