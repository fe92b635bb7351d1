// Package progress carries job state transitions from the scan and taxonomy
// engines to their consumers (SSE responses, the CLI, tests).
//
// A Stream is append-only and sequenced, modelled on the daemon's log hub:
// engines publish without ever waiting on readers, and readers can detach at
// any time without affecting the job.
package progress
