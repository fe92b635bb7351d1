// Package api defines the wire format of the daemon's HTTP surface and the
// client the CLI uses to reach it.
//
// # Key Types
//
// Book: transport representation of a library item with its raw and master
// tags.
//
// ScanStatus: the content scan job descriptor. Conflict responses embed it so
// a caller rejected with 409 can render the running job.
//
// Event: one server-sent event from a scan or taxonomy sync. Payload fields
// arrive flattened next to "type" and are decoded on demand.
//
// # Client
//
// Client wraps net/http with bearer authentication, JSON decoding of the
// {"error": ...} envelope into *Error, and ReadEvents for text/event-stream
// bodies. Streaming calls hand every event to a callback and return when the
// server closes the stream, the callback fails, or ctx ends.
//
// # Design Notes
//
// DTOs keep the camelCase keys of the long-running job events (startTime,
// totalTokens) and snake_case for library rows (master_tags, publication_year)
// so existing front ends keep working. Timestamps are RFC3339 with
// milliseconds; job start times are Unix milliseconds.
package api
