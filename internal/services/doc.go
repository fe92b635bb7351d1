// Package services defines shared utilities consumed by the job engine, the
// inference gateway and the HTTP API.
//
// Key responsibilities:
//   - Context helpers that stamp library item IDs, job names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and HTTPStatus which maps
//     a marked error to an API response code.
//
// The llm subpackage holds the OpenAI-compatible chat client used to talk to
// the local model server.
package services
