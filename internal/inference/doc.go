// Package inference owns the lifecycle of the local language model.
//
// A Gateway loads the selected model once per path, establishes a context by
// walking a ladder of decreasing sizes, and serializes completions so exactly
// one generation runs at a time. Backends abstract the runtime that hosts the
// model; LlamaServer drives a llama.cpp server over its OpenAI-compatible API.
//
// The Catalog discovers GGUF files across the configured search paths and
// persists which one is active. Service ties the two together for callers
// that only need "complete this prompt with whatever model is selected".
package inference
