// Package llm provides a chat client for OpenAI-compatible completion servers,
// primarily a local llama-server hosting a GGUF model.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts with token and temperature limits,
// receive text plus usage.
// Client.Props: read the server's loaded context size from /props.
// Client.HealthCheck: verify the server is answering.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions and network
// timeouts with exponential backoff (base 1s, max 10s, 3 attempts by default).
// Context overflow rejections are not retried. Context cancellation aborts
// retries immediately.
package llm
