// Package config loads, normalizes, and validates bookshelf configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BOOKSHELF_INFERENCE_API_KEY. The Config type centralizes every knob the
// daemon and CLI need, so the data directory, model search paths and the
// local inference server are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
