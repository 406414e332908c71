// Package config loads, normalizes, and validates dubforge's configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for driver
// API keys. The Config type centralizes every knob the executor, stage
// modules, and CLI need, so downstream code always receives sanitized paths
// and validated values rather than reading TOML or the environment directly.
package config
