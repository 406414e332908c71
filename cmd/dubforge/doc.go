// Package main hosts the dubforge CLI entrypoint and command graph.
//
// The Cobra-based command tree wires configuration, structured logging, and
// a fully-built app (store, driver clients, stage modules, executor, review
// coordinator, prompt registry, notifier) for each invocation, then exposes
// episode registration, single-episode and batch pipeline runs, review-gate
// decisions, prompt version management, and status reporting.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands here.
package main
