// Package cascade implements the idempotency and cascade invalidation
// engine: deciding whether a stage's output is already current for its
// current inputs, and propagating invalidation downstream through the
// fixed stage graph when an upstream artifact changes or a forced re-run
// occurs.
package cascade
