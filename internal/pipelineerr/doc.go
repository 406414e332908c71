// Package pipelineerr defines shared utilities consumed by stage modules,
// the pipeline executor, and the review coordinator.
//
// Key responsibilities:
//   - Context helpers that stamp episode IDs, stage names, and run/
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent episode/run statuses (failed vs cost-limit).
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the
// pipeline.
package pipelineerr
