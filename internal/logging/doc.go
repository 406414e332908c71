// Package logging assembles structured slog loggers and formatting helpers used
// across dubforge's pipeline components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with episode IDs, stages, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// # Logging Contract
//
// Level semantics:
//   - INFO: narrative milestones plus decisions that change the delivered
//     artifacts (translation choices, adaptation rewrites, chapter splits,
//     render outcomes).
//   - WARN: degraded behavior or user action needed (fallbacks, review states).
//   - ERROR: operation failed; will stop or retry.
//   - DEBUG: raw diagnostics, per-chapter timing, provider payloads, and
//     decisions that do not affect the final published episode.
//
// # Required Fields by Level
//
// INFO logs must include:
//   - event_type: lifecycle event (e.g., "stage_start", "stage_complete", "status")
//
// WARN logs must include all three fields (the "WARN triad"):
//   - event_type: what happened (e.g., "prompt_hash_mismatch")
//   - error_hint: actionable next step (e.g., "check prompt registry entry")
//   - impact: user-facing consequence (e.g., "stage retried with default prompt")
//
// Use WarnWithContext() helper to enforce the WARN triad automatically.
//
// ERROR logs must include:
//   - event_type: what failed
//   - error_hint: actionable next step
//   - error (via logging.Error()): the underlying error
//
// Use ErrorWithContext() helper to enforce error fields automatically.
//
// # Decision Logging
//
// Decision logs record choices that affect output. Required fields:
//   - decision_type: category (e.g., "review_gate", "cost_guard", "cascade_invalidate")
//   - decision_result: outcome (e.g., "approved", "rejected", "aborted")
//   - decision_reason: why (e.g., "reviewer_rejected", "cost_limit_exceeded")
//   - decision_options: alternatives considered (e.g., "approve, reject, request_changes")
//   - decision_selected: chosen value (optional, for explicit selection)
//
// When truncating lists to top-N items, include a *_hidden_count field to
// surface how many entries were omitted (e.g., "chapter_hidden_count": 5).
//
// # Common Fields
//
// Progress: progress_stage, progress_percent, progress_message, progress_eta
// Decision: decision_type, decision_result, decision_reason, decision_options, decision_selected
// Events: event_type (stage_start, stage_complete, stage_failure)
// Errors: error_kind, error_operation, error_detail_path, error_code, error_hint, impact
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
