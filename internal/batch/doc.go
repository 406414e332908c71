// Package batch selects episodes eligible for a pipeline run and drives the
// executor over each one sequentially. It supports two modes, Pending and
// Latest, both excluding episodes blocked on a human decision at their next
// gate; Latest additionally orders candidates newest-first and caps the
// result, so the two modes differ only in which eligible episodes get a
// turn and in what order, not in whether a gate-blocked episode can run.
package batch
