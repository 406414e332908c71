// Package review coordinates the three human review gates: creating
// review tasks at each gate, recording approve/reject/changes-requested
// decisions, auto-approving punctuation-only corrections at the first
// gate, and reverting an episode's status when changes are requested so
// the producing stage re-runs with reviewer feedback.
package review
