package store

import "errors"

// ErrNotFound is returned by lookup methods when no row matches.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a write would violate an invariant the store
// enforces itself (e.g. a second active review task for the same episode).
var ErrConflict = errors.New("store: conflict")
