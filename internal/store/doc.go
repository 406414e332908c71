// Package store provides transactional persistence for episodes, pipeline
// runs, content artifacts, prompt versions, review tasks, review decisions,
// and media assets backed by SQLite.
package store
