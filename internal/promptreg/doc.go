// Package promptreg loads prompt template files, computes their content
// hash for deduplication, and registers immutable versions in the store's
// prompt_versions table, including default-version promotion and history.
package promptreg
