package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"
)

// HashBytes returns the lowercase hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the lowercase hex SHA-256 of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashCanonicalFields returns the SHA-256 of a deterministic serialization
// of name/value pairs: sorted by name, joined as "name\x00value\x01" so the
// same logical input set always hashes identically regardless of map or
// slice iteration order. This is the canonicalization the idempotency
// engine uses for a stage's input_content_hash.
func HashCanonicalFields(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(fields[name]))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
