// Package sha1 derives content identifiers for downloaded files. The digest
// of a file's source URL names it on disk, so a URL fetched in an earlier run
// maps to the same identifier.
package sha1

import (
	"crypto/sha1" // #nosec G505 -- identifiers, not integrity protection.
	"encoding/hex"
)

// Hasher implements crawler.Hasher using SHA-1.
type Hasher struct{}

// New returns a SHA-1 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha1.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:]), nil
}

// HashString is Hash for strings; SHA-1 cannot fail.
func (h *Hasher) HashString(s string) string {
	sum := sha1.Sum([]byte(s)) // #nosec G401
	return hex.EncodeToString(sum[:])
}
