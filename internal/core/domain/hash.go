package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashLength is the length of a content fingerprint in hex characters.
const HashLength = sha256.Size * 2

// HashContent returns the SHA-256 fingerprint of content as lowercase hex.
// It is used to detect no-op syncs, to compare proposed writes against
// machine-authored versions, and to fingerprint incoming triggers.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 12 characters of a fingerprint for display.
func ShortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
