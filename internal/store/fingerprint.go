package store

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies task text for duplicate detection. Surrounding
// whitespace is ignored.
func Fingerprint(text string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
