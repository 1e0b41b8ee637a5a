package attestation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashContent returns the lowercase hex SHA-256 digest of text with surrounding whitespace removed.
// Internal whitespace is significant.
func HashContent(text string) string {
	digest := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(digest[:])
}
