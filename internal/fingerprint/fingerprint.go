// Package fingerprint computes stable content hashes used to deduplicate
// at-least-once inbox deliveries.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// sep keeps ("ab","c") and ("a","bc") from colliding.
const sep = "\x1f"

// Sum returns the hex-encoded SHA-256 over the given parts. Parts are
// trimmed so cosmetic whitespace differences do not defeat dedup.
func Sum(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte(sep))
		}
		h.Write([]byte(strings.TrimSpace(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
