package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Digest derives the change-detection digest for an event's mutable
// content. Any change to the summary, due timestamp or description changes
// the digest; nothing else does.
func Digest(summary string, due time.Time, description string) string {
	content := summary + "|" + due.UTC().Format(time.RFC3339) + "|" + description
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
