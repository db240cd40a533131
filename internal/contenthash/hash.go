// Package contenthash derives stable fingerprints for catalog records.
// The hash is the sole signal for "did this record change" during
// reconciliation.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const fieldSeparator = "|"

// Compute returns the hex-encoded SHA-256 over the semantically significant
// fields of a record: lowercased/trimmed title and agency, plus the close
// date. Identical inputs always yield an identical hash.
func Compute(title, agency string, closeDate *time.Time) string {
	parts := []string{
		normalize(title),
		normalize(agency),
		formatDate(closeDate),
	}

	h := sha256.Sum256([]byte(strings.Join(parts, fieldSeparator)))
	return hex.EncodeToString(h[:])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
