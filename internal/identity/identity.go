// Package identity derives stable item identifiers and content fingerprints.
package identity

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"feedrelay/internal/model"
)

// ErrNoEntryIdentity is returned when an entry carries no id, guid, or link.
var ErrNoEntryIdentity = errors.New("entry has no id, guid, or link")

// identityFields are tried in order when deriving an entry's natural identity.
var identityFields = []string{"id", "guid", "link"}

// ComputeID derives the dedup key for an entry: a fixed-width hash of the
// subscription source URL concatenated with a fixed-width hash of the
// entry's natural identity. Re-deriving from the same inputs always
// yields the same ID.
func ComputeID(sourceURL string, entry model.Entry) (string, error) {
	for _, field := range identityFields {
		v, ok := entry[field].(string)
		if !ok || v == "" {
			continue
		}
		return shortHash(sourceURL) + shortHash(v), nil
	}
	return "", ErrNoEntryIdentity
}

// ComputeFingerprint hashes rendered, backend-agnostic text. Identical
// text always yields an identical fingerprint.
func ComputeFingerprint(renderedText string) string {
	h := sha256.Sum256([]byte(renderedText))
	return fmt.Sprintf("%x", h[:16])
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}
