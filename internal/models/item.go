package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MinContentLen is the minimum trimmed content length accepted by the item
// loader; anything shorter is dropped as empty/noise.
const MinContentLen = 10

// Item is a unique, loaded README ready for embedding.
type Item struct {
	ID          uuid.UUID
	Repo        string // "owner/repo"
	Content     string
	ContentHash string // hex-encoded SHA-1
}

// NewItem trims content, rejects anything shorter than MinContentLen, hashes
// it, and derives the item's deterministic UUID from the hash.
func NewItem(repo, content string) (Item, bool) {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < MinContentLen {
		return Item{}, false
	}

	hash := ContentHash(trimmed)
	return Item{
		ID:          UUIDFromHash(hash),
		Repo:        repo,
		Content:     trimmed,
		ContentHash: hash,
	}, true
}

// Truncate returns content capped at maxChars, with the spec's truncation
// marker appended when truncation occurred.
func Truncate(content string, maxChars int) string {
	if len(content) <= maxChars {
		return content
	}
	return content[:maxChars] + "\n\n[TRUNCATED]"
}

// ContentHash returns the hex-encoded SHA-1 of the given bytes.
func ContentHash(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// UUIDFromHash derives a canonical UUID from a hex SHA-1 digest by laying the
// first 32 hex characters into the standard 8-4-4-4-12 grouping. The
// resulting ID is a pure function of content: two byte-identical READMEs
// always collapse to the same UUID.
func UUIDFromHash(hexHash string) uuid.UUID {
	h := hexHash
	if len(h) < 32 {
		h = h + strings.Repeat("0", 32-len(h))
	}
	h = h[:32]
	canonical := fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
	id, err := uuid.Parse(canonical)
	if err != nil {
		// h is always 32 lowercase hex characters here, so this is unreachable.
		panic(fmt.Sprintf("uuid from hash: %v", err))
	}
	return id
}
