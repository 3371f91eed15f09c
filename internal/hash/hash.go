// Package hash computes content fingerprints used to decide whether a File
// or Conversation has changed since it was last indexed.
package hash

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sort"

	"github.com/ctxcache/contextcache/internal/store"
)

// HashFile reads the full contents of path and returns their lowercase hex
// SHA-256 digest.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %q for hashing: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

// HashConversation builds the canonical payload for a Conversation — its
// identifier, session id, and source tag, followed by each Exchange's
// position, user text, and assistant text in position order — and returns
// the lowercase hex SHA-256 digest. Exchanges need not arrive pre-sorted;
// HashConversation sorts a copy by Position before hashing so callers can't
// accidentally produce a different fingerprint by reordering a slice.
func HashConversation(c *store.Conversation, exchanges []*store.Exchange) string {
	sorted := make([]*store.Exchange, len(exchanges))
	copy(sorted, exchanges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	write(c.ID)
	write(c.SessionID)
	write(c.SourceTag)
	for _, ex := range sorted {
		write(fmt.Sprintf("%d", ex.Position))
		write(ex.UserText)
		write(ex.AssistantText)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}
