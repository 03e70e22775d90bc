package search

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// computeFingerprint generates a stable hash of the document slice.
// The fingerprint changes when document content changes, so the Bleve
// index is only rebuilt when the set of active tools or backends does.
func computeFingerprint(docs []Doc) string {
	h := sha256.New()

	for _, doc := range docs {
		for _, field := range []string{
			doc.ID,
			string(doc.Kind),
			doc.Backend,
			doc.Name,
			doc.Description,
			doc.Category,
		} {
			h.Write([]byte(field))
			h.Write([]byte{0})
		}

		sortedTags := slices.Clone(doc.Tags)
		slices.Sort(sortedTags)
		h.Write([]byte(strings.Join(sortedTags, "\x01")))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
