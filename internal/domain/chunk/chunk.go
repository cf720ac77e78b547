// Package chunk splits normalized document text into overlapping
// fixed-size chunks and assigns each a content fingerprint.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
)

// Chunk is a bounded, overlapping substring of a document's text.
// Offsets are rune positions into the normalized text; SequenceIndex
// is stable insertion order within the document.
type Chunk struct {
	DocumentID    string
	SequenceIndex int
	Text          string
	StartOffset   int
	EndOffset     int
	Fingerprint   string
}

// Fingerprint computes the stable content identity of a chunk text.
// Identical text yields identical fingerprints regardless of document.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
