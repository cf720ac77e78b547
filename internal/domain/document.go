package domain

import "time"

// Document is an extracted text document handed to the indexing pipeline.
// The caller owns it; the core only reads it.
type Document struct {
	ID           string
	SourcePath   string
	FileType     string // lowercase extension without the dot, e.g. "txt"
	RawText      string
	LastModified time.Time
}

// ManifestEntry is the durable join between a chunk fingerprint and its
// vector-store location. At most one entry exists per fingerprint.
type ManifestEntry struct {
	DocumentID    string
	Fingerprint   string
	VectorStoreID string
	IndexedAt     time.Time
}

// ManifestStats aggregates counts from the index manifest.
type ManifestStats struct {
	Documents   int
	Chunks      int
	LastIndexed time.Time
}
