package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound signals a missing resource (manifest entry, vector, document).
	ErrNotFound = errors.New("not found")
	// ErrInvalidParams signals malformed caller input.
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrEmptyQuery signals a blank search query.
	ErrEmptyQuery = errors.New("empty query")
	// ErrExtraction signals a text extraction failure for a single document.
	ErrExtraction = errors.New("text extraction failed")

	// ErrRateLimited signals a rate limit from the embedding provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingTransient signals a retryable embedding provider failure.
	ErrEmbeddingTransient = errors.New("embedding transient failure")
	// ErrEmbeddingFatal signals a non-retryable embedding failure (malformed input, auth).
	ErrEmbeddingFatal = errors.New("embedding fatal failure")

	// ErrVectorStore signals a vector store upsert/search/delete failure.
	ErrVectorStore = errors.New("vector store failure")
	// ErrManifest signals a durability failure on a manifest write.
	ErrManifest = errors.New("manifest write failed")
	// ErrSearchFailed signals a query that could not be answered.
	// Distinguishable from a query that matched nothing.
	ErrSearchFailed = errors.New("search failed")
)

// IsTransientEmbedding reports whether an embedding error is eligible for retry.
// Timeouts count as transient per the batch retry policy.
func IsTransientEmbedding(err error) bool {
	return errors.Is(err, ErrEmbeddingTransient) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}
