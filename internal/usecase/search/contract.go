package search

import (
	"context"

	"github.com/kailas-cloud/docsearch/internal/domain"
	"github.com/kailas-cloud/docsearch/internal/domain/search/result"
)

// VectorSearcher runs KNN queries against the chunk index.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, fileTypes []string) ([]result.Result, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
