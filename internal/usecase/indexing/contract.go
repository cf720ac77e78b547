package indexing

import (
	"context"

	"github.com/kailas-cloud/docsearch/internal/domain"
	"github.com/kailas-cloud/docsearch/internal/domain/batch"
	"github.com/kailas-cloud/docsearch/internal/domain/chunk"
)

// Manifest is the durable record of indexed fingerprints.
type Manifest interface {
	Lookup(ctx context.Context, fingerprint string) (domain.ManifestEntry, error)
	Upsert(ctx context.Context, entry domain.ManifestEntry) error
	DeleteByDocument(ctx context.Context, documentID string) ([]string, error)
}

// VectorStore persists chunk vectors.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, c chunk.Chunk, sourcePath string) error
	Delete(ctx context.Context, ids []string) error
}

// Batcher embeds texts in parallel batches with retry. Results are
// aligned positionally to the input.
type Batcher interface {
	EmbedAll(ctx context.Context, texts []string) []batch.Result
}
