// Package vector persists chunk vectors and serves similarity search
// over the FT index.
package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/docsearch/internal/db"
	"github.com/kailas-cloud/docsearch/internal/domain"
	"github.com/kailas-cloud/docsearch/internal/domain/chunk"
	"github.com/kailas-cloud/docsearch/internal/domain/search/result"
)

const (
	chunkKeyPrefix = domain.KeyPrefix + "chunk:"
	indexName      = domain.KeyPrefix + "chunks:idx"

	defaultHNSWM           = 16
	defaultHNSWEFConstruct = 200
)

// Hash field names for a stored chunk.
const (
	fieldText        = "text"
	fieldSourceFile  = "source_file"
	fieldFileType    = "file_type"
	fieldDocumentID  = "document_id"
	fieldFingerprint = "fingerprint"
	fieldSequence    = "sequence"
	fieldVector      = "vector"
)

// store is the consumer interface for vector persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	DelMulti(ctx context.Context, keys []string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// HNSWConfig tunes index construction.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements the vector store consumed by indexing and search.
type Repo struct {
	store           store
	hnswM           int
	hnswEFConstruct int
}

// New creates a vector repository.
func New(s store) *Repo {
	return &Repo{
		store:           s,
		hnswM:           defaultHNSWM,
		hnswEFConstruct: defaultHNSWEFConstruct,
	}
}

// WithHNSW overrides HNSW construction parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnswM = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnswEFConstruct = cfg.EFConstruct
	}
	return r
}

// EnsureIndex creates the chunk FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context, dimensions int) error {
	exists, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("%w: check index: %v", domain.ErrVectorStore, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(indexName).
		Prefix(chunkKeyPrefix).
		Tag(fieldFileType).
		Tag(fieldDocumentID).
		Tag(fieldFingerprint).
		Text(fieldText).
		Numeric(fieldSequence).
		VectorHNSW(fieldVector, dimensions, db.DistanceCosine, r.hnswM, r.hnswEFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("%w: build index definition: %v", domain.ErrVectorStore, err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("%w: create index: %v", domain.ErrVectorStore, err)
	}
	return nil
}

// Upsert stores one chunk with its vector under a stable vector store ID.
// Re-upserting the same ID overwrites the previous point.
func (r *Repo) Upsert(ctx context.Context, id string, vector []float32, c chunk.Chunk, sourcePath string) error {
	if id == "" {
		return fmt.Errorf("%w: vector store id is required", domain.ErrInvalidParams)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: vector is required", domain.ErrInvalidParams)
	}

	fields := map[string]string{
		fieldText:        c.Text,
		fieldSourceFile:  sourcePath,
		fieldDocumentID:  c.DocumentID,
		fieldFingerprint: c.Fingerprint,
		fieldSequence:    strconv.Itoa(c.SequenceIndex),
		fieldFileType:    fileTypeOf(sourcePath),
		fieldVector:      vectorToBytes(vector),
	}

	if err := r.store.HSet(ctx, chunkKeyPrefix+id, fields); err != nil {
		return fmt.Errorf("%w: upsert %s: %v", domain.ErrVectorStore, id, err)
	}
	return nil
}

// Search runs a KNN query and maps hits onto search results. fileTypes,
// when non-empty, restricts hits by the file_type tag.
func (r *Repo) Search(ctx context.Context, vector []float32, topK int, fileTypes []string) ([]result.Result, error) {
	q := &db.KNNQuery{
		IndexName: indexName,
		Vector:    vector,
		K:         topK,
		ReturnFields: []string{
			fieldText, fieldSourceFile, fieldFileType,
			fieldDocumentID, fieldSequence, "__vector_score",
		},
	}
	if len(fileTypes) > 0 {
		q.Filters = []db.TagFilter{{Field: fieldFileType, Values: fileTypes}}
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: knn search: %v", domain.ErrVectorStore, err)
	}

	return parseResults(sr), nil
}

// Delete removes chunks by vector store ID.
func (r *Repo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = chunkKeyPrefix + id
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("%w: delete %d chunks: %v", domain.ErrVectorStore, len(ids), err)
	}
	return nil
}

// Count returns the number of indexed chunks.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, indexName, "*")
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", domain.ErrVectorStore, err)
	}
	return n, nil
}

func parseResults(sr *db.SearchResult) []result.Result {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	results := make([]result.Result, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, chunkKeyPrefix)
		metadata := map[string]string{
			fieldFileType:   entry.Fields[fieldFileType],
			fieldDocumentID: entry.Fields[fieldDocumentID],
			fieldSequence:   entry.Fields[fieldSequence],
		}
		results = append(results, result.New(
			id,
			entry.Fields[fieldSourceFile],
			entry.Fields[fieldText],
			entry.Score,
			metadata,
		))
	}
	return results
}

// fileTypeOf returns the lowercase extension without the dot.
func fileTypeOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[idx+1:])
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
