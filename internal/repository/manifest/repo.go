// Package manifest persists the durable record of indexed chunk
// fingerprints and their vector store locations.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/docsearch/internal/db"
	"github.com/kailas-cloud/docsearch/internal/domain"
)

const (
	fpKeyPrefix  = domain.KeyPrefix + "manifest:fp:"
	docKeyPrefix = domain.KeyPrefix + "manifest:doc:"
	lastIndexKey = domain.KeyPrefix + "manifest:last_indexed"

	lockStripes = 64
)

// Hash field names for a manifest entry.
const (
	fieldDocumentID    = "document_id"
	fieldFingerprint   = "fingerprint"
	fieldVectorStoreID = "vector_store_id"
	fieldIndexedAt     = "indexed_at"
)

// store is the consumer interface for manifest persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	Del(ctx context.Context, key string) error
	DelMulti(ctx context.Context, keys []string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo implements usecase/indexing.Manifest over hash storage.
// Writes to the same fingerprint are serialized through striped locks
// so a concurrent re-index of identical content cannot lose updates.
type Repo struct {
	store store
	locks [lockStripes]sync.Mutex
}

// New creates a manifest repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Lookup returns the manifest entry for a fingerprint, or
// domain.ErrNotFound when the fingerprint has never been indexed.
func (r *Repo) Lookup(ctx context.Context, fingerprint string) (domain.ManifestEntry, error) {
	fields, err := r.store.HGetAll(ctx, fpKeyPrefix+fingerprint)
	if err != nil {
		return domain.ManifestEntry{}, fmt.Errorf("%w: lookup %s: %v", domain.ErrManifest, fingerprint, err)
	}
	if len(fields) == 0 {
		return domain.ManifestEntry{}, domain.ErrNotFound
	}
	return entryFromFields(fields)
}

// Upsert stores a manifest entry, overwriting any previous entry for
// the same fingerprint. When the fingerprint moves between documents
// the stale secondary-index field is removed.
func (r *Repo) Upsert(ctx context.Context, entry domain.ManifestEntry) error {
	if entry.Fingerprint == "" || entry.DocumentID == "" {
		return fmt.Errorf("%w: manifest entry requires fingerprint and document id", domain.ErrInvalidParams)
	}

	lock := r.lockFor(entry.Fingerprint)
	lock.Lock()
	defer lock.Unlock()

	prev, err := r.store.HGetAll(ctx, fpKeyPrefix+entry.Fingerprint)
	if err != nil {
		return fmt.Errorf("%w: read previous entry: %v", domain.ErrManifest, err)
	}

	if err := r.store.HSet(ctx, fpKeyPrefix+entry.Fingerprint, map[string]string{
		fieldDocumentID:    entry.DocumentID,
		fieldFingerprint:   entry.Fingerprint,
		fieldVectorStoreID: entry.VectorStoreID,
		fieldIndexedAt:     entry.IndexedAt.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return fmt.Errorf("%w: write entry %s: %v", domain.ErrManifest, entry.Fingerprint, err)
	}

	if prevDoc := prev[fieldDocumentID]; prevDoc != "" && prevDoc != entry.DocumentID {
		if err := r.store.HDel(ctx, docKeyPrefix+prevDoc, entry.Fingerprint); err != nil {
			return fmt.Errorf("%w: unlink previous document %s: %v", domain.ErrManifest, prevDoc, err)
		}
	}

	if err := r.store.HSet(ctx, docKeyPrefix+entry.DocumentID, map[string]string{
		entry.Fingerprint: entry.VectorStoreID,
	}); err != nil {
		return fmt.Errorf("%w: index document %s: %v", domain.ErrManifest, entry.DocumentID, err)
	}

	if err := r.store.Set(ctx, lastIndexKey, []byte(entry.IndexedAt.UTC().Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("%w: record last indexed: %v", domain.ErrManifest, err)
	}

	return nil
}

// DeleteByDocument removes every manifest entry of a document and
// returns the vector store IDs that are now orphaned so the caller can
// evict them from the vector store.
func (r *Repo) DeleteByDocument(ctx context.Context, documentID string) ([]string, error) {
	fields, err := r.store.HGetAll(ctx, docKeyPrefix+documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: read document %s: %v", domain.ErrManifest, documentID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	fpKeys := make([]string, 0, len(fields))
	vectorIDs := make([]string, 0, len(fields))
	for fp, vectorID := range fields {
		fpKeys = append(fpKeys, fpKeyPrefix+fp)
		vectorIDs = append(vectorIDs, vectorID)
	}

	if err := r.store.DelMulti(ctx, fpKeys); err != nil {
		return nil, fmt.Errorf("%w: delete entries for %s: %v", domain.ErrManifest, documentID, err)
	}
	if err := r.store.Del(ctx, docKeyPrefix+documentID); err != nil {
		return nil, fmt.Errorf("%w: delete document index %s: %v", domain.ErrManifest, documentID, err)
	}

	return vectorIDs, nil
}

// FingerprintsFor returns every fingerprint recorded for a document.
func (r *Repo) FingerprintsFor(ctx context.Context, documentID string) ([]string, error) {
	fields, err := r.store.HGetAll(ctx, docKeyPrefix+documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: read document %s: %v", domain.ErrManifest, documentID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	fps := make([]string, 0, len(fields))
	for fp := range fields {
		fps = append(fps, fp)
	}
	return fps, nil
}

// Stats aggregates manifest counts for the stats endpoint.
func (r *Repo) Stats(ctx context.Context) (domain.ManifestStats, error) {
	docKeys, err := r.store.Scan(ctx, docKeyPrefix+"*")
	if err != nil {
		return domain.ManifestStats{}, fmt.Errorf("%w: scan documents: %v", domain.ErrManifest, err)
	}
	fpKeys, err := r.store.Scan(ctx, fpKeyPrefix+"*")
	if err != nil {
		return domain.ManifestStats{}, fmt.Errorf("%w: scan fingerprints: %v", domain.ErrManifest, err)
	}

	stats := domain.ManifestStats{
		Documents: len(docKeys),
		Chunks:    len(fpKeys),
	}

	raw, err := r.store.Get(ctx, lastIndexKey)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return stats, nil
	case err != nil:
		return domain.ManifestStats{}, fmt.Errorf("%w: read last indexed: %v", domain.ErrManifest, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		return domain.ManifestStats{}, fmt.Errorf("%w: parse last indexed %q: %v", domain.ErrManifest, raw, err)
	}
	stats.LastIndexed = ts

	return stats, nil
}

func (r *Repo) lockFor(fingerprint string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return &r.locks[h.Sum32()%lockStripes]
}

func entryFromFields(fields map[string]string) (domain.ManifestEntry, error) {
	ts, err := time.Parse(time.RFC3339Nano, fields[fieldIndexedAt])
	if err != nil {
		return domain.ManifestEntry{}, fmt.Errorf("%w: parse indexed_at %q: %v", domain.ErrManifest, fields[fieldIndexedAt], err)
	}
	return domain.ManifestEntry{
		DocumentID:    fields[fieldDocumentID],
		Fingerprint:   fields[fieldFingerprint],
		VectorStoreID: fields[fieldVectorStoreID],
		IndexedAt:     ts,
	}, nil
}
