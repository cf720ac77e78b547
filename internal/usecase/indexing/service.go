// Package indexing orchestrates the document indexing pipeline:
// chunking, fingerprint deduplication, batched embedding, and durable
// manifest bookkeeping.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docsearch/internal/domain"
	"github.com/kailas-cloud/docsearch/internal/domain/chunk"
	"github.com/kailas-cloud/docsearch/internal/metrics"
)

// DefaultChunkWorkers bounds concurrent per-document chunking.
const DefaultChunkWorkers = 8

// Options control a single indexing run.
type Options struct {
	// ForceReindex drops all manifest entries and vectors of the
	// selected documents before re-embedding everything.
	ForceReindex bool
	// FileTypes, when non-empty, restricts the run to documents whose
	// file type matches (case-insensitive).
	FileTypes []string
}

// Stats summarizes one indexing run. A chunk is counted indexed only
// after its manifest entry is durably written.
type Stats struct {
	DocumentsProcessed int
	ChunksProcessed    int
	ChunksIndexed      int
	ChunksSkipped      int
	ChunksFailed       int
	Elapsed            time.Duration
}

// Service runs the indexing pipeline.
type Service struct {
	splitter *chunk.Splitter
	manifest Manifest
	vectors  VectorStore
	batcher  Batcher
	logger   *zap.Logger
	workers  int
}

// New creates an indexing service.
func New(splitter *chunk.Splitter, manifest Manifest, vectors VectorStore, batcher Batcher, logger *zap.Logger) *Service {
	return &Service{
		splitter: splitter,
		manifest: manifest,
		vectors:  vectors,
		batcher:  batcher,
		logger:   logger,
		workers:  DefaultChunkWorkers,
	}
}

// pending is one unique fingerprint awaiting embedding, represented by
// the first chunk that produced it.
type pending struct {
	chunk      chunk.Chunk
	sourcePath string
}

// Index runs the pipeline over the given documents. The run is not
// atomic: chunk failures are isolated, counted in Stats, and never
// abort sibling chunks or documents.
func (s *Service) Index(ctx context.Context, docs []domain.Document, opts Options) (Stats, error) {
	started := time.Now()

	docs = filterByFileType(docs, opts.FileTypes)
	stats := Stats{DocumentsProcessed: len(docs)}

	if len(docs) == 0 {
		stats.Elapsed = time.Since(started)
		s.record(stats, nil)
		return stats, nil
	}

	if opts.ForceReindex {
		if err := s.purge(ctx, docs); err != nil {
			stats.Elapsed = time.Since(started)
			s.record(stats, err)
			return stats, err
		}
	}

	chunks := s.chunkAll(docs)
	stats.ChunksProcessed = len(chunks)

	sourceByDoc := make(map[string]string, len(docs))
	for _, doc := range docs {
		sourceByDoc[doc.ID] = doc.SourcePath
	}

	// One embedding per unique fingerprint. Already-indexed chunks and
	// in-run duplicates are skipped; a missing manifest entry is always
	// eligible regardless of the force flag.
	byFP := make(map[string]pending)
	var order []string
	for _, c := range chunks {
		if _, ok := byFP[c.Fingerprint]; ok {
			stats.ChunksSkipped++
			continue
		}
		if !opts.ForceReindex {
			_, err := s.manifest.Lookup(ctx, c.Fingerprint)
			switch {
			case err == nil:
				stats.ChunksSkipped++
				continue
			case !errors.Is(err, domain.ErrNotFound):
				s.logger.Warn("manifest lookup failed",
					zap.String("document_id", c.DocumentID),
					zap.Int("sequence", c.SequenceIndex),
					zap.Error(err))
				stats.ChunksFailed++
				continue
			}
		}
		byFP[c.Fingerprint] = pending{chunk: c, sourcePath: sourceByDoc[c.DocumentID]}
		order = append(order, c.Fingerprint)
	}

	texts := make([]string, len(order))
	for i, fp := range order {
		texts[i] = byFP[fp].chunk.Text
	}

	results := s.batcher.EmbedAll(ctx, texts)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, r := range results {
		r := r
		g.Go(func() error {
			p := byFP[order[r.Index()]]

			if r.Failed() {
				s.logger.Warn("chunk embedding failed",
					zap.String("document_id", p.chunk.DocumentID),
					zap.Int("sequence", p.chunk.SequenceIndex),
					zap.Error(r.Err()))
				mu.Lock()
				stats.ChunksFailed++
				mu.Unlock()
				return nil
			}

			if err := s.indexChunk(ctx, p, r.Vector()); err != nil {
				s.logger.Warn("chunk indexing failed",
					zap.String("document_id", p.chunk.DocumentID),
					zap.Int("sequence", p.chunk.SequenceIndex),
					zap.Error(err))
				mu.Lock()
				stats.ChunksFailed++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			stats.ChunksIndexed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	stats.Elapsed = time.Since(started)
	err := ctx.Err()
	s.record(stats, err)

	s.logger.Info("indexing run complete",
		zap.Int("documents", stats.DocumentsProcessed),
		zap.Int("chunks", stats.ChunksProcessed),
		zap.Int("indexed", stats.ChunksIndexed),
		zap.Int("skipped", stats.ChunksSkipped),
		zap.Int("failed", stats.ChunksFailed),
		zap.Duration("elapsed", stats.Elapsed))

	return stats, err
}

// indexChunk writes the vector first, then the manifest entry. A chunk
// counts as indexed only after the manifest write succeeds; an orphaned
// vector after a manifest failure is tolerated, the next run re-embeds
// the fingerprint and overwrites the same point.
func (s *Service) indexChunk(ctx context.Context, p pending, vector []float32) error {
	id := vectorIDFor(p.chunk.Fingerprint)

	if err := s.vectors.Upsert(ctx, id, vector, p.chunk, p.sourcePath); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}

	entry := domain.ManifestEntry{
		DocumentID:    p.chunk.DocumentID,
		Fingerprint:   p.chunk.Fingerprint,
		VectorStoreID: id,
		IndexedAt:     time.Now().UTC(),
	}
	if err := s.manifest.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("manifest upsert: %w", err)
	}

	return nil
}

// purge drops manifest entries and vectors for every selected document.
func (s *Service) purge(ctx context.Context, docs []domain.Document) error {
	for _, doc := range docs {
		vectorIDs, err := s.manifest.DeleteByDocument(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("purge document %s: %w", doc.ID, err)
		}
		if err := s.vectors.Delete(ctx, vectorIDs); err != nil {
			return fmt.Errorf("purge vectors of %s: %w", doc.ID, err)
		}
	}
	return nil
}

// chunkAll splits documents concurrently and flattens the chunks in
// document order.
func (s *Service) chunkAll(docs []domain.Document) []chunk.Chunk {
	perDoc := make([][]chunk.Chunk, len(docs))

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			perDoc[i] = s.splitter.Split(doc.ID, doc.RawText)
			return nil
		})
	}
	_ = g.Wait()

	var all []chunk.Chunk
	for _, chunks := range perDoc {
		all = append(all, chunks...)
	}
	return all
}

func (s *Service) record(stats Stats, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.IndexingRunsTotal.WithLabelValues(status).Inc()
	metrics.IndexingRunDuration.Observe(stats.Elapsed.Seconds())
	metrics.IndexingChunksTotal.WithLabelValues("indexed").Add(float64(stats.ChunksIndexed))
	metrics.IndexingChunksTotal.WithLabelValues("skipped").Add(float64(stats.ChunksSkipped))
	metrics.IndexingChunksTotal.WithLabelValues("failed").Add(float64(stats.ChunksFailed))
}

func filterByFileType(docs []domain.Document, fileTypes []string) []domain.Document {
	if len(fileTypes) == 0 {
		return docs
	}
	allowed := make(map[string]struct{}, len(fileTypes))
	for _, ft := range fileTypes {
		allowed[strings.ToLower(ft)] = struct{}{}
	}
	out := docs[:0:0]
	for _, doc := range docs {
		if _, ok := allowed[strings.ToLower(doc.FileType)]; ok {
			out = append(out, doc)
		}
	}
	return out
}

// vectorIDFor derives a stable vector store ID from a fingerprint so a
// re-embedded chunk overwrites its previous point instead of
// duplicating it.
func vectorIDFor(fingerprint string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fingerprint)).String()
}
