// Package search runs similarity queries over the chunk index with
// threshold filtering and lexical post-processing.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docsearch/internal/domain"
	"github.com/kailas-cloud/docsearch/internal/domain/search/result"
	"github.com/kailas-cloud/docsearch/internal/metrics"
)

// Service defaults applied when a request leaves a knob unset.
const (
	DefaultLimit           = 5
	DefaultThreshold       = 0.3
	DefaultOverfetchFactor = 3

	// minTopK floors the candidate pool so post-processing has
	// something to rank even for tiny limits.
	minTopK = 10
)

// Request is one similarity search.
type Request struct {
	Query     string
	Limit     int     // <= 0 uses the configured default
	Threshold float64 // < 0 uses the configured default
	FileTypes []string
}

// Config carries service-level search defaults.
type Config struct {
	DefaultLimit     int
	DefaultThreshold float64
	OverfetchFactor  int
}

// Service handles similarity search over indexed chunks.
type Service struct {
	vectors VectorSearcher
	embed   Embedder
	cfg     Config
	cache   *queryCache
	logger  *zap.Logger
}

// New creates a search service. Zero config fields fall back to the
// package defaults.
func New(vectors VectorSearcher, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = DefaultThreshold
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = DefaultOverfetchFactor
	}
	return &Service{
		vectors: vectors,
		embed:   embed,
		cfg:     cfg,
		cache:   newQueryCache(cacheTTL, cacheMaxEntries),
		logger:  logger,
	}
}

// Search embeds the query, over-fetches candidates, post-processes,
// filters by the similarity threshold, and returns at most limit
// results ordered by descending score. A provider or store failure is
// returned as a typed error, never as an empty result set.
func (s *Service) Search(ctx context.Context, req Request) ([]result.Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		metrics.SearchRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: query must not be blank", domain.ErrEmptyQuery)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	threshold := req.Threshold
	if threshold < 0 {
		threshold = s.cfg.DefaultThreshold
	}

	// Filtered queries bypass the cache: the key does not encode file
	// types, and filtered result sets are too varied to be worth it.
	var cacheKey string
	if len(req.FileTypes) == 0 {
		cacheKey = fmt.Sprintf("%s:%d:%g", query, limit, threshold)
		if cached, ok := s.cache.get(cacheKey); ok {
			metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
			metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
			metrics.SearchResultCount.Observe(float64(len(cached)))
			s.logger.Debug("search served from cache",
				zap.Int("results", len(cached)))
			return cached, nil
		}
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
	}

	embResult, err := s.embed.Embed(ctx, query)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: vectorize query: %w", domain.ErrSearchFailed, err)
	}

	topK := limit * s.cfg.OverfetchFactor
	if topK < minTopK {
		topK = minTopK
	}

	candidates, err := s.vectors.Search(ctx, embResult.Embedding, topK, normalizeFileTypes(req.FileTypes))
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrSearchFailed, err)
	}

	results := postProcess(query, candidates)

	// Threshold cut happens after post-processing so adjusted scores
	// decide survival.
	kept := results[:0]
	for _, r := range results {
		if r.Score() >= threshold {
			kept = append(kept, r)
		}
	}
	results = kept

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	if cacheKey != "" && len(results) > 0 {
		s.cache.put(cacheKey, results)
	}

	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	metrics.SearchResultCount.Observe(float64(len(results)))

	s.logger.Debug("search complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Float64("threshold", threshold))

	return results, nil
}

// sortResults orders by descending score with a vector store ID
// tie-break so equal scores rank deterministically.
func sortResults(results []result.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score() != results[j].Score() {
			return results[i].Score() > results[j].Score()
		}
		return results[i].ID() < results[j].ID()
	})
}

func normalizeFileTypes(fileTypes []string) []string {
	if len(fileTypes) == 0 {
		return nil
	}
	out := make([]string, 0, len(fileTypes))
	for _, ft := range fileTypes {
		ft = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ft, ".")))
		if ft != "" {
			out = append(out, ft)
		}
	}
	return out
}
