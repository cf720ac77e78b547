// Package chi is the HTTP transport: hand-written handlers over a chi
// router, JSON DTOs, and domain error mapping.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docsearch/internal/domain"
	"github.com/kailas-cloud/docsearch/internal/domain/query"
	logpkg "github.com/kailas-cloud/docsearch/internal/logger"
	"github.com/kailas-cloud/docsearch/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/docsearch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/docsearch/internal/usecase/indexing"
	searchuc "github.com/kailas-cloud/docsearch/internal/usecase/search"
)

// ErrorCode is a machine-readable error class in API responses.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeNotFound               ErrorCode = "not_found"
	CodeRateLimited            ErrorCode = "rate_limited"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeSearchFailed           ErrorCode = "search_failed"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Indexer runs an indexing pass.
type Indexer interface {
	Index(ctx context.Context, docs []domain.Document, opts indexinguc.Options) (indexinguc.Stats, error)
}

// DocumentSource discovers indexable documents.
type DocumentSource interface {
	Discover(ctx context.Context) ([]domain.Document, error)
}

// Searcher answers similarity queries.
type Searcher interface {
	Search(ctx context.Context, req searchuc.Request) ([]result.Result, error)
}

// Analyzer estimates query complexity.
type Analyzer interface {
	Analyze(text string) query.Analysis
}

// StatsReader aggregates manifest counts.
type StatsReader interface {
	Stats(ctx context.Context) (domain.ManifestStats, error)
}

// ChunkCounter counts points in the vector index.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	indexing      Indexer
	source        DocumentSource
	search        Searcher
	analyze       Analyzer
	manifestStats StatsReader
	chunkCount    ChunkCounter
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	indexing Indexer,
	source DocumentSource,
	search Searcher,
	analyze Analyzer,
	manifestStats StatsReader,
	chunkCount ChunkCounter,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		indexing:      indexing,
		source:        source,
		search:        search,
		analyze:       analyze,
		manifestStats: manifestStats,
		chunkCount:    chunkCount,
		health:        health,
		logger:        logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidParams, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingTransient, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrEmbeddingFatal, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrSearchFailed, http.StatusBadGateway, CodeSearchFailed),
	}
	return s
}

// Routes mounts the API handlers on a chi router.
func (s *Server) Routes(r chirouter.Router) {
	r.Post("/index", s.IndexDocuments)
	r.Post("/search", s.SearchChunks)
	r.Post("/analyze", s.AnalyzeQuery)
	r.Get("/stats", s.GetStats)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// IndexRequest is the POST /index body. The body is optional, an empty
// body runs a default incremental pass.
type IndexRequest struct {
	ForceReindex bool     `json:"force_reindex"`
	FileTypes    []string `json:"file_types"`
}

// IndexResponse reports the outcome of one indexing run.
type IndexResponse struct {
	DocumentsProcessed int   `json:"documents_processed"`
	ChunksProcessed    int   `json:"chunks_processed"`
	ChunksIndexed      int   `json:"chunks_indexed"`
	ChunksSkipped      int   `json:"chunks_skipped"`
	ChunksFailed       int   `json:"chunks_failed"`
	ElapsedMs          int64 `json:"elapsed_ms"`
}

// IndexDocuments handles POST /index.
func (s *Server) IndexDocuments(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	docs, err := s.source.Discover(r.Context())
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	stats, err := s.indexing.Index(r.Context(), docs, indexinguc.Options{
		ForceReindex: req.ForceReindex,
		FileTypes:    req.FileTypes,
	})
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, IndexResponse{
		DocumentsProcessed: stats.DocumentsProcessed,
		ChunksProcessed:    stats.ChunksProcessed,
		ChunksIndexed:      stats.ChunksIndexed,
		ChunksSkipped:      stats.ChunksSkipped,
		ChunksFailed:       stats.ChunksFailed,
		ElapsedMs:          stats.Elapsed.Milliseconds(),
	})
}

// SearchRequest is the POST /search body. Threshold is a pointer so an
// omitted field falls back to the configured default instead of zero.
type SearchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Threshold *float64 `json:"threshold"`
	FileTypes []string `json:"file_types"`
}

// SearchResultItem is one hit in the search response.
type SearchResultItem struct {
	ID         string            `json:"id"`
	SourceFile string            `json:"source_file"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is the POST /search reply.
type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
	Total   int                `json:"total"`
}

// SearchChunks handles POST /search.
func (s *Server) SearchChunks(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	threshold := -1.0
	if req.Threshold != nil {
		if *req.Threshold < 0 || *req.Threshold > 1 {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "threshold must be between 0 and 1")
			return
		}
		threshold = *req.Threshold
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must not be negative")
		return
	}

	results, err := s.search.Search(r.Context(), searchuc.Request{
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: threshold,
		FileTypes: req.FileTypes,
	})
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	items := make([]SearchResultItem, len(results))
	for i, res := range results {
		items[i] = SearchResultItem{
			ID:         res.ID(),
			SourceFile: res.SourceFile(),
			Text:       res.Text(),
			Score:      res.Score(),
			Metadata:   res.Metadata(),
		}
	}

	writeJSON(w, http.StatusOK, SearchResponse{Results: items, Total: len(items)})
}

// AnalyzeRequest is the POST /analyze body.
type AnalyzeRequest struct {
	Query string `json:"query"`
}

// AnalyzeResponse is the POST /analyze reply.
type AnalyzeResponse struct {
	Complexity      string   `json:"complexity"`
	TokenCount      int      `json:"token_count"`
	Keywords        []string `json:"keywords,omitempty"`
	HasPhrase       bool     `json:"has_phrase"`
	RareTermRatio   float64  `json:"rare_term_ratio"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// AnalyzeQuery handles POST /analyze.
func (s *Server) AnalyzeQuery(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	a := s.analyze.Analyze(req.Query)

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Complexity:      string(a.Complexity),
		TokenCount:      a.TokenCount,
		Keywords:        a.Keywords,
		HasPhrase:       a.HasPhrase,
		RareTermRatio:   a.RareTermRatio,
		Recommendations: a.Recommendations,
	})
}

// StatsResponse is the GET /stats reply.
type StatsResponse struct {
	DocumentsIndexed int        `json:"documents_indexed"`
	ChunksIndexed    int        `json:"chunks_indexed"`
	VectorPoints     int        `json:"vector_points"`
	LastIndexedAt    *time.Time `json:"last_indexed_at,omitempty"`
}

// GetStats handles GET /stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manifestStats.Stats(r.Context())
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	resp := StatsResponse{
		DocumentsIndexed: stats.Documents,
		ChunksIndexed:    stats.Chunks,
	}
	if !stats.LastIndexed.IsZero() {
		ts := stats.LastIndexed
		resp.LastIndexedAt = &ts
	}

	// The point count is best-effort: a missing index just reads zero.
	if count, err := s.chunkCount.Count(r.Context()); err == nil {
		resp.VectorPoints = count
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthResponse is the GET /health reply.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrInvalidParams,
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrEmbeddingTransient,
		domain.ErrEmbeddingFatal,
		domain.ErrSearchFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContextOr(ctx, s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
