package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docsearch/internal/domain"
	"github.com/kailas-cloud/docsearch/internal/domain/query"
	"github.com/kailas-cloud/docsearch/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/docsearch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/docsearch/internal/usecase/indexing"
	searchuc "github.com/kailas-cloud/docsearch/internal/usecase/search"
)

type stubIndexer struct {
	gotOpts indexinguc.Options
	gotDocs []domain.Document
	stats   indexinguc.Stats
	err     error
}

func (s *stubIndexer) Index(_ context.Context, docs []domain.Document, opts indexinguc.Options) (indexinguc.Stats, error) {
	s.gotDocs = docs
	s.gotOpts = opts
	return s.stats, s.err
}

type stubSource struct {
	docs []domain.Document
	err  error
}

func (s *stubSource) Discover(_ context.Context) ([]domain.Document, error) {
	return s.docs, s.err
}

type stubSearcher struct {
	gotReq  searchuc.Request
	results []result.Result
	err     error
}

func (s *stubSearcher) Search(_ context.Context, req searchuc.Request) ([]result.Result, error) {
	s.gotReq = req
	return s.results, s.err
}

type stubAnalyzer struct {
	analysis query.Analysis
}

func (s *stubAnalyzer) Analyze(string) query.Analysis { return s.analysis }

type stubStats struct {
	stats domain.ManifestStats
	err   error
}

func (s *stubStats) Stats(_ context.Context) (domain.ManifestStats, error) {
	return s.stats, s.err
}

type stubCounter struct {
	count int
	err   error
}

func (s *stubCounter) Count(_ context.Context) (int, error) { return s.count, s.err }

type stubHealth struct {
	report healthuc.Report
}

func (s *stubHealth) Check(_ context.Context) healthuc.Report { return s.report }

type serverFixture struct {
	indexer  *stubIndexer
	source   *stubSource
	searcher *stubSearcher
	analyzer *stubAnalyzer
	stats    *stubStats
	counter  *stubCounter
	health   *stubHealth
	server   *Server
}

func newFixture() *serverFixture {
	f := &serverFixture{
		indexer:  &stubIndexer{},
		source:   &stubSource{},
		searcher: &stubSearcher{},
		analyzer: &stubAnalyzer{},
		stats:    &stubStats{},
		counter:  &stubCounter{},
		health:   &stubHealth{report: healthuc.Report{Status: healthuc.Healthy}},
	}
	f.server = NewServer(
		f.indexer, f.source, f.searcher, f.analyzer,
		f.stats, f.counter, f.health, zap.NewNop(),
	)
	return f
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/", reader)
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestIndexDocuments(t *testing.T) {
	f := newFixture()
	f.source.docs = []domain.Document{{ID: "a.txt"}, {ID: "b.md"}}
	f.indexer.stats = indexinguc.Stats{
		DocumentsProcessed: 2,
		ChunksProcessed:    7,
		ChunksIndexed:      5,
		ChunksSkipped:      1,
		ChunksFailed:       1,
		Elapsed:            1500 * time.Millisecond,
	}

	rr := doJSON(t, f.server.IndexDocuments, "POST", `{"force_reindex":true,"file_types":["md"]}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if !f.indexer.gotOpts.ForceReindex {
		t.Error("force_reindex not propagated")
	}
	if len(f.indexer.gotOpts.FileTypes) != 1 || f.indexer.gotOpts.FileTypes[0] != "md" {
		t.Errorf("file_types not propagated: %v", f.indexer.gotOpts.FileTypes)
	}
	if len(f.indexer.gotDocs) != 2 {
		t.Errorf("expected discovered docs forwarded, got %d", len(f.indexer.gotDocs))
	}

	var resp IndexResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ChunksIndexed != 5 || resp.ChunksSkipped != 1 || resp.ChunksFailed != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.ElapsedMs != 1500 {
		t.Errorf("ElapsedMs = %d, want 1500", resp.ElapsedMs)
	}
}

func TestIndexDocuments_EmptyBody(t *testing.T) {
	f := newFixture()

	rr := doJSON(t, f.server.IndexDocuments, "POST", "")
	if rr.Code != http.StatusOK {
		t.Errorf("empty body must run a default pass, got %d", rr.Code)
	}
	if f.indexer.gotOpts.ForceReindex {
		t.Error("default pass must not force re-index")
	}
}

func TestIndexDocuments_InvalidBody(t *testing.T) {
	f := newFixture()

	rr := doJSON(t, f.server.IndexDocuments, "POST", `{"force_reindex":`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSearchChunks(t *testing.T) {
	f := newFixture()
	f.searcher.results = []result.Result{
		result.New("vec-1", "docs/a.md", "matched text", 0.91, map[string]string{"file_type": "md"}),
	}

	rr := doJSON(t, f.server.SearchChunks, "POST", `{"query":"how to deploy","limit":5,"threshold":0.5}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if f.searcher.gotReq.Threshold != 0.5 {
		t.Errorf("threshold = %f, want 0.5", f.searcher.gotReq.Threshold)
	}

	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Results[0].ID != "vec-1" || resp.Results[0].Score != 0.91 {
		t.Errorf("unexpected result: %+v", resp.Results[0])
	}
}

func TestSearchChunks_OmittedThresholdUsesDefault(t *testing.T) {
	f := newFixture()

	rr := doJSON(t, f.server.SearchChunks, "POST", `{"query":"how to deploy"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if f.searcher.gotReq.Threshold >= 0 {
		t.Errorf("omitted threshold must pass through as negative, got %f", f.searcher.gotReq.Threshold)
	}
}

func TestSearchChunks_ThresholdOutOfRange(t *testing.T) {
	f := newFixture()

	rr := doJSON(t, f.server.SearchChunks, "POST", `{"query":"q","threshold":1.5}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSearchChunks_EmptyQueryMapsTo400(t *testing.T) {
	f := newFixture()
	f.searcher.err = fmt.Errorf("%w: query must not be blank", domain.ErrEmptyQuery)

	rr := doJSON(t, f.server.SearchChunks, "POST", `{"query":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != CodeValidationFailed {
		t.Errorf("code = %s, want %s", errResp.Code, CodeValidationFailed)
	}
}

func TestSearchChunks_ProviderFailureMapsTo502(t *testing.T) {
	f := newFixture()
	f.searcher.err = fmt.Errorf("%w: vectorize query: %w", domain.ErrSearchFailed, domain.ErrEmbeddingTransient)

	rr := doJSON(t, f.server.SearchChunks, "POST", `{"query":"q"}`)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestSearchChunks_UnknownErrorMapsTo500(t *testing.T) {
	f := newFixture()
	f.searcher.err = fmt.Errorf("%w: boom", domain.ErrManifest)

	rr := doJSON(t, f.server.SearchChunks, "POST", `{"query":"q"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Internal details must not leak to the client.
	if strings.Contains(errResp.Message, "boom") {
		t.Errorf("message leaks internals: %q", errResp.Message)
	}
}

func TestAnalyzeQuery(t *testing.T) {
	f := newFixture()
	f.analyzer.analysis = query.Analysis{
		Complexity:      query.ComplexityHigh,
		TokenCount:      12,
		Keywords:        []string{"deploy"},
		HasPhrase:       true,
		RareTermRatio:   0.5,
		Recommendations: []string{"split into several focused searches"},
	}

	rr := doJSON(t, f.server.AnalyzeQuery, "POST", `{"query":"something long"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp AnalyzeResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Complexity != "high" || resp.TokenCount != 12 || !resp.HasPhrase {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGetStats(t *testing.T) {
	f := newFixture()
	f.stats.stats = domain.ManifestStats{
		Documents:   4,
		Chunks:      20,
		LastIndexed: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.counter.count = 20

	req := httptest.NewRequest("GET", "/stats", http.NoBody)
	rr := httptest.NewRecorder()
	f.server.GetStats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp StatsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DocumentsIndexed != 4 || resp.ChunksIndexed != 20 || resp.VectorPoints != 20 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.LastIndexedAt == nil {
		t.Error("expected last_indexed_at")
	}
}

func TestGetStats_EmptyIndex(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest("GET", "/stats", http.NoBody)
	rr := httptest.NewRecorder()
	f.server.GetStats(rr, req)

	var resp StatsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.LastIndexedAt != nil {
		t.Errorf("last_indexed_at must be omitted for an empty index, got %v", resp.LastIndexedAt)
	}
}

func TestHealthCheck_Degraded503(t *testing.T) {
	f := newFixture()
	f.health.report = healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckError},
	}

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	f.server.HealthCheck(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["database"] != "error" {
		t.Errorf("unexpected response: %+v", resp)
	}
}
