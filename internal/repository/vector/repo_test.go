package vector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/docsearch/internal/db"
	"github.com/kailas-cloud/docsearch/internal/domain"
	"github.com/kailas-cloud/docsearch/internal/domain/chunk"
)

// fakeStore records calls and serves scripted responses.
type fakeStore struct {
	hashes      map[string]map[string]string
	indexExists bool
	createdDef  *db.IndexDefinition
	knnQuery    *db.KNNQuery
	knnResult   *db.SearchResult
	knnErr      error
	countResult int
	deleted     []string
	hsetErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: make(map[string]map[string]string)}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if f.hsetErr != nil {
		return f.hsetErr
	}
	f.hashes[key] = fields
	return nil
}

func (f *fakeStore) DelMulti(_ context.Context, keys []string) error {
	f.deleted = append(f.deleted, keys...)
	for _, k := range keys {
		delete(f.hashes, k)
	}
	return nil
}

func (f *fakeStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	f.createdDef = def
	return nil
}

func (f *fakeStore) IndexExists(_ context.Context, _ string) (bool, error) {
	return f.indexExists, nil
}

func (f *fakeStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.knnQuery = q
	if f.knnErr != nil {
		return nil, f.knnErr
	}
	if f.knnResult != nil {
		return f.knnResult, nil
	}
	return &db.SearchResult{}, nil
}

func (f *fakeStore) SearchCount(_ context.Context, _, _ string) (int, error) {
	return f.countResult, nil
}

func testChunk() chunk.Chunk {
	return chunk.Chunk{
		DocumentID:    "doc-1",
		SequenceIndex: 2,
		Text:          "chunk text",
		StartOffset:   100,
		EndOffset:     200,
		Fingerprint:   "fp-1",
	}
}

func TestEnsureIndex_CreatesSchema(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs)

	if err := repo.EnsureIndex(context.Background(), 384); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if fs.createdDef == nil {
		t.Fatal("expected CreateIndex call")
	}
	if fs.createdDef.Name != indexName {
		t.Errorf("index name = %q", fs.createdDef.Name)
	}

	var vectorField *db.IndexField
	for i := range fs.createdDef.Fields {
		if fs.createdDef.Fields[i].Type == db.IndexFieldVector {
			vectorField = &fs.createdDef.Fields[i]
		}
	}
	if vectorField == nil {
		t.Fatal("schema is missing the vector field")
	}
	if vectorField.VectorDim != 384 {
		t.Errorf("vector dim = %d, want 384", vectorField.VectorDim)
	}
	if vectorField.VectorAlgo != db.VectorHNSW {
		t.Errorf("vector algo = %q, want HNSW", vectorField.VectorAlgo)
	}
	if vectorField.VectorDistance != db.DistanceCosine {
		t.Errorf("distance = %q, want COSINE", vectorField.VectorDistance)
	}
}

func TestEnsureIndex_SkipsExisting(t *testing.T) {
	fs := newFakeStore()
	fs.indexExists = true
	repo := New(fs)

	if err := repo.EnsureIndex(context.Background(), 384); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if fs.createdDef != nil {
		t.Error("CreateIndex must not be called when index exists")
	}
}

func TestUpsert(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs)

	err := repo.Upsert(context.Background(), "vec-id-1", []float32{0.1, 0.2}, testChunk(), "docs/guide.md")
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	fields, ok := fs.hashes[chunkKeyPrefix+"vec-id-1"]
	if !ok {
		t.Fatalf("chunk key not written, have %v", fs.hashes)
	}
	if fields[fieldText] != "chunk text" {
		t.Errorf("text = %q", fields[fieldText])
	}
	if fields[fieldFileType] != "md" {
		t.Errorf("file_type = %q, want md", fields[fieldFileType])
	}
	if fields[fieldSequence] != "2" {
		t.Errorf("sequence = %q, want 2", fields[fieldSequence])
	}
	if len(fields[fieldVector]) != 8 {
		t.Errorf("vector blob length = %d, want 8", len(fields[fieldVector]))
	}
}

func TestUpsert_Validation(t *testing.T) {
	repo := New(newFakeStore())
	ctx := context.Background()

	if err := repo.Upsert(ctx, "", []float32{0.1}, testChunk(), "a.txt"); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams for empty id, got %v", err)
	}
	if err := repo.Upsert(ctx, "id", nil, testChunk(), "a.txt"); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams for empty vector, got %v", err)
	}
}

func TestUpsert_StoreFailure(t *testing.T) {
	fs := newFakeStore()
	fs.hsetErr = errors.New("connection refused")
	repo := New(fs)

	err := repo.Upsert(context.Background(), "id", []float32{0.1}, testChunk(), "a.txt")
	if !errors.Is(err, domain.ErrVectorStore) {
		t.Errorf("expected ErrVectorStore, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	fs := newFakeStore()
	fs.knnResult = &db.SearchResult{
		Total: 2,
		Entries: []db.SearchEntry{
			{
				Key:   chunkKeyPrefix + "vec-1",
				Score: 0.92,
				Fields: map[string]string{
					fieldText:       "first hit",
					fieldSourceFile: "docs/a.md",
					fieldFileType:   "md",
					fieldDocumentID: "doc-1",
					fieldSequence:   "0",
				},
			},
			{
				Key:   chunkKeyPrefix + "vec-2",
				Score: 0.81,
				Fields: map[string]string{
					fieldText:       "second hit",
					fieldSourceFile: "notes/b.txt",
					fieldFileType:   "txt",
					fieldDocumentID: "doc-2",
					fieldSequence:   "3",
				},
			},
		},
	}
	repo := New(fs)

	results, err := repo.Search(context.Background(), []float32{0.1, 0.2}, 10, []string{"md", "txt"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID() != "vec-1" {
		t.Errorf("ID() = %q, want vec-1 (prefix stripped)", results[0].ID())
	}
	if results[0].SourceFile() != "docs/a.md" {
		t.Errorf("SourceFile() = %q", results[0].SourceFile())
	}
	if results[0].Score() != 0.92 {
		t.Errorf("Score() = %f", results[0].Score())
	}
	if results[1].Metadata()[fieldSequence] != "3" {
		t.Errorf("metadata sequence = %q", results[1].Metadata()[fieldSequence])
	}

	if fs.knnQuery.K != 10 {
		t.Errorf("K = %d, want 10", fs.knnQuery.K)
	}
	if len(fs.knnQuery.Filters) != 1 || fs.knnQuery.Filters[0].Field != fieldFileType {
		t.Errorf("unexpected filters: %v", fs.knnQuery.Filters)
	}
}

func TestSearch_NoFileTypeFilter(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs)

	if _, err := repo.Search(context.Background(), []float32{0.1}, 5, nil); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if fs.knnQuery.Filters != nil {
		t.Errorf("expected no filters, got %v", fs.knnQuery.Filters)
	}
}

func TestSearch_StoreFailure(t *testing.T) {
	fs := newFakeStore()
	fs.knnErr = errors.New("index gone")
	repo := New(fs)

	_, err := repo.Search(context.Background(), []float32{0.1}, 5, nil)
	if !errors.Is(err, domain.ErrVectorStore) {
		t.Errorf("expected ErrVectorStore, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs)

	if err := repo.Delete(context.Background(), []string{"vec-1", "vec-2"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fs.deleted) != 2 {
		t.Fatalf("expected 2 deleted keys, got %v", fs.deleted)
	}
	for _, k := range fs.deleted {
		if !strings.HasPrefix(k, chunkKeyPrefix) {
			t.Errorf("deleted key %q missing chunk prefix", k)
		}
	}
}

func TestDelete_Empty(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs)

	if err := repo.Delete(context.Background(), nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if fs.deleted != nil {
		t.Errorf("expected no deletions, got %v", fs.deleted)
	}
}

func TestCount(t *testing.T) {
	fs := newFakeStore()
	fs.countResult = 17
	repo := New(fs)

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 17 {
		t.Errorf("Count = %d, want 17", n)
	}
}

func TestFileTypeOf(t *testing.T) {
	tests := []struct{ path, want string }{
		{"docs/guide.md", "md"},
		{"a.TXT", "txt"},
		{"noext", ""},
		{"trailing.", ""},
	}
	for _, tt := range tests {
		if got := fileTypeOf(tt.path); got != tt.want {
			t.Errorf("fileTypeOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
