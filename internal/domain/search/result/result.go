// Package result holds the search hit type returned by similarity queries.
package result

// Result is a single search hit.
type Result struct {
	id         string
	sourceFile string
	text       string
	score      float64
	metadata   map[string]string
}

// New creates a search result.
func New(id, sourceFile, text string, score float64, metadata map[string]string) Result {
	return Result{
		id: id, sourceFile: sourceFile, text: text,
		score: score, metadata: metadata,
	}
}

// ID returns the vector store identifier of the hit.
func (r *Result) ID() string { return r.id }

// SourceFile returns the originating document path.
func (r *Result) SourceFile() string { return r.sourceFile }

// Text returns the chunk text.
func (r *Result) Text() string { return r.text }

// Score returns the similarity score.
func (r *Result) Score() float64 { return r.score }

// Metadata returns the stored chunk metadata.
func (r *Result) Metadata() map[string]string { return r.metadata }

// WithScore returns a copy of the result carrying an adjusted score.
// Post-processing uses it to re-rank without mutating shared hits.
func (r *Result) WithScore(score float64) Result {
	out := *r
	out.score = score
	return out
}
