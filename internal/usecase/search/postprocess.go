package search

import (
	"strings"

	"github.com/kailas-cloud/docsearch/internal/domain/search/result"
)

// Post-processing coefficients. Scores stay comparable to the raw
// cosine similarity: each adjustment is a small multiplicative or
// additive nudge, not a re-ranking from scratch.
const (
	keywordBoostCap = 0.1

	shortTextWords   = 10
	shortTextFactor  = 0.9
	longTextWords    = 500
	longTextFactor   = 0.95
	diversityPenalty = 0.8
)

// postProcess adjusts candidate scores with lexical signals: exact
// query-token overlap gets a boost, very short and very long chunks
// get a mild penalty, and repeated hits from one source file beyond
// the diversity cap are demoted.
func postProcess(query string, candidates []result.Result) []result.Result {
	if len(candidates) == 0 {
		return nil
	}

	queryTokens := tokenize(query)

	adjusted := make([]result.Result, 0, len(candidates))
	for _, r := range candidates {
		// Boosted score is clamped so it stays a similarity in [0,1].
		score := min(1.0, r.Score()+keywordBoost(queryTokens, r.Text()))
		score *= lengthFactor(r.Text())
		adjusted = append(adjusted, r.WithScore(score))
	}

	sortResults(adjusted)
	return applyDiversityCap(adjusted)
}

// keywordBoost rewards exact token overlap between the query and the
// chunk text, capped so lexical matching never dominates similarity.
func keywordBoost(queryTokens []string, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	textTokens := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		textTokens[tok] = struct{}{}
	}

	overlap := 0
	for _, tok := range queryTokens {
		if _, ok := textTokens[tok]; ok {
			overlap++
		}
	}

	boost := float64(overlap) / float64(len(queryTokens)) * keywordBoostCap
	if boost > keywordBoostCap {
		boost = keywordBoostCap
	}
	return boost
}

// lengthFactor demotes chunks that are too short to carry context or
// long enough to dilute the match.
func lengthFactor(text string) float64 {
	words := len(strings.Fields(text))
	switch {
	case words < shortTextWords:
		return shortTextFactor
	case words > longTextWords:
		return longTextFactor
	default:
		return 1.0
	}
}

// applyDiversityCap demotes hits from a source file beyond its cap so
// a single large document cannot crowd out the result page. The cap is
// a third of the candidate pool, floored at one. Candidates must
// already be sorted by descending score.
func applyDiversityCap(sorted []result.Result) []result.Result {
	maxPerFile := max(1, len(sorted)/3)

	seen := make(map[string]int)
	out := make([]result.Result, 0, len(sorted))
	for _, r := range sorted {
		seen[r.SourceFile()]++
		if seen[r.SourceFile()] > maxPerFile {
			out = append(out, r.WithScore(r.Score()*diversityPenalty))
			continue
		}
		out = append(out, r)
	}
	return out
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
