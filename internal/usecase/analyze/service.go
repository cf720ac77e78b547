// Package analyze estimates query complexity from lexical signals so
// clients can tune their searches before spending embedding tokens.
package analyze

import (
	"strings"
	"unicode"

	"github.com/kailas-cloud/docsearch/internal/domain/query"
)

// Classification thresholds.
const (
	shortQueryTokens = 3
	longQueryTokens  = 10

	rareTermRunes    = 12
	rareRatioHigh    = 0.4
	minKeywordLength = 3
)

// Guidance returned verbatim to clients.
const (
	recWiden = "short queries match broadly; add terms or raise the similarity threshold"
	recSplit = "long queries dilute similarity; split into several focused searches"
	recQuote = "quoted phrases are matched semantically, not verbatim"
)

// Service analyzes queries. Stateless, safe for concurrent use.
type Service struct{}

// New creates a query analyzer.
func New() *Service {
	return &Service{}
}

// Analyze inspects the query text only. It never touches the index or
// the embedding provider.
func (s *Service) Analyze(text string) query.Analysis {
	tokens := strings.Fields(strings.ToLower(text))

	analysis := query.Analysis{
		TokenCount:    len(tokens),
		Keywords:      keywords(tokens),
		HasPhrase:     hasQuotedPhrase(text),
		RareTermRatio: rareTermRatio(tokens),
	}

	switch {
	case len(tokens) > longQueryTokens,
		analysis.RareTermRatio > rareRatioHigh,
		analysis.HasPhrase:
		analysis.Complexity = query.ComplexityHigh
	case len(tokens) <= shortQueryTokens:
		analysis.Complexity = query.ComplexityLow
	default:
		analysis.Complexity = query.ComplexityMedium
	}

	if len(tokens) <= shortQueryTokens {
		analysis.Recommendations = append(analysis.Recommendations, recWiden)
	}
	if len(tokens) > longQueryTokens {
		analysis.Recommendations = append(analysis.Recommendations, recSplit)
	}
	if analysis.HasPhrase {
		analysis.Recommendations = append(analysis.Recommendations, recQuote)
	}

	return analysis
}

// rareTermRatio reports the share of tokens that are unusually long or
// carry digits, a rough proxy for identifiers and jargon.
func rareTermRatio(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	rare := 0
	for _, tok := range tokens {
		if isRare(tok) {
			rare++
		}
	}
	return float64(rare) / float64(len(tokens))
}

func isRare(token string) bool {
	runes := []rune(token)
	if len(runes) > rareTermRunes {
		return true
	}
	for _, r := range runes {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// hasQuotedPhrase reports whether the text carries a non-empty "..."
// span.
func hasQuotedPhrase(text string) bool {
	first := strings.IndexByte(text, '"')
	if first < 0 {
		return false
	}
	second := strings.IndexByte(text[first+1:], '"')
	return second > 0
}

// keywords strips punctuation and drops very short tokens, deduplicated
// in query order. Language-agnostic: no stopword list.
func keywords(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	var out []string
	for _, tok := range tokens {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(tok)) < minKeywordLength {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
