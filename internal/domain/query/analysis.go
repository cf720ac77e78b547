// Package query holds query analysis types.
package query

// Complexity is an ordinal estimate of how hard a query is to answer well.
type Complexity string

// Complexity levels.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Analysis is the outcome of inspecting raw query text. Derived purely
// from lexical signals, no dependency on the index.
type Analysis struct {
	Complexity      Complexity
	TokenCount      int
	Keywords        []string
	HasPhrase       bool
	RareTermRatio   float64
	Recommendations []string
}
