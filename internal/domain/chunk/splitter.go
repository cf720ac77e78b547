package chunk

import (
	"fmt"

	"github.com/kailas-cloud/docsearch/internal/domain"
)

// DefaultLookback bounds how far the splitter scans backwards from a
// hard cut point looking for a semantic boundary.
const DefaultLookback = 100

// Splitter produces overlapping chunks from normalized text.
// Splitting is deterministic: identical input and parameters yield a
// byte-identical chunk sequence.
type Splitter struct {
	maxSize  int
	overlap  int
	lookback int
}

// NewSplitter validates chunking parameters. Overlap must be smaller
// than the chunk size or the splitter cannot make progress.
func NewSplitter(maxSize, overlap int) (*Splitter, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max chunk size must be positive, got %d", domain.ErrInvalidParams, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", domain.ErrInvalidParams, maxSize, overlap)
	}

	lookback := DefaultLookback
	if lookback > maxSize/2 {
		lookback = maxSize / 2
	}

	return &Splitter{maxSize: maxSize, overlap: overlap, lookback: lookback}, nil
}

// WithLookback overrides the boundary scan window. Values above half
// the chunk size are clamped so a boundary cut can never erase the
// overlap guarantee.
func (s *Splitter) WithLookback(n int) *Splitter {
	if n > 0 {
		if n > s.maxSize/2 {
			n = s.maxSize / 2
		}
		s.lookback = n
	}
	return s
}

// Split normalizes text and cuts it into chunks of at most maxSize
// runes. Each chunk after the first starts exactly overlap runes before
// the previous chunk's end. Empty or whitespace-only text yields zero
// chunks.
func (s *Splitter) Split(documentID, text string) []Chunk {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)

	var chunks []Chunk
	start := 0
	for {
		end := start + s.maxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.cutPoint(runes, start, end)
		}

		chunkText := string(runes[start:end])
		chunks = append(chunks, Chunk{
			DocumentID:    documentID,
			SequenceIndex: len(chunks),
			Text:          chunkText,
			StartOffset:   start,
			EndOffset:     end,
			Fingerprint:   Fingerprint(chunkText),
		})

		if end == len(runes) {
			return chunks
		}
		start = end - s.overlap
	}
}

// cutPoint scans backwards from the hard limit looking for a sentence
// end, then any whitespace, within the lookback window. The window
// floor also guarantees forward progress: the cut must land past
// start+overlap or the next chunk would not advance.
func (s *Splitter) cutPoint(runes []rune, start, hard int) int {
	floor := hard - s.lookback
	if min := start + s.overlap + 1; floor < min {
		floor = min
	}

	for i := hard; i > floor; i-- {
		if isSentenceEnd(runes[i-1]) {
			return i
		}
	}
	for i := hard; i > floor; i-- {
		if runes[i-1] == ' ' {
			return i - 1
		}
	}
	return hard
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
