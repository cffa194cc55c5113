// Package chunker splits text into token-bounded segments, preferring to cut
// after sentence-terminal punctuation.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/tokenizer"
)

// DefaultMaxTokens is the token budget used when none is configured.
const DefaultMaxTokens = 500

const terminators = ".!?。！？"

// Segment is one window of the source token stream. Start and End are token
// offsets, End exclusive.
type Segment struct {
	Text  string
	Start int
	End   int
}

// Len returns the number of tokens covered by the segment.
func (s Segment) Len() int {
	return s.End - s.Start
}

// Segmenter splits text into consecutive segments of at most maxTokens tokens.
type Segmenter struct {
	tok       tokenizer.Tokenizer
	maxTokens int
}

func New(tok tokenizer.Tokenizer, maxTokens int) (*Segmenter, error) {
	if maxTokens <= 0 {
		return nil, core.WithContext(core.NewOpError("chunker.new", "", core.ErrInvalidMaxTokens), "max_tokens", maxTokens)
	}
	return &Segmenter{tok: tok, maxTokens: maxTokens}, nil
}

func (s *Segmenter) MaxTokens() int {
	return s.maxTokens
}

// Split segments text with the configured budget.
func (s *Segmenter) Split(text string) ([]Segment, error) {
	return s.SplitWithBudget(text, s.maxTokens)
}

// SplitWithBudget segments text with an explicit budget. The returned spans
// partition [0, len(Encode(text))) in order. Empty or whitespace-only text
// yields no segments.
func (s *Segmenter) SplitWithBudget(text string, maxTokens int) ([]Segment, error) {
	if maxTokens <= 0 {
		return nil, core.WithContext(core.NewOpError("chunker.split", "", core.ErrInvalidMaxTokens), "max_tokens", maxTokens)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return split(s.tok, s.tok.Encode(text), maxTokens)
}

func split(tok tokenizer.Tokenizer, ids []int, maxTokens int) ([]Segment, error) {
	n := len(ids)
	marks := newBoundaryIndex(tok, ids)

	var segments []Segment
	for start := 0; start < n; {
		end := min(start+maxTokens, n)

		// Scan back at most maxTokens positions for the cut nearest the budget.
		if end < n {
			cut := 0
			for i := end; i > start; i-- {
				if marks.endsSentence(i - 1) {
					cut = i
					break
				}
			}
			if cut > 0 {
				end = cut
			} else {
				end = wholeRunes(tok, ids, start, end)
			}
		}

		if end <= start {
			return nil, core.NewOpError("chunker.split", "", core.ErrInvalidMaxTokens)
		}

		segments = append(segments, Segment{
			Text:  tok.Decode(ids[start:end]),
			Start: start,
			End:   end,
		})
		start = end
	}
	return segments, nil
}

// maxRuneTokens is how many tokens a byte-level BPE may spend on one UTF-8
// sequence beyond its first byte.
const maxRuneTokens = utf8.UTFMax - 1

// wholeRunes moves a hard cut back, by at most maxRuneTokens tokens and never
// to start, until the window decodes to valid UTF-8.
func wholeRunes(tok tokenizer.Tokenizer, ids []int, start, end int) int {
	for back := 0; back < maxRuneTokens && end-1 > start; back++ {
		if utf8.ValidString(tok.Decode(ids[start:end])) {
			return end
		}
		end--
	}
	return end
}

const (
	unknown int8 = iota
	boundary
	interior
)

// boundaryIndex memoizes, per token position, whether the decoded token ends
// a sentence. Consecutive backward scans overlap, so each token is decoded at
// most once across the whole segmentation.
type boundaryIndex struct {
	tok   tokenizer.Tokenizer
	ids   []int
	state []int8
}

func newBoundaryIndex(tok tokenizer.Tokenizer, ids []int) *boundaryIndex {
	return &boundaryIndex{tok: tok, ids: ids, state: make([]int8, len(ids))}
}

func (b *boundaryIndex) endsSentence(pos int) bool {
	switch b.state[pos] {
	case boundary:
		return true
	case interior:
		return false
	}

	if strings.ContainsAny(b.tok.Decode(b.ids[pos:pos+1]), terminators) {
		b.state[pos] = boundary
		return true
	}
	b.state[pos] = interior
	return false
}
