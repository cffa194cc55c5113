// Package ragtest provides deterministic stand-ins for the tokenizer, the
// embedding model and the vector store, for use in tests.
package ragtest

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
)

// Special token ids emitted by a WordTokenizer created with WithSpecialTokens.
const (
	ClsID = 0
	SepID = 1
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{M}]+|\p{N}+|[^\s\p{L}\p{M}\p{N}]`)

// WordTokenizer splits text into words and single punctuation marks. Ids are
// assigned in first-seen order, so decoding is exact up to whitespace.
type WordTokenizer struct {
	mu      sync.Mutex
	vocab   map[string]int
	words   []string
	special bool

	decodes atomic.Int64
}

type TokenizerOption func(*WordTokenizer)

// WithSpecialTokens wraps every encoded sequence in [CLS] ... [SEP].
func WithSpecialTokens() TokenizerOption {
	return func(t *WordTokenizer) {
		t.special = true
	}
}

func NewWordTokenizer(opts ...TokenizerOption) *WordTokenizer {
	t := &WordTokenizer{
		vocab: map[string]int{"[CLS]": ClsID, "[SEP]": SepID},
		words: []string{"[CLS]", "[SEP]"},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WordTokenizer) Encode(text string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	pieces := wordPattern.FindAllString(text, -1)
	ids := make([]int, 0, len(pieces)+2)
	if t.special {
		ids = append(ids, ClsID)
	}
	for _, p := range pieces {
		id, ok := t.vocab[p]
		if !ok {
			id = len(t.words)
			t.vocab[p] = id
			t.words = append(t.words, p)
		}
		ids = append(ids, id)
	}
	if t.special {
		ids = append(ids, SepID)
	}
	return ids
}

func (t *WordTokenizer) Decode(ids []int) string {
	t.decodes.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == ClsID || id == SepID || id < 0 || id >= len(t.words) {
			continue
		}
		parts = append(parts, t.words[id])
	}
	return strings.Join(parts, " ")
}

func (t *WordTokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}

// DecodeCalls reports how many times Decode has been called.
func (t *WordTokenizer) DecodeCalls() int64 {
	return t.decodes.Load()
}

// Words builds a text of n distinct-looking words with no punctuation.
func Words(n int, prefix string) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(prefix)
		sb.WriteString(alpha(i))
	}
	return sb.String()
}

// alpha renders i in base 26 using letters only, so each word stays one token.
func alpha(i int) string {
	var b []byte
	for {
		b = append([]byte{byte('a' + i%26)}, b...)
		i /= 26
		if i == 0 {
			return string(b)
		}
		i--
	}
}
