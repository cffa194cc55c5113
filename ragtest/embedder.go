package ragtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/hubenschmidt/go-pagesearch/core"
)

// HashEmbedder maps text to a normalized bag-of-words vector by hashing each
// lowercased word into one of Dim buckets. Texts sharing words land close
// together, which is enough to make nearest-neighbor ordering predictable.
type HashEmbedder struct {
	Dim int

	// FailWith, when set, is consulted before embedding and may return an error.
	FailWith func(text string) error

	calls atomic.Int64
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.FailWith != nil {
		if err := e.FailWith(text); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, core.ErrEmptyInput
	}

	vec := make([]float64, e.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		words = []string{text}
	}
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.Dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.Dim)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *HashEmbedder) Dimension() int {
	return e.Dim
}

func (e *HashEmbedder) Model() string {
	return "hash-bow"
}

// Calls reports how many times Embed has been called.
func (e *HashEmbedder) Calls() int64 {
	return e.calls.Load()
}
