package tokenizer

import (
	"fmt"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is used when no tokenizer name is configured.
const DefaultEncoding = "cl100k_base"

var specialTokens = []string{
	"<|endoftext|>",
	"<|fim_prefix|>",
	"<|fim_middle|>",
	"<|fim_suffix|>",
	"<|endofprompt|>",
}

func init() {
	// Vocabularies ship with the binary; loading never touches the network.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// BPE is a byte-pair-encoding tokenizer backed by a tiktoken vocabulary.
type BPE struct {
	name    string
	enc     *tiktoken.Tiktoken
	special map[int]struct{}
}

// Load resolves name as an encoding ("cl100k_base") or, failing that, as a
// model name ("text-embedding-3-small") and loads its vocabulary.
func Load(name string) (*BPE, error) {
	if name == "" {
		name = DefaultEncoding
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		var modelErr error
		enc, modelErr = tiktoken.EncodingForModel(name)
		if modelErr != nil {
			return nil, core.NewOpError("tokenizer.load", name, fmt.Errorf("%w: %v", core.ErrModelUnavailable, err))
		}
	}

	b := &BPE{name: name, enc: enc, special: make(map[int]struct{})}
	for _, tok := range specialTokens {
		ids := enc.Encode(tok, []string{"all"}, nil)
		if len(ids) == 1 {
			b.special[ids[0]] = struct{}{}
		}
	}
	return b, nil
}

// Name returns the identifier the tokenizer was loaded with.
func (b *BPE) Name() string {
	return b.name
}

// Encode treats special-token text as ordinary text.
func (b *BPE) Encode(text string) []int {
	if text == "" {
		return nil
	}
	return b.enc.Encode(text, nil, nil)
}

func (b *BPE) Decode(ids []int) string {
	if len(b.special) == 0 {
		return b.enc.Decode(ids)
	}

	kept := ids
	for i, id := range ids {
		if _, ok := b.special[id]; ok {
			kept = make([]int, 0, len(ids))
			kept = append(kept, ids[:i]...)
			for _, rest := range ids[i+1:] {
				if _, skip := b.special[rest]; !skip {
					kept = append(kept, rest)
				}
			}
			break
		}
	}
	return b.enc.Decode(kept)
}

func (b *BPE) CountTokens(text string) int {
	return len(b.Encode(text))
}

var _ Tokenizer = (*BPE)(nil)
