// Package tokenizer adapts subword tokenizers to the encode/decode/count
// contract used for chunk sizing.
package tokenizer

// Tokenizer converts text to token ids and back. Decode omits special and
// control tokens. Implementations must be safe for concurrent use.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	CountTokens(text string) int
}
