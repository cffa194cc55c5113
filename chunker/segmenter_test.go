package chunker_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hubenschmidt/go-pagesearch/chunker"
	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/ragtest"
	"github.com/hubenschmidt/go-pagesearch/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type span struct{ start, end int }

func spans(segs []chunker.Segment) []span {
	out := make([]span, len(segs))
	for i, s := range segs {
		out[i] = span{s.Start, s.End}
	}
	return out
}

func newSegmenter(t *testing.T, tok *ragtest.WordTokenizer, maxTokens int) *chunker.Segmenter {
	t.Helper()
	seg, err := chunker.New(tok, maxTokens)
	require.NoError(t, err)
	return seg
}

func TestNewRejectsNonPositiveBudget(t *testing.T) {
	for _, m := range []int{0, -1, -500} {
		_, err := chunker.New(ragtest.NewWordTokenizer(), m)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrInvalidMaxTokens)
		assert.ErrorIs(t, err, core.ErrConfiguration)
	}

	seg := newSegmenter(t, ragtest.NewWordTokenizer(), 10)
	_, err := seg.SplitWithBudget("some text here.", 0)
	assert.ErrorIs(t, err, core.ErrInvalidMaxTokens)
}

func TestSplitEmptyText(t *testing.T) {
	seg := newSegmenter(t, ragtest.NewWordTokenizer(), 10)

	for _, text := range []string{"", "   ", "\n\t  \r\n"} {
		segs, err := seg.Split(text)
		require.NoError(t, err)
		assert.Empty(t, segs, "text %q", text)
	}
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	tok := ragtest.NewWordTokenizer()
	seg := newSegmenter(t, tok, 100)

	text := "A short page. It has two sentences!"
	n := tok.CountTokens(text)
	require.LessOrEqual(t, n, 100)

	segs, err := seg.Split(text)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, span{0, n}, span{segs[0].Start, segs[0].End})
	assert.Equal(t, "A short page . It has two sentences !", segs[0].Text)
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	tok := ragtest.NewWordTokenizer()
	seg := newSegmenter(t, tok, 100)

	// 79 words and a period: the sentence ends at token 80.
	text := ragtest.Words(79, "w") + ". " + ragtest.Words(60, "x")
	require.Equal(t, 140, tok.CountTokens(text))

	segs, err := seg.Split(text)
	require.NoError(t, err)
	assert.Equal(t, []span{{0, 80}, {80, 140}}, spans(segs))
	assert.True(t, strings.HasSuffix(segs[0].Text, "."))
}

func TestSplitPicksBoundaryNearestBudget(t *testing.T) {
	tok := ragtest.NewWordTokenizer()
	seg := newSegmenter(t, tok, 100)

	text := ragtest.Words(9, "a") + ". " + ragtest.Words(39, "b") + ". " + ragtest.Words(100, "c")
	require.Equal(t, 150, tok.CountTokens(text))

	segs, err := seg.Split(text)
	require.NoError(t, err)
	assert.Equal(t, []span{{0, 50}, {50, 150}}, spans(segs))
}

func TestSplitBoundaryAtBudgetEdge(t *testing.T) {
	tok := ragtest.NewWordTokenizer()
	seg := newSegmenter(t, tok, 100)

	text := ragtest.Words(99, "w") + "? " + ragtest.Words(20, "x")
	segs, err := seg.Split(text)
	require.NoError(t, err)
	assert.Equal(t, []span{{0, 100}, {100, 120}}, spans(segs))
}

func TestSplitHardCutWithoutPunctuation(t *testing.T) {
	tok := ragtest.NewWordTokenizer()
	seg := newSegmenter(t, tok, 100)

	segs, err := seg.Split(ragtest.Words(250, "w"))
	require.NoError(t, err)
	assert.Equal(t, []span{{0, 100}, {100, 200}, {200, 250}}, spans(segs))
}

func TestSplitFullWidthTerminators(t *testing.T) {
	tok := ragtest.NewWordTokenizer()
	seg := newSegmenter(t, tok, 6)

	// Each clause is one word token followed by one punctuation token.
	text := "你好。世界！天气？晴朗" + " " + ragtest.Words(5, "x")
	ids := tok.Encode(text)
	require.Len(t, ids, 12)

	segs, err := seg.Split(text)
	require.NoError(t, err)
	assert.Equal(t, []span{{0, 6}, {6, 12}}, spans(segs))
	assert.Equal(t, "你好 。 世界 ！ 天气 ？", segs[0].Text)
}

func TestSplitPartitionsTokenStream(t *testing.T) {
	texts := []string{
		ragtest.Words(1, "w"),
		ragtest.Words(37, "w") + ". " + ragtest.Words(12, "y") + "! " + ragtest.Words(80, "z"),
		strings.Repeat("One sentence here. Another one follows! Is this a question? ", 40),
		strings.Repeat("...", 30),
		ragtest.Words(513, "q"),
	}
	budgets := []int{1, 2, 3, 7, 50, 100, 1000}

	for _, text := range texts {
		for _, m := range budgets {
			tok := ragtest.NewWordTokenizer()
			seg := newSegmenter(t, tok, m)
			n := tok.CountTokens(text)

			segs, err := seg.Split(text)
			require.NoError(t, err)
			require.NotEmpty(t, segs)

			assert.Equal(t, 0, segs[0].Start)
			assert.Equal(t, n, segs[len(segs)-1].End)
			for i, s := range segs {
				assert.Greater(t, s.Len(), 0)
				assert.LessOrEqual(t, s.Len(), m)
				if i > 0 {
					assert.Equal(t, segs[i-1].End, s.Start, "gap or overlap at segment %d", i)
				}
			}
		}
	}
}

func TestSplitSuppressesSpecialTokens(t *testing.T) {
	tok := ragtest.NewWordTokenizer(ragtest.WithSpecialTokens())
	seg := newSegmenter(t, tok, 8)

	text := "First sentence is here. " + ragtest.Words(20, "w")
	n := tok.CountTokens(text)

	segs, err := seg.Split(text)
	require.NoError(t, err)
	assert.Equal(t, n, segs[len(segs)-1].End)
	for _, s := range segs {
		assert.NotContains(t, s.Text, "[CLS]")
		assert.NotContains(t, s.Text, "[SEP]")
	}
	// [CLS] First sentence is here . -> the period closes at token 6.
	assert.Equal(t, span{0, 6}, span{segs[0].Start, segs[0].End})
}

func TestSplitDecodeCallsAreLinear(t *testing.T) {
	tok := ragtest.NewWordTokenizer()
	seg := newSegmenter(t, tok, 10)

	text := ragtest.Words(1000, "w")
	segs, err := seg.Split(text)
	require.NoError(t, err)
	require.Len(t, segs, 100)

	assert.LessOrEqual(t, tok.DecodeCalls(), int64(1000+len(segs)))
}

func TestSplitHardCutKeepsCharactersWhole(t *testing.T) {
	tok, err := tokenizer.Load("cl100k_base")
	require.NoError(t, err)

	text := strings.Repeat("😀🎉鑫龘", 20)
	for _, budget := range []int{5, 7, 11} {
		seg, err := chunker.New(tok, budget)
		require.NoError(t, err)

		segments, err := seg.Split(text)
		require.NoError(t, err)
		require.NotEmpty(t, segments)

		var sb strings.Builder
		prevEnd := 0
		for _, s := range segments {
			assert.True(t, utf8.ValidString(s.Text), "budget %d: %q", budget, s.Text)
			assert.Equal(t, prevEnd, s.Start)
			assert.Greater(t, s.End, s.Start)
			assert.LessOrEqual(t, s.Len(), budget)
			sb.WriteString(s.Text)
			prevEnd = s.End
		}
		assert.Equal(t, len(tok.Encode(text)), prevEnd)
		assert.Equal(t, text, sb.String())
	}
}
