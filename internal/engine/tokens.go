package engine

import (
	"strings"
	"unicode"
)

// cjkRanges covers the scripts whose characters tokenize to roughly two
// tokens each: CJK radicals and punctuation, kana, unified ideographs,
// compatibility ideographs, and hangul syllables.
var cjkRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2e80, Hi: 0x2eff, Stride: 1},
		{Lo: 0x3000, Hi: 0x303f, Stride: 1},
		{Lo: 0x3040, Hi: 0x309f, Stride: 1},
		{Lo: 0x30a0, Hi: 0x30ff, Stride: 1},
		{Lo: 0x3400, Hi: 0x4dbf, Stride: 1},
		{Lo: 0x4e00, Hi: 0x9fff, Stride: 1},
		{Lo: 0xac00, Hi: 0xd7af, Stride: 1},
		{Lo: 0xf900, Hi: 0xfaff, Stride: 1},
	},
}

const (
	tokensPerCJKChar   = 2.0
	tokensPerLatinWord = 0.75
)

// EstimateTokens approximates the token count of mixed-script text
// without a model tokenizer: CJK characters count ~2 tokens each, the
// remaining whitespace-delimited words ~0.75. Non-empty text estimates
// to at least 1.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	cjk := 0
	var rest strings.Builder
	for _, r := range text {
		if unicode.Is(cjkRanges, r) {
			cjk++
			rest.WriteByte(' ')
		} else {
			rest.WriteRune(r)
		}
	}
	words := len(strings.Fields(rest.String()))

	tokens := float64(cjk)*tokensPerCJKChar + float64(words)*tokensPerLatinWord
	n := int(tokens + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// TruncateToBudget returns the longest prefix of text that estimates
// within budget tokens, searching over rune boundaries. A non-positive
// budget yields an empty string.
func TruncateToBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(text) <= budget {
		return text
	}

	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if EstimateTokens(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
