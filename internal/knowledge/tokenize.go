package knowledge

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// terms splits text into lowercase ASCII words and overlapping CJK bigrams.
// Han text has no word boundaries, so bigrams are the matching unit.
func terms(text string) map[string]struct{} {
	out := make(map[string]struct{})
	folded := strings.ToLower(width.Fold.String(text))

	var word []rune
	var han []rune
	flushWord := func() {
		if len(word) >= 2 {
			out[string(word)] = struct{}{}
		}
		word = word[:0]
	}
	flushHan := func() {
		switch {
		case len(han) == 1:
			out[string(han)] = struct{}{}
		case len(han) > 1:
			for i := 0; i+1 < len(han); i++ {
				out[string(han[i:i+2])] = struct{}{}
			}
		}
		han = han[:0]
	}

	for _, r := range folded {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word = append(word, r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return out
}

// overlap is the fraction of query terms present in doc terms.
func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
