package risk

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

type normalized struct {
	folded  string
	compact string
}

func normalize(text string) normalized {
	folded := foldText(text)
	return normalized{folded: folded, compact: stripSpace(folded)}
}

// foldText maps full-width forms to their narrow equivalents and lowercases,
// so "ＲＥＦＵＮＤ" and "refund" compare equal.
func foldText(s string) string {
	return strings.ToLower(strings.TrimSpace(width.Fold.String(s)))
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
