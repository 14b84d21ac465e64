package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer decomposes input, drops combining marks, and
// recomposes. "SÁLE10" and full-width "ＳＡＬＥ１０" both fold to
// plain ASCII before comparison.
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldCode normalizes a user-entered code for lookup: trims
// surrounding space, strips diacritics and width variants, and
// uppercases the result. Returns "" when nothing survives.
func FoldCode(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return ""
	}
	folded, _, err := transform.String(foldTransformer, trimmed)
	if err != nil {
		folded = trimmed
	}
	return strings.ToUpper(strings.TrimSpace(folded))
}
