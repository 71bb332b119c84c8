package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Words splits text into case-folded word tokens: maximal runs of letters,
// digits and underscores.
func Words(text string) []string {
	folded := cases.Fold().String(text)

	var tokens []string
	var current strings.Builder
	for _, r := range folded {
		if isWordRune(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// TokenSet returns the distinct words of text.
func TokenSet(text string) map[string]struct{} {
	words := Words(text)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}
