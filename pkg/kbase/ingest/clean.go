package ingest

import "strings"

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'«':  '»',
	'“':  '”',
	'„':  '“',
	'(':  ')',
	'[':  ']',
}

// CleanText collapses whitespace, trims, and strips trailing . , ; runs.
func CleanText(s string) string {
	s = collapseSpace(s)
	s = strings.TrimRight(s, ".,;")
	return strings.TrimSpace(s)
}

// StripQuotes removes one layer of surrounding quotes or brackets.
func StripQuotes(s string) string {
	runes := []rune(s)
	if len(runes) < 2 {
		return s
	}
	if closing, ok := quotePairs[runes[0]]; ok && runes[len(runes)-1] == closing {
		return strings.TrimSpace(string(runes[1 : len(runes)-1]))
	}
	return s
}
