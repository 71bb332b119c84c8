package ingest

import "github.com/cognicore/kbase/pkg/kbase/patterns"

// TextStats describes the structure of a text before extraction.
type TextStats struct {
	Chars          int `json:"total_chars"`
	Words          int `json:"total_words"`
	Sentences      int `json:"sentences"`
	PotentialRules int `json:"potential_rules"`
	PotentialFacts int `json:"potential_facts"`
}

// Analyze counts sentences that look like rules or facts. A sentence counts
// once per kind, on its first matching pattern.
func Analyze(text string, seg *Segmenter, set *patterns.Set) TextStats {
	sentences := seg.Segment(text)
	st := TextStats{
		Chars:     len([]rune(text)),
		Words:     len(Words(text)),
		Sentences: len(sentences),
	}
	if set == nil {
		return st
	}

	for _, sentence := range sentences {
		for i := range set.Rules {
			if set.Rules[i].Matches(sentence) {
				st.PotentialRules++
				break
			}
		}
		for i := range set.Facts {
			if set.Facts[i].Matches(sentence) {
				st.PotentialFacts++
				break
			}
		}
	}
	return st
}
