package extract

import (
	"strings"

	"github.com/cognicore/kbase/pkg/kbase/ingest"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// Markers are the word lists used by the structural pass and rule-type
// refinement. Causal entries are stems matched as substrings; the others
// are matched as whole words.
type Markers struct {
	Conditional []string
	Then        []string
	Causal      []string
	Temporal    []string
	Modal       []string
}

// MarkersFor returns the built-in markers for lang.
func MarkersFor(lang string) Markers {
	if lang == "ru" {
		return Markers{
			Conditional: []string{"если", "когда", "при"},
			Then:        []string{"то", "тогда"},
			Causal:      []string{"приводит", "вызывает", "влечет", "влечёт"},
			Temporal:    []string{"когда", "после", "до"},
			Modal:       []string{"должен", "должна", "должно", "должны", "может", "могут", "следует"},
		}
	}
	return Markers{
		Conditional: []string{"if", "when"},
		Then:        []string{"then"},
		Causal:      []string{"leads", "causes"},
		Temporal:    []string{"when", "after", "before"},
		Modal:       []string{"must", "should", "can"},
	}
}

// RefineType classifies a structurally extracted rule: causal markers in
// either part win, then temporal markers in the condition, then modal verbs
// in the action; everything else is conditional.
func (m Markers) RefineType(marker, condition, action string) store.RuleType {
	lc, la := strings.ToLower(condition), strings.ToLower(action)
	for _, stem := range m.Causal {
		if strings.Contains(lc, stem) || strings.Contains(la, stem) {
			return store.Causal
		}
	}

	condWords := ingest.Words(marker + " " + condition)
	if anyIn(condWords, m.Temporal) {
		return store.Temporal
	}
	if anyIn(ingest.Words(action), m.Modal) {
		return store.Obligation
	}
	return store.Conditional
}

func (m Markers) isConditional(lemma string) bool { return in(lemma, m.Conditional) }

func (m Markers) isThen(lemma string) bool { return in(lemma, m.Then) }

func anyIn(words, list []string) bool {
	for _, w := range words {
		if in(w, list) {
			return true
		}
	}
	return false
}

func in(s string, list []string) bool {
	for _, item := range list {
		if s == item {
			return true
		}
	}
	return false
}
