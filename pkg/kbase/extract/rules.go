package extract

import (
	"fmt"

	"github.com/cognicore/kbase/pkg/kbase/ingest"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// regexRule tries the rule patterns in priority order; the first match that
// survives validation wins.
func (e *Extractor) regexRule(res *Result, sentence string, src Source) (store.Rule, bool) {
	for i := range e.set.Rules {
		p := &e.set.Rules[i]
		rawCond, rawAction, ok, err := p.Match(sentence)
		if err != nil {
			e.note(res, fmt.Sprintf("rule pattern %d", i), err)
			continue
		}
		if !ok {
			continue
		}
		condition := ingest.CleanText(rawCond)
		action := ingest.CleanText(rawAction)
		if !validLen(condition, MinRulePart, MaxRulePart) || !validLen(action, MinRulePart, MaxRulePart) {
			continue
		}
		return e.newRule(src, condition, action, p.Type, p.Confidence, "regex", p.Expr, sentence), true
	}
	return store.Rule{}, false
}
