package extract

import (
	"fmt"

	"github.com/cognicore/kbase/pkg/kbase/ingest"
	"github.com/cognicore/kbase/pkg/kbase/linguistic"
	"github.com/cognicore/kbase/pkg/kbase/patterns"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// textFacts scans the whole text with every fact pattern and keeps every
// match that passes validation.
func (e *Extractor) textFacts(res *Result, text string, src Source) []store.Fact {
	var out []store.Fact
	for i := range e.set.Facts {
		p := &e.set.Facts[i]
		pairs, err := p.FindAll(text)
		if err != nil {
			// keep what matched before the failure
			e.note(res, fmt.Sprintf("fact pattern %d", i), err)
		}
		for _, pair := range pairs {
			variable := ingest.CleanText(pair.Variable)
			value := ingest.StripQuotes(ingest.CleanText(pair.Value))
			if !validLen(variable, MinFactPart, MaxFactVarLen) || !validLen(value, MinFactPart, p.MaxValue) {
				continue
			}
			out = append(out, e.newFact(src, variable, value, p.Confidence))
		}
	}
	return out
}

// entityFacts emits one fact per recognised named entity.
func (e *Extractor) entityFacts(doc *linguistic.Doc, src Source) []store.Fact {
	var out []store.Fact
	for _, ent := range doc.Entities {
		value := ingest.CleanText(ent.Text)
		if ent.Type == "" || !validLen(value, MinFactPart, patterns.MaxFactValue) {
			continue
		}
		out = append(out, e.newFact(src, "entity_"+ent.Type, value, EntityConf))
	}
	return out
}
