package extract

import (
	"github.com/cognicore/kbase/pkg/kbase/ingest"
	"github.com/cognicore/kbase/pkg/kbase/linguistic"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// structuralRule walks the dependency tree: a conditional marker attached
// as mark/advmod bounds the condition with its clause's subtree, and the
// clause's head (or a coordinate/adverbial child of a root clause) bounds
// the action.
func (e *Extractor) structuralRule(doc *linguistic.Doc, sentence string, src Source) (store.Rule, bool) {
	for _, tok := range doc.Tokens {
		if tok.Dep != linguistic.DepMark && tok.Dep != linguistic.DepAdvmod {
			continue
		}
		if !e.markers.isConditional(tok.Lemma) {
			continue
		}
		clause := tok.Head
		if clause == tok.Index || clause < 0 || clause >= len(doc.Tokens) {
			continue
		}

		condSet := doc.Subtree(clause)
		condition := ingest.CleanText(doc.SpanText(e.trim(doc, condSet)))
		action := ingest.CleanText(doc.SpanText(e.actionSpan(doc, clause, condSet)))
		if !validLen(condition, MinRulePart, MaxRulePart) || !validLen(action, MinRulePart, MaxRulePart) {
			continue
		}

		typ := e.markers.RefineType(tok.Lemma, condition, action)
		return e.newRule(src, condition, action, typ, Confidence(doc), "linguistic", "structural", sentence), true
	}
	return store.Rule{}, false
}

func (e *Extractor) actionSpan(doc *linguistic.Doc, clause int, condSet []int) []int {
	head := doc.Tokens[clause].Head
	if head == clause {
		for _, c := range doc.Children(clause) {
			switch doc.Tokens[c].Dep {
			case linguistic.DepConj, linguistic.DepAdvcl, linguistic.DepCcomp:
				return e.trim(doc, doc.Subtree(c))
			}
		}
		return nil
	}

	inCond := make(map[int]bool, len(condSet))
	for _, i := range condSet {
		inCond[i] = true
	}
	var out []int
	for _, i := range doc.Subtree(head) {
		if !inCond[i] {
			out = append(out, i)
		}
	}
	return e.trim(doc, out)
}

// trim drops markers, then-words and punctuation attachments.
func (e *Extractor) trim(doc *linguistic.Doc, idx []int) []int {
	out := make([]int, 0, len(idx))
	for _, i := range idx {
		tok := doc.Tokens[i]
		switch {
		case tok.Dep == linguistic.DepPunct:
		case tok.Dep == linguistic.DepMark && e.markers.isConditional(tok.Lemma):
		case tok.Dep == linguistic.DepAdvmod && (e.markers.isThen(tok.Lemma) || e.markers.isConditional(tok.Lemma)):
		default:
			out = append(out, i)
		}
	}
	return out
}

// Confidence scores a structurally extracted rule: 0.5 base, +0.2 for a
// subordinating marker, +0.1 for a verb, +0.1 for a named entity, -0.1 when
// clauses beyond the condition and its main clause are joined in, clamped
// to [0.1, 1].
func Confidence(doc *linguistic.Doc) float64 {
	c := 0.5
	if doc.HasDep(linguistic.DepMark) {
		c += 0.2
	}
	if doc.HasPOS(linguistic.PosVerb) {
		c += 0.1
	}
	if len(doc.Entities) > 0 {
		c += 0.1
	}
	if doc.Clauses() > 2 {
		c -= 0.1
	}
	return clamp(c, 0.1, 1.0)
}
