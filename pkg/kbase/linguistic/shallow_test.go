package linguistic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnavailable(t *testing.T) {
	var a Analyzer = Unavailable{}
	assert.False(t, a.Available())
	assert.Nil(t, a.Sentences("Что-то. Ещё."))
	_, err := a.Parse("Что-то")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSplitTokens(t *testing.T) {
	got := splitTokens("Из-за жары 36.6, то (всё) > 5")
	assert.Equal(t, []string{"Из-за", "жары", "36.6", ",", "то", "(", "всё", ")", ">", "5"}, got)
}

func TestShallowParseConditional(t *testing.T) {
	doc, err := NewShallow("ru").Parse("Если температура выше 38, то это лихорадка")
	require.NoError(t, err)
	require.Len(t, doc.Tokens, 8)

	marker := doc.Tokens[0]
	assert.Equal(t, PosSconj, marker.POS)
	assert.Equal(t, DepMark, marker.Dep)

	clause := doc.Tokens[marker.Head]
	assert.Equal(t, DepAdvcl, clause.Dep)
	assert.Equal(t, "температура выше 38", doc.SpanText(without(doc.Subtree(clause.Index), 0)))

	root := doc.Tokens[clause.Head]
	assert.Equal(t, DepRoot, root.Dep)
	assert.Equal(t, root.Index, root.Head)
	assert.Equal(t, DepAdvmod, doc.Tokens[5].Dep)
	assert.Equal(t, DepPunct, doc.Tokens[4].Dep)
	assert.Equal(t, 2, doc.Clauses())
}

func TestShallowParseCoordinateClause(t *testing.T) {
	doc, err := NewShallow("ru").Parse("Если давление повышается, то пациент отдыхает и врач приходит")
	require.NoError(t, err)

	require.Equal(t, "приходит", doc.Tokens[9].Text)
	assert.Equal(t, DepConj, doc.Tokens[9].Dep)
	assert.Equal(t, 6, doc.Tokens[9].Head)
	assert.Equal(t, 3, doc.Clauses())
}

func TestShallowParseVerbsAndModals(t *testing.T) {
	doc, err := NewShallow("ru").Parse("Если давление повышается, то пациент должен отдыхать")
	require.NoError(t, err)

	assert.Equal(t, PosVerb, doc.Tokens[2].POS)
	assert.Equal(t, PosAux, doc.Tokens[6].POS)
	// the main clause is headed by its first verb-like token
	assert.Equal(t, DepRoot, doc.Tokens[6].Dep)
	assert.True(t, doc.HasPOS(PosVerb))
	assert.True(t, doc.HasDep(DepMark))
}

func TestShallowParseWithoutClause(t *testing.T) {
	doc, err := NewShallow("en").Parse("Smoking causes cancer")
	require.NoError(t, err)

	assert.False(t, doc.HasDep(DepMark))
	roots := 0
	for _, tok := range doc.Tokens {
		if tok.Dep == DepRoot {
			roots++
			assert.Equal(t, "causes", tok.Text)
		}
	}
	assert.Equal(t, 1, roots)
}

func TestShallowEntities(t *testing.T) {
	sh := NewShallow("ru")
	sh.AddEntity("ORG", "Минздрав", []string{"минздрав", "министерство здравоохранения"})
	sh.AddEntity("LOC", "Москва", []string{"москв"})

	doc, err := sh.Parse("Если Министерство здравоохранения в Москве объявит карантин, то школы закрываются")
	require.NoError(t, err)
	assert.Equal(t, []Entity{{Type: "LOC", Text: "Москва"}, {Type: "ORG", Text: "Минздрав"}}, doc.Entities)
}

func TestShallowSentencesAbbreviations(t *testing.T) {
	sh := NewShallow("ru")
	got := sh.Sentences("Лекарства, т.е. препараты, помогают. Отдых тоже")
	assert.Equal(t, []string{"Лекарства, т.е. препараты, помогают", " Отдых тоже"}, got)
}

func TestSubtreeBounds(t *testing.T) {
	doc := &Doc{}
	assert.Nil(t, doc.Subtree(0))
	assert.Nil(t, doc.Subtree(-1))
}

func without(idx []int, drop int) []int {
	out := idx[:0:0]
	for _, i := range idx {
		if i != drop {
			out = append(out, i)
		}
	}
	return out
}
