package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/linguistic"
	"github.com/cognicore/kbase/pkg/kbase/patterns"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

var fixed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newExtractor(t *testing.T, lang string, opts ...Option) *Extractor {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixed })}, opts...)
	e, err := New(patterns.Default(), lang, opts...)
	require.NoError(t, err)
	return e
}

var src = Source{AgentID: "agent_1a2b3c4d", DomainID: "dom-1", SourceFile: "med.txt", Author: "doc"}

func TestExtractConditionalRule(t *testing.T) {
	e := newExtractor(t, "ru")
	res := e.Extract("Если температура выше 38, то это лихорадка.", src)

	require.Len(t, res.Rules, 1)
	r := res.Rules[0]
	assert.Equal(t, "температура выше 38", r.Condition)
	assert.Equal(t, "это лихорадка", r.Action)
	assert.Equal(t, store.Conditional, r.Type)
	assert.Equal(t, 1, r.Priority)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, []string{"extracted", "regex"}, r.Tags)
	assert.Equal(t, "Правило из 'med.txt'", r.Name)
	assert.Equal(t, src.AgentID, r.AgentID)
	assert.Equal(t, src.DomainID, r.DomainID)
	assert.Equal(t, "doc", r.Author)
	assert.Equal(t, fixed, r.CreatedAt)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "Если температура выше 38, то это лихорадка", r.Metadata["sentence"])

	assert.Empty(t, res.Facts)
	assert.Equal(t, Stats{Sentences: 1, Rules: 1}, res.Stats)
}

func TestExtractEqualityFact(t *testing.T) {
	e := newExtractor(t, "ru")
	res := e.Extract("Нормальная температура = 36.6", Source{AgentID: "a"})

	assert.Empty(t, res.Rules)
	require.Len(t, res.Facts, 1)
	f := res.Facts[0]
	assert.Equal(t, "температура", f.Variable)
	assert.Equal(t, "36.6", f.Value)
	assert.Equal(t, 0.7, f.Confidence)
	assert.False(t, f.Derived)
	assert.Equal(t, "system", f.Author)
}

func TestExtractFactsScanWholeText(t *testing.T) {
	e := newExtractor(t, "ru")
	res := e.Extract("Температура = 39. Давление = 140. Пульс: 90", src)

	require.Len(t, res.Facts, 3)
	got := map[string]string{}
	for _, f := range res.Facts {
		got[f.Variable] = f.Value
	}
	assert.Equal(t, map[string]string{"Температура": "39", "Давление": "140", "Пульс": "90"}, got)
}

func TestExtractCopulaFacts(t *testing.T) {
	e := newExtractor(t, "ru")
	res := e.Extract("Лихорадка - это повышение температуры тела. Аспирин является лекарством.", src)

	require.Len(t, res.Facts, 2)
	assert.Equal(t, "Лихорадка", res.Facts[0].Variable)
	assert.Equal(t, "повышение температуры тела", res.Facts[0].Value)
	assert.Equal(t, 0.95, res.Facts[0].Confidence)
	assert.Equal(t, "Аспирин", res.Facts[1].Variable)
	assert.Equal(t, 0.9, res.Facts[1].Confidence)
}

func TestExtractRejectsShortParts(t *testing.T) {
	e := newExtractor(t, "ru")
	res := e.Extract("Если да, то нет.", src)
	assert.Empty(t, res.Rules)
}

func TestExtractCausalFallback(t *testing.T) {
	e := newExtractor(t, "ru")
	res := e.Extract("Курение приводит к раку лёгких.", src)

	require.Len(t, res.Rules, 1)
	assert.Equal(t, store.Causal, res.Rules[0].Type)
	assert.Equal(t, "Курение", res.Rules[0].Condition)
	assert.Equal(t, "раку лёгких", res.Rules[0].Action)
	assert.Equal(t, 0.8, res.Rules[0].Confidence)
}

func TestExtractEnglish(t *testing.T) {
	e := newExtractor(t, "en")
	res := e.Extract("If the pressure rises, then the alarm sounds. Fever is a symptom.", Source{AgentID: "a"})

	require.Len(t, res.Rules, 1)
	assert.Equal(t, "the pressure rises", res.Rules[0].Condition)
	assert.Equal(t, "the alarm sounds", res.Rules[0].Action)
	assert.Equal(t, "Rule from 'text'", res.Rules[0].Name)

	require.Len(t, res.Facts, 1)
	assert.Equal(t, "Fever", res.Facts[0].Variable)
	assert.Equal(t, "a symptom", res.Facts[0].Value)
}

func TestExtractUnknownLanguage(t *testing.T) {
	_, err := New(patterns.Default(), "de")
	assert.True(t, errors.Is(err, internalerr.ErrInvalidConfig))
}

func TestStructuralPassPreferred(t *testing.T) {
	e := newExtractor(t, "ru", WithAnalyzer(linguistic.NewShallow("ru")))
	require.True(t, e.Structural())

	res := e.Extract("Если температура выше 38, то это лихорадка.", src)
	require.Len(t, res.Rules, 1)
	r := res.Rules[0]
	assert.Equal(t, "температура выше 38", r.Condition)
	assert.Equal(t, "это лихорадка", r.Action)
	assert.Equal(t, store.Conditional, r.Type)
	assert.Equal(t, []string{"extracted", "linguistic"}, r.Tags)
	assert.InDelta(t, 0.7, r.Confidence, 1e-9)
}

func TestStructuralRuleTypes(t *testing.T) {
	e := newExtractor(t, "ru", WithAnalyzer(linguistic.NewShallow("ru")))

	tests := []struct {
		text string
		cond string
		act  string
		typ  store.RuleType
		conf float64
	}{
		{"Когда солнце садится, тогда становится темно", "солнце садится", "становится темно", store.Temporal, 0.8},
		{"Если давление повышается, то пациент должен отдыхать", "давление повышается", "пациент должен отдыхать", store.Obligation, 0.8},
		{"Если курение вызывает кашель, то нужно бросить", "курение вызывает кашель", "нужно бросить", store.Causal, 0.8},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			res := e.Extract(tt.text, src)
			require.Len(t, res.Rules, 1)
			r := res.Rules[0]
			assert.Equal(t, tt.cond, r.Condition)
			assert.Equal(t, tt.act, r.Action)
			assert.Equal(t, tt.typ, r.Type)
			assert.InDelta(t, tt.conf, r.Confidence, 1e-9)
		})
	}
}

func TestStructuralExtraClauseLowersConfidence(t *testing.T) {
	e := newExtractor(t, "ru", WithAnalyzer(linguistic.NewShallow("ru")))

	single := e.Extract("Если давление повышается, то пациент отдыхает", src)
	joined := e.Extract("Если давление повышается, то пациент отдыхает и врач приходит", src)
	require.Len(t, single.Rules, 1)
	require.Len(t, joined.Rules, 1)
	assert.InDelta(t, 0.8, single.Rules[0].Confidence, 1e-9)
	assert.InDelta(t, 0.7, joined.Rules[0].Confidence, 1e-9)
}

func TestStructuralFallsBackToRegex(t *testing.T) {
	e := newExtractor(t, "ru", WithAnalyzer(linguistic.NewShallow("ru")))
	res := e.Extract("Курение приводит к раку лёгких.", src)

	require.Len(t, res.Rules, 1)
	assert.Equal(t, []string{"extracted", "regex"}, res.Rules[0].Tags)
}

func TestEntityFacts(t *testing.T) {
	sh := linguistic.NewShallow("ru")
	sh.AddEntity("LOC", "Москва", []string{"москв"})
	e := newExtractor(t, "ru", WithAnalyzer(sh))

	res := e.Extract("Если в Москве жара, то пейте воду.", src)
	require.Len(t, res.Rules, 1)
	assert.InDelta(t, 0.8, res.Rules[0].Confidence, 1e-9)

	require.Len(t, res.Facts, 1)
	assert.Equal(t, "entity_LOC", res.Facts[0].Variable)
	assert.Equal(t, "Москва", res.Facts[0].Value)
	assert.Equal(t, EntityConf, res.Facts[0].Confidence)
	assert.Equal(t, 1, res.Stats.Entities)
}

type brokenAnalyzer struct{ panics bool }

func (brokenAnalyzer) Available() bool { return true }

func (brokenAnalyzer) Sentences(text string) []string { return []string{text} }

func (b brokenAnalyzer) Parse(string) (*linguistic.Doc, error) {
	if b.panics {
		panic("model crashed")
	}
	return nil, errors.New("model failed")
}

func TestParseErrorFallsBackAndNotes(t *testing.T) {
	e := newExtractor(t, "ru", WithAnalyzer(brokenAnalyzer{}))
	res := e.Extract("Если температура выше 38, то это лихорадка", src)

	require.Len(t, res.Rules, 1)
	assert.Equal(t, []string{"extracted", "regex"}, res.Rules[0].Tags)
	assert.Len(t, res.Notes, 1)
}

func TestPanicSkipsSentenceOnly(t *testing.T) {
	e := newExtractor(t, "ru", WithAnalyzer(brokenAnalyzer{panics: true}))
	res := e.Extract("Если температура выше 38, то это лихорадка. Пульс = 90", src)

	assert.Empty(t, res.Rules)
	require.Len(t, res.Facts, 1)
	assert.Equal(t, "Пульс", res.Facts[0].Variable)
	assert.NotEmpty(t, res.Notes)
}

func TestConfidenceBounds(t *testing.T) {
	e := newExtractor(t, "ru")
	text := "Если a, то b. Если температура выше 38, то это лихорадка. Стресс вызывает бессонницу. " +
		"Кофеин это стимулятор. Значение x = 10. Вес составляет 80 кг. y: zz"
	res := e.Extract(text, src)
	for _, r := range res.Rules {
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
	}
	for _, f := range res.Facts {
		assert.GreaterOrEqual(t, f.Confidence, 0.0)
		assert.LessOrEqual(t, f.Confidence, 1.0)
	}
}

func TestConfidenceFormula(t *testing.T) {
	mark := linguistic.Token{Index: 0, Dep: linguistic.DepMark}
	verb := linguistic.Token{Index: 1, POS: linguistic.PosVerb}
	ent := []linguistic.Entity{{Type: "ORG", Text: "ВОЗ"}}

	root := linguistic.Token{Index: 2, Dep: linguistic.DepRoot}
	advcl := linguistic.Token{Index: 3, Dep: linguistic.DepAdvcl}
	conj := linguistic.Token{Index: 4, Dep: linguistic.DepConj}

	tests := []struct {
		name string
		doc  linguistic.Doc
		want float64
	}{
		{"bare", linguistic.Doc{}, 0.5},
		{"mark", linguistic.Doc{Tokens: []linguistic.Token{mark}}, 0.7},
		{"all", linguistic.Doc{Tokens: []linguistic.Token{mark, verb}, Entities: ent}, 0.9},
		{"condition and main clause", linguistic.Doc{Tokens: []linguistic.Token{mark, root, advcl}}, 0.7},
		{"extra clause", linguistic.Doc{Tokens: []linguistic.Token{mark, root, advcl, conj}}, 0.6},
		{"extra clauses only", linguistic.Doc{Tokens: []linguistic.Token{root, advcl, conj}}, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(&tt.doc)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.1)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestRefineType(t *testing.T) {
	m := MarkersFor("en")
	assert.Equal(t, store.Causal, m.RefineType("if", "smoking causes harm", "stop"))
	assert.Equal(t, store.Temporal, m.RefineType("when", "sun sets", "dark"))
	assert.Equal(t, store.Obligation, m.RefineType("if", "it rains", "you must stay"))
	assert.Equal(t, store.Conditional, m.RefineType("if", "it rains", "ground is wet"))
}
