package kbase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/kbase/pkg/kbase/analytics"
	"github.com/cognicore/kbase/pkg/kbase/extract"
	"github.com/cognicore/kbase/pkg/kbase/inference"
	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/store"
	"github.com/cognicore/kbase/pkg/kbase/store/memstore"
)

var fixed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	kb     *KBase
	domain store.Domain
	agent  store.Agent
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()

	kb, err := New(Options{Store: st, Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })

	dom, err := st.AddDomain(ctx, store.Domain{Name: "медицина"})
	require.NoError(t, err)
	agent, err := st.AddAgent(ctx, store.Agent{Name: "терапевт", DomainID: dom.ID})
	require.NoError(t, err)
	return fixture{kb: kb, domain: dom, agent: agent}
}

func (f fixture) source() extract.Source {
	return extract.Source{AgentID: f.agent.ID, DomainID: f.domain.ID, SourceFile: "med.txt", Author: "doc"}
}

func (f fixture) addRule(t *testing.T, cond, action string, priority int) string {
	t.Helper()
	id, created, err := f.kb.Store().AddRule(context.Background(), store.Rule{
		Name:       cond,
		Condition:  cond,
		Action:     action,
		Type:       store.Conditional,
		Priority:   priority,
		Confidence: 0.9,
		AgentID:    f.agent.ID,
		DomainID:   f.domain.ID,
	})
	require.NoError(t, err)
	require.True(t, created)
	return id
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidConfig))

	_, err = New(Options{Store: memstore.New(), Language: "de"})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidConfig))
}

func TestAnalyzeAndSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	text := "Если температура выше 38, то это лихорадка. Нормальная температура = 36.6"

	res := f.kb.Analyze(text, f.source())
	require.Len(t, res.Rules, 1)
	require.Len(t, res.Facts, 1)
	assert.Equal(t, "температура выше 38", res.Rules[0].Condition)
	assert.Equal(t, "это лихорадка", res.Rules[0].Action)
	assert.Equal(t, fixed, res.Rules[0].CreatedAt)

	saved, err := f.kb.Save(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, SaveStats{Rules: 1, Facts: 1}, saved)

	again, err := f.kb.Save(ctx, f.kb.Analyze(text, f.source()))
	require.NoError(t, err)
	assert.Equal(t, SaveStats{Duplicates: 1, Facts: 1}, again)

	stats, err := f.kb.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rules)
	assert.Equal(t, 2, stats.Facts)

	agent, _, err := f.kb.Store().GetAgent(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, agent.RulesCount)
	assert.Equal(t, 2, agent.FactsCount)
}

func TestSaveUnknownAgent(t *testing.T) {
	f := newFixture(t)
	res := f.kb.Analyze("Если температура выше 38, то это лихорадка.", extract.Source{AgentID: "agent_missing"})

	_, err := f.kb.Save(context.Background(), res)
	assert.True(t, errors.Is(err, internalerr.ErrNotFound))
}

func TestAnalyzeFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "notes.html")
	html := "<html><body><p>Если давление выше 140, то это гипертония.</p></body></html>"
	require.NoError(t, os.WriteFile(path, []byte(html), 0644))

	res, err := f.kb.AnalyzeFile(path, f.source())
	require.NoError(t, err)
	require.Len(t, res.Rules, 1)
	assert.Equal(t, "notes.html", res.Rules[0].SourceFile)
	assert.Equal(t, "давление выше 140", res.Rules[0].Condition)

	_, err = f.kb.AnalyzeFile(filepath.Join(t.TempDir(), "missing.txt"), f.source())
	assert.Error(t, err)
}

func TestTextStats(t *testing.T) {
	f := newFixture(t)
	st := f.kb.TextStats("Если температура выше 38, то это лихорадка. Пульс = 90. Просто текст без правил.")

	assert.Equal(t, 3, st.Sentences)
	assert.Equal(t, 1, st.PotentialRules)
	assert.Equal(t, 1, st.PotentialFacts)
}

func TestForwardAndSaveDerived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ruleID := f.addRule(t, "температура > 38", "диагноз = 'лихорадка'", 1)

	res, err := f.kb.Forward(ctx, Query{
		Filter: store.Filter{AgentID: f.agent.ID},
		Facts:  inference.Memory{"температура": "39.5"},
	})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Passes)
	assert.Equal(t, "лихорадка", res.Memory["диагноз"])
	require.Len(t, res.Derived, 1)
	assert.Equal(t, ruleID, res.Derived[0].RuleID)

	n, err := f.kb.SaveDerived(ctx, f.agent.ID, res.Derived)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	facts, err := f.kb.Store().FactsByVariable(ctx, "диагноз")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.True(t, facts[0].Derived)
	assert.Equal(t, "лихорадка", facts[0].Value)
	assert.Equal(t, 0.9, facts[0].Confidence)
	assert.Equal(t, f.domain.ID, facts[0].DomainID)

	_, err = f.kb.SaveDerived(ctx, "agent_missing", res.Derived)
	assert.True(t, errors.Is(err, internalerr.ErrNotFound))
}

func TestForwardSeedsStoredFacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addRule(t, "температура > 38", "диагноз = 'лихорадка'", 1)
	_, err := f.kb.Store().AddFact(ctx, store.Fact{
		Variable: "температура", Value: "39.5", Confidence: 1, AgentID: f.agent.ID,
	})
	require.NoError(t, err)

	without, err := f.kb.Forward(ctx, Query{Filter: store.Filter{AgentID: f.agent.ID}})
	require.NoError(t, err)
	assert.NotContains(t, without.Memory, "диагноз")

	with, err := f.kb.Forward(ctx, Query{Filter: store.Filter{AgentID: f.agent.ID}, Stored: true})
	require.NoError(t, err)
	assert.Equal(t, "лихорадка", with.Memory["диагноз"])

	overridden, err := f.kb.Forward(ctx, Query{
		Filter: store.Filter{AgentID: f.agent.ID},
		Stored: true,
		Facts:  inference.Memory{"температура": "36.6"},
	})
	require.NoError(t, err)
	assert.NotContains(t, overridden.Memory, "диагноз")
}

func TestBackward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addRule(t, "температура > 38", "лихорадка = true", 2)
	f.addRule(t, "лихорадка и кашель", "диагноз = 'грипп'", 1)

	res, err := f.kb.Backward(ctx, Query{
		Filter: store.Filter{DomainID: f.domain.ID},
		Facts:  inference.Memory{"температура": "39", "кашель": "да"},
	}, "диагноз")
	require.NoError(t, err)
	assert.True(t, res.Proved)
	assert.Equal(t, "грипп", res.Memory["диагноз"])

	_, err = f.kb.Backward(ctx, Query{}, "  ")
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func TestSimilarAndConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addRule(t, "давление больше 140 и пульс выше 90", "гипертонический криз", 1)
	f.addRule(t, "давление больше 140 и пульс выше 90 сегодня", "вызвать врача", 1)
	f.addRule(t, "кашель", "простуда", 1)

	similar, err := f.kb.Similar(ctx, store.Filter{AgentID: f.agent.ID}, 0)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, analytics.SameCondition, similar[0].Kind)
	assert.InDelta(t, 7.0/8.0, similar[0].Similarity, 1e-9)

	conflicts, err := f.kb.Conflicts(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, analytics.DifferentActions, conflicts[0].Kind)
	assert.Greater(t, conflicts[0].ConditionSimilarity, analytics.StrongSimilarity)

	strict, err := f.kb.Similar(ctx, store.Filter{}, 0.95)
	require.NoError(t, err)
	assert.Empty(t, strict)
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addRule(t, "температура > 38", "диагноз = 'лихорадка'", 1)

	rep, err := f.kb.TraceReport(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rules)
	assert.Contains(t, rep.Recommendations, analytics.SmallKnowledgeBase)

	_, err = f.kb.TraceReport(ctx, "agent_missing")
	assert.True(t, errors.Is(err, internalerr.ErrNotFound))

	other, err := f.kb.Store().AddAgent(ctx, store.Agent{Name: "хирург"})
	require.NoError(t, err)
	cmp, err := f.kb.CompareAgents(ctx, []string{f.agent.ID, other.ID})
	require.NoError(t, err)
	assert.Equal(t, f.agent.ID, cmp.MostRules.Agent.ID)
	assert.Equal(t, other.ID, cmp.FewestRules.Agent.ID)

	_, err = f.kb.CompareAgents(ctx, []string{f.agent.ID})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, name := range []string{"kb.json", "kb.csv"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.addRule(t, "температура > 38", "диагноз = 'лихорадка'", 2)
			_, err := f.kb.Store().AddFact(ctx, store.Fact{
				Variable: "температура", Value: "36.60", Confidence: 0.8, AgentID: f.agent.ID, DomainID: f.domain.ID,
			})
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), name)
			doc, err := f.kb.Export(ctx, path)
			require.NoError(t, err)
			assert.Len(t, doc.ExportID, 26)

			target, err := New(Options{Store: memstore.New()})
			require.NoError(t, err)
			stats, err := target.Import(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Domains)
			assert.Equal(t, 1, stats.Agents)
			assert.Equal(t, 1, stats.Rules)
			assert.Equal(t, 1, stats.Facts)

			rules, err := target.Store().ListRules(ctx, store.Filter{AgentID: f.agent.ID})
			require.NoError(t, err)
			require.Len(t, rules, 1)
			assert.Equal(t, "диагноз = 'лихорадка'", rules[0].Action)
			assert.Equal(t, 2, rules[0].Priority)

			facts, err := target.Store().ListFacts(ctx, store.Filter{})
			require.NoError(t, err)
			require.Len(t, facts, 1)
			assert.Equal(t, "36.60", facts[0].Value)
		})
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.kb.Export(ctx, filepath.Join(t.TempDir(), "kb.xml"))
	assert.True(t, errors.Is(err, internalerr.ErrUnsupportedFormat))

	_, err = f.kb.Import(ctx, "kb.yaml")
	assert.True(t, errors.Is(err, internalerr.ErrUnsupportedFormat))
}
