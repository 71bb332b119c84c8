package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

func seed(t *testing.T) (*Store, store.Domain, store.Agent) {
	t.Helper()
	ctx := context.Background()
	s := New()
	d, err := s.AddDomain(ctx, store.Domain{Name: "medicine"})
	if err != nil {
		t.Fatalf("AddDomain: %v", err)
	}
	a, err := s.AddAgent(ctx, store.Agent{Name: "doctor", DomainID: d.ID})
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	return s, d, a
}

func TestDomainNamesUnique(t *testing.T) {
	s, _, _ := seed(t)
	_, err := s.AddDomain(context.Background(), store.Domain{Name: "medicine"})
	if !errors.Is(err, internalerr.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestAgentRequiresKnownDomain(t *testing.T) {
	s := New()
	_, err := s.AddAgent(context.Background(), store.Agent{Name: "x", DomainID: "missing"})
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAgentIDFormat(t *testing.T) {
	_, _, a := seed(t)
	if len(a.ID) != len("agent_")+8 || a.ID[:6] != "agent_" {
		t.Errorf("unexpected agent id %q", a.ID)
	}
}

func TestAddRuleDeduplicates(t *testing.T) {
	s, d, a := seed(t)
	ctx := context.Background()

	r := store.Rule{Condition: "температура выше 38", Action: "это лихорадка", AgentID: a.ID, DomainID: d.ID}
	id1, created, err := s.AddRule(ctx, r)
	if err != nil || !created {
		t.Fatalf("first AddRule: created=%v err=%v", created, err)
	}

	r.Condition = "температура   выше 38"
	id2, created, err := s.AddRule(ctx, r)
	if err != nil {
		t.Fatalf("second AddRule: %v", err)
	}
	if created || id2 != id1 {
		t.Errorf("duplicate should return existing id %s, got %s created=%v", id1, id2, created)
	}

	agent, _, _ := s.GetAgent(ctx, a.ID)
	if agent.RulesCount != 1 {
		t.Errorf("RulesCount = %d, want 1", agent.RulesCount)
	}

	// A different agent may own the same rule.
	other, _ := s.AddAgent(ctx, store.Agent{Name: "nurse", DomainID: d.ID})
	r.AgentID = other.ID
	if _, created, _ := s.AddRule(ctx, r); !created {
		t.Error("same rule for another agent should be created")
	}
}

func TestAddRuleValidation(t *testing.T) {
	s, _, a := seed(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rule store.Rule
		want error
	}{
		{"empty condition", store.Rule{Action: "x", AgentID: a.ID}, internalerr.ErrInvalidInput},
		{"missing agent", store.Rule{Condition: "a", Action: "b"}, internalerr.ErrInvalidInput},
		{"unknown agent", store.Rule{Condition: "a", Action: "b", AgentID: "agent_nope"}, internalerr.ErrNotFound},
		{"unknown domain", store.Rule{Condition: "a", Action: "b", AgentID: a.ID, DomainID: "nope"}, internalerr.ErrNotFound},
		{"bad confidence", store.Rule{Condition: "a", Action: "b", AgentID: a.ID, Confidence: 1.5}, internalerr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.AddRule(ctx, tt.rule)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestListRulesOrdering(t *testing.T) {
	s, _, a := seed(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	add := func(cond string, prio int, at time.Time) {
		t.Helper()
		if _, _, err := s.AddRule(ctx, store.Rule{Condition: cond, Action: "act", AgentID: a.ID, Priority: prio, CreatedAt: at}); err != nil {
			t.Fatalf("AddRule: %v", err)
		}
	}
	add("low", 1, base.Add(time.Hour))
	add("high-old", 5, base)
	add("high-new", 5, base.Add(time.Minute))

	rules, err := s.ListRules(ctx, store.Filter{AgentID: a.ID})
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	want := []string{"high-new", "high-old", "low"}
	for i, w := range want {
		if rules[i].Condition != w {
			t.Errorf("rules[%d] = %q, want %q", i, rules[i].Condition, w)
		}
	}
}

func TestSearchRules(t *testing.T) {
	s, _, a := seed(t)
	ctx := context.Background()

	s.AddRule(ctx, store.Rule{Name: "Fever", Condition: "температура выше 38", Action: "лихорадка", AgentID: a.ID})
	s.AddRule(ctx, store.Rule{Condition: "давление выше 140", Action: "гипертония", AgentID: a.ID, Tags: []string{"Cardio"}})

	got, _ := s.SearchRules(ctx, "ТЕМПЕРАТУРА", store.Filter{})
	if len(got) != 1 || got[0].Action != "лихорадка" {
		t.Errorf("condition search: %+v", got)
	}
	got, _ = s.SearchRules(ctx, "cardio", store.Filter{})
	if len(got) != 1 {
		t.Errorf("tag search returned %d rules", len(got))
	}
	got, _ = s.SearchRules(ctx, "fever", store.Filter{AgentID: "agent_other"})
	if len(got) != 0 {
		t.Errorf("filter should exclude rules of other agents")
	}
}

func TestReturnedRulesAreCopies(t *testing.T) {
	s, _, a := seed(t)
	ctx := context.Background()

	id, _, _ := s.AddRule(ctx, store.Rule{Condition: "a > 1", Action: "b = 2", AgentID: a.ID, Tags: []string{"t"}})
	r, _, _ := s.GetRule(ctx, id)
	r.Tags[0] = "mutated"

	again, _, _ := s.GetRule(ctx, id)
	if again.Tags[0] != "t" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestUpdateRulePriority(t *testing.T) {
	s, _, a := seed(t)
	ctx := context.Background()

	id, _, _ := s.AddRule(ctx, store.Rule{Condition: "a", Action: "b", AgentID: a.ID})
	if err := s.UpdateRulePriority(ctx, id, 9); err != nil {
		t.Fatalf("UpdateRulePriority: %v", err)
	}
	r, _, _ := s.GetRule(ctx, id)
	if r.Priority != 9 {
		t.Errorf("priority = %d, want 9", r.Priority)
	}
	if err := s.UpdateRulePriority(ctx, "missing", 1); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFactsByVariable(t *testing.T) {
	s, _, a := seed(t)
	ctx := context.Background()

	s.AddFact(ctx, store.Fact{Variable: "температура", Value: "36.6", Confidence: 0.7, AgentID: a.ID})
	s.AddFact(ctx, store.Fact{Variable: "температура", Value: "39", Confidence: 0.9, AgentID: a.ID})
	s.AddFact(ctx, store.Fact{Variable: "пульс", Value: "90", Confidence: 0.8, AgentID: a.ID})

	facts, _ := s.FactsByVariable(ctx, "температура")
	if len(facts) != 2 || facts[0].Value != "39" {
		t.Errorf("expected most confident first, got %+v", facts)
	}

	vars, _ := s.Variables(ctx)
	if len(vars) != 2 || vars[0] != "пульс" || vars[1] != "температура" {
		t.Errorf("Variables = %v", vars)
	}
}

func TestDeleteAgentCascades(t *testing.T) {
	s, d, a := seed(t)
	ctx := context.Background()

	s.AddRule(ctx, store.Rule{Condition: "a", Action: "b", AgentID: a.ID, DomainID: d.ID})
	s.AddFact(ctx, store.Fact{Variable: "x", Value: "1", AgentID: a.ID, DomainID: d.ID})

	if err := s.DeleteAgent(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}

	st, _ := s.Statistics(ctx)
	if st.Rules != 0 || st.Facts != 0 || st.Variables != 0 || st.Agents != 0 {
		t.Errorf("cascade left data behind: %+v", st)
	}
	dom, _, _ := s.GetDomain(ctx, d.ID)
	if dom.RulesCount != 0 || dom.FactsCount != 0 || dom.AgentsCount != 0 {
		t.Errorf("domain counters not decremented: %+v", dom)
	}
}

func TestDeleteDomainDetaches(t *testing.T) {
	s, d, a := seed(t)
	ctx := context.Background()

	id, _, _ := s.AddRule(ctx, store.Rule{Condition: "a", Action: "b", AgentID: a.ID, DomainID: d.ID})
	if err := s.DeleteDomain(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDomain: %v", err)
	}

	agent, ok, _ := s.GetAgent(ctx, a.ID)
	if !ok || agent.DomainID != "" {
		t.Errorf("agent should survive with no domain: %+v", agent)
	}
	r, ok, _ := s.GetRule(ctx, id)
	if !ok || r.DomainID != "" {
		t.Errorf("rule should survive with no domain: %+v", r)
	}
	// The detached rule is still found by the dedup index.
	if _, created, _ := s.AddRule(ctx, store.Rule{Condition: "a", Action: "b", AgentID: a.ID}); created {
		t.Error("detached rule should still deduplicate")
	}
}

func TestDeleteDomainMergesCollidingRules(t *testing.T) {
	s, d, a := seed(t)
	ctx := context.Background()

	keep, _, _ := s.AddRule(ctx, store.Rule{Condition: "a", Action: "b", AgentID: a.ID})
	scoped, created, _ := s.AddRule(ctx, store.Rule{Condition: "a", Action: "b", AgentID: a.ID, DomainID: d.ID})
	if !created || scoped == keep {
		t.Fatalf("domain-scoped rule should be distinct before the delete")
	}
	if err := s.DeleteDomain(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDomain: %v", err)
	}

	rules, _ := s.ListRules(ctx, store.Filter{AgentID: a.ID})
	if len(rules) != 1 || rules[0].ID != keep {
		t.Fatalf("expected only %s to remain, got %+v", keep, rules)
	}
	if _, ok, _ := s.GetRule(ctx, scoped); ok {
		t.Error("colliding rule should be dropped")
	}
	agent, _, _ := s.GetAgent(ctx, a.ID)
	if agent.RulesCount != 1 {
		t.Errorf("RulesCount = %d, want 1", agent.RulesCount)
	}
	if id, created, _ := s.AddRule(ctx, store.Rule{Condition: "a", Action: "b", AgentID: a.ID}); created || id != keep {
		t.Errorf("dedup should resolve to %s, got %s (created=%v)", keep, id, created)
	}
}

func TestStatistics(t *testing.T) {
	s, _, a := seed(t)
	ctx := context.Background()

	s.AddRule(ctx, store.Rule{Condition: "a", Action: "b", AgentID: a.ID})
	s.AddRule(ctx, store.Rule{Condition: "c", Action: "d", AgentID: a.ID, Type: store.Causal})
	s.AddFact(ctx, store.Fact{Variable: "x", Value: "1", AgentID: a.ID})

	st, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.Domains != 1 || st.Agents != 1 || st.Rules != 2 || st.Facts != 1 || st.Variables != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.RulesByType[store.Conditional] != 1 || st.RulesByType[store.Causal] != 1 {
		t.Errorf("unexpected type breakdown %v", st.RulesByType)
	}
}
