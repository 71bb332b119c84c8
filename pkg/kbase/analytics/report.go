package analytics

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// Recommendation is a hygiene hint attached to a trace report.
type Recommendation string

const (
	MergeDuplicates    Recommendation = "merge duplicates: similar rules could be combined"
	ResolveConflicts   Recommendation = "resolve conflicts: adjust priorities or conditions"
	SmallKnowledgeBase Recommendation = "small knowledge base: add more rules"
	ConsiderOptimising Recommendation = "large knowledge base: consider optimisation"
)

// Size bounds for the knowledge base size recommendations.
const (
	smallRuleCount = 5
	largeRuleCount = 50
)

// TypeCount is a rule type with its number of rules.
type TypeCount struct {
	Type  store.RuleType `json:"type"`
	Count int            `json:"count"`
}

// TraceReport summarises one agent's knowledge base.
type TraceReport struct {
	Agent           store.Agent      `json:"agent"`
	Rules           int              `json:"rules"`
	Facts           int              `json:"facts"`
	Types           []TypeCount      `json:"types"`
	AvgConfidence   float64          `json:"avg_confidence"`
	Similar         []SimilarPair    `json:"similar"`
	Conflicts       []Conflict       `json:"conflicts"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Trace builds the hygiene report for an agent from its rules and facts.
func Trace(agent store.Agent, rules []store.Rule, facts []store.Fact, threshold float64) TraceReport {
	rep := TraceReport{
		Agent:     agent,
		Rules:     len(rules),
		Facts:     len(facts),
		Types:     typeCounts(rules),
		Similar:   FindSimilar(rules, threshold),
		Conflicts: FindConflicts(rules),
	}
	if len(rules) > 0 {
		var sum float64
		for _, r := range rules {
			sum += r.Confidence
		}
		rep.AvgConfidence = sum / float64(len(rules))
	}

	if len(rep.Similar) > 0 {
		rep.Recommendations = append(rep.Recommendations, MergeDuplicates)
	}
	if len(rep.Conflicts) > 0 {
		rep.Recommendations = append(rep.Recommendations, ResolveConflicts)
	}
	switch {
	case len(rules) < smallRuleCount:
		rep.Recommendations = append(rep.Recommendations, SmallKnowledgeBase)
	case len(rules) > largeRuleCount:
		rep.Recommendations = append(rep.Recommendations, ConsiderOptimising)
	}
	return rep
}

// WriteText renders the report for a terminal.
func (r TraceReport) WriteText(w io.Writer) error {
	var b strings.Builder
	rule := strings.Repeat("=", 70)

	fmt.Fprintf(&b, "%s\nTRACE REPORT: %s (%s)\n%s\n\n", rule, r.Agent.Name, r.Agent.ID, rule)
	fmt.Fprintf(&b, "STATISTICS:\n")
	fmt.Fprintf(&b, "  Rules: %d\n  Facts: %d\n", r.Rules, r.Facts)
	fmt.Fprintf(&b, "  Average confidence: %.2f\n", r.AvgConfidence)
	fmt.Fprintf(&b, "  Similar pairs: %d\n  Conflicting pairs: %d\n", len(r.Similar), len(r.Conflicts))
	if len(r.Types) > 0 {
		b.WriteString("  Rule types:\n")
		for _, tc := range r.Types {
			fmt.Fprintf(&b, "    - %s: %d\n", tc.Type, tc.Count)
		}
	}

	if len(r.Similar) > 0 {
		b.WriteString("\nSIMILAR RULES:\n")
		for i, p := range r.Similar {
			fmt.Fprintf(&b, "%d. similarity %.0f%% (%s)\n", i+1, p.Similarity*100, p.Kind)
			writeRule(&b, 1, p.First)
			writeRule(&b, 2, p.Second)
		}
	}
	if len(r.Conflicts) > 0 {
		b.WriteString("\nCONFLICTING RULES:\n")
		for i, c := range r.Conflicts {
			fmt.Fprintf(&b, "%d. %s, condition similarity %.0f%%\n", i+1, c.Kind, c.ConditionSimilarity*100)
			writeRule(&b, 1, c.First)
			writeRule(&b, 2, c.Second)
		}
	}

	b.WriteString("\nRECOMMENDATIONS:\n")
	if len(r.Recommendations) == 0 {
		b.WriteString("  none\n")
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}
	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeRule(b *strings.Builder, n int, r store.Rule) {
	fmt.Fprintf(b, "   rule %d: IF %s\n           THEN %s\n", n, r.Condition, r.Action)
}

// AgentData is the input for one agent in a comparison.
type AgentData struct {
	Agent store.Agent
	Rules []store.Rule
	Facts []store.Fact
}

// AgentSummary is one agent's line in a comparison report.
type AgentSummary struct {
	Agent store.Agent `json:"agent"`
	Rules int         `json:"rules"`
	Facts int         `json:"facts"`
	Types []TypeCount `json:"types"`
}

// SharedRule is a condition/action pair owned by more than one agent.
type SharedRule struct {
	Condition string   `json:"condition"`
	Action    string   `json:"action"`
	Agents    []string `json:"agents"`
}

// CompareReport contrasts several agents.
type CompareReport struct {
	Agents      []AgentSummary `json:"agents"`
	MostRules   AgentSummary   `json:"most_rules"`
	FewestRules AgentSummary   `json:"fewest_rules"`
	Shared      []SharedRule   `json:"shared"`
}

// Compare builds a comparison of at least two agents. Ties for most and
// fewest rules go to the agent listed first.
func Compare(agents []AgentData) (CompareReport, error) {
	if len(agents) < 2 {
		return CompareReport{}, fmt.Errorf("compare needs at least 2 agents, got %d: %w", len(agents), internalerr.ErrInvalidInput)
	}

	var rep CompareReport
	owners := make(map[string][]string)
	var keys []string
	for _, a := range agents {
		sum := AgentSummary{Agent: a.Agent, Rules: len(a.Rules), Facts: len(a.Facts), Types: typeCounts(a.Rules)}
		rep.Agents = append(rep.Agents, sum)

		seen := make(map[string]bool)
		for _, r := range a.Rules {
			key := r.Condition + "|" + r.Action
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := owners[key]; !ok {
				keys = append(keys, key)
			}
			owners[key] = append(owners[key], a.Agent.Name)
		}
	}

	rep.MostRules, rep.FewestRules = rep.Agents[0], rep.Agents[0]
	for _, s := range rep.Agents[1:] {
		if s.Rules > rep.MostRules.Rules {
			rep.MostRules = s
		}
		if s.Rules < rep.FewestRules.Rules {
			rep.FewestRules = s
		}
	}

	for _, key := range keys {
		if len(owners[key]) < 2 {
			continue
		}
		cond, act, _ := strings.Cut(key, "|")
		rep.Shared = append(rep.Shared, SharedRule{Condition: cond, Action: act, Agents: owners[key]})
	}
	return rep, nil
}

// WriteText renders the comparison for a terminal.
func (r CompareReport) WriteText(w io.Writer) error {
	var b strings.Builder
	rule := strings.Repeat("=", 70)

	fmt.Fprintf(&b, "%s\nAGENT COMPARISON\n%s\n\n", rule, rule)
	for _, s := range r.Agents {
		fmt.Fprintf(&b, "AGENT: %s\n  Rules: %d\n  Facts: %d\n", s.Agent.Name, s.Rules, s.Facts)
		if len(s.Types) > 0 {
			b.WriteString("  Rule types:\n")
			for _, tc := range s.Types {
				fmt.Fprintf(&b, "    - %s: %d\n", tc.Type, tc.Count)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("COMPARISON:\n")
	fmt.Fprintf(&b, "  - most rules: %s (%d)\n", r.MostRules.Agent.Name, r.MostRules.Rules)
	fmt.Fprintf(&b, "  - fewest rules: %s (%d)\n", r.FewestRules.Agent.Name, r.FewestRules.Rules)
	if len(r.Shared) > 0 {
		fmt.Fprintf(&b, "\nSHARED RULES (%d):\n", len(r.Shared))
		for _, s := range r.Shared {
			fmt.Fprintf(&b, "  - IF %s THEN %s [%s]\n", s.Condition, s.Action, strings.Join(s.Agents, ", "))
		}
	}
	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// typeCounts returns rule counts per type, largest first.
func typeCounts(rules []store.Rule) []TypeCount {
	counts := make(map[store.RuleType]int)
	for _, r := range rules {
		t := r.Type
		if t == "" {
			t = "unknown"
		}
		counts[t]++
	}
	out := make([]TypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TypeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}
