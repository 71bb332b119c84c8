package analytics

import (
	"github.com/cognicore/kbase/pkg/kbase/ingest"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// Threshold defaults.
const (
	// DefaultSimilarity is the condition similarity at or above which two
	// rules are reported as similar.
	DefaultSimilarity = 0.7

	// StrongSimilarity separates identical/same_condition/same_action from
	// partial, and is the condition similarity above which differing actions
	// are a conflict.
	StrongSimilarity = 0.8
)

// SimilarityKind classifies a similar pair.
type SimilarityKind string

const (
	Identical     SimilarityKind = "identical"
	SameCondition SimilarityKind = "same_condition"
	SameAction    SimilarityKind = "same_action"
	Partial       SimilarityKind = "partial"
)

// ConflictKind classifies a conflicting pair.
type ConflictKind string

const DifferentActions ConflictKind = "different_actions"

// SimilarPair is two rules whose conditions overlap.
type SimilarPair struct {
	First      store.Rule     `json:"rule1"`
	Second     store.Rule     `json:"rule2"`
	Similarity float64        `json:"similarity"`
	Kind       SimilarityKind `json:"type"`
}

// Conflict is two rules with near-identical conditions and different actions.
type Conflict struct {
	First               store.Rule   `json:"rule1"`
	Second              store.Rule   `json:"rule2"`
	ConditionSimilarity float64      `json:"condition_similarity"`
	Kind                ConflictKind `json:"conflict_type"`
}

// Similarity is the Jaccard index of the case-folded word sets of a and b.
// It is 0 when either side has no words.
func Similarity(a, b string) float64 {
	return jaccard(ingest.TokenSet(a), ingest.TokenSet(b))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// FindSimilar compares every pair of rules by condition and returns those at
// or above threshold, in input order.
func FindSimilar(rules []store.Rule, threshold float64) []SimilarPair {
	conds, acts := tokenize(rules)

	var out []SimilarPair
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			sim := jaccard(conds[i], conds[j])
			if sim < threshold {
				continue
			}
			out = append(out, SimilarPair{
				First:      rules[i],
				Second:     rules[j],
				Similarity: sim,
				Kind:       classify(sim, jaccard(acts[i], acts[j])),
			})
		}
	}
	return out
}

func classify(condSim, actSim float64) SimilarityKind {
	switch {
	case condSim > StrongSimilarity && actSim > StrongSimilarity:
		return Identical
	case condSim > StrongSimilarity:
		return SameCondition
	case actSim > StrongSimilarity:
		return SameAction
	default:
		return Partial
	}
}

// FindConflicts returns pairs whose condition similarity exceeds
// StrongSimilarity while their action strings differ.
func FindConflicts(rules []store.Rule) []Conflict {
	conds, _ := tokenize(rules)

	var out []Conflict
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			if rules[i].Action == rules[j].Action {
				continue
			}
			sim := jaccard(conds[i], conds[j])
			if sim <= StrongSimilarity {
				continue
			}
			out = append(out, Conflict{
				First:               rules[i],
				Second:              rules[j],
				ConditionSimilarity: sim,
				Kind:                DifferentActions,
			})
		}
	}
	return out
}

func tokenize(rules []store.Rule) (conds, acts []map[string]struct{}) {
	conds = make([]map[string]struct{}, len(rules))
	acts = make([]map[string]struct{}, len(rules))
	for i, r := range rules {
		conds[i] = ingest.TokenSet(r.Condition)
		acts[i] = ingest.TokenSet(r.Action)
	}
	return conds, acts
}
