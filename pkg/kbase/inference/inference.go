package inference

import (
	"context"
	"fmt"

	"github.com/cognicore/kbase/pkg/kbase/store"
)

// Engine runs rules over a working memory.
// This interface allows swapping the chaining strategy without touching callers.
type Engine interface {
	// Forward applies rules in priority order until a pass derives nothing
	// new or the pass cap is reached.
	Forward(ctx context.Context, rules []store.Rule, initial Memory) ForwardResult

	// Backward tries to establish goal, deriving intermediate facts on the way.
	Backward(ctx context.Context, rules []store.Rule, goal string, mem Memory) BackwardResult
}

// Memory maps variable names to their bound values.
type Memory map[string]string

// Clone returns an independent copy of m. A nil memory clones to an empty one.
func (m Memory) Clone() Memory {
	out := make(Memory, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StepKind labels a trace entry.
type StepKind string

const (
	StepFired      StepKind = "fired"      // a rule's condition held and it bound a variable
	StepSuppressed StepKind = "suppressed" // the rule held but its variable was already bound
	StepKnown      StepKind = "known"      // backward goal already bound
	StepProving    StepKind = "proving"    // backward goal expanded through a rule
	StepFailed     StepKind = "failed"     // backward goal or rule did not hold
	StepCycle      StepKind = "cycle"      // backward goal revisited while in progress
	StepNote       StepKind = "note"       // run-level notices such as non-convergence
)

// Step is one entry of an explanation trace.
type Step struct {
	Kind     StepKind `json:"kind"`
	Pass     int      `json:"pass,omitempty"`
	Depth    int      `json:"depth,omitempty"`
	RuleID   string   `json:"rule_id,omitempty"`
	Variable string   `json:"variable,omitempty"`
	Value    string   `json:"value,omitempty"`
	Message  string   `json:"message"`
}

// Trace is the ordered explanation of one inference run.
type Trace struct {
	RunID string `json:"run_id"`
	Steps []Step `json:"steps"`
}

// Add appends a step.
func (t *Trace) Add(s Step) { t.Steps = append(t.Steps, s) }

// Notef appends a run-level note.
func (t *Trace) Notef(format string, args ...any) {
	t.Add(Step{Kind: StepNote, Message: fmt.Sprintf(format, args...)})
}

// Lines returns the step messages in order.
func (t Trace) Lines() []string {
	out := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Message
	}
	return out
}

// Binding is a variable derived during a run and the rule that produced it.
type Binding struct {
	Variable string `json:"variable"`
	Value    string `json:"value"`
	RuleID   string `json:"rule_id"`
}

// ForwardResult is the outcome of forward chaining.
type ForwardResult struct {
	Memory    Memory    `json:"memory"`
	Trace     Trace     `json:"trace"`
	Derived   []Binding `json:"derived"`
	Passes    int       `json:"passes"`    // passes that bound at least one variable
	Converged bool      `json:"converged"` // false when the pass cap or cancellation stopped the run
}

// BackwardResult is the outcome of backward chaining.
type BackwardResult struct {
	Goal    string    `json:"goal"`
	Proved  bool      `json:"proved"`
	Memory  Memory    `json:"memory"`
	Trace   Trace     `json:"trace"`
	Derived []Binding `json:"derived"`
}
