package simple

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/kbase/pkg/kbase/expr"
	"github.com/cognicore/kbase/pkg/kbase/inference"
	"github.com/cognicore/kbase/pkg/kbase/ingest"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// DefaultMaxPasses bounds forward chaining over runaway rule sets.
const DefaultMaxPasses = 100

// Engine is a forward/backward chaining engine over the expr evaluator.
type Engine struct {
	maxPasses int
	logger    *zap.Logger
	newRunID  func() string
}

var _ inference.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxPasses sets the forward chaining pass cap. Values below 1 are ignored.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPasses = n
		}
	}
}

// WithLogger sets the logger for firings and run summaries.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		maxPasses: DefaultMaxPasses,
		logger:    zap.NewNop(),
		newRunID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxPasses returns the configured pass cap.
func (e *Engine) MaxPasses() int { return e.maxPasses }

type compiled struct {
	rule   store.Rule
	action expr.Action
}

// prepare orders rules by priority, highest first, keeping input order on
// ties, and parses each action once.
func prepare(rules []store.Rule) []compiled {
	out := make([]compiled, len(rules))
	for i, r := range rules {
		out[i] = compiled{rule: r, action: expr.ParseAction(r.Action)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].rule.Priority > out[j].rule.Priority
	})
	return out
}

// Forward implements inference.Engine. A variable, once bound, is never
// rebound within the run.
func (e *Engine) Forward(ctx context.Context, rules []store.Rule, initial inference.Memory) inference.ForwardResult {
	res := inference.ForwardResult{
		Memory: initial.Clone(),
		Trace:  inference.Trace{RunID: e.newRunID()},
	}
	mem := res.Memory
	prepared := prepare(rules)
	// a rule leaves the run once it fires or is suppressed
	done := make(map[int]bool)

	for pass := 1; pass <= e.maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			res.Trace.Notef("run cancelled after %d passes: %v", res.Passes, err)
			e.finish(res.Trace.RunID, "forward", res.Passes, false)
			return res
		}

		changed := false
		for i, c := range prepared {
			if done[i] {
				continue
			}
			ok, err := expr.Condition(c.rule.Condition, mem)
			if err != nil || !ok {
				continue
			}
			done[i] = true
			variable := c.action.Variable
			if _, bound := mem[variable]; bound {
				res.Trace.Add(inference.Step{
					Kind:     inference.StepSuppressed,
					Pass:     pass,
					RuleID:   c.rule.ID,
					Variable: variable,
					Message:  fmt.Sprintf("Rule %s holds but %s is already bound to %q", ruleLabel(c.rule), variable, mem[variable]),
				})
				continue
			}

			value := c.action.Value(mem)
			mem[variable] = value
			changed = true
			res.Derived = append(res.Derived, inference.Binding{Variable: variable, Value: value, RuleID: c.rule.ID})
			res.Trace.Add(inference.Step{
				Kind:     inference.StepFired,
				Pass:     pass,
				RuleID:   c.rule.ID,
				Variable: variable,
				Value:    value,
				Message:  fmt.Sprintf("Rule %s fired: IF %s THEN %s = %s", ruleLabel(c.rule), c.rule.Condition, variable, value),
			})
			e.logger.Debug("rule fired",
				zap.String("run_id", res.Trace.RunID),
				zap.Int("pass", pass),
				zap.String("rule_id", c.rule.ID),
				zap.String("variable", variable),
				zap.String("value", value))
		}

		if !changed {
			res.Converged = true
			break
		}
		res.Passes = pass
	}

	if !res.Converged {
		res.Trace.Notef("did not converge within %d passes", e.maxPasses)
	}
	e.finish(res.Trace.RunID, "forward", res.Passes, res.Converged)
	return res
}

// Backward implements inference.Engine. Candidate rules are tried in
// priority order; a goal already being proved higher up the chain fails
// instead of recursing.
func (e *Engine) Backward(ctx context.Context, rules []store.Rule, goal string, mem inference.Memory) inference.BackwardResult {
	run := &backwardRun{
		ctx:      ctx,
		logger:   e.logger,
		rules:    prepare(rules),
		mem:      mem.Clone(),
		visiting: make(map[string]bool),
		res: inference.BackwardResult{
			Goal:  ingest.CleanText(goal),
			Trace: inference.Trace{RunID: e.newRunID()},
		},
	}
	run.res.Proved = run.prove(run.res.Goal, 0)
	run.res.Memory = run.mem
	e.finish(run.res.Trace.RunID, "backward", len(run.res.Derived), run.res.Proved)
	return run.res
}

func (e *Engine) finish(runID, mode string, n int, ok bool) {
	e.logger.Info("inference finished",
		zap.String("run_id", runID),
		zap.String("mode", mode),
		zap.Int("passes", n),
		zap.Bool("converged", ok))
}

type backwardRun struct {
	ctx      context.Context
	logger   *zap.Logger
	rules    []compiled
	mem      inference.Memory
	visiting map[string]bool
	res      inference.BackwardResult
}

func (r *backwardRun) prove(goal string, depth int) bool {
	if name, value, ok := r.lookup(goal); ok {
		r.step(inference.StepKnown, depth, "", goal, fmt.Sprintf("%s is known: %s", name, value))
		return true
	}
	if r.ctx.Err() != nil {
		r.step(inference.StepFailed, depth, "", goal, fmt.Sprintf("%s: run cancelled", goal))
		return false
	}
	key := strings.ToLower(goal)
	if r.visiting[key] {
		r.step(inference.StepCycle, depth, "", goal, fmt.Sprintf("%s is already being proved", goal))
		return false
	}

	candidates := r.concluding(goal)
	if len(candidates) == 0 {
		r.step(inference.StepFailed, depth, "", goal, fmt.Sprintf("no rule concludes %s", goal))
		return false
	}

	r.visiting[key] = true
	defer delete(r.visiting, key)

	for _, c := range candidates {
		r.step(inference.StepProving, depth, c.rule.ID, goal,
			fmt.Sprintf("Proving %s with rule %s: IF %s", goal, ruleLabel(c.rule), c.rule.Condition))

		for _, sub := range expr.Subgoals(c.rule.Condition) {
			r.proveSubgoal(sub, depth+1)
		}

		ok, err := expr.Condition(c.rule.Condition, r.mem)
		if err != nil || !ok {
			msg := fmt.Sprintf("Rule %s does not hold", ruleLabel(c.rule))
			if err != nil {
				msg += ": " + err.Error()
			}
			r.step(inference.StepFailed, depth, c.rule.ID, goal, msg)
			continue
		}

		if name, value, bound := r.lookup(c.action.Variable); bound {
			r.res.Trace.Add(inference.Step{
				Kind:     inference.StepSuppressed,
				Depth:    depth,
				RuleID:   c.rule.ID,
				Variable: name,
				Message:  fmt.Sprintf("Rule %s holds but %s is already bound to %q", ruleLabel(c.rule), name, value),
			})
			return true
		}

		value := c.action.Value(r.mem)
		r.mem[c.action.Variable] = value
		r.res.Derived = append(r.res.Derived, inference.Binding{Variable: c.action.Variable, Value: value, RuleID: c.rule.ID})
		r.res.Trace.Add(inference.Step{
			Kind:     inference.StepFired,
			Depth:    depth,
			RuleID:   c.rule.ID,
			Variable: c.action.Variable,
			Value:    value,
			Message:  fmt.Sprintf("Rule %s fired: %s = %s", ruleLabel(c.rule), c.action.Variable, value),
		})
		r.logger.Debug("rule fired",
			zap.String("run_id", r.res.Trace.RunID),
			zap.Int("depth", depth),
			zap.String("rule_id", c.rule.ID),
			zap.String("variable", c.action.Variable))
		return true
	}
	return false
}

// proveSubgoal establishes what a subgoal depends on: the unbound variables
// of an expression, or the proposition itself.
func (r *backwardRun) proveSubgoal(sub string, depth int) {
	n, err := expr.Compile(sub)
	if err != nil {
		if len(r.concluding(sub)) > 0 {
			r.prove(sub, depth)
		}
		return
	}
	for _, name := range expr.Idents(n) {
		if _, _, bound := r.lookup(name); bound {
			continue
		}
		// bare symbols such as the right side of "диагноз = лихорадка"
		if len(r.concluding(name)) == 0 {
			continue
		}
		r.prove(name, depth)
	}
}

// lookup finds a bound variable using the same case folding as concluding.
func (r *backwardRun) lookup(name string) (string, string, bool) {
	if v, ok := r.mem[name]; ok {
		return name, v, true
	}
	for k, v := range r.mem {
		if strings.EqualFold(k, name) {
			return k, v, true
		}
	}
	return "", "", false
}

func (r *backwardRun) concluding(goal string) []compiled {
	var out []compiled
	for _, c := range r.rules {
		if strings.EqualFold(c.action.Variable, goal) {
			out = append(out, c)
		}
	}
	return out
}

func (r *backwardRun) step(kind inference.StepKind, depth int, ruleID, goal, msg string) {
	r.res.Trace.Add(inference.Step{Kind: kind, Depth: depth, RuleID: ruleID, Variable: goal, Message: msg})
}

func ruleLabel(r store.Rule) string {
	if r.Name != "" {
		return fmt.Sprintf("%q", r.Name)
	}
	if r.ID != "" {
		return r.ID
	}
	return "(unnamed)"
}
