// Package expr is the constrained evaluator for rule conditions and actions:
// comparisons, arithmetic, boolean connectives and variable lookups over a
// working memory of string bindings. Nothing else is executable.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cognicore/kbase/pkg/kbase/ingest"
)

var (
	// ErrSyntax marks text that is not a valid expression.
	ErrSyntax = errors.New("expression syntax error")
	// ErrUnbound marks a reference to a variable missing from working memory.
	ErrUnbound = errors.New("unbound variable")
	// ErrType marks an operation on incompatible values.
	ErrType = errors.New("type mismatch")
)

// Kind is the dynamic type of a Value.
type Kind int

const (
	String Kind = iota
	Number
	Bool
)

// Value is the result of evaluating a node.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
}

// Bind converts a working-memory string to a Value: numbers and the literals
// true/false (also истина/ложь) are typed, everything else is a string.
func Bind(s string) Value {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Value{Kind: Number, Num: f, Str: s}
	}
	switch strings.ToLower(s) {
	case "true", "истина":
		return Value{Kind: Bool, Bool: true}
	case "false", "ложь":
		return Value{Kind: Bool, Bool: false}
	}
	return Value{Kind: String, Str: s}
}

// String renders v the way it is stored in working memory.
func (v Value) String() string {
	switch v.Kind {
	case Number:
		if v.Str != "" {
			return v.Str
		}
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.Bool)
	}
	return v.Str
}

// Truthy reports whether v counts as true in a condition.
func (v Value) Truthy() bool {
	switch v.Kind {
	case Bool:
		return v.Bool
	case Number:
		return v.Num != 0
	}
	return v.Str != ""
}

func (v Value) number() (float64, bool) {
	switch v.Kind {
	case Number:
		return v.Num, true
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	}
	return 0, false
}

func numberValue(f float64) Value {
	return Value{Kind: Number, Num: f}
}

func (n *numberLit) Eval(map[string]string) (Value, error) { return n.v, nil }
func (n *stringLit) Eval(map[string]string) (Value, error) { return n.v, nil }
func (n *boolLit) Eval(map[string]string) (Value, error) {
	return Value{Kind: Bool, Bool: n.v}, nil
}

func (n *ident) Eval(env map[string]string) (Value, error) {
	s, ok := env[n.name]
	if !ok {
		return Value{}, fmt.Errorf("%s: %w", n.name, ErrUnbound)
	}
	return Bind(s), nil
}

func (n *unary) Eval(env map[string]string) (Value, error) {
	x, err := n.x.Eval(env)
	if err != nil {
		return Value{}, err
	}
	if n.op == "not" {
		return Value{Kind: Bool, Bool: !x.Truthy()}, nil
	}
	f, ok := x.number()
	if !ok {
		return Value{}, fmt.Errorf("-%s: %w", x, ErrType)
	}
	return numberValue(-f), nil
}

func (n *binary) Eval(env map[string]string) (Value, error) {
	switch n.op {
	case "and", "or":
		l, err := n.l.Eval(env)
		if err != nil {
			// an unbound operand does not matter when the other side decides
			r, rerr := n.r.Eval(env)
			if errors.Is(err, ErrUnbound) && rerr == nil && r.Truthy() == (n.op == "or") {
				return Value{Kind: Bool, Bool: r.Truthy()}, nil
			}
			return Value{}, err
		}
		if n.op == "and" && !l.Truthy() {
			return Value{Kind: Bool}, nil
		}
		if n.op == "or" && l.Truthy() {
			return Value{Kind: Bool, Bool: true}, nil
		}
		r, err := n.r.Eval(env)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Bool, Bool: r.Truthy()}, nil
	}

	l, err := n.l.Eval(env)
	if err != nil {
		return Value{}, err
	}
	r, err := n.r.Eval(env)
	if err != nil {
		// an unbound bare word compared for equality is a symbol
		id, isIdent := n.r.(*ident)
		if !isIdent || !errors.Is(err, ErrUnbound) || (n.op != "==" && n.op != "!=") {
			return Value{}, err
		}
		r = Value{Kind: String, Str: id.name}
	}

	switch n.op {
	case "==":
		return Value{Kind: Bool, Bool: equal(l, r)}, nil
	case "!=":
		return Value{Kind: Bool, Bool: !equal(l, r)}, nil
	case ">", "<", ">=", "<=":
		c, err := compare(l, r)
		if err != nil {
			return Value{}, err
		}
		var b bool
		switch n.op {
		case ">":
			b = c > 0
		case "<":
			b = c < 0
		case ">=":
			b = c >= 0
		case "<=":
			b = c <= 0
		}
		return Value{Kind: Bool, Bool: b}, nil
	}
	return arith(n.op, l, r)
}

func equal(l, r Value) bool {
	if lf, ok := l.number(); ok {
		if rf, ok := r.number(); ok {
			return lf == rf
		}
	}
	if l.Kind == Bool || r.Kind == Bool {
		return l.Kind == r.Kind && l.Bool == r.Bool
	}
	return strings.EqualFold(l.String(), r.String())
}

func compare(l, r Value) (int, error) {
	lf, lok := l.number()
	rf, rok := r.number()
	switch {
	case lok && rok:
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		}
		return 0, nil
	case l.Kind == String && r.Kind == String:
		return strings.Compare(l.Str, r.Str), nil
	}
	return 0, fmt.Errorf("compare %s with %s: %w", l, r, ErrType)
}

func arith(op string, l, r Value) (Value, error) {
	lf, lok := l.number()
	rf, rok := r.number()
	if !lok || !rok {
		if op == "+" && l.Kind != Bool && r.Kind != Bool {
			return Value{Kind: String, Str: l.String() + r.String()}, nil
		}
		return Value{}, fmt.Errorf("%s %s %s: %w", l, op, r, ErrType)
	}
	switch op {
	case "+":
		return numberValue(lf + rf), nil
	case "-":
		return numberValue(lf - rf), nil
	case "*":
		return numberValue(lf * rf), nil
	case "/":
		if rf == 0 {
			return Value{}, fmt.Errorf("division by zero: %w", ErrType)
		}
		return numberValue(lf / rf), nil
	}
	return Value{}, fmt.Errorf("unknown operator %q: %w", op, ErrSyntax)
}

// Condition evaluates a rule condition against env. Text that does not parse
// is a proposition: it holds when its cleaned text is bound to a truthy value.
func Condition(src string, env map[string]string) (bool, error) {
	n, err := Compile(src)
	if err != nil {
		key := ingest.CleanText(src)
		v, ok := env[key]
		if !ok {
			return false, fmt.Errorf("%s: %w", key, ErrUnbound)
		}
		return Bind(v).Truthy(), nil
	}
	v, err := n.Eval(env)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// Action is a parsed rule action: either an assignment `var = expr` or a
// proposition asserted as true.
type Action struct {
	Variable string
	Assign   bool
	raw      string
	rhs      Node
}

// ParseAction splits src at its first bare "=" into a variable and a value
// expression. Anything else is a proposition named by its cleaned text.
func ParseAction(src string) Action {
	clean := ingest.CleanText(src)
	toks, err := lex(clean)
	if err == nil && len(toks) >= 3 && toks[0].kind == tokIdent &&
		toks[1].kind == tokOp && toks[1].text == "=" {
		rs := []rune(clean)
		raw := strings.TrimSpace(string(rs[toks[2].pos:]))
		a := Action{Variable: toks[0].text, Assign: true, raw: raw}
		if n, err := Parse(raw); err == nil {
			a.rhs = n
		}
		return a
	}
	return Action{Variable: clean, raw: clean}
}

// Value computes the bound value. An assignment whose right side cannot be
// evaluated binds its literal text with one layer of quotes removed.
func (a Action) Value(env map[string]string) string {
	if !a.Assign {
		return "true"
	}
	if a.rhs != nil {
		if v, err := a.rhs.Eval(env); err == nil {
			return v.String()
		}
	}
	return ingest.StripQuotes(a.raw)
}
