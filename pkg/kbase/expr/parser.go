package expr

import (
	"fmt"
	"strconv"

	"github.com/cognicore/kbase/pkg/kbase/ingest"
)

// Node is a parsed expression.
type Node interface {
	Eval(env map[string]string) (Value, error)
}

type (
	numberLit struct{ v Value }
	stringLit struct{ v Value }
	boolLit   struct{ v bool }
	ident     struct{ name string }
	unary     struct {
		op string
		x  Node
	}
	binary struct {
		op   string
		l, r Node
	}
)

// Parse compiles src into an expression tree. Errors wrap ErrSyntax.
func Parse(src string) (Node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at %d: %w", t.text, t.pos, ErrSyntax)
	}
	return n, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseOr() (Node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("or"); !ok {
			return l, nil
		}
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &binary{op: "or", l: l, r: r}
	}
}

func (p *parser) parseAnd() (Node, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("and"); !ok {
			return l, nil
		}
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &binary{op: "and", l: l, r: r}
	}
}

func (p *parser) parseNot() (Node, error) {
	if _, ok := p.acceptOp("not"); ok {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unary{op: "not", x: x}, nil
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (Node, error) {
	l, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("==", "!=", ">=", "<=", ">", "<", "=")
	if !ok {
		return l, nil
	}
	if op == "=" {
		op = "=="
	}
	r, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	return &binary{op: op, l: l, r: r}, nil
}

func (p *parser) parseSum() (Node, error) {
	l, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return l, nil
		}
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r}
	}
}

func (p *parser) parseTerm() (Node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/")
		if !ok {
			return l, nil
		}
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if _, ok := p.acceptOp("-"); ok {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unary{op: "-", x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", t.text, ErrSyntax)
		}
		return &numberLit{v: Value{Kind: Number, Num: f, Str: t.text}}, nil
	case tokString:
		return &stringLit{v: Value{Kind: String, Str: t.text}}, nil
	case tokIdent:
		return &ident{name: t.text}, nil
	case tokOp:
		switch t.text {
		case "true":
			return &boolLit{v: true}, nil
		case "false":
			return &boolLit{v: false}, nil
		}
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing ) for ( at %d: %w", t.pos, ErrSyntax)
		}
		return n, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression: %w", ErrSyntax)
	}
	return nil, fmt.Errorf("unexpected %q at %d: %w", t.text, t.pos, ErrSyntax)
}

// Idents returns the identifiers referenced by n in first-use order.
func Idents(n Node) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *ident:
			if !seen[n.name] {
				seen[n.name] = true
				out = append(out, n.name)
			}
		case *unary:
			walk(n.x)
		case *binary:
			walk(n.l)
			walk(n.r)
		}
	}
	walk(n)
	return out
}

// Subgoals splits src at top-level and/or connectives. Text that does not
// lex is returned whole.
func Subgoals(src string) []string {
	toks, err := lex(src)
	if err != nil {
		return []string{ingest.CleanText(src)}
	}
	rs := []rune(src)
	var parts []string
	depth, start := 0, 0
	flush := func(end int) {
		if part := ingest.CleanText(string(rs[start:end])); part != "" {
			parts = append(parts, part)
		}
	}
	for i, t := range toks {
		switch {
		case t.kind == tokLParen:
			depth++
		case t.kind == tokRParen:
			depth--
		case t.kind == tokOp && (t.text == "and" || t.text == "or") && depth == 0:
			flush(t.pos)
			start = toks[i+1].pos
		case t.kind == tokEOF:
			flush(len(rs))
		}
	}
	return parts
}
