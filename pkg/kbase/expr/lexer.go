package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int // rune offset
}

var keywords = map[string]string{
	"and": "and", "и": "and",
	"or": "or", "или": "or",
	"not": "not", "не": "not",
	"true": "true", "истина": "true",
	"false": "false", "ложь": "false",
}

// two-rune operators are tried before single-rune ones
var operators = []string{"==", "!=", ">=", "<=", "&&", "||", ">", "<", "=", "!", "+", "-", "*", "/"}

func lex(src string) ([]token, error) {
	rs := []rune(src)
	var toks []token
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r):
			start := i
			for i < len(rs) && unicode.IsDigit(rs[i]) {
				i++
			}
			if i+1 < len(rs) && rs[i] == '.' && unicode.IsDigit(rs[i+1]) {
				i++
				for i < len(rs) && unicode.IsDigit(rs[i]) {
					i++
				}
			}
			toks = append(toks, token{kind: tokNumber, text: string(rs[start:i]), pos: start})
		case r == '\'' || r == '"' || r == '«':
			closing := r
			if r == '«' {
				closing = '»'
			}
			start := i
			i++
			for i < len(rs) && rs[i] != closing {
				i++
			}
			if i >= len(rs) {
				return nil, fmt.Errorf("unterminated string at %d: %w", start, ErrSyntax)
			}
			toks = append(toks, token{kind: tokString, text: string(rs[start+1 : i]), pos: start})
			i++
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			word := string(rs[start:i])
			if kw, ok := keywords[strings.ToLower(word)]; ok {
				toks = append(toks, token{kind: tokOp, text: kw, pos: start})
			} else {
				toks = append(toks, token{kind: tokIdent, text: word, pos: start})
			}
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			op := matchOperator(rs[i:])
			if op == "" {
				return nil, fmt.Errorf("unexpected %q at %d: %w", r, i, ErrSyntax)
			}
			toks = append(toks, token{kind: tokOp, text: normalizeOp(op), pos: i})
			i += len([]rune(op))
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

func matchOperator(rs []rune) string {
	for _, op := range operators {
		n := len([]rune(op))
		if len(rs) >= n && string(rs[:n]) == op {
			return op
		}
	}
	return ""
}

func normalizeOp(op string) string {
	switch op {
	case "&&":
		return "and"
	case "||":
		return "or"
	case "!":
		return "not"
	}
	return op
}
