// Package linguistic models the optional sentence-structure capability used
// by the extractor: sentence splitting, named entities, and a dependency
// tree of head/child links between tokens.
package linguistic

import (
	"errors"
	"sort"
	"strings"
)

// ErrUnavailable is returned by analyzers that cannot parse.
var ErrUnavailable = errors.New("linguistic analyzer unavailable")

// Dependency labels used by the extractor's structural pass.
const (
	DepRoot   = "ROOT"
	DepMark   = "mark"
	DepAdvmod = "advmod"
	DepAdvcl  = "advcl"
	DepConj   = "conj"
	DepCcomp  = "ccomp"
	DepPunct  = "punct"
	DepDep    = "dep"
)

// Part-of-speech tags.
const (
	PosVerb  = "VERB"
	PosAux   = "AUX"
	PosSconj = "SCONJ"
	PosAdv   = "ADV"
	PosNoun  = "NOUN"
	PosNum   = "NUM"
	PosPunct = "PUNCT"
)

// Token is one parsed token. Head is the index of the governing token; the
// root of a tree is its own head.
type Token struct {
	Index int
	Text  string
	Lemma string
	POS   string
	Dep   string
	Head  int
}

// Entity is a named entity recognised in a sentence.
type Entity struct {
	Type string
	Text string
}

// Doc is the parse of a single sentence.
type Doc struct {
	Text     string
	Tokens   []Token
	Entities []Entity
}

// Analyzer is the injected linguistic capability.
type Analyzer interface {
	Available() bool
	Sentences(text string) []string
	Parse(sentence string) (*Doc, error)
}

// Unavailable is the analyzer used when no linguistic model is configured.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) Sentences(string) []string { return nil }

func (Unavailable) Parse(string) (*Doc, error) { return nil, ErrUnavailable }

// Children returns the indices of tokens governed directly by i.
func (d *Doc) Children(i int) []int {
	var out []int
	for _, tok := range d.Tokens {
		if tok.Head == i && tok.Index != i {
			out = append(out, tok.Index)
		}
	}
	return out
}

// Subtree returns i and every token it governs transitively, in order.
func (d *Doc) Subtree(i int) []int {
	if i < 0 || i >= len(d.Tokens) {
		return nil
	}
	seen := map[int]bool{i: true}
	queue := []int{i}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range d.Children(cur) {
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// HasPOS reports whether any token carries one of the tags.
func (d *Doc) HasPOS(tags ...string) bool {
	for _, tok := range d.Tokens {
		for _, tag := range tags {
			if tok.POS == tag {
				return true
			}
		}
	}
	return false
}

// HasDep reports whether any token carries the dependency label.
func (d *Doc) HasDep(dep string) bool {
	for _, tok := range d.Tokens {
		if tok.Dep == dep {
			return true
		}
	}
	return false
}

// Clauses counts clause heads: the root plus every adverbial, coordinate or
// complement clause attached in the tree.
func (d *Doc) Clauses() int {
	n := 0
	for _, tok := range d.Tokens {
		switch tok.Dep {
		case DepRoot, DepAdvcl, DepConj, DepCcomp:
			n++
		}
	}
	return n
}

// SpanText renders the given token indices as surface text, dropping
// punctuation at either edge.
func (d *Doc) SpanText(indices []int) string {
	idx := append([]int(nil), indices...)
	sort.Ints(idx)
	for len(idx) > 0 && d.Tokens[idx[0]].POS == PosPunct {
		idx = idx[1:]
	}
	for len(idx) > 0 && d.Tokens[idx[len(idx)-1]].POS == PosPunct {
		idx = idx[:len(idx)-1]
	}

	var b strings.Builder
	for i, k := range idx {
		text := d.Tokens[k].Text
		if i > 0 && !attachesLeft(text) && !attachesRight(d.Tokens[idx[i-1]].Text) {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String()
}

func attachesLeft(s string) bool {
	return strings.ContainsAny(s, ",.;:!?)]»") && len([]rune(s)) == 1
}

func attachesRight(s string) bool {
	return strings.ContainsAny(s, "([«") && len([]rune(s)) == 1
}
