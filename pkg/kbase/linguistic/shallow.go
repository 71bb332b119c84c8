package linguistic

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/cognicore/kbase/pkg/kbase/ingest"
)

// Lexicon lists the closed word classes the shallow parser recognises.
type Lexicon struct {
	Conditional  []string
	Then         []string
	Modal        []string
	Verbs        []string
	VerbSuffixes []string
	Abbrev       []string
	// Coord joins a further clause to the main one.
	Coord []string
}

// RussianLexicon returns the built-in Russian word lists.
func RussianLexicon() Lexicon {
	return Lexicon{
		Conditional:  []string{"если", "когда", "при"},
		Then:         []string{"то", "тогда"},
		Modal:        []string{"должен", "должна", "должно", "должны", "может", "могут", "следует", "нужно", "необходимо"},
		Verbs:        []string{"есть", "будет", "был", "была", "было"},
		VerbSuffixes: []string{"ется", "ится", "ает", "яет", "ует", "ет", "ит", "ют", "ят", "ут", "ать", "ять", "еть", "ить", "ал", "ила", "ило"},
		Abbrev:       []string{"т.е", "т.к", "т.д", "т.п", "др", "см", "г"},
		Coord:        []string{"и", "а", "но", "или"},
	}
}

// EnglishLexicon returns the built-in English word lists.
func EnglishLexicon() Lexicon {
	return Lexicon{
		Conditional:  []string{"if", "when"},
		Then:         []string{"then"},
		Modal:        []string{"must", "should", "can", "may", "shall", "need", "needs"},
		Verbs:        []string{"is", "are", "was", "were", "be", "has", "have", "leads", "causes", "occurs", "becomes", "rises", "falls", "sounds"},
		VerbSuffixes: []string{"ed"},
		Abbrev:       []string{"e.g", "i.e", "etc", "dr", "mr", "mrs", "vs"},
		Coord:        []string{"and", "but", "or"},
	}
}

// Shallow is a lexicon-driven surface parser. It recognises a leading
// subordinate clause, attaches it to the main clause, and tags entities
// from a keyword dictionary.
type Shallow struct {
	lang     string
	lex      Lexicon
	entities map[string]map[string][]string // type → name → keywords
}

// NewShallow creates a shallow analyzer for lang ("ru" or "en"; anything
// else uses the English lexicon).
func NewShallow(lang string) *Shallow {
	lex := EnglishLexicon()
	if lang == "ru" {
		lex = RussianLexicon()
	}
	return NewShallowWithLexicon(lang, lex)
}

// NewShallowWithLexicon creates a shallow analyzer with custom word lists.
func NewShallowWithLexicon(lang string, lex Lexicon) *Shallow {
	return &Shallow{
		lang:     lang,
		lex:      lex,
		entities: make(map[string]map[string][]string),
	}
}

// AddEntity registers an entity with the keywords that mention it.
func (s *Shallow) AddEntity(entityType, name string, keywords []string) {
	if s.entities[entityType] == nil {
		s.entities[entityType] = make(map[string][]string)
	}
	normalized := make([]string, len(keywords))
	for i, kw := range keywords {
		normalized[i] = strings.ToLower(kw)
	}
	s.entities[entityType][name] = normalized
}

// Available implements Analyzer.
func (s *Shallow) Available() bool { return true }

// Sentences splits on terminal punctuation, rejoining fragments that end in
// a known abbreviation or a single-letter initial.
func (s *Shallow) Sentences(text string) []string {
	parts := ingest.SplitTerminals(text)
	var out []string
	for _, part := range parts {
		if n := len(out); n > 0 && s.endsWithAbbrev(out[n-1]) {
			out[n-1] = out[n-1] + "." + part
			continue
		}
		out = append(out, part)
	}
	return out
}

func (s *Shallow) endsWithAbbrev(frag string) bool {
	fields := strings.Fields(frag)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(fields[len(fields)-1])
	if r := []rune(last); len(r) == 1 && unicode.IsLetter(r[0]) {
		return true
	}
	for _, a := range s.lex.Abbrev {
		if last == a {
			return true
		}
	}
	return false
}

// Parse tags and links the tokens of one sentence.
func (s *Shallow) Parse(sentence string) (*Doc, error) {
	doc := &Doc{Text: sentence}
	fold := cases.Fold()
	for i, text := range splitTokens(sentence) {
		lemma := fold.String(text)
		doc.Tokens = append(doc.Tokens, Token{
			Index: i,
			Text:  text,
			Lemma: lemma,
			POS:   s.tag(text, lemma),
			Dep:   DepDep,
		})
	}
	if len(doc.Tokens) == 0 {
		return doc, nil
	}
	s.link(doc)
	doc.Entities = s.findEntities(sentence)
	return doc, nil
}

func (s *Shallow) tag(text, lemma string) string {
	r := []rune(text)
	switch {
	case len(r) == 1 && isPunct(r[0]):
		return PosPunct
	case len(r) == 1 && !isWordRune(r[0]):
		return "SYM"
	case unicode.IsDigit(r[0]):
		return PosNum
	case contains(s.lex.Conditional, lemma):
		return PosSconj
	case contains(s.lex.Then, lemma):
		return PosAdv
	case contains(s.lex.Modal, lemma):
		return PosAux
	case contains(s.lex.Verbs, lemma):
		return PosVerb
	}
	if len(r) >= 4 {
		for _, suf := range s.lex.VerbSuffixes {
			if strings.HasSuffix(lemma, suf) {
				return PosVerb
			}
		}
	}
	return PosNoun
}

// link builds the dependency tree: a leading conditional marker opens a
// subordinate clause that ends at the first comma, semicolon or then-word;
// the rest is the main clause.
func (s *Shallow) link(doc *Doc) {
	toks := doc.Tokens
	marker := -1
	for i, tok := range toks {
		if tok.POS == PosSconj && (i == 0 || toks[i-1].POS == PosPunct) {
			marker = i
			break
		}
	}

	boundary := -1
	if marker >= 0 {
		for i := marker + 1; i < len(toks); i++ {
			if toks[i].Text == "," || toks[i].Text == ";" || toks[i].POS == PosAdv {
				boundary = i
				break
			}
		}
	}

	if marker < 0 || boundary < 0 || boundary == marker+1 {
		root := firstOf(toks, 0, len(toks), PosVerb, PosAux)
		if root < 0 {
			root = firstWord(toks, 0, len(toks))
		}
		if root < 0 {
			root = 0
		}
		for i := range toks {
			toks[i].Head = root
			if toks[i].POS == PosPunct {
				toks[i].Dep = DepPunct
			}
		}
		toks[root].Dep = DepRoot
		if marker >= 0 && marker != root {
			toks[marker].Dep = DepMark
		}
		return
	}

	condHead := firstOf(toks, marker+1, boundary, PosVerb, PosAux)
	if condHead < 0 {
		condHead = firstWord(toks, marker+1, boundary)
	}
	actStart := boundary
	for actStart < len(toks) && (toks[actStart].POS == PosPunct || toks[actStart].POS == PosAdv) {
		actStart++
	}
	actHead := firstOf(toks, actStart, len(toks), PosVerb, PosAux)
	if actHead < 0 {
		actHead = firstWord(toks, actStart, len(toks))
	}
	if condHead < 0 || actHead < 0 {
		for i := range toks {
			toks[i].Head = marker
		}
		toks[marker].Dep = DepRoot
		return
	}

	for i := range toks {
		switch {
		case i == actHead:
			toks[i].Head, toks[i].Dep = i, DepRoot
		case i == condHead:
			toks[i].Head, toks[i].Dep = actHead, DepAdvcl
		case i == marker:
			toks[i].Head, toks[i].Dep = condHead, DepMark
		case i > marker && i < boundary:
			toks[i].Head = condHead
		default:
			toks[i].Head = actHead
			if toks[i].POS == PosPunct {
				toks[i].Dep = DepPunct
			} else if toks[i].POS == PosAdv && i >= boundary && i < actStart {
				toks[i].Dep = DepAdvmod
			}
		}
	}

	// after the main predicate, a comma or coordinating word opens a further
	// clause headed by the next verb
	opened := false
	for i := actHead + 1; i < len(toks); i++ {
		switch {
		case toks[i].Text == "," || toks[i].Text == ";" || contains(s.lex.Coord, toks[i].Lemma):
			opened = true
		case opened && (toks[i].POS == PosVerb || toks[i].POS == PosAux):
			toks[i].Dep = DepConj
			opened = false
		}
	}
}

// findEntities mirrors the keyword dictionary lookup: an entity is
// reported once when any of its keywords occurs in the text.
func (s *Shallow) findEntities(text string) []Entity {
	lower := strings.ToLower(text)
	var out []Entity
	for entityType, named := range s.entities {
		for name, keywords := range named {
			for _, kw := range keywords {
				if kw != "" && strings.Contains(lower, kw) {
					out = append(out, Entity{Type: entityType, Text: name})
					break
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Text < out[j].Text
	})
	return out
}

// splitTokens cuts a sentence into words and single-rune symbols. Hyphens
// inside words and decimal separators inside numbers stay in the word.
func splitTokens(s string) []string {
	runes := []rune(s)
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		switch {
		case isWordRune(r):
			cur = append(cur, r)
		case r == '-' && len(cur) > 0 && i+1 < len(runes) && unicode.IsLetter(runes[i+1]):
			cur = append(cur, r)
		case (r == '.' || r == ',') && len(cur) > 0 && unicode.IsDigit(cur[len(cur)-1]) &&
			i+1 < len(runes) && unicode.IsDigit(runes[i+1]):
			cur = append(cur, r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			out = append(out, string(r))
		}
	}
	flush()
	return out
}

func firstOf(toks []Token, from, to int, tags ...string) int {
	for i := from; i < to && i < len(toks); i++ {
		for _, tag := range tags {
			if toks[i].POS == tag {
				return i
			}
		}
	}
	return -1
}

func firstWord(toks []Token, from, to int) int {
	for i := from; i < to && i < len(toks); i++ {
		if toks[i].POS != PosPunct && toks[i].POS != PosAdv && toks[i].POS != PosSconj {
			return i
		}
	}
	return -1
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

func isPunct(r rune) bool {
	return strings.ContainsRune(",.;:!?()[]«»\"'—–", r)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
