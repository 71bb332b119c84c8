package patterns

import (
	"fmt"
	"sort"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// DefaultTimeout bounds a single pattern match so a pathological sentence
// cannot stall extraction.
const DefaultTimeout = time.Second

// RulePattern recognises one surface form of a rule. Group 1 is the
// condition and group 2 the action.
type RulePattern struct {
	Expr       string
	Type       store.RuleType
	Confidence float64

	re *regexp2.Regexp
}

// FactPattern recognises one surface form of a fact. Group 1 is the
// variable and group 2 the value.
type FactPattern struct {
	Expr       string
	Confidence float64
	MaxValue   int
	IgnoreCase bool

	re *regexp2.Regexp
}

// Set is the ordered pattern table of one language. Order is priority:
// earlier entries are tried first.
type Set struct {
	Language string
	Rules    []RulePattern
	Facts    []FactPattern
}

// Library holds compiled pattern sets keyed by language.
type Library struct {
	sets    map[string]*Set
	timeout time.Duration
}

// NewLibrary compiles the given sets. A later set replaces an earlier one
// with the same language.
func NewLibrary(timeout time.Duration, sets ...Set) (*Library, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	lib := &Library{sets: make(map[string]*Set), timeout: timeout}
	for _, s := range sets {
		if err := lib.Put(s); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// Default returns the built-in Russian and English tables.
func Default() *Library {
	lib, err := NewLibrary(DefaultTimeout, Russian(), English())
	if err != nil {
		panic(fmt.Sprintf("patterns: built-in tables do not compile: %v", err))
	}
	return lib
}

// Put compiles s and installs it, replacing any set for the same language.
func (l *Library) Put(s Set) error {
	if s.Language == "" {
		return fmt.Errorf("pattern set without language: %w", internalerr.ErrInvalidConfig)
	}
	compiled := Set{
		Language: s.Language,
		Rules:    make([]RulePattern, len(s.Rules)),
		Facts:    make([]FactPattern, len(s.Facts)),
	}
	for i, p := range s.Rules {
		if !p.Type.Valid() {
			return fmt.Errorf("%s rule pattern %d: unknown type %q: %w", s.Language, i, p.Type, internalerr.ErrInvalidConfig)
		}
		if err := checkConfidence(p.Confidence); err != nil {
			return fmt.Errorf("%s rule pattern %d: %w", s.Language, i, err)
		}
		re, err := regexp2.Compile(p.Expr, regexp2.IgnoreCase|regexp2.Singleline)
		if err != nil {
			return fmt.Errorf("%s rule pattern %d: %v: %w", s.Language, i, err, internalerr.ErrInvalidConfig)
		}
		re.MatchTimeout = l.timeout
		p.re = re
		compiled.Rules[i] = p
	}
	for i, p := range s.Facts {
		if err := checkConfidence(p.Confidence); err != nil {
			return fmt.Errorf("%s fact pattern %d: %w", s.Language, i, err)
		}
		opts := regexp2.None
		if p.IgnoreCase {
			opts = regexp2.IgnoreCase
		}
		re, err := regexp2.Compile(p.Expr, opts)
		if err != nil {
			return fmt.Errorf("%s fact pattern %d: %v: %w", s.Language, i, err, internalerr.ErrInvalidConfig)
		}
		re.MatchTimeout = l.timeout
		if p.MaxValue <= 0 {
			p.MaxValue = MaxFactValue
		}
		p.re = re
		compiled.Facts[i] = p
	}
	l.sets[s.Language] = &compiled
	return nil
}

// Lookup returns the set for lang.
func (l *Library) Lookup(lang string) (*Set, bool) {
	s, ok := l.sets[lang]
	return s, ok
}

// Languages lists the installed languages in sorted order.
func (l *Library) Languages() []string {
	out := make([]string, 0, len(l.sets))
	for lang := range l.sets {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

func checkConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("confidence %.2f outside [0,1]: %w", c, internalerr.ErrInvalidConfig)
	}
	return nil
}

// Match applies the pattern to a sentence and returns the raw condition and
// action groups.
func (p *RulePattern) Match(sentence string) (condition, action string, ok bool, err error) {
	if p.re == nil {
		return "", "", false, fmt.Errorf("rule pattern %q is not compiled", p.Expr)
	}
	m, err := p.re.FindStringMatch(sentence)
	if err != nil || m == nil {
		return "", "", false, err
	}
	return m.GroupByNumber(1).String(), m.GroupByNumber(2).String(), true, nil
}

// Matches reports whether the pattern matches anywhere in sentence.
func (p *RulePattern) Matches(sentence string) bool {
	if p.re == nil {
		return false
	}
	ok, err := p.re.MatchString(sentence)
	return err == nil && ok
}

// Pair is one raw variable/value match.
type Pair struct {
	Variable string
	Value    string
}

// FindAll returns every non-overlapping match in text, in text order.
// Matches found before a timeout are returned together with the error.
func (p *FactPattern) FindAll(text string) ([]Pair, error) {
	if p.re == nil {
		return nil, fmt.Errorf("fact pattern %q is not compiled", p.Expr)
	}
	var out []Pair
	m, err := p.re.FindStringMatch(text)
	for m != nil && err == nil {
		out = append(out, Pair{
			Variable: m.GroupByNumber(1).String(),
			Value:    m.GroupByNumber(2).String(),
		})
		m, err = p.re.FindNextMatch(m)
	}
	return out, err
}

// Matches reports whether the pattern matches anywhere in text.
func (p *FactPattern) Matches(text string) bool {
	if p.re == nil {
		return false
	}
	ok, err := p.re.MatchString(text)
	return err == nil && ok
}
