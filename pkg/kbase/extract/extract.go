// Package extract turns free text into rule and fact candidates.
package extract

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/kbase/pkg/kbase/ingest"
	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/linguistic"
	"github.com/cognicore/kbase/pkg/kbase/patterns"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// Length limits applied to cleaned spans.
const (
	MinRulePart    = 3
	MaxRulePart    = 500
	MinFactPart    = 2
	MaxFactVarLen  = 100
	EntityConf     = 0.9
	maxMetaSnippet = 200
)

// Source is the provenance copied onto every candidate.
type Source struct {
	AgentID    string
	DomainID   string
	SourceFile string
	Author     string
}

// Stats counts what one extraction call produced.
type Stats struct {
	Sentences int `json:"sentence_count"`
	Rules     int `json:"rule_count"`
	Facts     int `json:"fact_count"`
	Entities  int `json:"entity_count"`
}

// Result is the best-effort output of Extract. Notes records sentences or
// patterns that were skipped because they failed.
type Result struct {
	Rules []store.Rule
	Facts []store.Fact
	Stats Stats
	Notes []string
}

// Extractor applies the pattern table of one language, optionally preceded
// by a structural pass over a linguistic parse.
type Extractor struct {
	lang     string
	set      *patterns.Set
	markers  Markers
	seg      *ingest.Segmenter
	analyzer linguistic.Analyzer
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithAnalyzer enables the structural pass when a is available.
func WithAnalyzer(a linguistic.Analyzer) Option {
	return func(e *Extractor) {
		if a != nil {
			e.analyzer = a
		}
	}
}

// WithSegmenter replaces the default sentence segmenter.
func WithSegmenter(s *ingest.Segmenter) Option {
	return func(e *Extractor) {
		if s != nil {
			e.seg = s
		}
	}
}

// WithLogger sets the logger used for recovered failures.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMarkers replaces the marker word lists used to classify rules.
func WithMarkers(m Markers) Option {
	return func(e *Extractor) { e.markers = m }
}

// New creates an extractor for lang using the library's pattern set.
func New(lib *patterns.Library, lang string, opts ...Option) (*Extractor, error) {
	if lib == nil {
		return nil, fmt.Errorf("extractor: nil pattern library: %w", internalerr.ErrInvalidConfig)
	}
	set, ok := lib.Lookup(lang)
	if !ok {
		return nil, fmt.Errorf("extractor: no patterns for language %q: %w", lang, internalerr.ErrInvalidConfig)
	}
	e := &Extractor{
		lang:     lang,
		set:      set,
		markers:  MarkersFor(lang),
		analyzer: linguistic.Unavailable{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.seg == nil {
		e.seg = ingest.NewSegmenter(ingest.WithSplitter(e.analyzer))
	}
	return e, nil
}

// Language returns the language of the active pattern set.
func (e *Extractor) Language() string { return e.lang }

// Structural reports whether the linguistic pass will run.
func (e *Extractor) Structural() bool { return e.analyzer.Available() }

// Segmenter returns the sentence segmenter in use.
func (e *Extractor) Segmenter() *ingest.Segmenter { return e.seg }

// Patterns returns the active pattern set.
func (e *Extractor) Patterns() *patterns.Set { return e.set }

// Extract produces rule and fact candidates from text. It never fails: a
// sentence or pattern that errors is skipped and noted.
func (e *Extractor) Extract(text string, src Source) Result {
	var res Result
	sentences := e.seg.Segment(text)
	res.Stats.Sentences = len(sentences)
	seen := make(map[factKey]bool)

	var entities []store.Fact
	for i, sentence := range sentences {
		e.guard(&res, fmt.Sprintf("sentence %d", i), func() {
			doc := e.parse(&res, i, sentence)
			if rule, ok := e.sentenceRule(&res, doc, sentence, src); ok {
				res.Rules = append(res.Rules, rule)
			}
			if doc != nil {
				res.Stats.Entities += len(doc.Entities)
				entities = append(entities, e.entityFacts(doc, src)...)
			}
		})
	}

	e.guard(&res, "facts", func() {
		for _, f := range e.textFacts(&res, text, src) {
			addFact(&res, seen, f)
		}
	})
	for _, f := range entities {
		addFact(&res, seen, f)
	}

	res.Stats.Rules = len(res.Rules)
	res.Stats.Facts = len(res.Facts)
	return res
}

// parse returns the linguistic parse of a sentence, or nil when the
// structural pass is off or the parser failed.
func (e *Extractor) parse(res *Result, idx int, sentence string) *linguistic.Doc {
	if !e.Structural() {
		return nil
	}
	doc, err := e.analyzer.Parse(sentence)
	if err != nil {
		e.note(res, fmt.Sprintf("parse sentence %d", idx), err)
		return nil
	}
	return doc
}

func (e *Extractor) sentenceRule(res *Result, doc *linguistic.Doc, sentence string, src Source) (store.Rule, bool) {
	if doc != nil {
		if rule, ok := e.structuralRule(doc, sentence, src); ok {
			return rule, true
		}
	}
	return e.regexRule(res, sentence, src)
}

type factKey struct{ variable, value string }

func addFact(res *Result, seen map[factKey]bool, f store.Fact) {
	k := factKey{f.Variable, f.Value}
	if seen[k] {
		return
	}
	seen[k] = true
	res.Facts = append(res.Facts, f)
}

// guard runs fn and converts a panic into a note.
func (e *Extractor) guard(res *Result, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.note(res, stage, fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

func (e *Extractor) note(res *Result, stage string, err error) {
	res.Notes = append(res.Notes, fmt.Sprintf("%s: %v", stage, err))
	e.logger.Warn("extraction step skipped", zap.String("stage", stage), zap.Error(err))
}

func (e *Extractor) ruleName(src Source) string {
	file := src.SourceFile
	if e.lang == "ru" {
		if file == "" {
			file = "текст"
		}
		return fmt.Sprintf("Правило из '%s'", file)
	}
	if file == "" {
		file = "text"
	}
	return fmt.Sprintf("Rule from '%s'", file)
}

func (e *Extractor) newRule(src Source, condition, action string, typ store.RuleType, conf float64, method, pattern, sentence string) store.Rule {
	author := src.Author
	if author == "" {
		author = "system"
	}
	return store.Rule{
		ID:         store.NewID(),
		Name:       e.ruleName(src),
		Condition:  condition,
		Action:     action,
		Type:       typ,
		Priority:   1,
		Confidence: clamp(conf, 0, 1),
		AgentID:    src.AgentID,
		DomainID:   src.DomainID,
		SourceFile: src.SourceFile,
		Author:     author,
		Tags:       []string{"extracted", method},
		CreatedAt:  e.now(),
		Metadata: map[string]string{
			"sentence": snippet(sentence, maxMetaSnippet),
			"pattern":  pattern,
			"language": e.lang,
		},
	}
}

func (e *Extractor) newFact(src Source, variable, value string, conf float64) store.Fact {
	author := src.Author
	if author == "" {
		author = "system"
	}
	return store.Fact{
		ID:         store.NewID(),
		Variable:   variable,
		Value:      value,
		Confidence: clamp(conf, 0, 1),
		AgentID:    src.AgentID,
		DomainID:   src.DomainID,
		SourceFile: src.SourceFile,
		Author:     author,
		CreatedAt:  e.now(),
	}
}

func validLen(s string, min, max int) bool {
	n := len([]rune(s))
	return n >= min && n <= max
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
