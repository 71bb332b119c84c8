package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/linguistic"
	"github.com/cognicore/kbase/pkg/kbase/patterns"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// PatternFile is the YAML form of one or more pattern sets.
type PatternFile struct {
	Sets []PatternSet `yaml:"sets"`
}

// PatternSet is the YAML form of patterns.Set.
type PatternSet struct {
	Language string      `yaml:"language"`
	Rules    []RuleEntry `yaml:"rules"`
	Facts    []FactEntry `yaml:"facts"`
}

// RuleEntry is the YAML form of patterns.RulePattern.
type RuleEntry struct {
	Expr       string  `yaml:"expr"`
	Type       string  `yaml:"type"`
	Confidence float64 `yaml:"confidence"`
}

// FactEntry is the YAML form of patterns.FactPattern.
type FactEntry struct {
	Expr       string  `yaml:"expr"`
	Confidence float64 `yaml:"confidence"`
	MaxValue   int     `yaml:"max_value"`
	IgnoreCase bool    `yaml:"ignore_case"`
}

// EntityFile maps entity type to entity name to the keywords that mention it.
type EntityFile struct {
	Entities map[string]map[string][]string `yaml:"entities"`
}

// LoadPatterns reads pattern sets from a YAML file.
func LoadPatterns(path string) ([]patterns.Set, error) {
	var pf PatternFile
	if err := readYAML(path, &pf); err != nil {
		return nil, err
	}

	sets := make([]patterns.Set, 0, len(pf.Sets))
	for _, ps := range pf.Sets {
		set := patterns.Set{Language: ps.Language}
		for _, r := range ps.Rules {
			set.Rules = append(set.Rules, patterns.RulePattern{
				Expr:       r.Expr,
				Type:       store.RuleType(r.Type),
				Confidence: r.Confidence,
			})
		}
		for _, f := range ps.Facts {
			set.Facts = append(set.Facts, patterns.FactPattern{
				Expr:       f.Expr,
				Confidence: f.Confidence,
				MaxValue:   f.MaxValue,
				IgnoreCase: f.IgnoreCase,
			})
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// LoadEntities reads an entity dictionary from a YAML file.
func LoadEntities(path string) (*EntityFile, error) {
	var ef EntityFile
	if err := readYAML(path, &ef); err != nil {
		return nil, err
	}
	return &ef, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %v: %w", path, err, internalerr.ErrInvalidConfig)
	}
	return nil
}

// Loader loads the optional configuration files and constructs components
type Loader struct {
	Language     string
	PatternsPath string
	EntitiesPath string
}

// Components holds the loaded extraction components
type Components struct {
	Library  *patterns.Library
	Analyzer *linguistic.Shallow
}

// Load builds the pattern library and the shallow analyzer. Pattern sets
// from the file replace the built-in set of the same language.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{Library: patterns.Default()}

	if l.PatternsPath != "" {
		sets, err := LoadPatterns(l.PatternsPath)
		if err != nil {
			return nil, fmt.Errorf("load patterns: %w", err)
		}
		for _, s := range sets {
			if err := comp.Library.Put(s); err != nil {
				return nil, fmt.Errorf("load patterns: %w", err)
			}
		}
	}

	lang := l.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	comp.Analyzer = linguistic.NewShallow(lang)

	if l.EntitiesPath != "" {
		ef, err := LoadEntities(l.EntitiesPath)
		if err != nil {
			return nil, fmt.Errorf("load entities: %w", err)
		}
		for entityType, entities := range ef.Entities {
			for name, keywords := range entities {
				comp.Analyzer.AddEntity(entityType, name, keywords)
			}
		}
	}

	return comp, nil
}
