package kbase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/kbase/pkg/kbase/analytics"
	"github.com/cognicore/kbase/pkg/kbase/extract"
	"github.com/cognicore/kbase/pkg/kbase/inference"
	"github.com/cognicore/kbase/pkg/kbase/inference/simple"
	"github.com/cognicore/kbase/pkg/kbase/ingest"
	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/linguistic"
	"github.com/cognicore/kbase/pkg/kbase/patterns"
	"github.com/cognicore/kbase/pkg/kbase/store"
	"github.com/cognicore/kbase/pkg/kbase/store/exchange"
)

// KBase is the main knowledge base facade
type KBase struct {
	store     store.Store
	extractor *extract.Extractor
	engine    inference.Engine
	logger    *zap.Logger
	threshold float64
	now       func() time.Time
}

// Options configures a KBase instance. Only Store is required.
type Options struct {
	Store               store.Store
	Library             *patterns.Library
	Analyzer            linguistic.Analyzer
	Engine              inference.Engine
	Logger              *zap.Logger
	Language            string
	SimilarityThreshold float64
	MaxPasses           int
	ChunkSize           int
	MinSentence         int
	Now                 func() time.Time
}

// New creates a KBase instance with the given dependencies
func New(opts Options) (*KBase, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("kbase: nil store: %w", internalerr.ErrInvalidConfig)
	}
	if opts.Library == nil {
		opts.Library = patterns.Default()
	}
	if opts.Analyzer == nil {
		opts.Analyzer = linguistic.Unavailable{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Language == "" {
		opts.Language = "ru"
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = analytics.DefaultSimilarity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Engine == nil {
		engineOpts := []simple.Option{simple.WithLogger(opts.Logger.Named("inference"))}
		if opts.MaxPasses > 0 {
			engineOpts = append(engineOpts, simple.WithMaxPasses(opts.MaxPasses))
		}
		opts.Engine = simple.New(engineOpts...)
	}

	segOpts := []ingest.SegmenterOption{
		ingest.WithChunkSize(opts.ChunkSize),
		ingest.WithSplitter(opts.Analyzer),
	}
	if opts.MinSentence > 0 {
		segOpts = append(segOpts, ingest.WithMinLength(opts.MinSentence))
	}
	ex, err := extract.New(opts.Library, opts.Language,
		extract.WithAnalyzer(opts.Analyzer),
		extract.WithSegmenter(ingest.NewSegmenter(segOpts...)),
		extract.WithLogger(opts.Logger.Named("extract")),
		extract.WithClock(opts.Now),
	)
	if err != nil {
		return nil, err
	}

	return &KBase{
		store:     opts.Store,
		extractor: ex,
		engine:    opts.Engine,
		logger:    opts.Logger,
		threshold: opts.SimilarityThreshold,
		now:       opts.Now,
	}, nil
}

// Close cleanly shuts down the KBase instance
func (k *KBase) Close() error {
	return k.store.Close()
}

// Store exposes the underlying store for record management.
func (k *KBase) Store() store.Store { return k.store }

// Language returns the extraction language.
func (k *KBase) Language() string { return k.extractor.Language() }

// Analyze extracts rule and fact candidates from text without saving them.
func (k *KBase) Analyze(text string, src extract.Source) extract.Result {
	res := k.extractor.Extract(text, src)
	k.logger.Debug("text analyzed",
		zap.String("agent_id", src.AgentID),
		zap.String("source_file", src.SourceFile),
		zap.Int("sentences", res.Stats.Sentences),
		zap.Int("rules", res.Stats.Rules),
		zap.Int("facts", res.Stats.Facts),
		zap.Int("notes", len(res.Notes)))
	return res
}

// AnalyzeFile loads a text or HTML file and extracts from it. The file's base
// name becomes the source file of every candidate.
func (k *KBase) AnalyzeFile(path string, src extract.Source) (extract.Result, error) {
	doc, err := ingest.LoadSource(path)
	if err != nil {
		return extract.Result{}, fmt.Errorf("analyze %s: %w", path, err)
	}
	src.SourceFile = doc.Name
	return k.Analyze(doc.Text, src), nil
}

// TextStats describes the structure of text under the active pattern set.
func (k *KBase) TextStats(text string) ingest.TextStats {
	return ingest.Analyze(text, k.extractor.Segmenter(), k.extractor.Patterns())
}

// SaveStats counts what Save stored.
type SaveStats struct {
	Rules      int `json:"rules_saved"`
	Duplicates int `json:"duplicates_skipped"`
	Facts      int `json:"facts_saved"`
}

// Save persists extraction candidates. The batch is not atomic: on error the
// returned stats describe what was stored before the failure.
func (k *KBase) Save(ctx context.Context, res extract.Result) (SaveStats, error) {
	var st SaveStats
	for _, r := range res.Rules {
		_, created, err := k.store.AddRule(ctx, r)
		if err != nil {
			return st, fmt.Errorf("save rule %q: %w", r.Condition, err)
		}
		if created {
			st.Rules++
		} else {
			st.Duplicates++
		}
	}
	for _, f := range res.Facts {
		if _, err := k.store.AddFact(ctx, f); err != nil {
			return st, fmt.Errorf("save fact %q: %w", f.Variable, err)
		}
		st.Facts++
	}
	k.logger.Info("analysis saved",
		zap.Int("rules", st.Rules),
		zap.Int("duplicates", st.Duplicates),
		zap.Int("facts", st.Facts))
	return st, nil
}

// Query selects the rules and facts an inference run works on.
type Query struct {
	Filter store.Filter
	// Facts seeds working memory and wins over stored facts.
	Facts inference.Memory
	// Stored also seeds working memory from the filter's stored facts, the
	// most recent value of each variable first.
	Stored bool
}

func (k *KBase) prepare(ctx context.Context, q Query) ([]store.Rule, inference.Memory, error) {
	rules, err := k.store.ListRules(ctx, q.Filter)
	if err != nil {
		return nil, nil, fmt.Errorf("load rules: %w", err)
	}
	mem := make(inference.Memory)
	if q.Stored {
		facts, err := k.store.ListFacts(ctx, q.Filter)
		if err != nil {
			return nil, nil, fmt.Errorf("load facts: %w", err)
		}
		for _, f := range facts {
			if _, ok := mem[f.Variable]; !ok {
				mem[f.Variable] = f.Value
			}
		}
	}
	for name, value := range q.Facts {
		mem[name] = value
	}
	return rules, mem, nil
}

// Forward runs forward chaining over the rules selected by q.
func (k *KBase) Forward(ctx context.Context, q Query) (inference.ForwardResult, error) {
	rules, mem, err := k.prepare(ctx, q)
	if err != nil {
		return inference.ForwardResult{}, err
	}
	return k.engine.Forward(ctx, rules, mem), nil
}

// Backward tries to prove goal from the rules selected by q.
func (k *KBase) Backward(ctx context.Context, q Query, goal string) (inference.BackwardResult, error) {
	if strings.TrimSpace(goal) == "" {
		return inference.BackwardResult{}, fmt.Errorf("empty goal: %w", internalerr.ErrInvalidInput)
	}
	rules, mem, err := k.prepare(ctx, q)
	if err != nil {
		return inference.BackwardResult{}, err
	}
	return k.engine.Backward(ctx, rules, goal, mem), nil
}

// SaveDerived stores bindings produced by inference as derived facts of
// agentID. A fact takes the confidence of the rule that derived it.
func (k *KBase) SaveDerived(ctx context.Context, agentID string, derived []inference.Binding) (int, error) {
	agent, ok, err := k.store.GetAgent(ctx, agentID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("agent %s: %w", agentID, internalerr.ErrNotFound)
	}

	saved := 0
	for _, b := range derived {
		conf := 1.0
		if b.RuleID != "" {
			if r, found, err := k.store.GetRule(ctx, b.RuleID); err == nil && found {
				conf = r.Confidence
			}
		}
		_, err := k.store.AddFact(ctx, store.Fact{
			Variable:   b.Variable,
			Value:      b.Value,
			Confidence: conf,
			AgentID:    agent.ID,
			DomainID:   agent.DomainID,
			SourceFile: "inference",
			Derived:    true,
		})
		if err != nil {
			return saved, fmt.Errorf("save derived %s: %w", b.Variable, err)
		}
		saved++
	}
	return saved, nil
}

// Similar lists rule pairs whose conditions reach threshold. A threshold of
// zero uses the configured default.
func (k *KBase) Similar(ctx context.Context, f store.Filter, threshold float64) ([]analytics.SimilarPair, error) {
	if threshold <= 0 {
		threshold = k.threshold
	}
	rules, err := k.store.ListRules(ctx, f)
	if err != nil {
		return nil, err
	}
	return analytics.FindSimilar(rules, threshold), nil
}

// Conflicts lists rule pairs with near-identical conditions and different
// actions.
func (k *KBase) Conflicts(ctx context.Context, f store.Filter) ([]analytics.Conflict, error) {
	rules, err := k.store.ListRules(ctx, f)
	if err != nil {
		return nil, err
	}
	return analytics.FindConflicts(rules), nil
}

func (k *KBase) agentData(ctx context.Context, agentID string) (analytics.AgentData, error) {
	agent, ok, err := k.store.GetAgent(ctx, agentID)
	if err != nil {
		return analytics.AgentData{}, err
	}
	if !ok {
		return analytics.AgentData{}, fmt.Errorf("agent %s: %w", agentID, internalerr.ErrNotFound)
	}
	f := store.Filter{AgentID: agentID}
	rules, err := k.store.ListRules(ctx, f)
	if err != nil {
		return analytics.AgentData{}, err
	}
	facts, err := k.store.ListFacts(ctx, f)
	if err != nil {
		return analytics.AgentData{}, err
	}
	return analytics.AgentData{Agent: agent, Rules: rules, Facts: facts}, nil
}

// TraceReport builds the hygiene report of one agent.
func (k *KBase) TraceReport(ctx context.Context, agentID string) (analytics.TraceReport, error) {
	data, err := k.agentData(ctx, agentID)
	if err != nil {
		return analytics.TraceReport{}, err
	}
	return analytics.Trace(data.Agent, data.Rules, data.Facts, k.threshold), nil
}

// CompareAgents contrasts two or more agents.
func (k *KBase) CompareAgents(ctx context.Context, agentIDs []string) (analytics.CompareReport, error) {
	data := make([]analytics.AgentData, 0, len(agentIDs))
	for _, id := range agentIDs {
		d, err := k.agentData(ctx, id)
		if err != nil {
			return analytics.CompareReport{}, err
		}
		data = append(data, d)
	}
	return analytics.Compare(data)
}

// Format is an import/export file format.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".csv":
		return CSV, nil
	}
	return "", fmt.Errorf("%s: %w", path, internalerr.ErrUnsupportedFormat)
}

// Export writes the whole knowledge base to path in the format implied by
// its extension.
func (k *KBase) Export(ctx context.Context, path string) (*exchange.Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	doc, err := exchange.Export(ctx, k.store, k.now())
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case JSON:
		err = exchange.WriteJSON(f, doc)
	case CSV:
		err = exchange.WriteCSV(f, doc)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", path, err)
	}

	k.logger.Info("knowledge base exported",
		zap.String("path", path),
		zap.String("export_id", doc.ExportID),
		zap.Int("rules", len(doc.Rules)),
		zap.Int("facts", len(doc.Facts)))
	return doc, nil
}

// Import reads a JSON or CSV export from path into the store.
func (k *KBase) Import(ctx context.Context, path string) (exchange.ImportStats, error) {
	format, err := FormatOf(path)
	if err != nil {
		return exchange.ImportStats{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return exchange.ImportStats{}, err
	}
	defer f.Close()

	var doc *exchange.Document
	switch format {
	case JSON:
		doc, err = exchange.ReadJSON(f)
	case CSV:
		doc, err = exchange.ReadCSV(f)
	}
	if err != nil {
		return exchange.ImportStats{}, fmt.Errorf("import %s: %w", path, err)
	}

	stats, err := exchange.Import(ctx, k.store, doc)
	if err != nil {
		return stats, fmt.Errorf("import %s: %w", path, err)
	}
	k.logger.Info("knowledge base imported",
		zap.String("path", path),
		zap.String("export_id", doc.ExportID),
		zap.Int("rules", stats.Rules),
		zap.Int("facts", stats.Facts),
		zap.Int("duplicates", stats.Duplicates))
	return stats, nil
}

// Statistics summarises the store.
func (k *KBase) Statistics(ctx context.Context) (store.Statistics, error) {
	return k.store.Statistics(ctx)
}
