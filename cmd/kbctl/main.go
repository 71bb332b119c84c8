// Command kbctl manages an expert-system knowledge base: it extracts rules
// and facts from text, stores them per agent and domain, and runs inference
// and hygiene reports over them.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cognicore/kbase/pkg/kbase"
	"github.com/cognicore/kbase/pkg/kbase/config"
	"github.com/cognicore/kbase/pkg/kbase/linguistic"
	"github.com/cognicore/kbase/pkg/kbase/store/sqlite"
)

// app carries the state shared by every command of one invocation.
type app struct {
	cfgPath  string
	dbPath   string
	lang     string
	logLevel string
	asJSON   bool

	cfg     config.Config
	logger  *zap.Logger
	kb      *kbase.KBase
	cleanup func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, teardown := newRootCmd()
	err := root.ExecuteContext(ctx)
	teardown()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The returned teardown closes whatever
// the executed command opened; it runs whether or not the command failed.
func newRootCmd() (*cobra.Command, func()) {
	a := &app{}
	root := &cobra.Command{
		Use:   "kbctl",
		Short: "Knowledge base manager for rule-based expert systems",
		Long: `kbctl extracts production rules ("if condition then action") and facts
from Russian or English text, stores them per agent and domain, and runs
forward and backward chaining over them.

Example:
  kbctl domain add медицина
  kbctl agent add терапевт --domain <domain-id>
  kbctl analyze notes.txt --agent <agent-id> --save
  kbctl forward --agent <agent-id> --fact "температура=39.5"`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "YAML config file")
	pf.StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	pf.StringVar(&a.lang, "lang", "", "extraction language: ru or en (overrides config)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.BoolVar(&a.asJSON, "json", false, "print results as JSON")

	root.AddCommand(
		a.analyzeCmd(),
		a.batchCmd(),
		a.inspectCmd(),
		a.forwardCmd(),
		a.backwardCmd(),
		a.similarCmd(),
		a.conflictsCmd(),
		a.reportCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.statsCmd(),
		a.domainCmd(),
		a.agentCmd(),
		a.ruleCmd(),
		a.factCmd(),
	)
	return root, a.teardown
}

// setup loads configuration, applies flag overrides and opens the store.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = a.dbPath
	}
	if flags.Changed("lang") {
		cfg.Language = a.lang
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	a.kb, a.cleanup, err = buildKBase(cmd.Context(), cfg, a.logger)
	return err
}

func (a *app) teardown() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newLogger builds a production logger at level, or a development logger
// for debug.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// buildKBase wires the configured components over a SQLite store.
func buildKBase(ctx context.Context, cfg config.Config, logger *zap.Logger) (*kbase.KBase, func(), error) {
	loader := config.Loader{
		Language:     cfg.Language,
		PatternsPath: cfg.PatternsPath,
		EntitiesPath: cfg.EntitiesPath,
	}
	comp, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configs: %w", err)
	}

	st, err := sqlite.OpenSQLite(ctx, cfg.DBPath, sqlite.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, nil, err
	}

	var analyzer linguistic.Analyzer = linguistic.Unavailable{}
	if cfg.Structural {
		analyzer = comp.Analyzer
	}

	kb, err := kbase.New(kbase.Options{
		Store:               st,
		Library:             comp.Library,
		Analyzer:            analyzer,
		Logger:              logger,
		Language:            cfg.Language,
		SimilarityThreshold: cfg.SimilarityThreshold,
		MaxPasses:           cfg.MaxPasses,
		ChunkSize:           cfg.ChunkSize,
		MinSentence:         cfg.MinSentence,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := kb.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}
	return kb, cleanup, nil
}

func (a *app) out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
