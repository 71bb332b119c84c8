package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/kbase/internal/corpus"
	"github.com/cognicore/kbase/pkg/kbase"
	"github.com/cognicore/kbase/pkg/kbase/extract"
	"github.com/cognicore/kbase/pkg/kbase/inference"
	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

func (a *app) analyzeCmd() *cobra.Command {
	var (
		agentID  string
		domainID string
		author   string
		text     string
		save     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Extract rules and facts from a text or HTML file",
		Long: `Runs the extraction pipeline over a file (or --text) and prints the
rule and fact candidates. With --save the candidates are stored for the agent;
exact duplicate rules are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if author == "" {
				author = a.cfg.Author
			}
			src := extract.Source{AgentID: agentID, DomainID: domainID, Author: author}

			var res extract.Result
			switch {
			case len(args) == 1:
				var err error
				if res, err = a.kb.AnalyzeFile(args[0], src); err != nil {
					return err
				}
			case text != "":
				res = a.kb.Analyze(text, src)
			default:
				return fmt.Errorf("a file or --text is required: %w", internalerr.ErrInvalidInput)
			}

			var saved *kbase.SaveStats
			if save {
				if agentID == "" {
					return fmt.Errorf("--save needs --agent: %w", internalerr.ErrInvalidInput)
				}
				st, err := a.kb.Save(cmd.Context(), res)
				if err != nil {
					return err
				}
				saved = &st
			}

			if a.asJSON {
				return printJSON(a.out(cmd), struct {
					extract.Result
					Saved *kbase.SaveStats `json:"saved,omitempty"`
				}{res, saved})
			}
			writeAnalysis(a.out(cmd), res)
			if saved != nil {
				fmt.Fprintf(a.out(cmd), "\nSaved %d rules (%d duplicates skipped) and %d facts\n",
					saved.Rules, saved.Duplicates, saved.Facts)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&agentID, "agent", "", "owning agent id")
	f.StringVar(&domainID, "domain", "", "owning domain id")
	f.StringVar(&author, "author", "", "author recorded on candidates (default from config)")
	f.StringVar(&text, "text", "", "analyze this text instead of a file")
	f.BoolVar(&save, "save", false, "store the candidates")
	return cmd
}

func writeAnalysis(w io.Writer, res extract.Result) {
	fmt.Fprintf(w, "Sentences: %d  Rules: %d  Facts: %d  Entities: %d\n",
		res.Stats.Sentences, res.Stats.Rules, res.Stats.Facts, res.Stats.Entities)
	if len(res.Rules) > 0 {
		fmt.Fprintln(w, "\nRULES:")
		for i, r := range res.Rules {
			fmt.Fprintf(w, "%d. [%s %.2f] IF %s THEN %s\n", i+1, r.Type, r.Confidence, r.Condition, r.Action)
		}
	}
	if len(res.Facts) > 0 {
		fmt.Fprintln(w, "\nFACTS:")
		for i, f := range res.Facts {
			fmt.Fprintf(w, "%d. [%.2f] %s = %s\n", i+1, f.Confidence, f.Variable, f.Value)
		}
	}
	if len(res.Notes) > 0 {
		fmt.Fprintln(w, "\nSKIPPED:")
		for _, n := range res.Notes {
			fmt.Fprintf(w, "  - %s\n", n)
		}
	}
}

func (a *app) batchCmd() *cobra.Command {
	var (
		agentID  string
		domainID string
		save     bool
	)
	cmd := &cobra.Command{
		Use:   "batch <file.jsonl>",
		Short: "Extract from a JSONL file of documents",
		Long: `Each line is a JSON object with "text" and optional "source", "title" and
"author" fields. Malformed lines are skipped with a warning.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if save && agentID == "" {
				return fmt.Errorf("--save needs --agent: %w", internalerr.ErrInvalidInput)
			}
			docs, err := corpus.LoadJSONL(args[0], a.logger)
			if err != nil {
				return err
			}

			var total extract.Stats
			var saved kbase.SaveStats
			for _, doc := range docs {
				author := doc.Author
				if author == "" {
					author = a.cfg.Author
				}
				res := a.kb.Analyze(doc.Text, extract.Source{
					AgentID:    agentID,
					DomainID:   domainID,
					SourceFile: doc.Name(),
					Author:     author,
				})
				total.Sentences += res.Stats.Sentences
				total.Rules += res.Stats.Rules
				total.Facts += res.Stats.Facts
				total.Entities += res.Stats.Entities
				if !save {
					continue
				}
				st, err := a.kb.Save(cmd.Context(), res)
				saved.Rules += st.Rules
				saved.Duplicates += st.Duplicates
				saved.Facts += st.Facts
				if err != nil {
					return err
				}
			}

			if a.asJSON {
				return printJSON(a.out(cmd), struct {
					Documents int              `json:"documents"`
					Stats     extract.Stats    `json:"stats"`
					Saved     *kbase.SaveStats `json:"saved,omitempty"`
				}{len(docs), total, savedOrNil(save, saved)})
			}
			w := a.out(cmd)
			fmt.Fprintf(w, "Documents: %d  Sentences: %d  Rules: %d  Facts: %d\n",
				len(docs), total.Sentences, total.Rules, total.Facts)
			if save {
				fmt.Fprintf(w, "Saved %d rules (%d duplicates skipped) and %d facts\n",
					saved.Rules, saved.Duplicates, saved.Facts)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&agentID, "agent", "", "owning agent id")
	f.StringVar(&domainID, "domain", "", "owning domain id")
	f.BoolVar(&save, "save", false, "store the candidates")
	return cmd
}

func savedOrNil(save bool, st kbase.SaveStats) *kbase.SaveStats {
	if !save {
		return nil
	}
	return &st
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Describe the structure of a text before extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			st := a.kb.TextStats(string(data))
			if a.asJSON {
				return printJSON(a.out(cmd), st)
			}
			fmt.Fprintf(a.out(cmd), "Characters: %d\nWords: %d\nSentences: %d\nPotential rules: %d\nPotential facts: %d\n",
				st.Chars, st.Words, st.Sentences, st.PotentialRules, st.PotentialFacts)
			return nil
		},
	}
}

// inferenceFlags are shared by forward and backward.
type inferenceFlags struct {
	agentID  string
	domainID string
	facts    []string
	stored   bool
	save     bool
}

func (fl *inferenceFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&fl.agentID, "agent", "", "use the rules of this agent")
	f.StringVar(&fl.domainID, "domain", "", "use the rules of this domain")
	f.StringArrayVar(&fl.facts, "fact", nil, "initial fact as name=value (repeatable)")
	f.BoolVar(&fl.stored, "stored", false, "also seed working memory with stored facts")
	f.BoolVar(&fl.save, "save", false, "store derived facts for --agent")
}

func (fl *inferenceFlags) query() (kbase.Query, error) {
	mem, err := parseFacts(fl.facts)
	if err != nil {
		return kbase.Query{}, err
	}
	if fl.save && fl.agentID == "" {
		return kbase.Query{}, fmt.Errorf("--save needs --agent: %w", internalerr.ErrInvalidInput)
	}
	return kbase.Query{
		Filter: store.Filter{AgentID: fl.agentID, DomainID: fl.domainID},
		Facts:  mem,
		Stored: fl.stored,
	}, nil
}

// parseFacts turns name=value arguments into working memory. The first "="
// separates name from value.
func parseFacts(args []string) (inference.Memory, error) {
	mem := make(inference.Memory, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !ok || name == "" {
			return nil, fmt.Errorf("fact %q is not name=value: %w", arg, internalerr.ErrInvalidInput)
		}
		mem[name] = value
	}
	return mem, nil
}

func (a *app) forwardCmd() *cobra.Command {
	var fl inferenceFlags
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Run forward chaining to a fixpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := fl.query()
			if err != nil {
				return err
			}
			res, err := a.kb.Forward(cmd.Context(), q)
			if err != nil {
				return err
			}
			if fl.save {
				if _, err := a.kb.SaveDerived(cmd.Context(), fl.agentID, res.Derived); err != nil {
					return err
				}
			}
			if a.asJSON {
				return printJSON(a.out(cmd), res)
			}
			w := a.out(cmd)
			writeTrace(w, res.Trace)
			status := "converged"
			if !res.Converged {
				status = "did not converge"
			}
			fmt.Fprintf(w, "\n%s after %d passes, %d new facts\n", status, res.Passes, len(res.Derived))
			writeMemory(w, res.Memory)
			return nil
		},
	}
	fl.register(cmd)
	return cmd
}

func (a *app) backwardCmd() *cobra.Command {
	var fl inferenceFlags
	cmd := &cobra.Command{
		Use:   "backward <goal>",
		Short: "Try to prove a goal by backward chaining",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := fl.query()
			if err != nil {
				return err
			}
			res, err := a.kb.Backward(cmd.Context(), q, args[0])
			if err != nil {
				return err
			}
			if fl.save && res.Proved {
				if _, err := a.kb.SaveDerived(cmd.Context(), fl.agentID, res.Derived); err != nil {
					return err
				}
			}
			if a.asJSON {
				return printJSON(a.out(cmd), res)
			}
			w := a.out(cmd)
			writeTrace(w, res.Trace)
			if res.Proved {
				fmt.Fprintf(w, "\nGoal %q proved\n", res.Goal)
			} else {
				fmt.Fprintf(w, "\nGoal %q not proved\n", res.Goal)
			}
			writeMemory(w, res.Memory)
			return nil
		},
	}
	fl.register(cmd)
	return cmd
}

func writeTrace(w io.Writer, t inference.Trace) {
	fmt.Fprintf(w, "Run %s\n", t.RunID)
	for _, s := range t.Steps {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", s.Depth+1), s.Message)
	}
}

func writeMemory(w io.Writer, mem inference.Memory) {
	names := make([]string, 0, len(mem))
	for name := range mem {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "Working memory:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %s\n", name, mem[name])
	}
}

func (a *app) similarCmd() *cobra.Command {
	var (
		agentID   string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "similar",
		Short: "List rules with similar conditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := a.kb.Similar(cmd.Context(), store.Filter{AgentID: agentID}, threshold)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), pairs)
			}
			w := a.out(cmd)
			fmt.Fprintf(w, "%d similar pairs\n", len(pairs))
			for i, p := range pairs {
				fmt.Fprintf(w, "%d. %.0f%% %s\n   IF %s THEN %s\n   IF %s THEN %s\n", i+1, p.Similarity*100, p.Kind,
					p.First.Condition, p.First.Action, p.Second.Condition, p.Second.Action)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "only this agent's rules")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum condition similarity (default from config)")
	return cmd
}

func (a *app) conflictsCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List rules with near-identical conditions and different actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conflicts, err := a.kb.Conflicts(cmd.Context(), store.Filter{AgentID: agentID})
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), conflicts)
			}
			w := a.out(cmd)
			fmt.Fprintf(w, "%d conflicts\n", len(conflicts))
			for i, c := range conflicts {
				fmt.Fprintf(w, "%d. %.0f%% %s\n   IF %s THEN %s\n   IF %s THEN %s\n", i+1, c.ConditionSimilarity*100, c.Kind,
					c.First.Condition, c.First.Action, c.Second.Condition, c.Second.Action)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "only this agent's rules")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	report := &cobra.Command{
		Use:   "report",
		Short: "Knowledge base hygiene reports",
	}
	report.AddCommand(&cobra.Command{
		Use:   "trace <agent-id>",
		Short: "Statistics, similar and conflicting rules, and recommendations for one agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.kb.TraceReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), rep)
			}
			return rep.WriteText(a.out(cmd))
		},
	}, &cobra.Command{
		Use:   "compare <agent-id> <agent-id>...",
		Short: "Compare the knowledge bases of two or more agents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.kb.CompareAgents(cmd.Context(), args)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), rep)
			}
			return rep.WriteText(a.out(cmd))
		},
	})
	return report
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.json|file.csv>",
		Short: "Export the whole knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.kb.Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out(cmd), "Exported %d domains, %d agents, %d rules, %d facts to %s (export %s)\n",
				len(doc.Domains), len(doc.Agents), len(doc.Rules), len(doc.Facts), args[0], doc.ExportID)
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|file.csv>",
		Short: "Import a knowledge base export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.kb.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), st)
			}
			fmt.Fprintf(a.out(cmd), "Imported %d domains, %d agents, %d rules, %d facts (%d duplicates)\n",
				st.Domains, st.Agents, st.Rules, st.Facts, st.Duplicates)
			return nil
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.kb.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), st)
			}
			w := a.out(cmd)
			fmt.Fprintf(w, "Domains: %d\nAgents: %d\nRules: %d\nFacts: %d\nVariables: %d\n",
				st.Domains, st.Agents, st.Rules, st.Facts, st.Variables)
			for _, t := range store.RuleTypes {
				if n := st.RulesByType[t]; n > 0 {
					fmt.Fprintf(w, "  %s: %d\n", t, n)
				}
			}
			return nil
		},
	}
}

func (a *app) domainCmd() *cobra.Command {
	domain := &cobra.Command{Use: "domain", Short: "Manage domains"}

	var description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.kb.Store().AddDomain(cmd.Context(), store.Domain{Name: args[0], Description: description})
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), d)
			}
			fmt.Fprintf(a.out(cmd), "%s\t%s\n", d.ID, d.Name)
			return nil
		},
	}
	add.Flags().StringVar(&description, "description", "", "domain description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, err := a.kb.Store().ListDomains(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), domains)
			}
			for _, d := range domains {
				fmt.Fprintf(a.out(cmd), "%s\t%s\tagents=%d rules=%d facts=%d\n",
					d.ID, d.Name, d.AgentsCount, d.RulesCount, d.FactsCount)
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <domain-id>",
		Short: "Delete a domain; its agents, rules and facts are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.kb.Store().DeleteDomain(cmd.Context(), args[0])
		},
	}

	domain.AddCommand(add, list, del)
	return domain
}

func (a *app) agentCmd() *cobra.Command {
	agent := &cobra.Command{Use: "agent", Short: "Manage agents"}

	var domainID, description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ag, err := a.kb.Store().AddAgent(cmd.Context(), store.Agent{
				Name:        args[0],
				DomainID:    domainID,
				Description: description,
			})
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), ag)
			}
			fmt.Fprintf(a.out(cmd), "%s\t%s\n", ag.ID, ag.Name)
			return nil
		},
	}
	add.Flags().StringVar(&domainID, "domain", "", "owning domain id")
	add.Flags().StringVar(&description, "description", "", "agent description")

	var listDomain string
	list := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := a.kb.Store().ListAgents(cmd.Context(), listDomain)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), agents)
			}
			for _, ag := range agents {
				fmt.Fprintf(a.out(cmd), "%s\t%s\trules=%d facts=%d\n", ag.ID, ag.Name, ag.RulesCount, ag.FactsCount)
			}
			return nil
		},
	}
	list.Flags().StringVar(&listDomain, "domain", "", "only agents of this domain")

	del := &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Delete an agent with its rules and facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.kb.Store().DeleteAgent(cmd.Context(), args[0])
		},
	}

	agent.AddCommand(add, list, del)
	return agent
}

func (a *app) ruleCmd() *cobra.Command {
	rule := &cobra.Command{Use: "rule", Short: "Manage rules"}

	var agentID, domainID, search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List rules, highest priority first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.Filter{AgentID: agentID, DomainID: domainID}
			var (
				rules []store.Rule
				err   error
			)
			if search != "" {
				rules, err = a.kb.Store().SearchRules(cmd.Context(), search, f)
			} else {
				rules, err = a.kb.Store().ListRules(cmd.Context(), f)
			}
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), rules)
			}
			for _, r := range rules {
				fmt.Fprintf(a.out(cmd), "%s\t[%d %s %.2f] IF %s THEN %s\n",
					r.ID, r.Priority, r.Type, r.Confidence, r.Condition, r.Action)
			}
			return nil
		},
	}
	list.Flags().StringVar(&agentID, "agent", "", "only this agent's rules")
	list.Flags().StringVar(&domainID, "domain", "", "only this domain's rules")
	list.Flags().StringVar(&search, "search", "", "case-insensitive text to look for")

	priority := &cobra.Command{
		Use:   "priority <rule-id> <priority>",
		Short: "Change a rule's priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("priority %q: %w", args[1], internalerr.ErrInvalidInput)
			}
			return a.kb.Store().UpdateRulePriority(cmd.Context(), args[0], p)
		},
	}

	del := &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.kb.Store().DeleteRule(cmd.Context(), args[0])
		},
	}

	rule.AddCommand(list, priority, del)
	return rule
}

func (a *app) factCmd() *cobra.Command {
	fact := &cobra.Command{Use: "fact", Short: "Inspect facts"}

	var agentID, domainID, variable string
	list := &cobra.Command{
		Use:   "list",
		Short: "List facts, newest first (or by confidence with --variable)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				facts []store.Fact
				err   error
			)
			if variable != "" {
				facts, err = a.kb.Store().FactsByVariable(cmd.Context(), variable)
			} else {
				facts, err = a.kb.Store().ListFacts(cmd.Context(), store.Filter{AgentID: agentID, DomainID: domainID})
			}
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), facts)
			}
			for _, f := range facts {
				derived := ""
				if f.Derived {
					derived = " (derived)"
				}
				fmt.Fprintf(a.out(cmd), "%s\t[%.2f] %s = %s%s\n", f.ID, f.Confidence, f.Variable, f.Value, derived)
			}
			return nil
		},
	}
	list.Flags().StringVar(&agentID, "agent", "", "only this agent's facts")
	list.Flags().StringVar(&domainID, "domain", "", "only this domain's facts")
	list.Flags().StringVar(&variable, "variable", "", "facts asserting this variable")

	variables := &cobra.Command{
		Use:   "variables",
		Short: "List known variable names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.kb.Store().Variables(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out(cmd), names)
			}
			for _, n := range names {
				fmt.Fprintln(a.out(cmd), n)
			}
			return nil
		},
	}

	fact.AddCommand(list, variables)
	return fact
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
