package exchange

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

const (
	sectionInfo    = "EXPORT_INFO"
	sectionDomains = "DOMAINS"
	sectionAgents  = "AGENTS"
	sectionRules   = "RULES"
	sectionFacts   = "FACTS"
)

var (
	domainHeaders = []string{"id", "name", "description", "created_at", "rules_count", "facts_count", "agents_count"}
	agentHeaders  = []string{"id", "name", "domain_id", "description", "created_at", "rules_count", "facts_count"}
	ruleHeaders   = []string{"id", "name", "condition", "action", "rule_type", "priority", "confidence",
		"agent_id", "domain_id", "source_file", "author", "tags", "metadata", "created_at"}
	factHeaders = []string{"id", "variable_name", "value", "confidence", "agent_id", "domain_id",
		"source_file", "author", "is_derived", "created_at"}
)

// WriteCSV writes doc as headed sections separated by blank rows.
func WriteCSV(w io.Writer, doc *Document) error {
	cw := csv.NewWriter(w)

	rows := [][]string{
		{"[" + sectionInfo + "]"},
		{"export_id", doc.ExportID},
		{"version", doc.Version},
		{"exported_at", formatTime(doc.ExportedAt)},
	}
	if len(doc.Domains) > 0 {
		rows = append(rows, nil, []string{"[" + sectionDomains + "]"}, domainHeaders)
		for _, d := range doc.Domains {
			rows = append(rows, []string{d.ID, d.Name, d.Description, formatTime(d.CreatedAt),
				strconv.Itoa(d.RulesCount), strconv.Itoa(d.FactsCount), strconv.Itoa(d.AgentsCount)})
		}
	}
	if len(doc.Agents) > 0 {
		rows = append(rows, nil, []string{"[" + sectionAgents + "]"}, agentHeaders)
		for _, a := range doc.Agents {
			rows = append(rows, []string{a.ID, a.Name, a.DomainID, a.Description, formatTime(a.CreatedAt),
				strconv.Itoa(a.RulesCount), strconv.Itoa(a.FactsCount)})
		}
	}
	if len(doc.Rules) > 0 {
		rows = append(rows, nil, []string{"[" + sectionRules + "]"}, ruleHeaders)
		for _, r := range doc.Rules {
			tags, err := json.Marshal(r.Tags)
			if err != nil {
				return err
			}
			meta, err := json.Marshal(r.Metadata)
			if err != nil {
				return err
			}
			rows = append(rows, []string{r.ID, r.Name, r.Condition, r.Action, string(r.Type),
				strconv.Itoa(r.Priority), formatFloat(r.Confidence), r.AgentID, r.DomainID,
				r.SourceFile, r.Author, string(tags), string(meta), formatTime(r.CreatedAt)})
		}
	}
	if len(doc.Facts) > 0 {
		rows = append(rows, nil, []string{"[" + sectionFacts + "]"}, factHeaders)
		for _, f := range doc.Facts {
			rows = append(rows, []string{f.ID, f.Variable, f.Value, formatFloat(f.Confidence),
				f.AgentID, f.DomainID, f.SourceFile, f.Author, strconv.FormatBool(f.Derived),
				formatTime(f.CreatedAt)})
		}
	}

	for _, row := range rows {
		if row == nil {
			// csv.Writer skips empty records; write a blank line directly
			cw.Flush()
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
			continue
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a sectioned CSV file. Unknown sections and columns are
// ignored; rows whose width differs from the section header are skipped.
func ReadCSV(r io.Reader) (*Document, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	doc := &Document{}
	var section string
	var headers []string

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w: %v", internalerr.ErrInvalidInput, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if name, ok := sectionName(row[0]); ok && len(row) == 1 {
			section, headers = name, nil
			continue
		}

		if section == sectionInfo {
			if len(row) >= 2 {
				readInfo(doc, row[0], row[1])
			}
			continue
		}
		if section == "" {
			return nil, fmt.Errorf("row outside of a section: %w", internalerr.ErrInvalidInput)
		}
		if headers == nil {
			headers = row
			continue
		}
		if len(row) != len(headers) {
			continue
		}

		rec := make(record, len(headers))
		for i, h := range headers {
			rec[h] = row[i]
		}
		switch section {
		case sectionDomains:
			doc.Domains = append(doc.Domains, rec.domain())
		case sectionAgents:
			doc.Agents = append(doc.Agents, rec.agent())
		case sectionRules:
			rule, err := rec.rule()
			if err != nil {
				return nil, err
			}
			doc.Rules = append(doc.Rules, rule)
		case sectionFacts:
			doc.Facts = append(doc.Facts, rec.fact())
		}
	}
	return doc, nil
}

func sectionName(cell string) (string, bool) {
	cell = strings.TrimSpace(cell)
	if len(cell) > 2 && strings.HasPrefix(cell, "[") && strings.HasSuffix(cell, "]") {
		return cell[1 : len(cell)-1], true
	}
	return "", false
}

func readInfo(doc *Document, key, value string) {
	switch key {
	case "export_id":
		doc.ExportID = value
	case "version":
		doc.Version = value
	case "exported_at", "export_date":
		doc.ExportedAt = parseTime(value)
	}
}

// Sniff converts a CSV cell to a typed value: "" is nil, "true"/"false"
// (any case) are booleans, all-digit strings are ints, then float, then the
// string itself.
func Sniff(s string) any {
	if s == "" {
		return nil
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if isDigits(s) {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// record is one CSV row keyed by header. Text columns are read verbatim so
// values such as "36.60" survive; typed columns go through Sniff.
type record map[string]string

func (r record) text(key string) string { return r[key] }

func (r record) integer(key string) int {
	switch v := Sniff(r[key]).(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func (r record) number(key string) float64 {
	switch v := Sniff(r[key]).(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

func (r record) flag(key string) bool {
	switch v := Sniff(r[key]).(type) {
	case bool:
		return v
	case int:
		return v != 0
	}
	return false
}

func (r record) timestamp(key string) time.Time { return parseTime(r[key]) }

func (r record) domain() store.Domain {
	return store.Domain{
		ID:          r.text("id"),
		Name:        r.text("name"),
		Description: r.text("description"),
		CreatedAt:   r.timestamp("created_at"),
		RulesCount:  r.integer("rules_count"),
		FactsCount:  r.integer("facts_count"),
		AgentsCount: r.integer("agents_count"),
	}
}

func (r record) agent() store.Agent {
	return store.Agent{
		ID:          r.text("id"),
		Name:        r.text("name"),
		DomainID:    r.text("domain_id"),
		Description: r.text("description"),
		CreatedAt:   r.timestamp("created_at"),
		RulesCount:  r.integer("rules_count"),
		FactsCount:  r.integer("facts_count"),
	}
}

func (r record) rule() (store.Rule, error) {
	rule := store.Rule{
		ID:         r.text("id"),
		Name:       r.text("name"),
		Condition:  r.text("condition"),
		Action:     r.text("action"),
		Type:       store.RuleType(r.text("rule_type")),
		Priority:   r.integer("priority"),
		Confidence: r.number("confidence"),
		AgentID:    r.text("agent_id"),
		DomainID:   r.text("domain_id"),
		SourceFile: r.text("source_file"),
		Author:     r.text("author"),
		CreatedAt:  r.timestamp("created_at"),
	}
	if raw := r.text("tags"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &rule.Tags); err != nil {
			return store.Rule{}, fmt.Errorf("rule %s tags: %w: %v", rule.ID, internalerr.ErrInvalidInput, err)
		}
	}
	if raw := r.text("metadata"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &rule.Metadata); err != nil {
			return store.Rule{}, fmt.Errorf("rule %s metadata: %w: %v", rule.ID, internalerr.ErrInvalidInput, err)
		}
	}
	return rule, nil
}

func (r record) fact() store.Fact {
	return store.Fact{
		ID:         r.text("id"),
		Variable:   r.text("variable_name"),
		Value:      r.text("value"),
		Confidence: r.number("confidence"),
		AgentID:    r.text("agent_id"),
		DomainID:   r.text("domain_id"),
		SourceFile: r.text("source_file"),
		Author:     r.text("author"),
		Derived:    r.flag("is_derived"),
		CreatedAt:  r.timestamp("created_at"),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
