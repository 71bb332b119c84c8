// Package exchange moves a whole knowledge base in and out of a store as a
// JSON document or a sectioned CSV file.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// Version is the document format version written on export.
const Version = "1"

// Document is a full snapshot of a knowledge base.
type Document struct {
	ExportID   string         `json:"export_id"`
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Domains    []store.Domain `json:"domains"`
	Agents     []store.Agent  `json:"agents"`
	Rules      []store.Rule   `json:"rules"`
	Facts      []store.Fact   `json:"facts"`
}

// Export reads every domain, agent, rule and fact from st.
func Export(ctx context.Context, st store.Store, now time.Time) (*Document, error) {
	doc := &Document{
		ExportID:   ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Version:    Version,
		ExportedAt: now.UTC(),
	}
	var err error
	if doc.Domains, err = st.ListDomains(ctx); err != nil {
		return nil, fmt.Errorf("export domains: %w", err)
	}
	if doc.Agents, err = st.ListAgents(ctx, ""); err != nil {
		return nil, fmt.Errorf("export agents: %w", err)
	}
	if doc.Rules, err = st.ListRules(ctx, store.Filter{}); err != nil {
		return nil, fmt.Errorf("export rules: %w", err)
	}
	if doc.Facts, err = st.ListFacts(ctx, store.Filter{}); err != nil {
		return nil, fmt.Errorf("export facts: %w", err)
	}
	return doc, nil
}

// ImportStats counts what an import changed.
type ImportStats struct {
	Domains    int `json:"domains"`
	Agents     int `json:"agents"`
	Rules      int `json:"rules"`
	Facts      int `json:"facts"`
	Duplicates int `json:"duplicates"`
}

// Import writes doc into st keeping record ids. A domain whose name already
// exists is merged into the existing one; records already present are
// counted as duplicates and left alone.
func Import(ctx context.Context, st store.Store, doc *Document) (ImportStats, error) {
	var stats ImportStats
	if doc == nil {
		return stats, fmt.Errorf("nil document: %w", internalerr.ErrInvalidInput)
	}

	existing, err := st.ListDomains(ctx)
	if err != nil {
		return stats, err
	}
	byName := make(map[string]string, len(existing))
	for _, d := range existing {
		byName[d.Name] = d.ID
	}
	domainID := make(map[string]string)

	for _, d := range doc.Domains {
		if id, ok := byName[d.Name]; ok {
			domainID[d.ID] = id
			stats.Duplicates++
			continue
		}
		added, err := st.AddDomain(ctx, d)
		if err != nil {
			return stats, fmt.Errorf("import domain %q: %w", d.Name, err)
		}
		domainID[d.ID] = added.ID
		stats.Domains++
	}
	remap := func(id string) string {
		if mapped, ok := domainID[id]; ok {
			return mapped
		}
		return id
	}

	for _, a := range doc.Agents {
		a.DomainID = remap(a.DomainID)
		_, err := st.AddAgent(ctx, a)
		switch {
		case errors.Is(err, internalerr.ErrDuplicate):
			stats.Duplicates++
		case err != nil:
			return stats, fmt.Errorf("import agent %s: %w", a.ID, err)
		default:
			stats.Agents++
		}
	}

	for _, r := range doc.Rules {
		r.DomainID = remap(r.DomainID)
		_, created, err := st.AddRule(ctx, r)
		switch {
		case errors.Is(err, internalerr.ErrDuplicate):
			stats.Duplicates++
		case err != nil:
			return stats, fmt.Errorf("import rule %s: %w", r.ID, err)
		case created:
			stats.Rules++
		default:
			stats.Duplicates++
		}
	}

	for _, f := range doc.Facts {
		f.DomainID = remap(f.DomainID)
		_, err := st.AddFact(ctx, f)
		switch {
		case errors.Is(err, internalerr.ErrDuplicate):
			stats.Duplicates++
		case err != nil:
			return stats, fmt.Errorf("import fact %s: %w", f.ID, err)
		default:
			stats.Facts++
		}
	}
	return stats, nil
}
