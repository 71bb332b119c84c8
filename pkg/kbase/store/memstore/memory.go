package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// Store is the in-memory knowledge base. Rules and facts are indexed by
// owning agent and domain; duplicate rules are found through a normalised
// key index instead of a scan.
type Store struct {
	mu  sync.RWMutex
	seq int64 // insertion counter, breaks created_at ties

	domains   map[string]*store.Domain
	domainIdx map[string]string // name → id
	agents    map[string]*store.Agent

	rules        map[string]*ruleEntry
	rulesByKey   map[string]string // dedup key → rule id
	rulesByAgent map[string]map[string]struct{}
	rulesByDom   map[string]map[string]struct{}

	facts        map[string]*factEntry
	factsByAgent map[string]map[string]struct{}
	factsByDom   map[string]map[string]struct{}
	variables    map[string]int // variable → number of facts

	now func() time.Time
}

type ruleEntry struct {
	rule store.Rule
	seq  int64
}

type factEntry struct {
	fact store.Fact
	seq  int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		domains:      make(map[string]*store.Domain),
		domainIdx:    make(map[string]string),
		agents:       make(map[string]*store.Agent),
		rules:        make(map[string]*ruleEntry),
		rulesByKey:   make(map[string]string),
		rulesByAgent: make(map[string]map[string]struct{}),
		rulesByDom:   make(map[string]map[string]struct{}),
		facts:        make(map[string]*factEntry),
		factsByAgent: make(map[string]map[string]struct{}),
		factsByDom:   make(map[string]map[string]struct{}),
		variables:    make(map[string]int),
		now:          time.Now,
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// AddDomain inserts a domain. Names are unique.
func (s *Store) AddDomain(ctx context.Context, d store.Domain) (store.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return store.Domain{}, fmt.Errorf("domain name is required: %w", internalerr.ErrInvalidInput)
	}
	if _, ok := s.domainIdx[d.Name]; ok {
		return store.Domain{}, fmt.Errorf("domain %q: %w", d.Name, internalerr.ErrDuplicate)
	}
	if d.ID == "" {
		d.ID = store.NewID()
	}
	if _, ok := s.domains[d.ID]; ok {
		return store.Domain{}, fmt.Errorf("domain id %s: %w", d.ID, internalerr.ErrDuplicate)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	d.RulesCount, d.FactsCount, d.AgentsCount = 0, 0, 0

	s.domains[d.ID] = &d
	s.domainIdx[d.Name] = d.ID
	return d, nil
}

// GetDomain returns a domain by id.
func (s *Store) GetDomain(ctx context.Context, id string) (store.Domain, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.domains[id]; ok {
		return *d, true, nil
	}
	return store.Domain{}, false, nil
}

// ListDomains returns all domains ordered by name.
func (s *Store) ListDomains(ctx context.Context) ([]store.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Domain, 0, len(s.domains))
	for _, d := range s.domains {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteDomain removes a domain. Its agents, rules and facts survive with
// the domain reference cleared. A detached rule whose new dedup key is
// already taken by one of the agent's unscoped rules is dropped.
func (s *Store) DeleteDomain(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.domains[id]
	if !ok {
		return fmt.Errorf("domain %s: %w", id, internalerr.ErrNotFound)
	}
	for _, a := range s.agents {
		if a.DomainID == id {
			a.DomainID = ""
		}
	}
	for rid := range s.rulesByDom[id] {
		e := s.rules[rid]
		delete(s.rulesByKey, store.DedupKey(e.rule))
		if _, taken := s.rulesByKey[store.DedupKey(detach(e.rule))]; taken {
			s.removeRule(rid)
			continue
		}
		e.rule.DomainID = ""
		s.indexRuleKey(e.rule)
	}
	for fid := range s.factsByDom[id] {
		s.facts[fid].fact.DomainID = ""
	}
	delete(s.rulesByDom, id)
	delete(s.factsByDom, id)
	delete(s.domainIdx, d.Name)
	delete(s.domains, id)
	return nil
}

// AddAgent inserts an agent and bumps its domain's agent counter.
func (s *Store) AddAgent(ctx context.Context, a store.Agent) (store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return store.Agent{}, fmt.Errorf("agent name is required: %w", internalerr.ErrInvalidInput)
	}
	if a.DomainID != "" {
		if _, ok := s.domains[a.DomainID]; !ok {
			return store.Agent{}, fmt.Errorf("agent domain %s: %w", a.DomainID, internalerr.ErrNotFound)
		}
	}
	if a.ID == "" {
		a.ID = store.NewAgentID()
	}
	if _, ok := s.agents[a.ID]; ok {
		return store.Agent{}, fmt.Errorf("agent id %s: %w", a.ID, internalerr.ErrDuplicate)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.RulesCount, a.FactsCount = 0, 0

	s.agents[a.ID] = &a
	if d := s.domains[a.DomainID]; d != nil {
		d.AgentsCount++
	}
	return a, nil
}

// GetAgent returns an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (store.Agent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.agents[id]; ok {
		return *a, true, nil
	}
	return store.Agent{}, false, nil
}

// ListAgents returns agents of a domain, or all agents when domainID is
// empty, ordered by name.
func (s *Store) ListAgents(ctx context.Context, domainID string) ([]store.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Agent
	for _, a := range s.agents {
		if domainID == "" || a.DomainID == domainID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteAgent removes an agent together with its rules and facts.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, internalerr.ErrNotFound)
	}
	for rid := range s.rulesByAgent[id] {
		s.removeRule(rid)
	}
	for fid := range s.factsByAgent[id] {
		s.removeFact(fid)
	}
	if d := s.domains[a.DomainID]; d != nil && d.AgentsCount > 0 {
		d.AgentsCount--
	}
	delete(s.rulesByAgent, id)
	delete(s.factsByAgent, id)
	delete(s.agents, id)
	return nil
}

// AddRule inserts a rule unless one with the same dedup key exists, in
// which case the existing id is returned.
func (s *Store) AddRule(ctx context.Context, r store.Rule) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRule(&r); err != nil {
		return "", false, err
	}
	if existing, ok := s.rulesByKey[store.DedupKey(r)]; ok {
		return existing, false, nil
	}
	if r.ID == "" {
		r.ID = store.NewID()
	}
	if _, ok := s.rules[r.ID]; ok {
		return "", false, fmt.Errorf("rule id %s: %w", r.ID, internalerr.ErrDuplicate)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	s.seq++
	s.rules[r.ID] = &ruleEntry{rule: copyRule(r), seq: s.seq}
	s.indexRuleKey(r)
	addToIndex(s.rulesByAgent, r.AgentID, r.ID)
	addToIndex(s.rulesByDom, r.DomainID, r.ID)

	s.agents[r.AgentID].RulesCount++
	if d := s.domains[r.DomainID]; d != nil {
		d.RulesCount++
	}
	return r.ID, true, nil
}

func (s *Store) checkRule(r *store.Rule) error {
	r.Condition = strings.TrimSpace(r.Condition)
	r.Action = strings.TrimSpace(r.Action)
	if r.Condition == "" || r.Action == "" {
		return fmt.Errorf("rule condition and action are required: %w", internalerr.ErrInvalidInput)
	}
	if r.AgentID == "" {
		return fmt.Errorf("rule agent is required: %w", internalerr.ErrInvalidInput)
	}
	if _, ok := s.agents[r.AgentID]; !ok {
		return fmt.Errorf("rule agent %s: %w", r.AgentID, internalerr.ErrNotFound)
	}
	if r.DomainID != "" {
		if _, ok := s.domains[r.DomainID]; !ok {
			return fmt.Errorf("rule domain %s: %w", r.DomainID, internalerr.ErrNotFound)
		}
	}
	if r.Type == "" {
		r.Type = store.Conditional
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule confidence %.2f outside [0,1]: %w", r.Confidence, internalerr.ErrInvalidInput)
	}
	return nil
}

func detach(r store.Rule) store.Rule {
	r.DomainID = ""
	return r
}

func (s *Store) indexRuleKey(r store.Rule) {
	s.rulesByKey[store.DedupKey(r)] = r.ID
}

// GetRule returns a rule by id.
func (s *Store) GetRule(ctx context.Context, id string) (store.Rule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.rules[id]; ok {
		return copyRule(e.rule), true, nil
	}
	return store.Rule{}, false, nil
}

// ListRules returns matching rules by priority, newest first within a
// priority.
func (s *Store) ListRules(ctx context.Context, f store.Filter) ([]store.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectRules(f, nil), nil
}

// SearchRules returns matching rules whose name, condition, action or tags
// contain query, case-insensitively.
func (s *Store) SearchRules(ctx context.Context, query string, f store.Filter) ([]store.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	return s.selectRules(f, func(r store.Rule) bool {
		return q == "" || store.RuleContains(r, q)
	}), nil
}

func (s *Store) selectRules(f store.Filter, keep func(store.Rule) bool) []store.Rule {
	var entries []*ruleEntry
	for _, id := range s.candidateRules(f) {
		e := s.rules[id]
		if !f.Match(e.rule.AgentID, e.rule.DomainID) {
			continue
		}
		if keep != nil && !keep(e.rule) {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority > b.rule.Priority
		}
		if !a.rule.CreatedAt.Equal(b.rule.CreatedAt) {
			return a.rule.CreatedAt.After(b.rule.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]store.Rule, len(entries))
	for i, e := range entries {
		out[i] = copyRule(e.rule)
	}
	return out
}

func (s *Store) candidateRules(f store.Filter) []string {
	var src map[string]struct{}
	switch {
	case f.AgentID != "":
		src = s.rulesByAgent[f.AgentID]
	case f.DomainID != "":
		src = s.rulesByDom[f.DomainID]
	default:
		ids := make([]string, 0, len(s.rules))
		for id := range s.rules {
			ids = append(ids, id)
		}
		return ids
	}
	ids := make([]string, 0, len(src))
	for id := range src {
		ids = append(ids, id)
	}
	return ids
}

// UpdateRulePriority changes a rule's priority.
func (s *Store) UpdateRulePriority(ctx context.Context, id string, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("rule %s: %w", id, internalerr.ErrNotFound)
	}
	e.rule.Priority = priority
	return nil
}

// DeleteRule removes a rule and decrements its owners' counters.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, internalerr.ErrNotFound)
	}
	s.removeRule(id)
	return nil
}

func (s *Store) removeRule(id string) {
	e := s.rules[id]
	r := e.rule
	delete(s.rules, id)
	if s.rulesByKey[store.DedupKey(r)] == id {
		delete(s.rulesByKey, store.DedupKey(r))
	}
	removeFromIndex(s.rulesByAgent, r.AgentID, id)
	removeFromIndex(s.rulesByDom, r.DomainID, id)
	if a := s.agents[r.AgentID]; a != nil && a.RulesCount > 0 {
		a.RulesCount--
	}
	if d := s.domains[r.DomainID]; d != nil && d.RulesCount > 0 {
		d.RulesCount--
	}
}

// AddFact inserts a fact. Facts are never deduplicated.
func (s *Store) AddFact(ctx context.Context, f store.Fact) (store.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkFact(&f); err != nil {
		return store.Fact{}, err
	}
	if f.ID == "" {
		f.ID = store.NewID()
	}
	if _, ok := s.facts[f.ID]; ok {
		return store.Fact{}, fmt.Errorf("fact id %s: %w", f.ID, internalerr.ErrDuplicate)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}

	s.seq++
	s.facts[f.ID] = &factEntry{fact: f, seq: s.seq}
	addToIndex(s.factsByAgent, f.AgentID, f.ID)
	addToIndex(s.factsByDom, f.DomainID, f.ID)
	s.variables[f.Variable]++

	s.agents[f.AgentID].FactsCount++
	if d := s.domains[f.DomainID]; d != nil {
		d.FactsCount++
	}
	return f, nil
}

func (s *Store) checkFact(f *store.Fact) error {
	f.Variable = strings.TrimSpace(f.Variable)
	f.Value = strings.TrimSpace(f.Value)
	if f.Variable == "" || f.Value == "" {
		return fmt.Errorf("fact variable and value are required: %w", internalerr.ErrInvalidInput)
	}
	if len([]rune(f.Variable)) > store.MaxVariableLen || len([]rune(f.Value)) > store.MaxValueLen {
		return fmt.Errorf("fact variable or value too long: %w", internalerr.ErrInvalidInput)
	}
	if f.AgentID == "" {
		return fmt.Errorf("fact agent is required: %w", internalerr.ErrInvalidInput)
	}
	if _, ok := s.agents[f.AgentID]; !ok {
		return fmt.Errorf("fact agent %s: %w", f.AgentID, internalerr.ErrNotFound)
	}
	if f.DomainID != "" {
		if _, ok := s.domains[f.DomainID]; !ok {
			return fmt.Errorf("fact domain %s: %w", f.DomainID, internalerr.ErrNotFound)
		}
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("fact confidence %.2f outside [0,1]: %w", f.Confidence, internalerr.ErrInvalidInput)
	}
	return nil
}

func (s *Store) removeFact(id string) {
	e := s.facts[id]
	f := e.fact
	delete(s.facts, id)
	removeFromIndex(s.factsByAgent, f.AgentID, id)
	removeFromIndex(s.factsByDom, f.DomainID, id)
	if s.variables[f.Variable]--; s.variables[f.Variable] <= 0 {
		delete(s.variables, f.Variable)
	}
	if a := s.agents[f.AgentID]; a != nil && a.FactsCount > 0 {
		a.FactsCount--
	}
	if d := s.domains[f.DomainID]; d != nil && d.FactsCount > 0 {
		d.FactsCount--
	}
}

// ListFacts returns matching facts, newest first.
func (s *Store) ListFacts(ctx context.Context, f store.Filter) ([]store.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*factEntry
	for _, e := range s.facts {
		if f.Match(e.fact.AgentID, e.fact.DomainID) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.fact.CreatedAt.Equal(b.fact.CreatedAt) {
			return a.fact.CreatedAt.After(b.fact.CreatedAt)
		}
		return a.seq > b.seq
	})
	return factsOf(entries), nil
}

// FactsByVariable returns the facts for a variable, most confident first.
func (s *Store) FactsByVariable(ctx context.Context, name string) ([]store.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*factEntry
	for _, e := range s.facts {
		if e.fact.Variable == name {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.fact.Confidence != b.fact.Confidence {
			return a.fact.Confidence > b.fact.Confidence
		}
		return a.seq > b.seq
	})
	return factsOf(entries), nil
}

// Variables returns the known variable names in sorted order.
func (s *Store) Variables(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.variables))
	for v := range s.variables {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Statistics implements store.Store.
func (s *Store) Statistics(ctx context.Context) (store.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := store.Statistics{
		Domains:     len(s.domains),
		Agents:      len(s.agents),
		Rules:       len(s.rules),
		Facts:       len(s.facts),
		Variables:   len(s.variables),
		RulesByType: make(map[store.RuleType]int),
	}
	for _, e := range s.rules {
		st.RulesByType[e.rule.Type]++
	}
	return st, nil
}

func factsOf(entries []*factEntry) []store.Fact {
	out := make([]store.Fact, len(entries))
	for i, e := range entries {
		out[i] = e.fact
	}
	return out
}

func addToIndex(idx map[string]map[string]struct{}, key, id string) {
	if key == "" {
		return
	}
	if idx[key] == nil {
		idx[key] = make(map[string]struct{})
	}
	idx[key][id] = struct{}{}
}

func removeFromIndex(idx map[string]map[string]struct{}, key, id string) {
	if set := idx[key]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(idx, key)
		}
	}
}

func copyRule(r store.Rule) store.Rule {
	cp := r
	cp.Tags = append([]string(nil), r.Tags...)
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
