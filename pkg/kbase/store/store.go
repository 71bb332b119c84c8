package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for the knowledge base.
// Implementations keep the derived counters on agents and domains up to date
// and return internalerr sentinels (wrapped) for invalid or missing records.
type Store interface {
	Close() error

	// Domains
	AddDomain(ctx context.Context, d Domain) (Domain, error)
	GetDomain(ctx context.Context, id string) (Domain, bool, error)
	ListDomains(ctx context.Context) ([]Domain, error)
	DeleteDomain(ctx context.Context, id string) error

	// Agents
	AddAgent(ctx context.Context, a Agent) (Agent, error)
	GetAgent(ctx context.Context, id string) (Agent, bool, error)
	ListAgents(ctx context.Context, domainID string) ([]Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	// Rules
	// AddRule returns the id of the stored rule. When a rule with the same
	// dedup key already exists, its id is returned and created is false.
	AddRule(ctx context.Context, r Rule) (id string, created bool, err error)
	GetRule(ctx context.Context, id string) (Rule, bool, error)
	ListRules(ctx context.Context, f Filter) ([]Rule, error)
	SearchRules(ctx context.Context, query string, f Filter) ([]Rule, error)
	UpdateRulePriority(ctx context.Context, id string, priority int) error
	DeleteRule(ctx context.Context, id string) error

	// Facts
	AddFact(ctx context.Context, f Fact) (Fact, error)
	ListFacts(ctx context.Context, f Filter) ([]Fact, error)
	FactsByVariable(ctx context.Context, name string) ([]Fact, error)
	Variables(ctx context.Context) ([]string, error)

	Statistics(ctx context.Context) (Statistics, error)
}

// RuleType classifies a rule by the surface form it was extracted from.
type RuleType string

const (
	Conditional  RuleType = "conditional"
	Causal       RuleType = "causal"
	Temporal     RuleType = "temporal"
	Definitional RuleType = "definitional"
	Obligation   RuleType = "obligation"
	Inference    RuleType = "inference"
	Action       RuleType = "action"
)

// RuleTypes lists every known rule type in declaration order.
var RuleTypes = []RuleType{Conditional, Causal, Temporal, Definitional, Obligation, Inference, Action}

// Valid reports whether t is one of the known rule types.
func (t RuleType) Valid() bool {
	for _, known := range RuleTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Rule is a condition → action pair owned by an agent.
type Rule struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Condition  string            `json:"condition"`
	Action     string            `json:"action"`
	Type       RuleType          `json:"rule_type"`
	Priority   int               `json:"priority"`
	Confidence float64           `json:"confidence"`
	AgentID    string            `json:"agent_id"`
	DomainID   string            `json:"domain_id,omitempty"`
	SourceFile string            `json:"source_file,omitempty"`
	Author     string            `json:"author,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Fact is a variable = value assertion.
type Fact struct {
	ID         string    `json:"id"`
	Variable   string    `json:"variable_name"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	AgentID    string    `json:"agent_id"`
	DomainID   string    `json:"domain_id,omitempty"`
	SourceFile string    `json:"source_file,omitempty"`
	Author     string    `json:"author,omitempty"`
	Derived    bool      `json:"is_derived"`
	CreatedAt  time.Time `json:"created_at"`
}

// Agent owns a sub-knowledge-base of rules and facts.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DomainID    string    `json:"domain_id,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RulesCount  int       `json:"rules_count"`
	FactsCount  int       `json:"facts_count"`
}

// Domain groups agents by subject area. Names are globally unique.
type Domain struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RulesCount  int       `json:"rules_count"`
	FactsCount  int       `json:"facts_count"`
	AgentsCount int       `json:"agents_count"`
}

// Filter narrows list queries. Empty fields match everything.
type Filter struct {
	AgentID  string
	DomainID string
}

// Match reports whether a record owned by agentID/domainID passes the filter.
func (f Filter) Match(agentID, domainID string) bool {
	if f.AgentID != "" && f.AgentID != agentID {
		return false
	}
	if f.DomainID != "" && f.DomainID != domainID {
		return false
	}
	return true
}

// Statistics summarises the size of the knowledge base.
type Statistics struct {
	Domains     int              `json:"domains"`
	Agents      int              `json:"agents"`
	Rules       int              `json:"rules"`
	Facts       int              `json:"facts"`
	Variables   int              `json:"variables"`
	RulesByType map[RuleType]int `json:"rules_by_type"`
}

// Field limits enforced by every store.
const (
	MaxVariableLen = 255
	MaxValueLen    = 2000
)

// RuleContains reports whether the lower-cased query q occurs in the rule's
// name, condition, action or one of its tags.
func RuleContains(r Rule, q string) bool {
	for _, field := range []string{r.Name, r.Condition, r.Action} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, tag := range r.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// NewID returns a UUID string for rules, facts and domains.
func NewID() string {
	return uuid.NewString()
}

// NewAgentID returns a short random-suffixed agent identifier.
func NewAgentID() string {
	u := uuid.New()
	return "agent_" + strings.ReplaceAll(u.String(), "-", "")[:8]
}

// DedupKey identifies a rule for duplicate suppression: the owner plus the
// whitespace-normalised condition and action.
func DedupKey(r Rule) string {
	return strings.Join([]string{
		r.AgentID,
		r.DomainID,
		normalizeSpace(r.Condition),
		normalizeSpace(r.Action),
	}, "\x1f")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
