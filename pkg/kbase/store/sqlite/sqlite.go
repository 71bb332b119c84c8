package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
	"github.com/cognicore/kbase/pkg/kbase/store"
)

// sqliteStore implements store.Store on SQLite.
type sqliteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Option configures OpenSQLite.
type Option func(*sqliteStore)

// WithLogger sets the logger used for schema and cascade events.
func WithLogger(l *zap.Logger) Option {
	return func(s *sqliteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the timestamp source for new records.
func WithClock(now func() time.Time) Option {
	return func(s *sqliteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// OpenSQLite opens a SQLite database with WAL mode and foreign keys enabled
// and creates the schema if needed.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %v", path, internalerr.ErrStoreUnavailable, err)
	}
	// foreign_keys is per connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w: %v", internalerr.ErrStoreUnavailable, err)
	}

	s := &sqliteStore{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("sqlite store opened", zap.String("path", path))
	return s, nil
}

// Close closes the database connection.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS domains (
	id TEXT PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	rules_count INTEGER NOT NULL DEFAULT 0,
	facts_count INTEGER NOT NULL DEFAULT 0,
	agents_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	domain_id TEXT,
	description TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	rules_count INTEGER NOT NULL DEFAULT 0,
	facts_count INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(domain_id) REFERENCES domains(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS rules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	condition TEXT NOT NULL,
	action TEXT NOT NULL,
	rule_type TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 1,
	confidence REAL NOT NULL DEFAULT 1.0,
	agent_id TEXT NOT NULL,
	domain_id TEXT,
	source_file TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	dedup_key TEXT NOT NULL,
	created_at TEXT NOT NULL,
	seq INTEGER NOT NULL,
	FOREIGN KEY(agent_id) REFERENCES agents(id) ON DELETE CASCADE,
	FOREIGN KEY(domain_id) REFERENCES domains(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS facts (
	id TEXT PRIMARY KEY,
	variable_name TEXT NOT NULL,
	value TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	agent_id TEXT NOT NULL,
	domain_id TEXT,
	source_file TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	is_derived INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	seq INTEGER NOT NULL,
	FOREIGN KEY(agent_id) REFERENCES agents(id) ON DELETE CASCADE,
	FOREIGN KEY(domain_id) REFERENCES domains(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_agent ON rules(agent_id);
CREATE INDEX IF NOT EXISTS idx_rules_domain ON rules(domain_id);
CREATE INDEX IF NOT EXISTS idx_rules_dedup ON rules(dedup_key);
CREATE INDEX IF NOT EXISTS idx_facts_agent ON facts(agent_id);
CREATE INDEX IF NOT EXISTS idx_facts_variable ON facts(variable_name);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Domains

func (s *sqliteStore) AddDomain(ctx context.Context, d store.Domain) (store.Domain, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return store.Domain{}, fmt.Errorf("domain name is required: %w", internalerr.ErrInvalidInput)
	}
	if d.ID == "" {
		d.ID = store.NewID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	d.RulesCount, d.FactsCount, d.AgentsCount = 0, 0, 0

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM domains WHERE name = ? OR id = ?`, d.Name, d.ID).Scan(&exists)
	if err != nil {
		return store.Domain{}, err
	}
	if exists > 0 {
		return store.Domain{}, fmt.Errorf("domain %q: %w", d.Name, internalerr.ErrDuplicate)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO domains (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.Name, d.Description, formatTime(d.CreatedAt))
	if err != nil {
		return store.Domain{}, err
	}
	return d, nil
}

const domainColumns = `id, name, description, created_at, rules_count, facts_count, agents_count`

func scanDomain(row interface{ Scan(...any) error }) (store.Domain, error) {
	var d store.Domain
	var created string
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &created, &d.RulesCount, &d.FactsCount, &d.AgentsCount); err != nil {
		return store.Domain{}, err
	}
	d.CreatedAt = parseTime(created)
	return d, nil
}

func (s *sqliteStore) GetDomain(ctx context.Context, id string) (store.Domain, bool, error) {
	d, err := scanDomain(s.db.QueryRowContext(ctx, `SELECT `+domainColumns+` FROM domains WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Domain{}, false, nil
	}
	if err != nil {
		return store.Domain{}, false, err
	}
	return d, true, nil
}

func (s *sqliteStore) ListDomains(ctx context.Context) ([]store.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+domainColumns+` FROM domains ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDomain removes a domain; foreign keys clear the reference on its
// agents, rules and facts. Dedup keys of the detached rules are rebuilt, and
// a detached rule whose new key is already taken is deleted.
func (s *sqliteStore) DeleteDomain(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, agent_id, condition, action FROM rules WHERE domain_id = ?`, id)
	if err != nil {
		return err
	}
	var detached []store.Rule
	for rows.Next() {
		var r store.Rule
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Condition, &r.Action); err != nil {
			rows.Close()
			return err
		}
		detached = append(detached, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM domains WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("domain %s: %w", id, internalerr.ErrNotFound)
	}

	merged := 0
	for _, r := range detached {
		key := store.DedupKey(r)
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT id FROM rules WHERE dedup_key = ? AND id != ? LIMIT 1`, key, r.ID).Scan(&existing)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, r.ID); err != nil {
				return err
			}
			if err := bumpCounters(ctx, tx, "rules_count", r.AgentID, "", -1); err != nil {
				return err
			}
			merged++
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rules SET dedup_key = ? WHERE id = ?`, key, r.ID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("domain deleted",
		zap.String("domain_id", id),
		zap.Int("detached_rules", len(detached)-merged),
		zap.Int("merged_rules", merged))
	return nil
}

// Agents

func (s *sqliteStore) AddAgent(ctx context.Context, a store.Agent) (store.Agent, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return store.Agent{}, fmt.Errorf("agent name is required: %w", internalerr.ErrInvalidInput)
	}
	if a.ID == "" {
		a.ID = store.NewAgentID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.RulesCount, a.FactsCount = 0, 0

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Agent{}, err
	}
	defer tx.Rollback()

	if err := requireRow(ctx, tx, `SELECT 1 FROM domains WHERE id = ?`, a.DomainID, "agent domain"); err != nil {
		return store.Agent{}, err
	}
	if err := rejectRow(ctx, tx, `SELECT 1 FROM agents WHERE id = ?`, a.ID, "agent id"); err != nil {
		return store.Agent{}, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO agents (id, name, domain_id, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, nullString(a.DomainID), a.Description, formatTime(a.CreatedAt)); err != nil {
		return store.Agent{}, err
	}
	if a.DomainID != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE domains SET agents_count = agents_count + 1 WHERE id = ?`, a.DomainID); err != nil {
			return store.Agent{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return store.Agent{}, err
	}
	return a, nil
}

const agentColumns = `id, name, domain_id, description, created_at, rules_count, facts_count`

func scanAgent(row interface{ Scan(...any) error }) (store.Agent, error) {
	var a store.Agent
	var domain sql.NullString
	var created string
	if err := row.Scan(&a.ID, &a.Name, &domain, &a.Description, &created, &a.RulesCount, &a.FactsCount); err != nil {
		return store.Agent{}, err
	}
	a.DomainID = domain.String
	a.CreatedAt = parseTime(created)
	return a, nil
}

func (s *sqliteStore) GetAgent(ctx context.Context, id string) (store.Agent, bool, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Agent{}, false, nil
	}
	if err != nil {
		return store.Agent{}, false, err
	}
	return a, true, nil
}

func (s *sqliteStore) ListAgents(ctx context.Context, domainID string) ([]store.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	if domainID != "" {
		query += ` WHERE domain_id = ?`
		args = append(args, domainID)
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAgent removes an agent; its rules and facts cascade and the domain
// counters are reduced by what the agent owned.
func (s *sqliteStore) DeleteAgent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := scanAgent(tx.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("agent %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return err
	}

	// rules and facts may carry a domain other than the agent's
	if _, err := tx.ExecContext(ctx, `
UPDATE domains SET
	rules_count = MAX(0, rules_count - (SELECT COUNT(*) FROM rules WHERE agent_id = ? AND domain_id = domains.id)),
	facts_count = MAX(0, facts_count - (SELECT COUNT(*) FROM facts WHERE agent_id = ? AND domain_id = domains.id))`,
		id, id); err != nil {
		return err
	}
	if a.DomainID != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE domains SET agents_count = MAX(0, agents_count - 1) WHERE id = ?`, a.DomainID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("agent deleted", zap.String("agent_id", id),
		zap.Int("rules", a.RulesCount), zap.Int("facts", a.FactsCount))
	return nil
}

// Rules

func (s *sqliteStore) AddRule(ctx context.Context, r store.Rule) (string, bool, error) {
	r.Condition = strings.TrimSpace(r.Condition)
	r.Action = strings.TrimSpace(r.Action)
	if r.Condition == "" || r.Action == "" {
		return "", false, fmt.Errorf("rule condition and action are required: %w", internalerr.ErrInvalidInput)
	}
	if r.AgentID == "" {
		return "", false, fmt.Errorf("rule agent is required: %w", internalerr.ErrInvalidInput)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return "", false, fmt.Errorf("rule confidence %.2f outside [0,1]: %w", r.Confidence, internalerr.ErrInvalidInput)
	}
	if r.Type == "" {
		r.Type = store.Conditional
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	if err := requireRow(ctx, tx, `SELECT 1 FROM agents WHERE id = ?`, r.AgentID, "rule agent"); err != nil {
		return "", false, err
	}
	if err := requireRow(ctx, tx, `SELECT 1 FROM domains WHERE id = ?`, r.DomainID, "rule domain"); err != nil {
		return "", false, err
	}

	key := store.DedupKey(r)
	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM rules WHERE dedup_key = ? LIMIT 1`, key).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, err
	}

	if r.ID == "" {
		r.ID = store.NewID()
	}
	if err := rejectRow(ctx, tx, `SELECT 1 FROM rules WHERE id = ?`, r.ID, "rule id"); err != nil {
		return "", false, err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	tags, err := json.Marshal(nonNilTags(r.Tags))
	if err != nil {
		return "", false, err
	}
	meta, err := json.Marshal(nonNilMeta(r.Metadata))
	if err != nil {
		return "", false, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO rules (id, name, condition, action, rule_type, priority, confidence, agent_id, domain_id,
	source_file, author, tags, metadata, dedup_key, created_at, seq)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM rules))`,
		r.ID, r.Name, r.Condition, r.Action, string(r.Type), r.Priority, r.Confidence, r.AgentID,
		nullString(r.DomainID), r.SourceFile, r.Author, string(tags), string(meta), key,
		formatTime(r.CreatedAt)); err != nil {
		return "", false, err
	}
	if err := bumpCounters(ctx, tx, "rules_count", r.AgentID, r.DomainID, 1); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return r.ID, true, nil
}

const ruleColumns = `id, name, condition, action, rule_type, priority, confidence, agent_id, domain_id,
	source_file, author, tags, metadata, created_at`

func scanRule(row interface{ Scan(...any) error }) (store.Rule, error) {
	var r store.Rule
	var typ, tags, meta, created string
	var domain sql.NullString
	if err := row.Scan(&r.ID, &r.Name, &r.Condition, &r.Action, &typ, &r.Priority, &r.Confidence,
		&r.AgentID, &domain, &r.SourceFile, &r.Author, &tags, &meta, &created); err != nil {
		return store.Rule{}, err
	}
	r.Type = store.RuleType(typ)
	r.DomainID = domain.String
	r.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return store.Rule{}, fmt.Errorf("rule %s tags: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
		return store.Rule{}, fmt.Errorf("rule %s metadata: %w", r.ID, err)
	}
	if len(r.Tags) == 0 {
		r.Tags = nil
	}
	if len(r.Metadata) == 0 {
		r.Metadata = nil
	}
	return r, nil
}

func (s *sqliteStore) GetRule(ctx context.Context, id string) (store.Rule, bool, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Rule{}, false, nil
	}
	if err != nil {
		return store.Rule{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) ListRules(ctx context.Context, f store.Filter) ([]store.Rule, error) {
	return s.queryRules(ctx, f)
}

func (s *sqliteStore) SearchRules(ctx context.Context, query string, f store.Filter) ([]store.Rule, error) {
	rules, err := s.queryRules(ctx, f)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rules, nil
	}
	// LOWER() in SQLite folds ASCII only
	out := rules[:0]
	for _, r := range rules {
		if store.RuleContains(r, q) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *sqliteStore) queryRules(ctx context.Context, f store.Filter) ([]store.Rule, error) {
	where, args := filterClause(f)
	query := `SELECT ` + ruleColumns + ` FROM rules` + where +
		` ORDER BY priority DESC, created_at DESC, seq DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateRulePriority(ctx context.Context, id string, priority int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rules SET priority = ? WHERE id = ?`, priority, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: %w", id, internalerr.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) DeleteRule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var agentID string
	var domain sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT agent_id, domain_id FROM rules WHERE id = ?`, id).Scan(&agentID, &domain)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("rule %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return err
	}
	if err := bumpCounters(ctx, tx, "rules_count", agentID, domain.String, -1); err != nil {
		return err
	}
	return tx.Commit()
}

// Facts

func (s *sqliteStore) AddFact(ctx context.Context, f store.Fact) (store.Fact, error) {
	f.Variable = strings.TrimSpace(f.Variable)
	f.Value = strings.TrimSpace(f.Value)
	if f.Variable == "" || f.Value == "" {
		return store.Fact{}, fmt.Errorf("fact variable and value are required: %w", internalerr.ErrInvalidInput)
	}
	if len([]rune(f.Variable)) > store.MaxVariableLen || len([]rune(f.Value)) > store.MaxValueLen {
		return store.Fact{}, fmt.Errorf("fact variable or value too long: %w", internalerr.ErrInvalidInput)
	}
	if f.AgentID == "" {
		return store.Fact{}, fmt.Errorf("fact agent is required: %w", internalerr.ErrInvalidInput)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return store.Fact{}, fmt.Errorf("fact confidence %.2f outside [0,1]: %w", f.Confidence, internalerr.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Fact{}, err
	}
	defer tx.Rollback()

	if err := requireRow(ctx, tx, `SELECT 1 FROM agents WHERE id = ?`, f.AgentID, "fact agent"); err != nil {
		return store.Fact{}, err
	}
	if err := requireRow(ctx, tx, `SELECT 1 FROM domains WHERE id = ?`, f.DomainID, "fact domain"); err != nil {
		return store.Fact{}, err
	}
	if f.ID == "" {
		f.ID = store.NewID()
	}
	if err := rejectRow(ctx, tx, `SELECT 1 FROM facts WHERE id = ?`, f.ID, "fact id"); err != nil {
		return store.Fact{}, err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO facts (id, variable_name, value, confidence, agent_id, domain_id, source_file, author,
	is_derived, created_at, seq)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM facts))`,
		f.ID, f.Variable, f.Value, f.Confidence, f.AgentID, nullString(f.DomainID), f.SourceFile,
		f.Author, f.Derived, formatTime(f.CreatedAt)); err != nil {
		return store.Fact{}, err
	}
	if err := bumpCounters(ctx, tx, "facts_count", f.AgentID, f.DomainID, 1); err != nil {
		return store.Fact{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.Fact{}, err
	}
	return f, nil
}

const factColumns = `id, variable_name, value, confidence, agent_id, domain_id, source_file, author,
	is_derived, created_at`

func scanFact(row interface{ Scan(...any) error }) (store.Fact, error) {
	var f store.Fact
	var domain sql.NullString
	var created string
	if err := row.Scan(&f.ID, &f.Variable, &f.Value, &f.Confidence, &f.AgentID, &domain,
		&f.SourceFile, &f.Author, &f.Derived, &created); err != nil {
		return store.Fact{}, err
	}
	f.DomainID = domain.String
	f.CreatedAt = parseTime(created)
	return f, nil
}

func (s *sqliteStore) queryFacts(ctx context.Context, query string, args ...any) ([]store.Fact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListFacts(ctx context.Context, f store.Filter) ([]store.Fact, error) {
	where, args := filterClause(f)
	return s.queryFacts(ctx, `SELECT `+factColumns+` FROM facts`+where+` ORDER BY created_at DESC, seq DESC`, args...)
}

func (s *sqliteStore) FactsByVariable(ctx context.Context, name string) ([]store.Fact, error) {
	return s.queryFacts(ctx, `SELECT `+factColumns+` FROM facts WHERE variable_name = ?
ORDER BY confidence DESC, seq DESC`, name)
}

func (s *sqliteStore) Variables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT variable_name FROM facts ORDER BY variable_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Statistics(ctx context.Context) (store.Statistics, error) {
	st := store.Statistics{RulesByType: make(map[store.RuleType]int)}
	err := s.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM domains),
	(SELECT COUNT(*) FROM agents),
	(SELECT COUNT(*) FROM rules),
	(SELECT COUNT(*) FROM facts),
	(SELECT COUNT(DISTINCT variable_name) FROM facts)`).
		Scan(&st.Domains, &st.Agents, &st.Rules, &st.Facts, &st.Variables)
	if err != nil {
		return store.Statistics{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT rule_type, COUNT(*) FROM rules GROUP BY rule_type`)
	if err != nil {
		return store.Statistics{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return store.Statistics{}, err
		}
		st.RulesByType[store.RuleType(typ)] = n
	}
	return st, rows.Err()
}

// helpers

func filterClause(f store.Filter) (string, []any) {
	var conds []string
	var args []any
	if f.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.DomainID != "" {
		conds = append(conds, "domain_id = ?")
		args = append(args, f.DomainID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// requireRow fails with ErrNotFound when id is set but the lookup is empty.
func requireRow(ctx context.Context, tx *sql.Tx, query, id, what string) error {
	if id == "" {
		return nil
	}
	var one int
	err := tx.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, internalerr.ErrNotFound)
	}
	return err
}

func rejectRow(ctx context.Context, tx *sql.Tx, query, id, what string) error {
	var one int
	err := tx.QueryRowContext(ctx, query, id).Scan(&one)
	if err == nil {
		return fmt.Errorf("%s %s: %w", what, id, internalerr.ErrDuplicate)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// bumpCounters adjusts column on the owning agent and domain by delta.
func bumpCounters(ctx context.Context, tx *sql.Tx, column, agentID, domainID string, delta int) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE agents SET `+column+` = MAX(0, `+column+` + ?) WHERE id = ?`, delta, agentID); err != nil {
		return err
	}
	if domainID == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE domains SET `+column+` = MAX(0, `+column+` + ?) WHERE id = ?`, delta, domainID)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nonNilMeta(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Timestamps are stored as fixed-width UTC text so ORDER BY matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
