package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"uaswitch/filter"
	"uaswitch/logger"
	"uaswitch/models"
)

// MaxDynamicRules caps the number of rules the table holds at once.
const MaxDynamicRules = 5000

var (
	ErrInvalidRule       = errors.New("invalid rule")
	ErrRuleQuotaExceeded = errors.New("rule quota exceeded")
	ErrDuplicateRuleID   = errors.New("duplicate rule id")
)

// RuleTable is the single active rule set. Replace is all-or-nothing: the table
// rows and the in-memory snapshot change together or not at all.
type RuleTable struct {
	db *sql.DB

	mu         sync.RWMutex
	active     []models.CompiledRule
	generation uint64
}

// NewRuleTable loads the installed rules from db.
func NewRuleTable(ctx context.Context, db *sql.DB) (*RuleTable, error) {
	t := &RuleTable{db: db}
	if err := t.Reload(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *RuleTable) load(ctx context.Context) ([]models.CompiledRule, error) {
	rows, err := t.db.QueryContext(ctx, "SELECT id, rule_json FROM dynamic_rules ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying dynamic rules: %w", err)
	}
	defer rows.Close()

	rules := []models.CompiledRule{}
	for rows.Next() {
		var id int
		var ruleJSON string
		if err := rows.Scan(&id, &ruleJSON); err != nil {
			return nil, fmt.Errorf("scanning dynamic rule row: %w", err)
		}
		var rule models.CompiledRule
		if err := json.Unmarshal([]byte(ruleJSON), &rule); err != nil {
			logger.Error("RuleTable: Error unmarshalling rule %d: %v. Stored value: %s", id, err, ruleJSON)
			return nil, fmt.Errorf("failed to unmarshal rule %d: %w", id, err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Reload replaces the in-memory snapshot with what is stored in the database.
// Another process may have replaced the rules.
func (t *RuleTable) Reload(ctx context.Context) error {
	rules, err := t.load(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.active = rules
	t.generation++
	t.mu.Unlock()
	return nil
}

// ListActive returns the installed rules ordered by id.
func (t *RuleTable) ListActive(ctx context.Context) ([]models.CompiledRule, error) {
	return t.load(ctx)
}

// Snapshot returns the in-memory rule set and its generation. The generation changes
// whenever the snapshot is swapped.
func (t *RuleTable) Snapshot() ([]models.CompiledRule, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.CompiledRule, len(t.active))
	copy(out, t.active)
	return out, t.generation
}

// Replace removes update.RemoveRuleIDs and adds update.AddRules in one transaction.
// Unknown ids in the remove list are ignored. Any invalid rule aborts the whole update.
func (t *RuleTable) Replace(ctx context.Context, update models.RuleUpdate) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rule transaction: %w", err)
	}
	defer tx.Rollback()

	existing := map[int]bool{}
	rows, err := tx.QueryContext(ctx, "SELECT id FROM dynamic_rules")
	if err != nil {
		return fmt.Errorf("querying dynamic rule ids: %w", err)
	}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning dynamic rule id: %w", err)
		}
		existing[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating dynamic rule ids: %w", err)
	}

	for _, id := range update.RemoveRuleIDs {
		delete(existing, id)
	}
	if len(existing)+len(update.AddRules) > MaxDynamicRules {
		return fmt.Errorf("%w: %d rules would be installed, limit is %d", ErrRuleQuotaExceeded, len(existing)+len(update.AddRules), MaxDynamicRules)
	}
	for _, rule := range update.AddRules {
		if err := ValidateRule(rule); err != nil {
			return err
		}
		if existing[rule.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateRuleID, rule.ID)
		}
		existing[rule.ID] = true
	}

	if len(update.RemoveRuleIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(update.RemoveRuleIDs)), ",")
		args := make([]interface{}, len(update.RemoveRuleIDs))
		for i, id := range update.RemoveRuleIDs {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM dynamic_rules WHERE id IN ("+placeholders+")", args...); err != nil {
			return fmt.Errorf("removing dynamic rules: %w", err)
		}
	}

	if len(update.AddRules) > 0 {
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO dynamic_rules (id, priority, url_filter, rule_json) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare rule insert: %w", err)
		}
		defer stmt.Close()
		for _, rule := range update.AddRules {
			ruleJSON, err := json.Marshal(rule)
			if err != nil {
				return fmt.Errorf("failed to marshal rule %d: %w", rule.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, rule.ID, rule.Priority, rule.Condition.URLFilter, string(ruleJSON)); err != nil {
				return fmt.Errorf("inserting rule %d: %w", rule.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rule update: %w", err)
	}

	if err := t.Reload(ctx); err != nil {
		return fmt.Errorf("reloading rules after update: %w", err)
	}
	logger.Debug("RuleTable: removed %d rule(s), added %d rule(s).", len(update.RemoveRuleIDs), len(update.AddRules))
	return nil
}

// ValidateRule checks a rule before it is installed.
func ValidateRule(rule models.CompiledRule) error {
	if rule.ID < 1 {
		return fmt.Errorf("%w: id must be >= 1, got %d", ErrInvalidRule, rule.ID)
	}
	if rule.Priority < 1 {
		return fmt.Errorf("%w: rule %d: priority must be >= 1", ErrInvalidRule, rule.ID)
	}
	if _, err := filter.Compile(rule.Condition.URLFilter); err != nil {
		return fmt.Errorf("%w: rule %d: %v", ErrInvalidRule, rule.ID, err)
	}
	for _, rt := range rule.Condition.ResourceTypes {
		if !models.IsResourceType(rt) {
			return fmt.Errorf("%w: rule %d: unknown resource type %q", ErrInvalidRule, rule.ID, rt)
		}
	}
	if rule.Condition.ExcludedRequestDomains != nil && len(rule.Condition.ExcludedRequestDomains) == 0 {
		return fmt.Errorf("%w: rule %d: excludedRequestDomains must not be empty when present", ErrInvalidRule, rule.ID)
	}
	for _, d := range rule.Condition.ExcludedRequestDomains {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("%w: rule %d: empty excluded domain", ErrInvalidRule, rule.ID)
		}
	}
	if rule.Action.Type != models.ActionModifyHeaders {
		return fmt.Errorf("%w: rule %d: unsupported action %q", ErrInvalidRule, rule.ID, rule.Action.Type)
	}
	if len(rule.Action.RequestHeaders) == 0 {
		return fmt.Errorf("%w: rule %d: modifyHeaders requires at least one request header", ErrInvalidRule, rule.ID)
	}
	for _, h := range rule.Action.RequestHeaders {
		if h.Header == "" {
			return fmt.Errorf("%w: rule %d: empty header name", ErrInvalidRule, rule.ID)
		}
		switch h.Operation {
		case models.HeaderOperationSet, models.HeaderOperationAppend:
			if h.Value == "" {
				return fmt.Errorf("%w: rule %d: %s of %s requires a value", ErrInvalidRule, rule.ID, h.Operation, h.Header)
			}
		case models.HeaderOperationRemove:
		default:
			return fmt.Errorf("%w: rule %d: unknown header operation %q", ErrInvalidRule, rule.ID, h.Operation)
		}
	}
	return nil
}

// SortRules orders rules by descending priority, then ascending id.
func SortRules(rules []models.CompiledRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
