package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thetally/categorize/internal/common"
	"github.com/thetally/categorize/internal/model"
)

const ruleColumns = `id, tenant_id, name, rule_type, pattern, field_to_match,
	is_case_sensitive, amount_min, amount_max, category_id, priority, is_active,
	match_count, success_count, last_matched_at, last_success_at, created_at, updated_at`

// CreateRule validates and persists a new rule. Malformed rules never reach
// the engine: validation happens here, at the authoring boundary.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if err := validateString(rule.Name, "name"); err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return common.NewValidationError(rule.ID, err)
	}

	cols := ruleSpecColumns(rule.Spec)

	query := `
		INSERT INTO rules (
			tenant_id, name, rule_type, pattern, field_to_match,
			is_case_sensitive, amount_min, amount_max, category_id, priority, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		rule.TenantID, rule.Name, string(rule.Type()), cols.pattern, cols.field,
		cols.caseSensitive, cols.amountMin, cols.amountMax,
		rule.CategoryID, rule.Priority, rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}

	rule.ID = id
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()

	return nil
}

// GetRule retrieves a rule by ID scoped to a tenant.
func (s *SQLiteStorage) GetRule(ctx context.Context, tenantID string, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ? AND tenant_id = ?`

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// GetActiveRules returns a tenant's active rules as an ordered snapshot:
// priority descending, creation order (rule ID) ascending on ties. This is
// the rule store adapter contract the engine relies on.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, tenantID string) (model.OrderedRuleSet, error) {
	if err := validateContext(ctx); err != nil {
		return model.OrderedRuleSet{}, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return model.OrderedRuleSet{}, err
	}

	query := `SELECT ` + ruleColumns + ` FROM rules
		WHERE tenant_id = ? AND is_active = 1
		ORDER BY priority DESC, id ASC`

	rules, err := s.queryRules(ctx, query, tenantID)
	if err != nil {
		return model.OrderedRuleSet{}, err
	}

	return model.NewOrderedRuleSet(rules), nil
}

// ListRules returns all of a tenant's rules, archived included, in evaluation
// order.
func (s *SQLiteStorage) ListRules(ctx context.Context, tenantID string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM rules
		WHERE tenant_id = ?
		ORDER BY priority DESC, id ASC`

	return s.queryRules(ctx, query, tenantID)
}

// UpdateRule validates and persists changes to an existing rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if err := rule.Validate(); err != nil {
		return common.NewValidationError(rule.ID, err)
	}

	cols := ruleSpecColumns(rule.Spec)

	query := `
		UPDATE rules SET
			name = ?, rule_type = ?, pattern = ?, field_to_match = ?,
			is_case_sensitive = ?, amount_min = ?, amount_max = ?,
			category_id = ?, priority = ?, is_active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		rule.Name, string(rule.Type()), cols.pattern, cols.field,
		cols.caseSensitive, cols.amountMin, cols.amountMax,
		rule.CategoryID, rule.Priority, rule.IsActive,
		rule.ID, rule.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %d: %w", rule.ID, common.ErrNotFound)
	}

	return nil
}

// ArchiveRule soft-disables a rule. Rules are archived rather than deleted to
// preserve audit history; the engine treats archived rules as inactive.
func (s *SQLiteStorage) ArchiveRule(ctx context.Context, tenantID string, id int64) error {
	return s.setRuleActive(ctx, tenantID, id, false)
}

// UnarchiveRule re-enables an archived rule.
func (s *SQLiteStorage) UnarchiveRule(ctx context.Context, tenantID string, id int64) error {
	return s.setRuleActive(ctx, tenantID, id, true)
}

func (s *SQLiteStorage) setRuleActive(ctx context.Context, tenantID string, id int64, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE rules SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND tenant_id = ?`,
		active, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update rule active flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}

	return nil
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

// specColumns is the flattened column form of a rule spec.
type specColumns struct {
	pattern       sql.NullString
	field         sql.NullString
	amountMin     sql.NullString
	amountMax     sql.NullString
	caseSensitive bool
}

func ruleSpecColumns(spec model.RuleSpec) specColumns {
	var cols specColumns
	switch v := spec.(type) {
	case model.KeywordSpec:
		cols.pattern = sql.NullString{String: v.Pattern, Valid: true}
		cols.field = sql.NullString{String: string(v.Field), Valid: true}
		cols.caseSensitive = v.CaseSensitive
	case model.RegexSpec:
		cols.pattern = sql.NullString{String: v.Pattern, Valid: true}
		cols.field = sql.NullString{String: string(v.Field), Valid: true}
		cols.caseSensitive = v.CaseSensitive
	case model.AmountRangeSpec:
		cols.field = sql.NullString{String: string(model.FieldAmount), Valid: true}
		if v.Min != nil {
			cols.amountMin = sql.NullString{String: v.Min.String(), Valid: true}
		}
		if v.Max != nil {
			cols.amountMax = sql.NullString{String: v.Max.String(), Valid: true}
		}
	}
	return cols
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var rule model.Rule
	var ruleType string
	var pattern, field, amountMin, amountMax sql.NullString
	var caseSensitive bool
	var lastMatched, lastSuccess sql.NullTime

	err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &ruleType, &pattern, &field,
		&caseSensitive, &amountMin, &amountMax, &rule.CategoryID, &rule.Priority,
		&rule.IsActive, &rule.MatchCount, &rule.SuccessCount,
		&lastMatched, &lastSuccess, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastMatched.Valid {
		rule.LastMatchedAt = &lastMatched.Time
	}
	if lastSuccess.Valid {
		rule.LastSuccessAt = &lastSuccess.Time
	}

	spec, err := buildSpec(ruleType, pattern, field, caseSensitive, amountMin, amountMax)
	if err != nil {
		// A corrupt row still surfaces as a rule; the engine's defensive
		// re-validation will skip it with a warning instead of crashing.
		rule.Spec = nil
		return &rule, nil
	}
	rule.Spec = spec

	return &rule, nil
}

func buildSpec(ruleType string, pattern, field sql.NullString, caseSensitive bool, amountMin, amountMax sql.NullString) (model.RuleSpec, error) {
	switch model.RuleType(ruleType) {
	case model.RuleTypeKeyword:
		return model.KeywordSpec{
			Pattern:       pattern.String,
			Field:         model.MatchField(field.String),
			CaseSensitive: caseSensitive,
		}, nil
	case model.RuleTypeRegex:
		return model.RegexSpec{
			Pattern:       pattern.String,
			Field:         model.MatchField(field.String),
			CaseSensitive: caseSensitive,
		}, nil
	case model.RuleTypeAmountRange:
		spec := model.AmountRangeSpec{}
		if amountMin.Valid {
			v, err := decimal.NewFromString(amountMin.String)
			if err != nil {
				return nil, fmt.Errorf("invalid amount_min %q: %w", amountMin.String, err)
			}
			spec.Min = &v
		}
		if amountMax.Valid {
			v, err := decimal.NewFromString(amountMax.String)
			if err != nil {
				return nil, fmt.Errorf("invalid amount_max %q: %w", amountMax.String, err)
			}
			spec.Max = &v
		}
		return spec, nil
	default:
		return nil, fmt.Errorf("unknown rule type %q", ruleType)
	}
}
