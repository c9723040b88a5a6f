package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thetally/categorize/internal/model"
	"github.com/thetally/categorize/internal/stats"
)

// ApplyRuleStats atomically adds counter deltas to the persisted rule
// counters. The relative UPDATE keeps concurrent batches from losing updates:
// counters only ever move forward.
func (s *SQLiteStorage) ApplyRuleStats(ctx context.Context, deltas []stats.RuleDelta) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(deltas) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE rules SET
			match_count = match_count + ?,
			success_count = success_count + ?,
			last_matched_at = COALESCE(?, last_matched_at),
			last_success_at = COALESCE(?, last_success_at)
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare stats update: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range deltas {
		var lastMatched, lastSuccess sql.NullTime
		if !d.LastMatched.IsZero() {
			lastMatched = sql.NullTime{Time: d.LastMatched, Valid: true}
		}
		if !d.LastSuccess.IsZero() {
			lastSuccess = sql.NullTime{Time: d.LastSuccess, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			d.Matches, d.Successes, lastMatched, lastSuccess, d.RuleID,
		); err != nil {
			return fmt.Errorf("failed to apply stats for rule %d: %w", d.RuleID, err)
		}
	}

	return tx.Commit()
}

// MostSuccessfulRules returns a tenant's rules ordered by success count
// descending, for rule-health reporting.
func (s *SQLiteStorage) MostSuccessfulRules(ctx context.Context, tenantID string, limit int) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	query := `SELECT ` + ruleColumns + ` FROM rules
		WHERE tenant_id = ? AND is_active = 1
		ORDER BY success_count DESC, id ASC
		LIMIT ?`

	return s.queryRules(ctx, query, tenantID, limit)
}

// RuleStats summarizes a tenant's rule inventory.
type RuleStats struct {
	TypeBreakdown map[model.RuleType]int
	Total         int
	Active        int
	Inactive      int
}

// GetRuleStats reports rule counts and a per-type breakdown for a tenant.
func (s *SQLiteStorage) GetRuleStats(ctx context.Context, tenantID string) (*RuleStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	result := &RuleStats{TypeBreakdown: make(map[model.RuleType]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_active), 0) FROM rules WHERE tenant_id = ?
	`, tenantID).Scan(&result.Total, &result.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to count rules: %w", err)
	}
	result.Inactive = result.Total - result.Active

	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_type, COUNT(*) FROM rules
		WHERE tenant_id = ? AND is_active = 1
		GROUP BY rule_type
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule type breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ruleType string
		var count int
		if err := rows.Scan(&ruleType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan rule type breakdown: %w", err)
		}
		result.TypeBreakdown[model.RuleType(ruleType)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule type breakdown: %w", err)
	}

	return result, nil
}
