package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/thetally/categorize/internal/common"
	"github.com/thetally/categorize/internal/model"
)

// ApplyDecision persists a categorization decision and stamps the category
// onto the transaction. Keyed by transaction ID, so re-applying a decision
// for the same transaction replaces the previous one instead of duplicating.
func (s *SQLiteStorage) ApplyDecision(ctx context.Context, decision model.Decision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(decision.TransactionID, "transactionID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var categoryID, ruleID sql.NullInt64
	if decision.CategoryID != nil {
		categoryID = sql.NullInt64{Int64: *decision.CategoryID, Valid: true}
	}
	if decision.MatchedRuleID != nil {
		ruleID = sql.NullInt64{Int64: *decision.MatchedRuleID, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO decisions (id, transaction_id, category_id, matched_rule_id, confidence, matched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			id = excluded.id,
			category_id = excluded.category_id,
			matched_rule_id = excluded.matched_rule_id,
			confidence = excluded.confidence,
			matched_at = excluded.matched_at
	`, decision.ID, decision.TransactionID, categoryID, ruleID, decision.Confidence, decision.MatchedAt); err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE transactions SET category_id = ? WHERE id = ?`,
		categoryID, decision.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", decision.TransactionID, common.ErrNotFound)
	}

	return tx.Commit()
}

// GetDecision retrieves the persisted decision for a transaction.
func (s *SQLiteStorage) GetDecision(ctx context.Context, transactionID string) (*model.Decision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	var decision model.Decision
	var categoryID, ruleID sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, category_id, matched_rule_id, confidence, matched_at
		FROM decisions WHERE transaction_id = ?
	`, transactionID).Scan(
		&decision.ID, &decision.TransactionID, &categoryID, &ruleID,
		&decision.Confidence, &decision.MatchedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("decision for transaction %s: %w", transactionID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	if categoryID.Valid {
		decision.CategoryID = &categoryID.Int64
	}
	if ruleID.Valid {
		decision.MatchedRuleID = &ruleID.Int64
	}

	return &decision, nil
}
