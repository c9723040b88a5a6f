package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/thetally/categorize/internal/common"
	"github.com/thetally/categorize/internal/model"
)

// SaveTransactions inserts transactions, skipping duplicates by ID.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(transactions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, tenant_id, account_id, date, description, merchant_name, amount, category_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, txn := range transactions {
		var merchant sql.NullString
		if txn.MerchantName != "" {
			merchant = sql.NullString{String: txn.MerchantName, Valid: true}
		}
		var category sql.NullInt64
		if txn.CategoryID != nil {
			category = sql.NullInt64{Int64: *txn.CategoryID, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			txn.ID, txn.TenantID, txn.AccountID, txn.Date,
			txn.Description, merchant, txn.Amount.String(), category,
		); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}

	return tx.Commit()
}

// GetTransaction retrieves a single transaction by ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, tenantID, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, account_id, date, description, merchant_name, amount, category_id
		FROM transactions WHERE id = ? AND tenant_id = ?
	`, id, tenantID)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactions returns the transactions covered by a batch scope: explicit
// IDs, a single account, a date range, or a bounded recent window. Already
// categorized transactions are excluded unless the scope asks for them, which
// keeps re-runs from double-counting rule statistics.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, scope model.BatchScope) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(scope.TenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, account_id, date, description, merchant_name, amount, category_id
		FROM transactions
		WHERE tenant_id = ?
	`
	args := []any{scope.TenantID}

	if len(scope.TransactionIDs) > 0 {
		placeholders := strings.Repeat("?,", len(scope.TransactionIDs))
		query += ` AND id IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, id := range scope.TransactionIDs {
			args = append(args, id)
		}
	}
	if scope.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, scope.AccountID)
	}
	if scope.From != nil {
		query += ` AND date >= ?`
		args = append(args, *scope.From)
	}
	if scope.To != nil {
		query += ` AND date <= ?`
		args = append(args, *scope.To)
	}
	if !scope.IncludeCategorized {
		query += ` AND category_id IS NULL`
	}

	query += ` ORDER BY date DESC, id ASC`

	if scope.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, scope.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var accountID, merchant sql.NullString
	var amount string
	var category sql.NullInt64

	err := row.Scan(
		&txn.ID, &txn.TenantID, &accountID, &txn.Date,
		&txn.Description, &merchant, &amount, &category,
	)
	if err != nil {
		return nil, err
	}

	txn.AccountID = accountID.String
	txn.MerchantName = merchant.String

	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	if category.Valid {
		txn.CategoryID = &category.Int64
	}

	return &txn, nil
}
