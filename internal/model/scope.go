package model

import "time"

// BatchScope bounds the set of transactions a categorization run covers:
// an explicit ID list, a single account, a date range, or a recent window.
type BatchScope struct {
	From           *time.Time
	To             *time.Time
	TenantID       string
	AccountID      string
	TransactionIDs []string
	Limit          int
	// IncludeCategorized widens the scope to transactions that already carry
	// a category. Left false, re-runs skip them, which keeps rule statistics
	// from double-counting.
	IncludeCategorized bool
}
