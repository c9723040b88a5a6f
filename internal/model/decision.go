package model

import (
	"fmt"
	"time"
)

// Decision is the engine's output for one transaction: either a category
// assignment with the rule that won, or a no-match with both references nil.
type Decision struct {
	MatchedAt     time.Time
	ID            string // idempotency key for persistence
	TransactionID string
	CategoryID    *int64
	MatchedRuleID *int64
	Confidence    float64
}

// Matched reports whether a rule matched and a category was assigned.
func (d Decision) Matched() bool {
	return d.MatchedRuleID != nil
}

// ItemError records a single transaction that could not be processed during a
// batch run. It does not abort the batch.
type ItemError struct {
	Err           error
	TransactionID string
}

func (e ItemError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.TransactionID, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// BatchResult summarizes one categorization run. A run always completes with
// a report of successes, non-matches, and failures rather than failing
// atomically.
type BatchResult struct {
	Errors      []ItemError
	Total       int
	Categorized int
	Unmatched   int
	Failed      int
	Elapsed     time.Duration
}

// TestResult reports a dry run of a candidate rule against sample
// transactions. Nothing is persisted.
type TestResult struct {
	MatchedIDs       []string // bounded preview of matched transaction IDs
	Tested           int
	Matches          int
	PriorCategorized int // matches that already carried a category
	Agreements       int // matches whose existing category equals the rule's target
}

// AgreementRate is the fraction of matches with a prior category whose
// category equals the candidate rule's target. Zero when no match carried a
// prior category.
func (r TestResult) AgreementRate() float64 {
	if r.PriorCategorized == 0 {
		return 0
	}
	return float64(r.Agreements) / float64(r.PriorCategorized)
}
