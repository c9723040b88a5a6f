package engine

import (
	"context"
	"fmt"

	"github.com/thetally/categorize/internal/common"
	"github.com/thetally/categorize/internal/model"
)

// Default rule-tester limits.
const (
	DefaultSampleSize = 100
	DefaultMaxPreview = 25
)

// TestOptions configures a rule dry run.
type TestOptions struct {
	// SampleSize bounds the recent-transaction window fetched when no sample
	// is supplied.
	SampleSize int
	// MaxPreview bounds the matched-transaction ID list in the result.
	MaxPreview int
}

// Tester dry-runs a candidate rule against historical transactions without
// persisting anything: no decisions are applied and no statistics recorded.
type Tester struct {
	txns TransactionSource
}

// NewTester creates a rule tester backed by the given transaction source.
func NewTester(txns TransactionSource) *Tester {
	return &Tester{txns: txns}
}

// TestRule evaluates the candidate rule in isolation, not merged into the
// live rule set, against each sample transaction. When samples is nil, a
// recent window of the tenant's transactions is fetched instead.
func (t *Tester) TestRule(ctx context.Context, rule model.Rule, samples []model.Transaction, opts TestOptions) (*model.TestResult, error) {
	if err := rule.Validate(); err != nil {
		return nil, common.NewValidationError(rule.ID, err)
	}

	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if opts.MaxPreview <= 0 {
		opts.MaxPreview = DefaultMaxPreview
	}

	if samples == nil {
		scope := model.BatchScope{
			TenantID:           rule.TenantID,
			Limit:              opts.SampleSize,
			IncludeCategorized: true,
		}
		fetched, err := t.txns.GetTransactions(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("%w: fetching sample transactions: %v", common.ErrSourceUnavailable, err)
		}
		samples = fetched
	}

	// Same matcher dispatch as live evaluation, over a single-rule set. The
	// candidate is evaluated even if not yet activated.
	candidate := rule
	candidate.IsActive = true
	eng := New(model.NewOrderedRuleSet([]model.Rule{candidate}), nil)

	result := &model.TestResult{Tested: len(samples)}

	for _, txn := range samples {
		decision := eng.Categorize(txn)
		if !decision.Matched() {
			continue
		}

		result.Matches++
		if len(result.MatchedIDs) < opts.MaxPreview {
			result.MatchedIDs = append(result.MatchedIDs, txn.ID)
		}

		// Agreement against a pre-existing category tells the author how the
		// rule would have scored historically.
		if txn.CategoryID != nil {
			result.PriorCategorized++
			if *txn.CategoryID == rule.CategoryID {
				result.Agreements++
			}
		}
	}

	return result, nil
}
