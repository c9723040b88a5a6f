package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thetally/categorize/internal/common"
	"github.com/thetally/categorize/internal/model"
)

// BatchOptions configures batch categorization behavior.
type BatchOptions struct {
	// Progress, when set, is called after each transaction completes.
	Progress func(done, total int)
	// Workers is the number of transactions categorized concurrently.
	Workers int
}

// DefaultBatchOptions returns sensible defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{Workers: 4}
}

// Categorizer applies the rule engine across a bounded set of transactions.
// The rule set is fetched once per batch and treated as immutable for its
// duration; rule edits mid-batch are only picked up by the next run.
type Categorizer struct {
	rules   RuleSource
	txns    TransactionSource
	applier DecisionApplier
	stats   StatisticsSink
}

// NewCategorizer creates a batch categorizer with the given collaborators.
// The stats sink may be nil.
func NewCategorizer(rules RuleSource, txns TransactionSource, applier DecisionApplier, stats StatisticsSink) *Categorizer {
	return &Categorizer{
		rules:   rules,
		txns:    txns,
		applier: applier,
		stats:   stats,
	}
}

// CategorizeBatch runs one categorization pass over the transactions in
// scope. Per-item failures are recorded in the result and do not abort the
// batch; only whole-batch infrastructure failures (rules or transactions
// unreachable) return an error.
func (c *Categorizer) CategorizeBatch(ctx context.Context, scope model.BatchScope, opts BatchOptions) (*model.BatchResult, error) {
	start := time.Now()

	if opts.Workers <= 0 {
		opts.Workers = DefaultBatchOptions().Workers
	}

	set, err := c.rules.GetActiveRules(ctx, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching rules: %v", common.ErrSourceUnavailable, err)
	}

	transactions, err := c.txns.GetTransactions(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching transactions: %v", common.ErrSourceUnavailable, err)
	}

	result := &model.BatchResult{}

	// Explicitly requested transactions that the source did not return are
	// per-item failures, not a batch abort.
	if len(scope.TransactionIDs) > 0 {
		found := make(map[string]bool, len(transactions))
		for _, txn := range transactions {
			found[txn.ID] = true
		}
		for _, id := range scope.TransactionIDs {
			if !found[id] {
				result.Failed++
				result.Errors = append(result.Errors, model.ItemError{
					TransactionID: id,
					Err:           common.ErrTransactionNotFound,
				})
			}
		}
	}

	result.Total = len(transactions) + result.Failed

	slog.Info("Starting batch categorization",
		"tenant", scope.TenantID,
		"transactions", len(transactions),
		"rules", set.Len(),
		"workers", opts.Workers)

	if len(transactions) == 0 {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	eng := New(set, c.stats)

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, txn := range transactions {
		// Cancellation is cooperative: checked between transactions, never
		// mid-evaluation.
		if gctx.Err() != nil {
			break
		}

		txn := txn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			decision := eng.Categorize(txn)

			var applyErr error
			if decision.Matched() {
				applyErr = c.applier.ApplyDecision(gctx, decision)
			}

			mu.Lock()
			defer mu.Unlock()

			switch {
			case !decision.Matched():
				result.Unmatched++
			case applyErr != nil:
				result.Failed++
				result.Errors = append(result.Errors, model.ItemError{
					TransactionID: txn.ID,
					Err:           fmt.Errorf("applying decision: %w", applyErr),
				})
			default:
				result.Categorized++
				if c.stats != nil {
					c.stats.RecordSuccess(*decision.MatchedRuleID)
				}
			}

			done++
			if opts.Progress != nil {
				opts.Progress(done, len(transactions))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Workers only error on cancellation; partial results still stand.
		result.Elapsed = time.Since(start)
		return result, err
	}

	result.Elapsed = time.Since(start)

	slog.Info("Batch categorization finished",
		"tenant", scope.TenantID,
		"categorized", result.Categorized,
		"unmatched", result.Unmatched,
		"failed", result.Failed,
		"elapsed", result.Elapsed)

	return result, nil
}
