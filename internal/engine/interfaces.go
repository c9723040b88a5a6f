package engine

import (
	"context"

	"github.com/thetally/categorize/internal/model"
)

// RuleSource fetches the active rules for a tenant, already in evaluation
// order. The OrderedRuleSet return type carries the ordering invariant, so
// the engine never re-sorts.
type RuleSource interface {
	GetActiveRules(ctx context.Context, tenantID string) (model.OrderedRuleSet, error)
}

// TransactionSource fetches the transactions covered by a batch scope.
type TransactionSource interface {
	GetTransactions(ctx context.Context, scope model.BatchScope) ([]model.Transaction, error)
}

// DecisionApplier persists a categorization decision. Called once per
// successfully categorized transaction; a failure here is a per-item batch
// failure, not an engine-internal error.
type DecisionApplier interface {
	ApplyDecision(ctx context.Context, decision model.Decision) error
}

// StatisticsSink observes rule evaluations. RecordEvaluation fires for every
// rule evaluated against a transaction, matched or not; RecordSuccess fires
// only for the rule whose decision was actually applied.
type StatisticsSink interface {
	RecordEvaluation(ruleID int64, matched bool)
	RecordSuccess(ruleID int64)
}
