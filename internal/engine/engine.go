// Package engine implements the rule engine that assigns categories to
// transactions by evaluating user-defined matching rules.
package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thetally/categorize/internal/common"
	"github.com/thetally/categorize/internal/match"
	"github.com/thetally/categorize/internal/model"
)

// Engine evaluates transactions against an immutable rule set snapshot under
// a first-match-wins policy: rules are visited from highest to lowest
// priority and the first match fixes the decision.
type Engine struct {
	eval    *match.Evaluator
	stats   StatisticsSink
	skipped map[int64]error
	set     model.OrderedRuleSet
}

// New builds an engine bound to a rule set snapshot. Malformed rules in the
// fetched set are logged and excluded from evaluation for this run rather
// than crashing the engine; they were supposed to be rejected at authoring
// time. The stats sink may be nil.
func New(set model.OrderedRuleSet, stats StatisticsSink) *Engine {
	e := &Engine{
		set:     set,
		eval:    match.NewEvaluator(set),
		stats:   stats,
		skipped: make(map[int64]error),
	}

	for _, rule := range set.Rules() {
		if err := rule.Validate(); err != nil {
			e.skipped[rule.ID] = common.NewValidationError(rule.ID, err)
			slog.Warn("Skipping malformed rule for this run",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err)
		}
	}

	return e
}

// SkippedRules returns the rules excluded from this run keyed by rule ID.
func (e *Engine) SkippedRules() map[int64]error {
	return e.skipped
}

// Categorize evaluates a single transaction against the rule set and returns
// a decision. Deterministic: the same transaction and rule set always produce
// the same decision. Matcher failures on individual rules are absorbed; the
// next rule in priority order is tried.
//
// When a statistics sink is attached, evaluation continues past the winning
// rule so that lower-priority rules which also match are still counted. The
// decision is fixed by the first match regardless.
func (e *Engine) Categorize(txn model.Transaction) model.Decision {
	decision := model.Decision{
		ID:            uuid.NewString(),
		TransactionID: txn.ID,
		MatchedAt:     time.Now().UTC(),
	}

	var winner *model.Rule

	for _, rule := range e.set.Rules() {
		// The rule source returns active rules only, but archived rules are
		// treated as inactive wherever they appear.
		if !rule.IsActive {
			continue
		}
		if _, skip := e.skipped[rule.ID]; skip {
			continue
		}

		matched, err := e.eval.Matches(rule, txn)
		if err != nil {
			evalErr := &common.EvaluationError{RuleID: rule.ID, TransactionID: txn.ID, Err: err}
			slog.Warn("Matcher failed, skipping rule for this transaction",
				"rule_id", rule.ID,
				"transaction_id", txn.ID,
				"error", evalErr)
			continue
		}

		if e.stats != nil {
			e.stats.RecordEvaluation(rule.ID, matched)
		}

		if matched && winner == nil {
			won := rule
			winner = &won
			if e.stats == nil {
				break
			}
		}
	}

	if winner != nil {
		categoryID := winner.CategoryID
		ruleID := winner.ID
		decision.CategoryID = &categoryID
		decision.MatchedRuleID = &ruleID
		// Fixed for deterministic rule matches; reserved for future
		// probabilistic scoring.
		decision.Confidence = 1.0
	}

	return decision
}
