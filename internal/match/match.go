// Package match provides the pure matcher primitives that evaluate a single
// rule against a single transaction.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/thetally/categorize/internal/model"
)

// Evaluator evaluates rules against transactions. Regex patterns are compiled
// once per rule set snapshot; an invalid pattern fails closed and surfaces as
// an evaluation error instead of aborting the run.
type Evaluator struct {
	compiled map[int64]*regexp.Regexp
	failed   map[int64]error
}

// NewEvaluator pre-compiles the regex rules of the given set.
func NewEvaluator(set model.OrderedRuleSet) *Evaluator {
	e := &Evaluator{
		compiled: make(map[int64]*regexp.Regexp),
		failed:   make(map[int64]error),
	}

	for _, rule := range set.Rules() {
		spec, ok := rule.Spec.(model.RegexSpec)
		if !ok {
			continue
		}
		pattern := spec.Pattern
		if !spec.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			e.failed[rule.ID] = err
			continue
		}
		e.compiled[rule.ID] = re
	}

	return e
}

// Matches reports whether the rule matches the transaction. It is a pure
// predicate: no side effects, independent of evaluation order. A non-nil
// error means the matcher itself failed for this rule and the rule should be
// skipped for this transaction.
func (e *Evaluator) Matches(rule model.Rule, txn model.Transaction) (bool, error) {
	switch spec := rule.Spec.(type) {
	case model.KeywordSpec:
		return matchKeyword(spec, txn), nil
	case model.RegexSpec:
		if err, bad := e.failed[rule.ID]; bad {
			return false, fmt.Errorf("regex did not compile: %w", err)
		}
		re, ok := e.compiled[rule.ID]
		if !ok {
			return false, fmt.Errorf("regex for rule %d not compiled", rule.ID)
		}
		return matchRegex(re, spec.Field, txn), nil
	case model.AmountRangeSpec:
		return matchAmountRange(spec, txn), nil
	default:
		return false, fmt.Errorf("unknown rule type %q", rule.Type())
	}
}

// matchKeyword performs a substring search of the pattern within the target
// field. Case-insensitive unless the spec says otherwise. An absent field
// value never matches.
func matchKeyword(spec model.KeywordSpec, txn model.Transaction) bool {
	value := txn.FieldValue(spec.Field)
	if value == "" {
		return false
	}

	if spec.CaseSensitive {
		return strings.Contains(value, spec.Pattern)
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(spec.Pattern))
}

// matchRegex tests for a regex match (search, not full-string equality)
// against the target field. Case folding is baked into the compiled pattern.
func matchRegex(re *regexp.Regexp, field model.MatchField, txn model.Transaction) bool {
	value := txn.FieldValue(field)
	if value == "" {
		return false
	}
	return re.MatchString(value)
}

// matchAmountRange is true iff min <= |amount| <= max, with an absent bound
// unbounded on that side. The absolute value means rule authors need not know
// transaction sign conventions. Comparison is exact decimal, no rounding.
func matchAmountRange(spec model.AmountRangeSpec, txn model.Transaction) bool {
	amount := txn.Amount.Abs()

	if spec.Min != nil && amount.LessThan(*spec.Min) {
		return false
	}
	if spec.Max != nil && amount.GreaterThan(*spec.Max) {
		return false
	}
	return true
}
