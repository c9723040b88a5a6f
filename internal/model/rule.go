// Package model defines the core data structures for the categorization engine.
package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// RuleType identifies the matching strategy a rule uses.
type RuleType string

// Rule type constants.
const (
	RuleTypeKeyword     RuleType = "keyword"
	RuleTypeRegex       RuleType = "regex"
	RuleTypeAmountRange RuleType = "amount_range"
)

// MatchField identifies which transaction field a rule's pattern applies to.
type MatchField string

// Match field constants.
const (
	FieldDescription  MatchField = "description"
	FieldMerchantName MatchField = "merchant_name"
	FieldAmount       MatchField = "amount"
)

// RuleSpec is the per-type payload of a rule. Each variant carries only the
// fields valid for its type, so a keyword rule cannot hold amount bounds and
// an amount rule cannot hold a case-sensitivity flag.
type RuleSpec interface {
	Type() RuleType
	// Validate reports whether the spec is well-formed. Malformed specs are
	// rejected at rule construction time and defensively skipped by the
	// engine if they reach a fetched rule set anyway.
	Validate() error
}

// KeywordSpec matches by substring search within a string field.
type KeywordSpec struct {
	Pattern       string
	Field         MatchField
	CaseSensitive bool
}

// Type returns RuleTypeKeyword.
func (s KeywordSpec) Type() RuleType { return RuleTypeKeyword }

// Validate checks the keyword spec for an empty pattern or a non-string field.
func (s KeywordSpec) Validate() error {
	if s.Pattern == "" {
		return fmt.Errorf("keyword rule requires a non-empty pattern")
	}
	if s.Field != FieldDescription && s.Field != FieldMerchantName {
		return fmt.Errorf("keyword rule cannot match field %q", s.Field)
	}
	return nil
}

// RegexSpec matches by regular expression search within a string field.
type RegexSpec struct {
	Pattern       string
	Field         MatchField
	CaseSensitive bool
}

// Type returns RuleTypeRegex.
func (s RegexSpec) Type() RuleType { return RuleTypeRegex }

// Validate checks that the pattern compiles and the field is a string field.
func (s RegexSpec) Validate() error {
	if s.Pattern == "" {
		return fmt.Errorf("regex rule requires a non-empty pattern")
	}
	if s.Field != FieldDescription && s.Field != FieldMerchantName {
		return fmt.Errorf("regex rule cannot match field %q", s.Field)
	}
	if _, err := regexp.Compile(s.Pattern); err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	return nil
}

// AmountRangeSpec matches when the transaction's absolute amount falls within
// [Min, Max], both inclusive. A nil bound is unbounded on that side; at least
// one bound must be set.
type AmountRangeSpec struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// Type returns RuleTypeAmountRange.
func (s AmountRangeSpec) Type() RuleType { return RuleTypeAmountRange }

// Validate checks that at least one bound is present and the range is not inverted.
func (s AmountRangeSpec) Validate() error {
	if s.Min == nil && s.Max == nil {
		return fmt.Errorf("amount_range rule requires at least one of amount_min or amount_max")
	}
	if s.Min != nil && s.Max != nil && s.Min.GreaterThan(*s.Max) {
		return fmt.Errorf("amount_min %s exceeds amount_max %s", s.Min, s.Max)
	}
	return nil
}

// Rule is a user-authored categorization rule: a matching spec plus the
// category it assigns and the priority it competes at.
type Rule struct {
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMatchedAt *time.Time `json:"last_matched_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	Spec          RuleSpec   `json:"-"`
	Name          string     `json:"name"`
	TenantID      string     `json:"tenant_id"`
	ID            int64      `json:"id"`
	CategoryID    int64      `json:"category_id"`
	MatchCount    int64      `json:"match_count"`
	SuccessCount  int64      `json:"success_count"`
	Priority      int        `json:"priority"`
	IsActive      bool       `json:"is_active"`
}

// Type returns the rule's type, or empty when the spec is missing.
func (r Rule) Type() RuleType {
	if r.Spec == nil {
		return ""
	}
	return r.Spec.Type()
}

// Validate checks that the rule is well-formed enough to evaluate.
func (r Rule) Validate() error {
	if r.TenantID == "" {
		return fmt.Errorf("rule %d has no tenant", r.ID)
	}
	if r.CategoryID == 0 {
		return fmt.Errorf("rule %d has no target category", r.ID)
	}
	if r.Spec == nil {
		return fmt.Errorf("rule %d has no matching spec", r.ID)
	}
	return r.Spec.Validate()
}

// SuccessRate is the fraction of matches that won and were applied.
func (r Rule) SuccessRate() float64 {
	if r.MatchCount == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.MatchCount)
}
