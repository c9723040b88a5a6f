package model

import "sort"

// OrderedRuleSet is an immutable, per-evaluation snapshot of a tenant's
// active rules, sorted by priority descending with rule ID ascending as the
// tie-break. The type is only constructible through NewOrderedRuleSet, so the
// engine's input proves the ordering invariant instead of trusting callers.
type OrderedRuleSet struct {
	rules []Rule
}

// NewOrderedRuleSet sorts the given rules into evaluation order and returns
// the snapshot. Rules created earlier (lower ID) win ties at equal priority,
// so repeated evaluations of the same transaction are deterministic.
func NewOrderedRuleSet(rules []Rule) OrderedRuleSet {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return OrderedRuleSet{rules: sorted}
}

// Rules returns the rules in evaluation order. Callers must not mutate the
// returned slice.
func (s OrderedRuleSet) Rules() []Rule {
	return s.rules
}

// Len returns the number of rules in the set.
func (s OrderedRuleSet) Len() int {
	return len(s.rules)
}
