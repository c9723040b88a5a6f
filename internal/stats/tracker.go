// Package stats tracks rule effectiveness: how often each rule matches and
// how often its decision is the one actually applied.
package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thetally/categorize/internal/model"
)

// Store is the durable sink for rule counters.
type Store interface {
	// ApplyRuleStats atomically adds the deltas to the persisted counters.
	ApplyRuleStats(ctx context.Context, deltas []RuleDelta) error
	// MostSuccessfulRules returns a tenant's rules ordered by success count
	// descending.
	MostSuccessfulRules(ctx context.Context, tenantID string, limit int) ([]model.Rule, error)
}

// RuleDelta is the accumulated counter change for one rule since the last
// flush. Counters are monotonically non-decreasing.
type RuleDelta struct {
	LastMatched time.Time
	LastSuccess time.Time
	RuleID      int64
	Matches     int64
	Successes   int64
}

// counters is the per-rule atomic arena entry. Batches running concurrently
// for the same tenant may share rules; atomic increments keep counts from
// being lost without a lock per rule.
type counters struct {
	matches     atomic.Int64
	successes   atomic.Int64
	lastMatched atomic.Int64 // unix nanos
	lastSuccess atomic.Int64
}

// Tracker accumulates rule counters in memory and flushes them to a durable
// store. Implements engine.StatisticsSink.
type Tracker struct {
	store Store
	arena map[int64]*counters
	mu    sync.Mutex
}

// NewTracker creates a tracker backed by the given store.
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store: store,
		arena: make(map[int64]*counters),
	}
}

// RecordEvaluation notes that a rule was evaluated. Only matches increment
// the counter, but a match that was shadowed by a higher-priority winner
// still counts: that is the visibility into overlapping rules.
func (t *Tracker) RecordEvaluation(ruleID int64, matched bool) {
	if !matched {
		return
	}
	c := t.get(ruleID)
	c.matches.Add(1)
	c.lastMatched.Store(time.Now().UnixNano())
}

// RecordSuccess notes that a rule's decision was the one applied to a
// transaction, i.e. it won under first-match-wins.
func (t *Tracker) RecordSuccess(ruleID int64) {
	c := t.get(ruleID)
	c.successes.Add(1)
	c.lastSuccess.Store(time.Now().UnixNano())
}

func (t *Tracker) get(ruleID int64) *counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.arena[ruleID]
	if !ok {
		c = &counters{}
		t.arena[ruleID] = c
	}
	return c
}

// Pending returns the number of rules with unflushed counter changes.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.arena {
		if c.matches.Load() > 0 || c.successes.Load() > 0 {
			n++
		}
	}
	return n
}

// Flush writes accumulated deltas to the store and resets them. On failure
// the deltas are restored so that a retried flush cannot lose counts.
func (t *Tracker) Flush(ctx context.Context) error {
	deltas := t.drain()
	if len(deltas) == 0 {
		return nil
	}

	if err := t.store.ApplyRuleStats(ctx, deltas); err != nil {
		t.restore(deltas)
		return fmt.Errorf("flushing rule statistics: %w", err)
	}
	return nil
}

func (t *Tracker) drain() []RuleDelta {
	t.mu.Lock()
	defer t.mu.Unlock()

	var deltas []RuleDelta
	for id, c := range t.arena {
		matches := c.matches.Swap(0)
		successes := c.successes.Swap(0)
		if matches == 0 && successes == 0 {
			continue
		}
		d := RuleDelta{RuleID: id, Matches: matches, Successes: successes}
		if ns := c.lastMatched.Load(); ns > 0 {
			d.LastMatched = time.Unix(0, ns).UTC()
		}
		if ns := c.lastSuccess.Load(); ns > 0 {
			d.LastSuccess = time.Unix(0, ns).UTC()
		}
		deltas = append(deltas, d)
	}
	return deltas
}

func (t *Tracker) restore(deltas []RuleDelta) {
	for _, d := range deltas {
		c := t.get(d.RuleID)
		c.matches.Add(d.Matches)
		c.successes.Add(d.Successes)
	}
}

// MostSuccessfulRules returns the tenant's top rules by success count, for
// rule-health reporting.
func (t *Tracker) MostSuccessfulRules(ctx context.Context, tenantID string, limit int) ([]model.Rule, error) {
	return t.store.MostSuccessfulRules(ctx, tenantID, limit)
}
