package stats

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetally/categorize/internal/model"
)

type fakeStore struct {
	applied [][]RuleDelta
	rules   []model.Rule
	err     error
	mu      sync.Mutex
}

func (s *fakeStore) ApplyRuleStats(_ context.Context, deltas []RuleDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, deltas)
	return nil
}

func (s *fakeStore) MostSuccessfulRules(_ context.Context, _ string, _ int) ([]model.Rule, error) {
	return s.rules, nil
}

func (s *fakeStore) totals() map[int64]RuleDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := make(map[int64]RuleDelta)
	for _, batch := range s.applied {
		for _, d := range batch {
			t := totals[d.RuleID]
			t.RuleID = d.RuleID
			t.Matches += d.Matches
			t.Successes += d.Successes
			totals[d.RuleID] = t
		}
	}
	return totals
}

func TestTrackerRecordsOnlyMatches(t *testing.T) {
	store := &fakeStore{}
	tracker := NewTracker(store)

	tracker.RecordEvaluation(1, true)
	tracker.RecordEvaluation(1, false)
	tracker.RecordEvaluation(1, true)
	tracker.RecordSuccess(1)

	require.NoError(t, tracker.Flush(context.Background()))

	totals := store.totals()
	assert.Equal(t, int64(2), totals[1].Matches)
	assert.Equal(t, int64(1), totals[1].Successes)
}

func TestTrackerFlushResetsCounters(t *testing.T) {
	store := &fakeStore{}
	tracker := NewTracker(store)

	tracker.RecordEvaluation(1, true)
	assert.Equal(t, 1, tracker.Pending())

	require.NoError(t, tracker.Flush(context.Background()))
	assert.Equal(t, 0, tracker.Pending())

	// A second flush with nothing pending writes nothing.
	require.NoError(t, tracker.Flush(context.Background()))
	assert.Len(t, store.applied, 1)
}

func TestTrackerFlushFailureRestoresCounters(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("database locked")}
	tracker := NewTracker(store)

	tracker.RecordEvaluation(1, true)
	tracker.RecordSuccess(1)
	tracker.RecordEvaluation(2, true)

	require.Error(t, tracker.Flush(context.Background()))
	assert.Equal(t, 2, tracker.Pending())

	// After the store recovers, a retried flush carries the full counts.
	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	require.NoError(t, tracker.Flush(context.Background()))

	totals := store.totals()
	assert.Equal(t, int64(1), totals[1].Matches)
	assert.Equal(t, int64(1), totals[1].Successes)
	assert.Equal(t, int64(1), totals[2].Matches)
}

func TestTrackerConcurrentRecording(t *testing.T) {
	store := &fakeStore{}
	tracker := NewTracker(store)

	const workers = 8
	const perWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tracker.RecordEvaluation(1, true)
				tracker.RecordEvaluation(2, i%2 == 0)
				tracker.RecordSuccess(1)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, tracker.Flush(context.Background()))

	totals := store.totals()
	assert.Equal(t, int64(workers*perWorker), totals[1].Matches)
	assert.Equal(t, int64(workers*perWorker), totals[1].Successes)
	assert.Equal(t, int64(workers*perWorker/2), totals[2].Matches)
}

func TestTrackerDeltaTimestamps(t *testing.T) {
	store := &fakeStore{}
	tracker := NewTracker(store)

	tracker.RecordEvaluation(1, true)
	require.NoError(t, tracker.Flush(context.Background()))

	require.Len(t, store.applied, 1)
	require.Len(t, store.applied[0], 1)
	delta := store.applied[0][0]
	assert.False(t, delta.LastMatched.IsZero())
	assert.True(t, delta.LastSuccess.IsZero())
}
