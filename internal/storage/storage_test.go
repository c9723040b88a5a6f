package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetally/categorize/internal/common"
	"github.com/thetally/categorize/internal/model"
	"github.com/thetally/categorize/internal/stats"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func keywordRule(name, pattern string, categoryID int64, priority int) *model.Rule {
	return &model.Rule{
		TenantID:   "tenant-1",
		Name:       name,
		CategoryID: categoryID,
		Priority:   priority,
		IsActive:   true,
		Spec:       model.KeywordSpec{Pattern: pattern, Field: model.FieldDescription},
	}
}

func testTxn(id, description, amount string, date time.Time) model.Transaction {
	return model.Transaction{
		ID:          id,
		TenantID:    "tenant-1",
		AccountID:   "acct-1",
		Date:        date,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestMigrate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running migrations again is a no-op.
	require.NoError(t, store.Migrate(ctx))
	version, err = store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestCreateAndGetRule(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rule := keywordRule("groceries", "tesco", 10, 50)
	require.NoError(t, store.CreateRule(ctx, rule))
	require.NotZero(t, rule.ID)

	got, err := store.GetRule(ctx, "tenant-1", rule.ID)
	require.NoError(t, err)

	assert.Equal(t, "groceries", got.Name)
	assert.Equal(t, int64(10), got.CategoryID)
	assert.Equal(t, 50, got.Priority)
	assert.True(t, got.IsActive)
	require.IsType(t, model.KeywordSpec{}, got.Spec)
	spec := got.Spec.(model.KeywordSpec)
	assert.Equal(t, "tesco", spec.Pattern)
	assert.Equal(t, model.FieldDescription, spec.Field)
}

func TestCreateAndGetAmountRangeRule(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rule := &model.Rule{
		TenantID:   "tenant-1",
		Name:       "large purchases",
		CategoryID: 20,
		Priority:   5,
		IsActive:   true,
		Spec:       model.AmountRangeSpec{Min: decPtr("150.00"), Max: decPtr("999.99")},
	}
	require.NoError(t, store.CreateRule(ctx, rule))

	got, err := store.GetRule(ctx, "tenant-1", rule.ID)
	require.NoError(t, err)

	require.IsType(t, model.AmountRangeSpec{}, got.Spec)
	spec := got.Spec.(model.AmountRangeSpec)
	require.NotNil(t, spec.Min)
	require.NotNil(t, spec.Max)
	assert.True(t, spec.Min.Equal(decimal.RequireFromString("150.00")))
	assert.True(t, spec.Max.Equal(decimal.RequireFromString("999.99")))
}

func TestCreateRuleRejectsInvalid(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rule *model.Rule
	}{
		{
			name: "invalid regex",
			rule: &model.Rule{
				TenantID:   "tenant-1",
				Name:       "bad regex",
				CategoryID: 10,
				Spec:       model.RegexSpec{Pattern: "[unclosed", Field: model.FieldDescription},
			},
		},
		{
			name: "amount range with no bounds",
			rule: &model.Rule{
				TenantID:   "tenant-1",
				Name:       "unbounded",
				CategoryID: 10,
				Spec:       model.AmountRangeSpec{},
			},
		},
		{
			name: "no category",
			rule: &model.Rule{
				TenantID: "tenant-1",
				Name:     "no target",
				Spec:     model.KeywordSpec{Pattern: "x", Field: model.FieldDescription},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateRule(ctx, tt.rule)
			var vErr *common.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestGetRuleNotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetRule(context.Background(), "tenant-1", 999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetActiveRulesOrdering(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	low := keywordRule("low", "aaa", 10, 1)
	tieFirst := keywordRule("tie first", "bbb", 10, 50)
	tieSecond := keywordRule("tie second", "ccc", 10, 50)
	high := keywordRule("high", "ddd", 10, 100)
	archived := keywordRule("archived", "eee", 10, 200)
	otherTenant := keywordRule("other tenant", "fff", 10, 300)
	otherTenant.TenantID = "tenant-2"

	for _, rule := range []*model.Rule{low, tieFirst, tieSecond, high, archived, otherTenant} {
		require.NoError(t, store.CreateRule(ctx, rule))
	}
	require.NoError(t, store.ArchiveRule(ctx, "tenant-1", archived.ID))

	set, err := store.GetActiveRules(ctx, "tenant-1")
	require.NoError(t, err)
	require.Equal(t, 4, set.Len())

	names := make([]string, 0, set.Len())
	for _, rule := range set.Rules() {
		names = append(names, rule.Name)
	}
	assert.Equal(t, []string{"high", "tie first", "tie second", "low"}, names)
}

func TestListRulesIncludesArchived(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	active := keywordRule("active", "aaa", 10, 1)
	archived := keywordRule("archived", "bbb", 10, 1)
	require.NoError(t, store.CreateRule(ctx, active))
	require.NoError(t, store.CreateRule(ctx, archived))
	require.NoError(t, store.ArchiveRule(ctx, "tenant-1", archived.ID))

	rules, err := store.ListRules(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestUpdateRule(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rule := keywordRule("groceries", "tesco", 10, 50)
	require.NoError(t, store.CreateRule(ctx, rule))

	rule.Priority = 75
	rule.Spec = model.KeywordSpec{Pattern: "tesco superstore", Field: model.FieldDescription}
	require.NoError(t, store.UpdateRule(ctx, rule))

	got, err := store.GetRule(ctx, "tenant-1", rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, got.Priority)
	assert.Equal(t, "tesco superstore", got.Spec.(model.KeywordSpec).Pattern)

	missing := keywordRule("missing", "x", 10, 1)
	missing.ID = 999
	assert.ErrorIs(t, store.UpdateRule(ctx, missing), common.ErrNotFound)
}

func TestArchiveAndUnarchiveRule(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rule := keywordRule("toggle", "aaa", 10, 1)
	require.NoError(t, store.CreateRule(ctx, rule))

	require.NoError(t, store.ArchiveRule(ctx, "tenant-1", rule.ID))
	got, err := store.GetRule(ctx, "tenant-1", rule.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.NoError(t, store.UnarchiveRule(ctx, "tenant-1", rule.ID))
	got, err = store.GetRule(ctx, "tenant-1", rule.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	assert.ErrorIs(t, store.ArchiveRule(ctx, "tenant-1", 999), common.ErrNotFound)
}

func TestSaveTransactionsIgnoresDuplicates(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	txn := testTxn("txn-1", "first version", "-10.00", date)
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))

	dupe := testTxn("txn-1", "second version", "-99.00", date)
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{dupe}))

	got, err := store.GetTransaction(ctx, "tenant-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "first version", got.Description)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("-10.00")))
}

func TestGetTransactionsScope(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	categorized := int64(5)
	txns := []model.Transaction{
		testTxn("txn-1", "one", "-10.00", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		testTxn("txn-2", "two", "-20.00", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)),
		testTxn("txn-3", "three", "-30.00", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)),
	}
	txns[2].CategoryID = &categorized

	other := testTxn("txn-other", "other account", "-40.00", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	other.AccountID = "acct-2"
	txns = append(txns, other)

	require.NoError(t, store.SaveTransactions(ctx, txns))

	t.Run("default scope excludes categorized", func(t *testing.T) {
		got, err := store.GetTransactions(ctx, model.BatchScope{TenantID: "tenant-1"})
		require.NoError(t, err)
		assert.Len(t, got, 3)
		for _, txn := range got {
			assert.Nil(t, txn.CategoryID)
		}
	})

	t.Run("include categorized", func(t *testing.T) {
		got, err := store.GetTransactions(ctx, model.BatchScope{TenantID: "tenant-1", IncludeCategorized: true})
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})

	t.Run("explicit IDs", func(t *testing.T) {
		got, err := store.GetTransactions(ctx, model.BatchScope{
			TenantID:       "tenant-1",
			TransactionIDs: []string{"txn-1", "txn-2"},
		})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("account filter", func(t *testing.T) {
		got, err := store.GetTransactions(ctx, model.BatchScope{TenantID: "tenant-1", AccountID: "acct-2"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "txn-other", got[0].ID)
	})

	t.Run("date range", func(t *testing.T) {
		from := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 6, 2, 23, 59, 59, 0, time.UTC)
		got, err := store.GetTransactions(ctx, model.BatchScope{
			TenantID:           "tenant-1",
			From:               &from,
			To:                 &to,
			IncludeCategorized: true,
		})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("recent window ordered by date descending", func(t *testing.T) {
		got, err := store.GetTransactions(ctx, model.BatchScope{
			TenantID:           "tenant-1",
			IncludeCategorized: true,
			Limit:              2,
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "txn-3", got[0].ID)
	})
}

func TestApplyDecision(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	txn := testTxn("txn-1", "coffee", "-4.50", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))

	categoryID := int64(10)
	ruleID := int64(3)
	decision := model.Decision{
		ID:            uuid.NewString(),
		TransactionID: "txn-1",
		CategoryID:    &categoryID,
		MatchedRuleID: &ruleID,
		Confidence:    1.0,
		MatchedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.ApplyDecision(ctx, decision))

	got, err := store.GetTransaction(ctx, "tenant-1", "txn-1")
	require.NoError(t, err)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, int64(10), *got.CategoryID)

	stored, err := store.GetDecision(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, decision.ID, stored.ID)
	assert.Equal(t, int64(3), *stored.MatchedRuleID)
}

func TestApplyDecisionReplacesOnRerun(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	txn := testTxn("txn-1", "coffee", "-4.50", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))

	firstCategory, firstRule := int64(10), int64(3)
	require.NoError(t, store.ApplyDecision(ctx, model.Decision{
		ID:            uuid.NewString(),
		TransactionID: "txn-1",
		CategoryID:    &firstCategory,
		MatchedRuleID: &firstRule,
		Confidence:    1.0,
		MatchedAt:     time.Now().UTC(),
	}))

	// A later run with an updated rule set replaces the decision rather than
	// stacking a second one.
	secondCategory, secondRule := int64(20), int64(7)
	require.NoError(t, store.ApplyDecision(ctx, model.Decision{
		ID:            uuid.NewString(),
		TransactionID: "txn-1",
		CategoryID:    &secondCategory,
		MatchedRuleID: &secondRule,
		Confidence:    1.0,
		MatchedAt:     time.Now().UTC(),
	}))

	stored, err := store.GetDecision(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), *stored.CategoryID)
	assert.Equal(t, int64(7), *stored.MatchedRuleID)

	got, err := store.GetTransaction(ctx, "tenant-1", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), *got.CategoryID)
}

func TestApplyDecisionMissingTransaction(t *testing.T) {
	store := newTestStorage(t)

	categoryID, ruleID := int64(10), int64(3)
	err := store.ApplyDecision(context.Background(), model.Decision{
		ID:            uuid.NewString(),
		TransactionID: "no-such-txn",
		CategoryID:    &categoryID,
		MatchedRuleID: &ruleID,
		MatchedAt:     time.Now().UTC(),
	})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestApplyRuleStatsAccumulates(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rule := keywordRule("counted", "aaa", 10, 1)
	require.NoError(t, store.CreateRule(ctx, rule))

	now := time.Now().UTC()
	require.NoError(t, store.ApplyRuleStats(ctx, []stats.RuleDelta{
		{RuleID: rule.ID, Matches: 3, Successes: 1, LastMatched: now, LastSuccess: now},
	}))
	require.NoError(t, store.ApplyRuleStats(ctx, []stats.RuleDelta{
		{RuleID: rule.ID, Matches: 2, Successes: 2, LastMatched: now.Add(time.Minute)},
	}))

	got, err := store.GetRule(ctx, "tenant-1", rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.MatchCount)
	assert.Equal(t, int64(3), got.SuccessCount)
	require.NotNil(t, got.LastMatchedAt)
	require.NotNil(t, got.LastSuccessAt)
}

func TestMostSuccessfulRules(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := keywordRule("first", "aaa", 10, 1)
	second := keywordRule("second", "bbb", 10, 1)
	third := keywordRule("third", "ccc", 10, 1)
	for _, rule := range []*model.Rule{first, second, third} {
		require.NoError(t, store.CreateRule(ctx, rule))
	}

	require.NoError(t, store.ApplyRuleStats(ctx, []stats.RuleDelta{
		{RuleID: first.ID, Matches: 5, Successes: 2},
		{RuleID: second.ID, Matches: 10, Successes: 9},
		{RuleID: third.ID, Matches: 3, Successes: 2},
	}))

	top, err := store.MostSuccessfulRules(ctx, "tenant-1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "second", top[0].Name)
	// Equal success counts fall back to creation order.
	assert.Equal(t, "first", top[1].Name)
}

func TestGetRuleStats(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	keyword := keywordRule("keyword", "aaa", 10, 1)
	archived := keywordRule("archived", "bbb", 10, 1)
	amountRule := &model.Rule{
		TenantID:   "tenant-1",
		Name:       "amount",
		CategoryID: 10,
		IsActive:   true,
		Spec:       model.AmountRangeSpec{Min: decPtr("100.00")},
	}
	for _, rule := range []*model.Rule{keyword, archived, amountRule} {
		require.NoError(t, store.CreateRule(ctx, rule))
	}
	require.NoError(t, store.ArchiveRule(ctx, "tenant-1", archived.ID))

	got, err := store.GetRuleStats(ctx, "tenant-1")
	require.NoError(t, err)

	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Active)
	assert.Equal(t, 1, got.Inactive)
	assert.Equal(t, 1, got.TypeBreakdown[model.RuleTypeKeyword])
	assert.Equal(t, 1, got.TypeBreakdown[model.RuleTypeAmountRange])
}
