package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/thetally/categorize/internal/common"
	"github.com/thetally/categorize/internal/config"
	"github.com/thetally/categorize/internal/engine"
	"github.com/thetally/categorize/internal/model"
	"github.com/thetally/categorize/internal/stats"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Run the rule engine over a batch of transactions",
		Long: `Categorize applies the tenant's active rules to the transactions in
scope: an explicit ID list, a single account, or a date range. Per-item
failures are reported at the end; they never abort the run.`,
		RunE: runCategorize,
	}

	cmd.Flags().StringSlice("ids", nil, "explicit transaction IDs to categorize")
	cmd.Flags().String("account", "", "categorize a single account")
	cmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().Int("workers", config.DefaultBatchWorkers, "concurrent categorization workers")
	cmd.Flags().Bool("include-categorized", false, "re-categorize transactions that already have a category")

	return cmd
}

func runCategorize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	tenant, err := requireTenant()
	if err != nil {
		return err
	}

	scope, err := scopeFromFlags(cmd, tenant)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tracker := stats.NewTracker(store)
	categorizer := engine.NewCategorizer(store, store, store, tracker)

	var bar *progressbar.ProgressBar
	opts := engine.BatchOptions{
		Workers: workersFromFlags(cmd),
		Progress: func(done, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "categorizing")
			}
			_ = bar.Set(done)
		},
	}

	result, err := categorizer.CategorizeBatch(ctx, scope, opts)
	if err != nil {
		return err
	}

	// Flushing counters is caller-side policy; a transient failure here must
	// not drop the run's statistics.
	if flushErr := common.WithRetry(ctx, func() error {
		return tracker.Flush(ctx)
	}, common.RetryOptions{MaxAttempts: 3}); flushErr != nil {
		common.LogError(flushErr, "Failed to persist rule statistics", common.Fields{
			"pending_rules": tracker.Pending(),
		})
	}

	printBatchResult(result)
	return nil
}

func scopeFromFlags(cmd *cobra.Command, tenant string) (model.BatchScope, error) {
	scope := model.BatchScope{TenantID: tenant}

	scope.TransactionIDs, _ = cmd.Flags().GetStringSlice("ids")
	scope.AccountID, _ = cmd.Flags().GetString("account")
	scope.IncludeCategorized, _ = cmd.Flags().GetBool("include-categorized")

	if from, _ := cmd.Flags().GetString("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return scope, fmt.Errorf("invalid --from date %q: %w", from, err)
		}
		scope.From = &t
	}
	if to, _ := cmd.Flags().GetString("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return scope, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
		// Inclusive end of day.
		t = t.Add(24*time.Hour - time.Nanosecond)
		scope.To = &t
	}

	return scope, nil
}

func workersFromFlags(cmd *cobra.Command) int {
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		return workers
	}
	return config.BatchWorkers()
}

func printBatchResult(result *model.BatchResult) {
	fmt.Printf("\nProcessed %d transactions in %s\n", result.Total, result.Elapsed.Round(time.Millisecond))
	fmt.Printf("  categorized: %d\n", result.Categorized)
	fmt.Printf("  unmatched:   %d\n", result.Unmatched)
	fmt.Printf("  failed:      %d\n", result.Failed)

	for _, itemErr := range result.Errors {
		fmt.Printf("    %s\n", itemErr.Error())
	}
}
