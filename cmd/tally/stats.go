package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report rule health for a tenant",
		Long: `Stats reports how the tenant's rules are performing: counts by type,
and the rules with the most applied decisions. A rule's match count includes
matches shadowed by a higher-priority winner, so overlapping rules are
visible here.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			tenant, err := requireTenant()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			limit, _ := cmd.Flags().GetInt("top")

			ruleStats, err := store.GetRuleStats(ctx, tenant)
			if err != nil {
				return fmt.Errorf("failed to get rule stats: %w", err)
			}

			topRules, err := store.MostSuccessfulRules(ctx, tenant, limit)
			if err != nil {
				return fmt.Errorf("failed to get most successful rules: %w", err)
			}

			fmt.Println(renderRuleStats(ruleStats, topRules))
			return nil
		},
	}

	cmd.Flags().Int("top", 5, "number of top rules to show")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			version, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Database schema at version %d\n", version)
			return nil
		},
	}
}
