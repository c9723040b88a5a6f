package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thetally/categorize/internal/config"
	"github.com/thetally/categorize/internal/engine"
	"github.com/thetally/categorize/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Aliases: []string{"rule"},
		Short:   "Manage categorization rules",
		Long: `Manage the matching rules that drive automatic categorization:
keyword, regex, and amount-range patterns competing by priority.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesArchiveCmd())
	cmd.AddCommand(rulesTestCmd())
	cmd.AddCommand(rulesImportCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
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

			rules, err := store.ListRules(ctx, tenant)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if len(rules) == 0 {
				fmt.Println("No rules found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE\tPRIORITY\tCATEGORY\tACTIVE\tMATCHES\tSUCCESSES")
			for _, rule := range rules {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%v\t%d\t%d\n",
					rule.ID, rule.Name, rule.Type(), rule.Priority,
					rule.CategoryID, rule.IsActive, rule.MatchCount, rule.SuccessCount)
			}
			return w.Flush()
		},
	}
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a new rule",
		Long: `Create a categorization rule. Validation happens here, at the
authoring boundary: an invalid regex or an amount range with no bounds is
rejected before it can ever reach the engine.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			tenant, err := requireTenant()
			if err != nil {
				return err
			}

			rule, err := ruleFromFlags(cmd, tenant)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.CreateRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to create rule: %w", err)
			}

			fmt.Printf("Created rule %d (%s)\n", rule.ID, rule.Name)
			return nil
		},
	}

	addRuleFlags(cmd)
	return cmd
}

func rulesArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <rule-id>",
		Short: "Archive a rule",
		Long:  `Archive soft-disables a rule. History is preserved; the engine treats archived rules as inactive.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tenant, err := requireTenant()
			if err != nil {
				return err
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule ID %q: %w", args[0], err)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.ArchiveRule(ctx, tenant, id); err != nil {
				return fmt.Errorf("failed to archive rule: %w", err)
			}

			fmt.Printf("Archived rule %d\n", id)
			return nil
		},
	}
}

func rulesTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Dry-run a candidate rule against recent transactions",
		Long: `Test evaluates a candidate rule in isolation against a recent window
of the tenant's transactions. Nothing is persisted: no decisions, no
statistics. The agreement rate tells you how often the rule's target
category agrees with categories the matched transactions already carry.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			tenant, err := requireTenant()
			if err != nil {
				return err
			}

			rule, err := ruleFromFlags(cmd, tenant)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sampleSize, _ := cmd.Flags().GetInt("sample")
			if sampleSize <= 0 {
				sampleSize = config.SampleSize()
			}

			tester := engine.NewTester(store)
			result, err := tester.TestRule(ctx, *rule, nil, engine.TestOptions{
				SampleSize: sampleSize,
				MaxPreview: config.PreviewSize(),
			})
			if err != nil {
				return fmt.Errorf("rule test failed: %w", err)
			}

			fmt.Println(renderTestResult(rule, result))
			return nil
		},
	}

	addRuleFlags(cmd)
	cmd.Flags().Int("sample", 0, "number of recent transactions to test against")
	return cmd
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import rules from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tenant, err := requireTenant()
			if err != nil {
				return err
			}

			rules, err := loadRulesFile(args[0], tenant)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			created := 0
			for i := range rules {
				if err := store.CreateRule(ctx, &rules[i]); err != nil {
					return fmt.Errorf("failed to import rule %q: %w", rules[i].Name, err)
				}
				created++
			}

			fmt.Printf("Imported %d rules\n", created)
			return nil
		},
	}
}

func addRuleFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "rule name")
	cmd.Flags().String("type", "keyword", "rule type (keyword, regex, amount_range)")
	cmd.Flags().String("pattern", "", "pattern to match (keyword or regex types)")
	cmd.Flags().String("field", "description", "transaction field to match (description, merchant_name)")
	cmd.Flags().Bool("case-sensitive", false, "match case sensitively (keyword/regex)")
	cmd.Flags().String("min", "", "minimum amount (amount_range type)")
	cmd.Flags().String("max", "", "maximum amount (amount_range type)")
	cmd.Flags().Int64("category", 0, "target category ID")
	cmd.Flags().Int("priority", 100, "rule priority; higher wins ties")
}

// ruleFromFlags builds a rule from command flags. The spec variant carries
// only the fields valid for the chosen type.
func ruleFromFlags(cmd *cobra.Command, tenant string) (*model.Rule, error) {
	name, _ := cmd.Flags().GetString("name")
	ruleType, _ := cmd.Flags().GetString("type")
	pattern, _ := cmd.Flags().GetString("pattern")
	field, _ := cmd.Flags().GetString("field")
	caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")
	categoryID, _ := cmd.Flags().GetInt64("category")
	priority, _ := cmd.Flags().GetInt("priority")

	var spec model.RuleSpec
	switch model.RuleType(ruleType) {
	case model.RuleTypeKeyword:
		spec = model.KeywordSpec{
			Pattern:       pattern,
			Field:         model.MatchField(field),
			CaseSensitive: caseSensitive,
		}
	case model.RuleTypeRegex:
		spec = model.RegexSpec{
			Pattern:       pattern,
			Field:         model.MatchField(field),
			CaseSensitive: caseSensitive,
		}
	case model.RuleTypeAmountRange:
		rangeSpec := model.AmountRangeSpec{}
		if minStr, _ := cmd.Flags().GetString("min"); minStr != "" {
			v, err := decimal.NewFromString(minStr)
			if err != nil {
				return nil, fmt.Errorf("invalid --min %q: %w", minStr, err)
			}
			rangeSpec.Min = &v
		}
		if maxStr, _ := cmd.Flags().GetString("max"); maxStr != "" {
			v, err := decimal.NewFromString(maxStr)
			if err != nil {
				return nil, fmt.Errorf("invalid --max %q: %w", maxStr, err)
			}
			rangeSpec.Max = &v
		}
		spec = rangeSpec
	default:
		return nil, fmt.Errorf("unknown rule type %q", ruleType)
	}

	if name == "" {
		name = fmt.Sprintf("%s rule", ruleType)
	}

	return &model.Rule{
		Name:       name,
		TenantID:   tenant,
		CategoryID: categoryID,
		Priority:   priority,
		IsActive:   true,
		Spec:       spec,
	}, nil
}

// ruleFile is the YAML shape of an importable rule.
type ruleFile struct {
	Rules []struct {
		Name          string `yaml:"name"`
		Type          string `yaml:"type"`
		Pattern       string `yaml:"pattern"`
		Field         string `yaml:"field"`
		CaseSensitive bool   `yaml:"case_sensitive"`
		AmountMin     string `yaml:"amount_min"`
		AmountMax     string `yaml:"amount_max"`
		CategoryID    int64  `yaml:"category_id"`
		Priority      int    `yaml:"priority"`
	} `yaml:"rules"`
}

func loadRulesFile(path, tenant string) ([]model.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	rules := make([]model.Rule, 0, len(file.Rules))
	for _, entry := range file.Rules {
		rule := model.Rule{
			Name:       entry.Name,
			TenantID:   tenant,
			CategoryID: entry.CategoryID,
			Priority:   entry.Priority,
			IsActive:   true,
		}
		if rule.Priority == 0 {
			rule.Priority = 100
		}

		field := entry.Field
		if field == "" {
			field = string(model.FieldDescription)
		}

		switch model.RuleType(entry.Type) {
		case model.RuleTypeKeyword:
			rule.Spec = model.KeywordSpec{
				Pattern:       entry.Pattern,
				Field:         model.MatchField(field),
				CaseSensitive: entry.CaseSensitive,
			}
		case model.RuleTypeRegex:
			rule.Spec = model.RegexSpec{
				Pattern:       entry.Pattern,
				Field:         model.MatchField(field),
				CaseSensitive: entry.CaseSensitive,
			}
		case model.RuleTypeAmountRange:
			rangeSpec := model.AmountRangeSpec{}
			if entry.AmountMin != "" {
				v, err := decimal.NewFromString(entry.AmountMin)
				if err != nil {
					return nil, fmt.Errorf("rule %q: invalid amount_min: %w", entry.Name, err)
				}
				rangeSpec.Min = &v
			}
			if entry.AmountMax != "" {
				v, err := decimal.NewFromString(entry.AmountMax)
				if err != nil {
					return nil, fmt.Errorf("rule %q: invalid amount_max: %w", entry.Name, err)
				}
				rangeSpec.Max = &v
			}
			rule.Spec = rangeSpec
		default:
			return nil, fmt.Errorf("rule %q: unknown type %q", entry.Name, entry.Type)
		}

		rules = append(rules, rule)
	}

	return rules, nil
}
