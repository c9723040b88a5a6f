package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/thetally/categorize/internal/model"
	"github.com/thetally/categorize/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1)
)

// renderTestResult formats a rule dry-run report.
func renderTestResult(rule *model.Rule, result *model.TestResult) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Rule test: %s (%s)", rule.Name, rule.Type())))
	b.WriteString("\n\n")

	line := func(label string, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-22s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	line("Transactions tested", fmt.Sprintf("%d", result.Tested))
	line("Matches", fmt.Sprintf("%d", result.Matches))

	if result.PriorCategorized > 0 {
		rate := result.AgreementRate()
		rendered := fmt.Sprintf("%.0f%% (%d of %d previously categorized)",
			rate*100, result.Agreements, result.PriorCategorized)
		if rate >= 0.8 {
			rendered = goodStyle.Render(rendered)
		} else if rate < 0.5 {
			rendered = badStyle.Render(rendered)
		}
		line("Agreement rate", rendered)
	} else {
		line("Agreement rate", "n/a (no matches with a prior category)")
	}

	if len(result.MatchedIDs) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Matched transactions (preview):"))
		b.WriteString("\n")
		for _, id := range result.MatchedIDs {
			b.WriteString("  " + valueStyle.Render(id) + "\n")
		}
		if result.Matches > len(result.MatchedIDs) {
			b.WriteString(labelStyle.Render(fmt.Sprintf("  ... and %d more\n", result.Matches-len(result.MatchedIDs))))
		}
	}

	return boxStyle.Render(b.String())
}

// renderRuleStats formats the tenant-level rule health report.
func renderRuleStats(ruleStats *storage.RuleStats, topRules []model.Rule) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Rule statistics"))
	b.WriteString("\n\n")

	line := func(label string, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-18s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	line("Total rules", fmt.Sprintf("%d", ruleStats.Total))
	line("Active", fmt.Sprintf("%d", ruleStats.Active))
	line("Inactive", fmt.Sprintf("%d", ruleStats.Inactive))

	if len(ruleStats.TypeBreakdown) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Active rules by type:"))
		b.WriteString("\n")
		for _, t := range []model.RuleType{model.RuleTypeKeyword, model.RuleTypeRegex, model.RuleTypeAmountRange} {
			if count, ok := ruleStats.TypeBreakdown[t]; ok {
				b.WriteString(fmt.Sprintf("  %-14s %d\n", t, count))
			}
		}
	}

	if len(topRules) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Most successful rules:"))
		b.WriteString("\n")
		for _, rule := range topRules {
			rate := ""
			if rule.MatchCount > 0 {
				rate = fmt.Sprintf(" (%.0f%% success rate)", rule.SuccessRate()*100)
			}
			b.WriteString(fmt.Sprintf("  #%d %s: %d successes of %d matches%s\n",
				rule.ID, rule.Name, rule.SuccessCount, rule.MatchCount, rate))
		}
	}

	return boxStyle.Render(b.String())
}
