package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and edit procedural rules",
	Long: `Inspect and edit the procedural rules injected into every prompt.

Subcommands:
  list    List rules (default)
  add     Add a rule directly
  update  Fold evidence into the rules with the reasoner

Examples:
  nim-memory rules
  nim-memory rules add "Ask for the order number before looking anything up"
  nim-memory rules update "What to avoid: promising refunds before checking eligibility"`,
	RunE: runRulesList,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <rule>",
	Short: "Add a rule",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rule := strings.Join(args, " ")
		if err := eng.AddRule(rule); err != nil {
			return fmt.Errorf("add rule: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rules: %d\n", len(eng.Rules()))
		return nil
	},
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <evidence>",
	Short: "Rewrite the rules given new evidence",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := eng.UpdateRules(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("update rules: %w", err)
		}
		if !res.Stored() {
			fmt.Fprintf(cmd.OutOrStdout(), "Rules unchanged (%s).\n", res.Reason)
			return nil
		}
		return runRulesList(cmd, nil)
	},
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesUpdateCmd)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	rules := eng.Rules()
	if len(rules) == 0 {
		fmt.Fprintln(out, "No rules yet.")
		return nil
	}
	for i, r := range rules {
		fmt.Fprintf(out, "%d. %s\n", i+1, r)
	}
	return nil
}
