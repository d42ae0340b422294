package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var recallContext bool

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Recall past episodes relevant to a query",
	Long: `Recall the most relevant past episodes for a query, ranked by
similarity weighted with recency.

With --context, print the prompt enrichment an agent would receive: the
learned rules followed by the recalled episodes.

Examples:
  nim-memory recall "customer wants a refund"
  nim-memory recall --context "refund for order 1234"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecall,
}

func init() {
	recallCmd.Flags().BoolVar(&recallContext, "context", false, "print the assembled prompt context")
}

func runRecall(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if recallContext {
		text, err := eng.BuildContext(cmd.Context(), query)
		if err != nil {
			return err
		}
		if text == "" {
			fmt.Fprintln(out, "No memory context.")
			return nil
		}
		fmt.Fprintln(out, text)
		return nil
	}

	results, ok, err := eng.Recall(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("recall: %w", err)
	}
	if !ok {
		fmt.Fprintln(out, "No episodes found.")
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(out, "%d. [%.3f] %s\n", i+1, r.Score, r.Summary)
		fmt.Fprintf(out, "   What worked: %s\n", r.WhatWorked)
		fmt.Fprintf(out, "   What to avoid: %s\n", r.WhatToAvoid)
		if verbose {
			fmt.Fprintf(out, "   id=%s similarity=%.3f recency=%.3f\n", r.ID, r.Similarity, r.Recency)
		}
	}
	return nil
}
