package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "List or delete stored episodes",
	RunE:  runEpisodesList,
}

var episodesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List episodes, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runEpisodesList,
}

var episodesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete episodes by ID",
	Long: `Delete episodes by ID. Unknown IDs are ignored.

Examples:
  nim-memory episodes delete episode_1700000000000_ab12cd34`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Forget(cmd.Context(), args...); err != nil {
			return fmt.Errorf("delete episodes: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted: %s\n", strings.Join(args, ", "))
		return nil
	},
}

func init() {
	episodesCmd.AddCommand(episodesListCmd)
	episodesCmd.AddCommand(episodesDeleteCmd)
}

func runEpisodesList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	eps, err := eng.Episodes(cmd.Context())
	if err != nil {
		return fmt.Errorf("list episodes: %w", err)
	}
	if len(eps) == 0 {
		fmt.Fprintln(out, "No episodes found.")
		return nil
	}

	fmt.Fprintf(out, "Episodes (%d):\n\n", len(eps))
	for _, ep := range eps {
		mark := ""
		if ep.Consolidated {
			mark = " [consolidated]"
		}
		fmt.Fprintf(out, "- %s %s%s\n", ep.ID, ep.Timestamp.Format(time.RFC3339), mark)
		fmt.Fprintf(out, "  %s\n", ep.Summary)
		if verbose {
			fmt.Fprintf(out, "  What worked: %s\n", ep.WhatWorked)
			fmt.Fprintf(out, "  What to avoid: %s\n", ep.WhatToAvoid)
			if len(ep.ContextTags) > 0 {
				fmt.Fprintf(out, "  Tags: %s\n", strings.Join(ep.ContextTags, ", "))
			}
		}
	}
	return nil
}
