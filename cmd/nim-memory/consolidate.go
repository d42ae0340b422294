package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge similar episodes and promote recurring patterns",
	Long: `Run a consolidation pass now: cluster similar episodes, merge each
cluster into one episode, then promote patterns that recur across the
remaining episodes to procedural rules.`,
	Args: cobra.NoArgs,
	RunE: runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	res, err := eng.Consolidate(cmd.Context())
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
