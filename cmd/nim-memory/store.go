package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/core"
)

var storeCmd = &cobra.Command{
	Use:   "store [file|-]...",
	Short: "Remember finished conversations",
	Long: `Remember one or more finished conversations.

Each file holds one transcript, with turns written as "User: ..." and
"Assistant: ...". With no arguments, or "-", the transcript is read from
stdin. Every stored conversation also updates the procedural rules, and
consolidation runs every CONSOLIDATION_EVERY_N conversations.

Examples:
  nim-memory store chat.txt
  cat chat.txt | nim-memory store
  nim-memory store day1.txt day2.txt day3.txt`,
	RunE: runStore,
}

func runStore(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"-"}
	}
	out := cmd.OutOrStdout()

	for _, name := range args {
		text, err := readTranscript(cmd.InOrStdin(), name)
		if err != nil {
			return err
		}

		res, err := eng.EndConversation(cmd.Context(), core.ParseTranscript(text))
		if err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}

		if res.Episode.Stored() {
			fmt.Fprintf(out, "%s: stored %s\n", name, res.Episode.ID)
		} else {
			fmt.Fprintf(out, "%s: skipped (%s)\n", name, res.Episode.Reason)
		}
		if verbose {
			fmt.Fprintf(out, "  rules: %s", res.Rules.Status)
			if res.Rules.Reason != "" {
				fmt.Fprintf(out, " (%s)", res.Rules.Reason)
			}
			fmt.Fprintln(out)
		}
		if c := res.Consolidation; c != nil {
			fmt.Fprintf(out, "  consolidated: %d -> %d episodes, %d rules promoted\n",
				c.EpisodesBefore, c.EpisodesAfter, c.RulesPromoted)
		}
	}
	return nil
}

func readTranscript(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}
