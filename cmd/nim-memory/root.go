package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/engine"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	verbose    bool

	cfg     *config.Config
	logger  *slog.Logger
	eng     *engine.Engine
	cleanup []func() error

	// openEngine builds the engine from cfg. Tests replace it.
	openEngine = buildEngine
)

var rootCmd = &cobra.Command{
	Use:   "nim-memory",
	Short: "Long-term memory for conversational agents",
	Long: `nim-memory keeps an agent's long-term memory: episodes reflected from
past conversations, procedural rules learned from them, and periodic
consolidation that merges similar episodes.

Configuration comes from an optional YAML file (--config), a .env file in
the working directory, and environment variables, in increasing precedence.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		level := cfg.Level()
		if verbose {
			level = slog.LevelDebug
		}
		var closeLog func() error
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)
		cleanup = append(cleanup, closeLog)

		eng, err = openEngine(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("open memory: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeAll()
	},
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if cerr := closeAll(); err == nil {
		err = cerr
	}
	return err
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(statsCmd)
}

// closeAll releases everything opened in PersistentPreRunE, engine first.
func closeAll() error {
	var firstErr error
	if eng != nil {
		firstErr = eng.Close()
		eng = nil
	}
	for i := len(cleanup) - 1; i >= 0; i-- {
		if err := cleanup[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	cleanup = nil
	return firstErr
}
