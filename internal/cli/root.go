// Package cli implements the ledgerscope command line interface: one-shot
// questions, an interactive console, history inspection, feedback capture,
// and batch evaluation.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

const (
	defaultDataPath    = "data/sample_events.csv"
	defaultHistoryPath = "data/query_logs.db"
)

func Run() ExitCode {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "ledgerscope",
		Short: "Ask questions about the banking events table in plain language.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var dbPath string
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", envWithDefault("LEDGERSCOPE_DB", ""), "DuckDB database file, empty for in-memory (env: LEDGERSCOPE_DB)")

	var dataPath string
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", envWithDefault("LEDGERSCOPE_DATA", defaultDataPath), "CSV loaded into the events table on startup (env: LEDGERSCOPE_DATA, default: "+defaultDataPath+")")

	var historyPath string
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", envWithDefault("LEDGERSCOPE_HISTORY", defaultHistoryPath), "SQLite file for run history (env: LEDGERSCOPE_HISTORY, default: "+defaultHistoryPath+")")

	rootCmd.AddCommand(
		NewAskCmd().Command(),
		NewReplCmd().Command(),
		NewHistoryCmd().Command(),
		NewFeedbackCmd().Command(),
		NewStatsCmd().Command(),
		NewEvalCmd().Command(),
	)

	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}

	return exitCodeSuccess
}

func envWithDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}
