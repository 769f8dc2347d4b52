package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/pkg/config"
	appLogger "github.com/bank-assistant/backend/pkg/logger"
)

var (
	verbose bool

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Bank assistant operations (ask, index, tables, eval)",
	Long: `Operate the bank assistant without the HTTP server.

Configuration is read from config.yaml and BANK_ASSISTANT_* environment
variables, the same way the API server reads it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := appLogger.Init(level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
			return err
		}
		metrics.Init()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		appLogger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(evalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
