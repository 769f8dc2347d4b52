package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bank-assistant/backend/internal/app"
	"github.com/bank-assistant/backend/internal/assistant"
	"github.com/bank-assistant/backend/internal/evaluation"
)

var (
	askCustomerID int64
	askLanguage   string
	askDetails    bool

	indexRebuild bool
)

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question for a customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := app.Bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		resp := a.Assistant.Answer(ctx, assistant.Request{
			Question:   args[0],
			CustomerID: askCustomerID,
			Language:   askLanguage,
		})

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, resp.Answer)
		if askDetails {
			fmt.Fprintf(out, "\nintent: %s  outcome: %s  attempts: %d  latency: %dms\n",
				resp.Decision.Intent, resp.Outcome, resp.Attempts, resp.LatencyMS)
			if resp.PreComputed != "" {
				fmt.Fprintf(out, "pre-computed: %s\n", resp.PreComputed)
			}
		}
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Public knowledge index operations",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the configured chunk manifests into the similarity index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		if len(cfg.Index.Manifests) == 0 {
			return fmt.Errorf("no chunk manifests configured (index.manifests)")
		}

		index, closeIndex, err := app.NewVectorStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeIndex()

		a := &app.App{Config: cfg, Index: index}
		report, err := a.BuildIndex(ctx, indexRebuild)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if report.Reused {
			fmt.Fprintln(out, "Index already populated; pass --rebuild to replace it.")
			return nil
		}
		fmt.Fprintf(out, "Indexed %d chunks in %s\n", report.Indexed, report.Duration.Round(time.Millisecond))
		langs := make([]string, 0, len(report.PerLanguage))
		for lang := range report.PerLanguage {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			fmt.Fprintf(out, "  %s: %d\n", lang, report.PerLanguage[lang])
		}
		return nil
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Financial data table operations",
}

var tablesLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace the financial store contents with the configured CSV files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		if cfg.Data.CustomersCSV == "" {
			return fmt.Errorf("no source tables configured (data.customersCSV)")
		}

		db, err := app.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		report, err := app.LoadTables(ctx, db, cfg.Data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Loaded %d customers, %d products, %d transactions\n",
			report.Customers, report.Products, report.Transactions)
		for table, n := range report.SkippedRows {
			fmt.Fprintf(out, "  skipped %d rows in %s\n", n, table)
		}
		if report.NullifiedDates > 0 {
			fmt.Fprintf(out, "  %d unreadable dates stored as empty\n", report.NullifiedDates)
		}
		return nil
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval <dataset.json>",
	Short: "Replay a scripted question set and report mismatches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		dataset, err := evaluation.LoadDataset(args[0])
		if err != nil {
			return err
		}

		a, err := app.Bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report := evaluation.NewEvaluator(a.Assistant, a.Embedder).RunDatasetEvaluation(ctx, dataset)
		if err := evaluation.WriteReport(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d questions failed", report.Failed, report.TotalQuestions)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Int64VarP(&askCustomerID, "customer", "c", 0, "Customer id")
	askCmd.Flags().StringVarP(&askLanguage, "language", "l", "en", "Knowledge language (en, fr, nl)")
	askCmd.Flags().BoolVar(&askDetails, "details", false, "Print routing and completion details")
	_ = askCmd.MarkFlagRequired("customer")

	indexBuildCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "Drop a populated index before building")
	indexCmd.AddCommand(indexBuildCmd)

	tablesCmd.AddCommand(tablesLoadCmd)
}
