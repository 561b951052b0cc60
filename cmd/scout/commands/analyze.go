package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/internal/pipeline/executor"
	"github.com/anveshkr/stockscout/internal/research"
	"github.com/anveshkr/stockscout/internal/stages/reportwriter"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/logger"
	"github.com/anveshkr/stockscout/pkg/redis"
)

// analyzeCmd runs the research pipeline once and prints the report.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [symbol]",
	Short: "Generate a research report for a symbol",
	Long: `Runs the full research pipeline for one symbol and prints the report.

Bare tickers are assumed to be NSE; prefix with an exchange to override.

Example:
  go run ./cmd/scout analyze TCS
  go run ./cmd/scout analyze NSE:RELIANCE --refresh
  go run ./cmd/scout analyze INFY --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeRefresh bool
	analyzeJSON    bool
	analyzeTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().BoolVar(&analyzeRefresh, "refresh", false, "ignore cached results and refetch everything")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full report as JSON")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "whole-run timeout (default from config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	svc, err := research.New(cfg, redisClient, log)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer svc.Close()

	if !analyzeJSON {
		svc.OnEvent(printProgress)
	}

	fmt.Printf("Analyzing %s...\n\n", args[0])

	report, err := svc.Run(context.Background(), research.RunRequest{
		Symbol:       args[0],
		ForceRefresh: analyzeRefresh,
		Timeout:      analyzeTimeout,
	})
	if err != nil {
		return err
	}

	if analyzeJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	printReport(report)
	return nil
}

// printProgress renders pipeline events as they settle.
func printProgress(ev executor.Event) {
	switch ev.Type {
	case executor.EventStageStarted:
		fmt.Printf("  ▸ %s...\n", ev.Stage)
	case executor.EventStageSettled:
		mark := "✅"
		detail := string(ev.Source)
		switch ev.Status {
		case contracts.StatusDegraded:
			mark = "⚠️ "
			detail += ", partial"
		case contracts.StatusFailed:
			mark = "❌"
			detail = ev.Reason
		}
		fmt.Printf("  %s %s (%s)\n", mark, ev.Stage, detail)
	}
}

// printReport renders the human-readable report: the composed markdown
// document when available, section summaries otherwise.
func printReport(report *contracts.Report) {
	fmt.Printf("\n=== %s | %s | run %s ===\n\n", report.Symbol, report.Status, report.RunID)

	if report.Status == contracts.RunAborted {
		fmt.Printf("Run aborted: %s\n", report.Error)
		return
	}

	if section, ok := report.Section(contracts.StageReport); ok && len(section.Payload) > 0 {
		var doc reportwriter.Payload
		if err := json.Unmarshal(section.Payload, &doc); err == nil && doc.Markdown != "" {
			fmt.Println(doc.Markdown)
			return
		}
	}

	// Report composition failed; fall back to section status lines.
	for _, section := range report.Sections {
		switch section.Status {
		case contracts.StatusFailed:
			fmt.Printf("- %s: %s\n", section.Title, section.Placeholder)
		case contracts.StatusDegraded:
			fmt.Printf("- %s: partial (%d caveats)\n", section.Title, len(section.Caveats))
		default:
			fmt.Printf("- %s: ok\n", section.Title)
		}
	}
}
