package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "StockScout - multi-stage stock research pipeline",
	Long: `StockScout Unified CLI

Concurrent research pipeline producing multi-section stock reports:
market data, news sentiment, fundamentals, technicals, strategy and
an executive summary.

Usage:
  go run ./cmd/scout [command]

Examples:
  go run ./cmd/scout analyze TCS
  go run ./cmd/scout analyze NSE:RELIANCE --refresh
  go run ./cmd/scout api
  go run ./cmd/scout scheduler start`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
