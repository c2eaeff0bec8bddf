package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for krk.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "krk",
		Short: "Declarative web scraper driven by CSS selectors",
		Long: `krk fetches web pages and extracts structured data from them.

A scrape document lists the pages to fetch (with headers, retries, delay,
proxy, cache and pagination settings) and a schema mapping field names to
CSS selectors. Nested schemas turn repeated elements into lists of records.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
